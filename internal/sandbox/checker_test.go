package sandbox

import (
	"testing"

	"go.uber.org/goleak"
)

func TestSafetyChecker(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := NewSafetyChecker([]string{"strings", "fmt"})

	tests := []struct {
		name     string
		code     string
		safe     bool
		wantType ViolationType
	}{
		{
			name: "allowed imports",
			code: "package main\nimport \"strings\"\nfunc f(s string) string { return strings.ToUpper(s) }\n",
			safe: true,
		},
		{
			name:     "forbidden import",
			code:     "package main\nimport \"net/http\"\nfunc f() { _ = http.Get }\n",
			wantType: ViolationForbiddenImport,
		},
		{
			name:     "cgo",
			code:     "package main\nimport \"C\"\nfunc f() {}\n",
			wantType: ViolationCGO,
		},
		{
			name:     "goroutine",
			code:     "package main\nfunc f() { go func() {}() }\n",
			wantType: ViolationGoroutine,
		},
		{
			name:     "parse error",
			code:     "package main\nfunc f( {",
			wantType: ViolationParseError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := checker.Check(tt.code)
			if report.Safe != tt.safe {
				t.Fatalf("Safe = %v, want %v (%s)", report.Safe, tt.safe, report)
			}
			if tt.safe {
				return
			}
			if len(report.Violations) == 0 || report.Violations[0].Type != tt.wantType {
				t.Errorf("violations = %+v, want %s", report.Violations, tt.wantType)
			}
		})
	}
}

func TestSafetyChecker_GlobalStateIsWarning(t *testing.T) {
	checker := NewSafetyChecker(nil)
	report := checker.Check("package main\nvar counter int\nfunc f() int { counter++; return counter }\n")
	if !report.Safe {
		t.Fatalf("global state should only warn: %s", report)
	}
	if len(report.Violations) != 1 || report.Violations[0].Type != ViolationGlobalState {
		t.Errorf("unexpected violations: %+v", report.Violations)
	}
	if report.String() != "" {
		t.Errorf("warnings should not render: %q", report.String())
	}
}

func TestSafetyChecker_AllowedPackagesSorted(t *testing.T) {
	checker := NewSafetyChecker([]string{"strings", "fmt", "bytes"})
	got := checker.AllowedPackages()
	want := []string{"bytes", "fmt", "strings"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AllowedPackages = %v, want %v", got, want)
		}
	}
}
