package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
)

// SafetyChecker validates artifact source before it reaches the interpreter.
type SafetyChecker struct {
	allowed map[string]bool
}

// SafetyReport contains the results of a safety check.
type SafetyReport struct {
	Safe           bool
	Violations     []SafetyViolation
	ImportsChecked int
}

// SafetyViolation describes a single safety issue.
type SafetyViolation struct {
	Type        ViolationType
	Location    string // line:N or an import path
	Description string
	Severity    ViolationSeverity
}

// ViolationType categorizes violations.
type ViolationType int

const (
	ViolationForbiddenImport ViolationType = iota
	ViolationCGO
	ViolationGoroutine
	ViolationGlobalState
	ViolationParseError
)

func (v ViolationType) String() string {
	switch v {
	case ViolationForbiddenImport:
		return "forbidden_import"
	case ViolationCGO:
		return "cgo"
	case ViolationGoroutine:
		return "goroutine"
	case ViolationGlobalState:
		return "global_state"
	case ViolationParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// ViolationSeverity indicates how serious a violation is.
type ViolationSeverity int

const (
	SeverityWarning ViolationSeverity = iota
	SeverityBlocking
)

// NewSafetyChecker creates a checker for the given import allow list.
func NewSafetyChecker(allowed []string) *SafetyChecker {
	set := make(map[string]bool, len(allowed))
	for _, pkg := range allowed {
		set[pkg] = true
	}
	return &SafetyChecker{allowed: set}
}

// AllowedPackages returns the allow list in sorted order.
func (sc *SafetyChecker) AllowedPackages() []string {
	pkgs := make([]string, 0, len(sc.allowed))
	for pkg := range sc.allowed {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Check inspects the syntax tree of code. Blocking violations make the
// report unsafe; warnings are informational.
func (sc *SafetyChecker) Check(code string) *SafetyReport {
	report := &SafetyReport{Safe: true}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", code, 0)
	if err != nil {
		report.add(SafetyViolation{
			Type:        ViolationParseError,
			Description: fmt.Sprintf("failed to parse code: %v", err),
			Severity:    SeverityBlocking,
		})
		return report
	}

	for _, imp := range file.Imports {
		report.ImportsChecked++
		path, _ := strconv.Unquote(imp.Path.Value)
		switch {
		case path == "C":
			report.add(SafetyViolation{
				Type:        ViolationCGO,
				Location:    path,
				Description: "cgo is not available to artifacts",
				Severity:    SeverityBlocking,
			})
		case !sc.allowed[path]:
			report.add(SafetyViolation{
				Type:        ViolationForbiddenImport,
				Location:    path,
				Description: fmt.Sprintf("import %q is not on the allowlist", path),
				Severity:    SeverityBlocking,
			})
		}
	}

	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.VAR {
			report.add(SafetyViolation{
				Type:        ViolationGlobalState,
				Location:    fmt.Sprintf("line:%d", fset.Position(gen.Pos()).Line),
				Description: "package-level variables do not survive between calls",
				Severity:    SeverityWarning,
			})
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		if stmt, ok := n.(*ast.GoStmt); ok {
			report.add(SafetyViolation{
				Type:        ViolationGoroutine,
				Location:    fmt.Sprintf("line:%d", fset.Position(stmt.Go).Line),
				Description: "artifacts must not start goroutines",
				Severity:    SeverityBlocking,
			})
		}
		return true
	})

	return report
}

func (r *SafetyReport) add(v SafetyViolation) {
	r.Violations = append(r.Violations, v)
	if v.Severity == SeverityBlocking {
		r.Safe = false
	}
}

// String renders blocking violations, one per line.
func (r *SafetyReport) String() string {
	var sb strings.Builder
	for _, v := range r.Violations {
		if v.Severity != SeverityBlocking {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", v.Type, v.Description)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
