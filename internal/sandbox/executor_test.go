package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinn/internal/config"
	"jinn/internal/types"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := NewExecutor(Options{
		AllowedPackages: config.DefaultAllowedPackages,
		Timeout:         2 * time.Second,
	})
	require.NoError(t, err)
	return e
}

func TestExecute_Add(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

func add(a int, b int) int {
	return a + b
}
`
	// JSON numbers arrive as float64
	got, err := e.Execute(context.Background(), code, map[string]interface{}{"a": float64(5), "b": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}

func TestExecute_StdlibAndErrorResult(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

import (
	"errors"
	"strings"
)

func shout(s string, times int) (string, error) {
	if times < 0 {
		return "", errors.New("times must not be negative")
	}
	return strings.Repeat(strings.ToUpper(s), times), nil
}
`
	got, err := e.Execute(context.Background(), code, map[string]interface{}{"s": "ab", "times": "2"})
	require.NoError(t, err)
	assert.Equal(t, "ABAB", got)

	_, err = e.Execute(context.Background(), code, map[string]interface{}{"s": "ab", "times": -1})
	var ee *types.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Trace, "times must not be negative")
}

func TestExecute_PanicBecomesTrace(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

func ratio(b int) int {
	return 10 / b
}
`
	_, err := e.Execute(context.Background(), code, map[string]interface{}{"b": 0})
	var ee *types.ExecutionError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, "ratio", ee.Func)
	assert.Contains(t, ee.Trace, "divide by zero")

	// Same failure, same trace
	_, err2 := e.Execute(context.Background(), code, map[string]interface{}{"b": 0})
	var ee2 *types.ExecutionError
	require.True(t, errors.As(err2, &ee2))
	assert.Equal(t, ee.Trace, ee2.Trace)
}

func TestExecute_ArgumentErrors(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

func add(a int, b int) int {
	return a + b
}
`
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing", map[string]interface{}{"a": 1}, "missing required arguments: b"},
		{"unexpected", map[string]interface{}{"a": 1, "b": 2, "c": 3}, `unexpected argument "c"`},
		{"fractional", map[string]interface{}{"a": 1.5, "b": 2}, "expected integer"},
		{"wrong type", map[string]interface{}{"a": true, "b": 2}, "expected integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), code, tt.args)
			var ee *types.ExecutionError
			require.True(t, errors.As(err, &ee), "got %v", err)
			assert.Contains(t, ee.Trace, tt.want)
		})
	}
}

func TestExecute_SliceParameter(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

func total(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum
}
`
	got, err := e.Execute(context.Background(), code, map[string]interface{}{"xs": []interface{}{1.5, 2.5, "1"}})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestExecute_ForbiddenImport(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

import "os"

func home() string {
	return os.Getenv("HOME")
}
`
	_, err := e.Execute(context.Background(), code, nil)
	var ee *types.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Trace, `import "os" is not on the allowlist`)
}

func TestExecute_Timeout(t *testing.T) {
	e, err := NewExecutor(Options{
		AllowedPackages: config.DefaultAllowedPackages,
		Timeout:         50 * time.Millisecond,
	})
	require.NoError(t, err)
	code := `package main

import "time"

func nap(ms int) int {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return ms
}
`
	_, err = e.Execute(context.Background(), code, map[string]interface{}{"ms": 500})
	var ee *types.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Trace, "timed out")
}

func TestExecute_OutputIsCaptured(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

import "fmt"

func greet(name string) string {
	fmt.Println("side effect")
	return "hello " + name
}
`
	got, err := e.Execute(context.Background(), code, map[string]interface{}{"name": "jinn"})
	require.NoError(t, err)
	assert.Equal(t, "hello jinn", got)
}

func TestVerify_LoadFailure(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Verify(context.Background(), "package main\n\nfunc broken() int {\n\treturn undefinedName\n}\n")
	var ee *types.ExecutionError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Contains(t, ee.Trace, "load failed")

	sig, err := e.Verify(context.Background(), "func ok(x bool) bool { return !x }")
	require.NoError(t, err)
	assert.Equal(t, "ok", sig.Name)
}

func TestSignature_Cached(t *testing.T) {
	e := newTestExecutor(t)
	code := "package main\n\nfunc one() int { return 1 }\n"
	first, err := e.Signature(code)
	require.NoError(t, err)
	second, err := e.Signature(code)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestVerify_LoadsEntryFunction(t *testing.T) {
	e := newTestExecutor(t)
	code := `package main

import "strings"

func pad(s string, width int, fill string) string {
	s = helper(s)
	for len(s) < width {
		s = fill + s
	}
	return s
}

func helper(s string) string { return strings.TrimSpace(s) }
`
	sig, err := e.Verify(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "pad", sig.Name)
	assert.Equal(t, []string{"s", "width", "fill"}, sig.ParamNames())

	got, err := e.Execute(context.Background(), code, map[string]interface{}{"s": " 7 ", "width": float64(3), "fill": "0"})
	require.NoError(t, err)
	assert.Equal(t, "007", got)
}
