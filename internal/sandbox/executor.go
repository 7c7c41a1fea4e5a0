// Package sandbox loads and runs synthesized artifacts inside the yaegi
// interpreter. Each load gets a fresh interpreter that only sees the symbols
// of an allow list of standard library packages; artifacts never touch the
// host's stdout, filesystem or network.
package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"jinn/internal/logging"
	"jinn/internal/transform"
	"jinn/internal/types"
)

// Options configures an Executor.
type Options struct {
	AllowedPackages []string
	Timeout         time.Duration
	CacheSize       int
}

// Executor loads and runs artifacts.
type Executor struct {
	checker *SafetyChecker
	symbols interp.Exports
	timeout time.Duration
	sigs    *lru.Cache[string, *transform.Signature]
}

// NewExecutor creates an executor that exposes only the allowed packages.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, *transform.Signature](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}

	checker := NewSafetyChecker(opts.AllowedPackages)
	return &Executor{
		checker: checker,
		symbols: filterSymbols(stdlib.Symbols, checker.allowed),
		timeout: opts.Timeout,
		sigs:    cache,
	}, nil
}

// filterSymbols keeps the exports of allowed packages. Export keys have the
// form "import/path/name".
func filterSymbols(all interp.Exports, allowed map[string]bool) interp.Exports {
	out := make(interp.Exports)
	for key, syms := range all {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowed[key[:idx]] {
			out[key] = syms
		}
	}
	return out
}

// Signature returns the entry function signature of code. Results are
// cached by source hash.
func (e *Executor) Signature(code string) (*transform.Signature, error) {
	key := hashSource(code)
	if sig, ok := e.sigs.Get(key); ok {
		return sig, nil
	}
	sig, err := transform.Inspect(code)
	if err != nil {
		return nil, err
	}
	e.sigs.Add(key, sig)
	return sig, nil
}

func hashSource(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Verify loads code without calling it and returns its signature.
func (e *Executor) Verify(ctx context.Context, code string) (*transform.Signature, error) {
	tool, err := e.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return tool.sig, nil
}

// Execute loads code and calls its entry function with args. Failures are
// returned as *types.ExecutionError.
func (e *Executor) Execute(ctx context.Context, code string, args map[string]interface{}) (interface{}, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "execute")
	defer timer.Stop()

	tool, err := e.load(ctx, code)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return tool.call(ctx, args)
}

// loaded is an evaluated artifact bound to its own interpreter.
type loaded struct {
	sig    *transform.Signature
	fn     reflect.Value
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func (e *Executor) load(ctx context.Context, code string) (*loaded, error) {
	src, err := transform.Normalize(code)
	if err != nil {
		return nil, &types.ExecutionError{Trace: err.Error(), Err: err}
	}
	sig, err := e.Signature(src)
	if err != nil {
		return nil, &types.ExecutionError{Trace: err.Error(), Err: err}
	}
	if report := e.checker.Check(src); !report.Safe {
		logging.Get(logging.CategorySandbox).Warn("rejected %s: %s", sig.Name, report)
		return nil, &types.ExecutionError{
			Func:  sig.Name,
			Trace: report.String(),
			Err:   fmt.Errorf("artifact failed safety check"),
		}
	}
	for _, p := range sig.Params {
		if p.Name == "_" {
			return nil, &types.ExecutionError{
				Func:  sig.Name,
				Trace: "entry function has an unnamed parameter",
				Err:   fmt.Errorf("unnamed parameter"),
			}
		}
	}

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := i.Use(e.symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return nil, &types.ExecutionError{
			Func:  sig.Name,
			Trace: withDiagnostics("load failed: "+err.Error(), stderr),
			Err:   fmt.Errorf("code evaluation failed: %w", err),
		}
	}

	fn, err := i.EvalWithContext(ctx, "main."+sig.Name)
	if err != nil {
		return nil, &types.ExecutionError{Func: sig.Name, Trace: err.Error(), Err: err}
	}
	if fn.Kind() != reflect.Func || fn.Type().NumIn() != len(sig.Params) {
		return nil, &types.ExecutionError{
			Func:  sig.Name,
			Trace: fmt.Sprintf("%s is not callable with %d parameters", sig.Name, len(sig.Params)),
			Err:   fmt.Errorf("entry function mismatch"),
		}
	}

	logging.SandboxDebug("loaded %s(%s)", sig.Name, strings.Join(sig.ParamNames(), ", "))
	return &loaded{sig: sig, fn: fn, stdout: stdout, stderr: stderr}, nil
}

type callResult struct {
	out   []reflect.Value
	panic interface{}
}

func (l *loaded) call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	in, err := l.bind(args)
	if err != nil {
		return nil, &types.ExecutionError{Func: l.sig.Name, Trace: err.Error(), Err: err}
	}

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{panic: r}
			}
		}()
		if l.fn.Type().IsVariadic() {
			done <- callResult{out: l.fn.CallSlice(in)}
			return
		}
		done <- callResult{out: l.fn.Call(in)}
	}()

	// A call that outlives its deadline is abandoned, not stopped: the
	// interpreter cannot preempt a function value invoked through reflect,
	// so the goroutine runs until the artifact returns.
	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		err := fmt.Errorf("execution timed out: %w", ctx.Err())
		return nil, &types.ExecutionError{Func: l.sig.Name, Trace: err.Error(), Err: err}
	}

	if l.stdout.Len() > 0 {
		logging.SandboxDebug("%s wrote %d bytes of output", l.sig.Name, l.stdout.Len())
	}

	if res.panic != nil {
		msg := fmt.Sprintf("panic: %v", res.panic)
		return nil, &types.ExecutionError{
			Func:  l.sig.Name,
			Trace: withDiagnostics(msg, l.stderr),
			Err:   fmt.Errorf("%v", res.panic),
		}
	}
	return l.result(res.out)
}

func (l *loaded) result(out []reflect.Value) (interface{}, error) {
	if len(out) == 0 {
		return nil, nil
	}
	if l.sig.ReturnsError {
		last := out[len(out)-1]
		if !last.IsNil() {
			err, _ := last.Interface().(error)
			if err == nil {
				err = fmt.Errorf("%v", last.Interface())
			}
			return nil, &types.ExecutionError{
				Func:  l.sig.Name,
				Trace: withDiagnostics("error: "+err.Error(), l.stderr),
				Err:   err,
			}
		}
		out = out[:len(out)-1]
		if len(out) == 0 {
			return nil, nil
		}
	}
	return out[0].Interface(), nil
}

// bind orders and converts args to the entry function's parameters.
func (l *loaded) bind(args map[string]interface{}) ([]reflect.Value, error) {
	for name := range args {
		if _, ok := l.sig.Param(name); !ok {
			return nil, fmt.Errorf("%s() got an unexpected argument %q", l.sig.Name, name)
		}
	}

	fnType := l.fn.Type()
	in := make([]reflect.Value, len(l.sig.Params))
	var missing []string
	for idx, p := range l.sig.Params {
		raw, ok := args[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		v, err := convertArg(raw, fnType.In(idx))
		if err != nil {
			return nil, fmt.Errorf("%s() argument %q: %w", l.sig.Name, p.Name, err)
		}
		in[idx] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s() missing required arguments: %s", l.sig.Name, strings.Join(missing, ", "))
	}
	return in, nil
}

func withDiagnostics(msg string, stderr *bytes.Buffer) string {
	diag := strings.TrimSpace(stderr.String())
	if diag == "" {
		return msg
	}
	return msg + "\n" + diag
}
