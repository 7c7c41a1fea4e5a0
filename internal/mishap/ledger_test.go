package mishap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinn/internal/config"
	"jinn/internal/incantation"
	"jinn/internal/sandbox"
	"jinn/internal/store"
	"jinn/internal/synthesis"
	"jinn/internal/types"
)

const (
	ratioCode = "package main\n\nfunc ratio(b int) int {\n\td := b - 3\n\treturn b / d\n}\n"
	ratioSafe = "package main\n\nfunc ratio(b int) int {\n\td := b - 3\n\tif d == 0 {\n\t\treturn 0\n\t}\n\treturn b / d\n}\n"
	ratioJSON = `{"function": {"description": "Divides b by b minus three."}}`
)

type fixture struct {
	store    *store.Store
	llm      *scriptedLLM
	registry *incantation.Registry
	ledger   *Ledger
	owner    *store.Principal
	inc      *store.Incantation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	exec, err := sandbox.NewExecutor(sandbox.Options{
		AllowedPackages: config.DefaultAllowedPackages,
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)

	llm := &scriptedLLM{}
	gw := synthesis.NewGateway(llm, exec, config.DefaultAllowedPackages)
	registry := incantation.NewRegistry(st, gw, exec)

	owner := &store.Principal{Moniker: "alladin", PasswordHash: "x", Token: "t-alladin", Verified: true}
	require.NoError(t, st.CreatePrincipal(ctx, owner))

	schema := types.NewCallSchema("ratio", "Divides b by b minus three.")
	schema.Function.Parameters.Properties["b"] = types.PropertySpec{Type: "integer"}
	schema.Function.Parameters.Required = []string{"b"}
	inc := &store.Incantation{OwnerID: owner.ID, Name: "ratio", Request: "ratio", Code: ratioCode, Schema: schema}
	require.NoError(t, st.CreateIncantation(ctx, inc))

	return &fixture{
		store:    st,
		llm:      llm,
		registry: registry,
		ledger:   NewLedger(st, registry, gw),
		owner:    owner,
		inc:      inc,
	}
}

// fail executes the incantation with b=3 and records the failure.
func (f *fixture) fail(t *testing.T) *store.Mishap {
	t.Helper()
	ctx := context.Background()
	args := map[string]interface{}{"b": 3}

	inc, err := f.store.Incantation(ctx, f.inc.ID)
	require.NoError(t, err)
	_, execErr := f.registry.Execute(ctx, inc, args)
	require.Error(t, execErr)

	m, err := f.ledger.RecordFailure(ctx, inc, args, execErr)
	require.NoError(t, err)
	return m
}

func (f *fixture) mishaps(t *testing.T) []*store.Mishap {
	t.Helper()
	list, err := f.ledger.For(context.Background(), f.inc)
	require.NoError(t, err)
	return list
}

func TestRecordedMishapCarriesTrace(t *testing.T) {
	f := newFixture(t)
	m := f.fail(t)

	assert.Contains(t, m.Traceback, "integer divide by zero")
	assert.Equal(t, ratioCode, m.Code)

	stored, err := f.store.Mishap(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys(stored.Request))
}

func TestRetryUnchangedArtifactAppendsMishap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.fail(t)

	_, err := f.ledger.Retry(ctx, m)
	var execErr *types.ExecutionError
	require.True(t, errors.As(err, &execErr))

	list := f.mishaps(t)
	require.Len(t, list, 2, "the original mishap is kept and a new one appended")
	assert.Equal(t, m.ID, list[0].ID)
	assert.Equal(t, m.Traceback, list[1].Traceback)
	assert.Equal(t, ratioCode, list[1].Code)
}

func TestFixThenRetryClearsMishap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.fail(t)

	f.llm.push("```go\n"+ratioSafe+"```", ratioJSON)
	fixed, err := f.ledger.Fix(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, ratioSafe, fixed.Code)
	assert.Equal(t, []string{"b"}, fixed.Schema.Function.Parameters.Required)
	assert.Contains(t, f.llm.prompts[0], `{"b":3}`)
	assert.Contains(t, f.llm.prompts[0], "integer divide by zero")

	result, err := f.ledger.Retry(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 0, result)
	assert.Empty(t, f.mishaps(t))
}

func TestRetryDeduplicatesIdenticalFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.fail(t)
	f.fail(t)
	other, err := f.ledger.Record(ctx, f.inc, map[string]interface{}{"b": 3}, ratioCode, "a different trace")
	require.NoError(t, err)

	f.llm.push("```go\n"+ratioSafe+"```", ratioJSON)
	_, err = f.ledger.Fix(ctx, first)
	require.NoError(t, err)

	_, err = f.ledger.Retry(ctx, first)
	require.NoError(t, err)

	list := f.mishaps(t)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)
}

func TestRetryFiltersStaleArguments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.ledger.Record(ctx, f.inc, map[string]interface{}{"b": 6, "a": 1}, ratioCode, "stale")
	require.NoError(t, err)

	result, err := f.ledger.Retry(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 2, result)
	assert.Empty(t, f.mishaps(t))
}

func TestFixFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.fail(t)

	f.llm.push("```go\npackage main\n\nfunc other(b int) int {\n\treturn b\n}\n```")
	_, err := f.ledger.FixAndRetry(ctx, m)
	var synthErr *types.SynthesisError
	require.True(t, errors.As(err, &synthErr))

	stored, err := f.store.Incantation(ctx, f.inc.ID)
	require.NoError(t, err)
	assert.Equal(t, ratioCode, stored.Code)
	assert.Len(t, f.mishaps(t), 1, "no retry after a failed fix")
}

func TestFixAndRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.fail(t)

	f.llm.push("```go\n"+ratioSafe+"```", ratioJSON)
	result, err := f.ledger.FixAndRetry(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 0, result)
	assert.Empty(t, f.mishaps(t))
}

func TestEraseAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.fail(t)

	stranger := &store.Principal{Moniker: "jafar", PasswordHash: "x", Token: "t-jafar"}
	require.NoError(t, f.store.CreatePrincipal(ctx, stranger))

	_, err := f.ledger.Get(ctx, stranger, m.ID)
	assert.True(t, types.IsNotFound(err))

	got, err := f.ledger.Get(ctx, f.owner, m.ID)
	require.NoError(t, err)

	all, err := f.ledger.List(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, f.ledger.Erase(ctx, got))
	assert.Empty(t, f.mishaps(t))
	assert.True(t, types.IsNotFound(f.ledger.Erase(ctx, got)))
}

func TestTrace(t *testing.T) {
	assert.Equal(t, "panic: boom", Trace(&types.ExecutionError{Trace: "panic: boom", Err: errors.New("boom")}))
	assert.Equal(t, "plain", Trace(errors.New("plain")))
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
