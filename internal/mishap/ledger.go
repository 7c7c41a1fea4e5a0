// Package mishap records execution failures of incantations and drives the
// fix and retry loop over them.
package mishap

import (
	"context"
	"errors"

	"jinn/internal/incantation"
	"jinn/internal/logging"
	"jinn/internal/store"
	"jinn/internal/types"
)

// Repairer is the part of the synthesis gateway the ledger uses.
type Repairer interface {
	Repair(ctx context.Context, code string, args map[string]interface{}, trace string) (string, error)
	Describe(ctx context.Context, code string) (*types.CallSchema, error)
}

// Ledger is the failure ledger.
type Ledger struct {
	store    *store.Store
	registry *incantation.Registry
	repairer Repairer
}

// NewLedger creates a ledger.
func NewLedger(st *store.Store, registry *incantation.Registry, repairer Repairer) *Ledger {
	return &Ledger{store: st, registry: registry, repairer: repairer}
}

// Trace returns the human readable failure text of err.
func Trace(err error) string {
	var execErr *types.ExecutionError
	if errors.As(err, &execErr) && execErr.Trace != "" {
		return execErr.Trace
	}
	return err.Error()
}

// Record appends a mishap for inc.
func (l *Ledger) Record(ctx context.Context, inc *store.Incantation, args map[string]interface{}, code, trace string) (*store.Mishap, error) {
	m := &store.Mishap{
		IncantationID: inc.ID,
		Request:       args,
		Code:          code,
		Traceback:     trace,
	}
	if err := l.store.CreateMishap(ctx, m); err != nil {
		return nil, err
	}
	logging.Ledger("Recorded mishap %d on incantation %d (%s)", m.ID, inc.ID, inc.Name)
	return m, nil
}

// RecordFailure records cause as a mishap against the current artifact.
func (l *Ledger) RecordFailure(ctx context.Context, inc *store.Incantation, args map[string]interface{}, cause error) (*store.Mishap, error) {
	return l.Record(ctx, inc, args, inc.Code, Trace(cause))
}

// Fix asks for a repair of the owning incantation's current artifact using
// the mishap's arguments and trace. On success the artifact and schema are
// replaced together; on failure nothing changes.
func (l *Ledger) Fix(ctx context.Context, m *store.Mishap) (*store.Incantation, error) {
	timer := logging.StartTimer(logging.CategoryLedger, "fix")
	defer timer.Stop()

	inc, err := l.store.Incantation(ctx, m.IncantationID)
	if err != nil {
		return nil, err
	}
	params, err := l.registry.Parameters(inc)
	if err != nil {
		return nil, err
	}

	code, err := l.repairer.Repair(ctx, inc.Code, m.FilteredRequest(params), m.Traceback)
	if err != nil {
		logging.Get(logging.CategoryLedger).Warn("Fix of mishap %d failed: %v", m.ID, err)
		return nil, err
	}
	schema, err := l.repairer.Describe(ctx, code)
	if err != nil {
		logging.Get(logging.CategoryLedger).Warn("Fix of mishap %d could not be described: %v", m.ID, err)
		return nil, err
	}

	inc.Code = code
	inc.Schema = *schema
	if err := l.store.UpdateIncantation(ctx, inc); err != nil {
		return nil, err
	}
	logging.Ledger("Fixed incantation %d from mishap %d", inc.ID, m.ID)
	return inc, nil
}

// Retry calls the current artifact with the mishap's arguments, restricted
// to parameters it still declares. Success deletes every mishap of the same
// incantation with the same trace and code snapshot. Failure appends a new
// mishap and returns the error.
func (l *Ledger) Retry(ctx context.Context, m *store.Mishap) (interface{}, error) {
	timer := logging.StartTimer(logging.CategoryLedger, "retry")
	defer timer.Stop()

	inc, err := l.store.Incantation(ctx, m.IncantationID)
	if err != nil {
		return nil, err
	}
	params, err := l.registry.Parameters(inc)
	if err != nil {
		return nil, err
	}

	result, execErr := l.registry.Execute(ctx, inc, m.FilteredRequest(params))
	if execErr != nil {
		if _, err := l.RecordFailure(ctx, inc, m.Request, execErr); err != nil {
			return nil, err
		}
		logging.LedgerDebug("Retry of mishap %d failed again", m.ID)
		return nil, execErr
	}

	n, err := l.store.DeleteMishapsMatching(ctx, inc.ID, m.Traceback, m.Code)
	if err != nil {
		return nil, err
	}
	logging.Ledger("Retry of mishap %d succeeded, cleared %d mishap(s)", m.ID, n)
	return result, nil
}

// FixAndRetry fixes and, when that succeeds, retries.
func (l *Ledger) FixAndRetry(ctx context.Context, m *store.Mishap) (interface{}, error) {
	if _, err := l.Fix(ctx, m); err != nil {
		return nil, err
	}
	return l.Retry(ctx, m)
}

// Erase deletes a mishap.
func (l *Ledger) Erase(ctx context.Context, m *store.Mishap) error {
	if err := l.store.DeleteMishap(ctx, m.ID); err != nil {
		return err
	}
	logging.LedgerDebug("Erased mishap %d", m.ID)
	return nil
}

// Get returns a mishap whose incantation the principal owns.
func (l *Ledger) Get(ctx context.Context, p *store.Principal, id int64) (*store.Mishap, error) {
	m, err := l.store.Mishap(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := l.registry.Owned(ctx, p, m.IncantationID); err != nil {
		return nil, &types.NotFoundError{Kind: "mishap", ID: id}
	}
	return m, nil
}

// For returns the mishaps of one incantation.
func (l *Ledger) For(ctx context.Context, inc *store.Incantation) ([]*store.Mishap, error) {
	return l.store.MishapsFor(ctx, inc.ID)
}

// List returns the mishaps of every incantation the principal owns.
func (l *Ledger) List(ctx context.Context, p *store.Principal) ([]*store.Mishap, error) {
	return l.store.ListMishaps(ctx, p.ID)
}
