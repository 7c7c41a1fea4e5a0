// Package incantation manages the lifecycle of synthesized tools: crafting,
// override binding, re-description, adjustment, execution and deletion.
package incantation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"jinn/internal/logging"
	"jinn/internal/store"
	"jinn/internal/transform"
	"jinn/internal/types"
)

// Synthesizer is the part of the synthesis gateway the registry uses.
type Synthesizer interface {
	Craft(ctx context.Context, request string, retryBudget int) (string, string, error)
	Describe(ctx context.Context, code string) (*types.CallSchema, error)
	Adjust(ctx context.Context, code, reason string) (string, error)
}

// Runner loads and calls artifacts. sandbox.Executor satisfies it.
type Runner interface {
	Signature(code string) (*transform.Signature, error)
	Verify(ctx context.Context, code string) (*transform.Signature, error)
	Execute(ctx context.Context, code string, args map[string]interface{}) (interface{}, error)
}

// Registry owns incantation state transitions.
type Registry struct {
	store  *store.Store
	synth  Synthesizer
	runner Runner
}

// NewRegistry creates a registry.
func NewRegistry(st *store.Store, synth Synthesizer, runner Runner) *Registry {
	return &Registry{store: st, synth: synth, runner: runner}
}

// Craft synthesizes, describes and persists a new incantation owned by owner.
func (r *Registry) Craft(ctx context.Context, owner *store.Principal, request string) (*store.Incantation, error) {
	timer := logging.StartTimer(logging.CategoryRegistry, "craft")
	defer timer.Stop()

	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("%w: empty request", types.ErrInvalidArgument)
	}

	budget := r.store.ConfigInt(ctx, store.KeyCraftRetries, 3)
	name, code, err := r.synth.Craft(ctx, request, budget)
	if err != nil {
		r.incident(ctx, store.IncidentCraft, err)
		return nil, err
	}
	schema, err := r.synth.Describe(ctx, code)
	if err != nil {
		r.incident(ctx, store.IncidentCraft, err)
		return nil, err
	}

	inc := &store.Incantation{
		OwnerID:   owner.ID,
		Name:      name,
		Request:   request,
		Code:      code,
		Schema:    *schema,
		Overrides: map[string]string{},
	}
	if err := r.store.CreateIncantation(ctx, inc); err != nil {
		return nil, err
	}
	logging.Registry("Crafted incantation %d (%s) for %s", inc.ID, inc.Name, owner.Moniker)
	return inc, nil
}

// ApplyOverrides binds override values into the artifact and re-derives the
// schema. Empty values are dropped; the new values are merged over the
// stored mapping and the whole mapping is bound, so applying the same
// mapping twice changes nothing. On failure the incantation is unchanged.
func (r *Registry) ApplyOverrides(ctx context.Context, inc *store.Incantation, overrides map[string]string) (*store.Incantation, error) {
	merged := make(map[string]string, len(inc.Overrides)+len(overrides))
	for _, m := range []map[string]string{inc.Overrides, overrides} {
		for k, v := range m {
			if v != "" {
				merged[k] = v
			}
		}
	}

	code, err := transform.BindOverrides(inc.Code, inc.Name, merged)
	if err != nil {
		logging.RegistryWarn("Override binding failed for incantation %d: %v", inc.ID, err)
		return nil, err
	}
	if _, err := r.runner.Verify(ctx, code); err != nil {
		logging.RegistryWarn("Bound artifact of incantation %d does not load: %v", inc.ID, err)
		return nil, &types.TransformError{Func: inc.Name, Reason: "bound artifact does not load", Err: err}
	}
	schema, err := r.synth.Describe(ctx, code)
	if err != nil {
		r.incident(ctx, store.IncidentOverride, err)
		return nil, err
	}

	updated := *inc
	updated.Code = code
	updated.Schema = *schema
	updated.Overrides = merged
	if err := r.store.UpdateIncantation(ctx, &updated); err != nil {
		return nil, err
	}
	logging.Registry("Bound overrides %s on incantation %d", overrideKeys(merged), inc.ID)
	return &updated, nil
}

// StoreOverrides replaces the override mapping verbatim. The artifact and
// schema are left alone; stored values are merged into call arguments by
// Execute while the artifact still declares them.
func (r *Registry) StoreOverrides(ctx context.Context, inc *store.Incantation, overrides map[string]string) (*store.Incantation, error) {
	updated := *inc
	updated.Overrides = make(map[string]string, len(overrides))
	for k, v := range overrides {
		updated.Overrides[k] = v
	}
	if err := r.store.UpdateIncantation(ctx, &updated); err != nil {
		return nil, err
	}
	logging.RegistryDebug("Stored overrides %s on incantation %d", overrideKeys(updated.Overrides), inc.ID)
	return &updated, nil
}

// Redescribe re-derives the schema from the current artifact.
func (r *Registry) Redescribe(ctx context.Context, inc *store.Incantation) (*store.Incantation, error) {
	schema, err := r.synth.Describe(ctx, inc.Code)
	if err != nil {
		r.incident(ctx, store.IncidentRedescribe, err)
		return nil, err
	}
	updated := *inc
	updated.Schema = *schema
	if err := r.store.UpdateIncantation(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Adjust asks the gateway to change the artifact as described by reason.
// With updateSchema the schema is re-derived as well. On failure nothing
// is stored.
func (r *Registry) Adjust(ctx context.Context, inc *store.Incantation, reason string, updateSchema bool) (*store.Incantation, error) {
	code, err := r.synth.Adjust(ctx, inc.Code, reason)
	if err != nil {
		r.incident(ctx, store.IncidentAdjust, err)
		return nil, err
	}
	updated := *inc
	updated.Code = code
	if updateSchema {
		schema, err := r.synth.Describe(ctx, code)
		if err != nil {
			r.incident(ctx, store.IncidentAdjust, err)
			return nil, err
		}
		updated.Schema = *schema
	}
	if err := r.store.UpdateIncantation(ctx, &updated); err != nil {
		return nil, err
	}
	logging.Registry("Adjusted incantation %d (%s)", inc.ID, inc.Name)
	return &updated, nil
}

// Execute calls the current artifact. Stored overrides win over args for
// parameters the artifact still declares. Failures are returned as
// *types.ExecutionError and are not recorded.
func (r *Registry) Execute(ctx context.Context, inc *store.Incantation, args map[string]interface{}) (interface{}, error) {
	sig, err := r.runner.Signature(inc.Code)
	if err != nil {
		return nil, &types.ExecutionError{Func: inc.Name, Trace: err.Error(), Err: err}
	}

	merged := make(map[string]interface{}, len(args)+len(inc.Overrides))
	for k, v := range args {
		merged[k] = v
	}
	for k, v := range inc.Overrides {
		if _, ok := sig.Param(k); ok {
			merged[k] = v
		}
	}

	logging.RegistryDebug("Executing incantation %d (%s)", inc.ID, inc.Name)
	return r.runner.Execute(ctx, inc.Code, merged)
}

// Parameters returns the parameter names the current artifact declares.
func (r *Registry) Parameters(inc *store.Incantation) ([]string, error) {
	sig, err := r.runner.Signature(inc.Code)
	if err != nil {
		return nil, err
	}
	return sig.ParamNames(), nil
}

// Delete removes an incantation and its mishaps.
func (r *Registry) Delete(ctx context.Context, inc *store.Incantation) error {
	if err := r.store.DeleteIncantation(ctx, inc.ID); err != nil {
		return err
	}
	logging.Registry("Deleted incantation %d (%s)", inc.ID, inc.Name)
	return nil
}

// SetPublic flips public visibility.
func (r *Registry) SetPublic(ctx context.Context, inc *store.Incantation, public bool) (*store.Incantation, error) {
	updated := *inc
	updated.Public = public
	if err := r.store.UpdateIncantation(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Visible returns the principal's own incantations and all public ones.
func (r *Registry) Visible(ctx context.Context, p *store.Principal) ([]*store.Incantation, error) {
	return r.store.VisibleIncantations(ctx, p.ID)
}

// Get returns an incantation the principal may see and call.
func (r *Registry) Get(ctx context.Context, p *store.Principal, id int64) (*store.Incantation, error) {
	inc, err := r.store.Incantation(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.OwnerID != p.ID && !inc.Public {
		return nil, &types.NotFoundError{Kind: "incantation", ID: id}
	}
	return inc, nil
}

// Owned returns an incantation the principal may change.
func (r *Registry) Owned(ctx context.Context, p *store.Principal, id int64) (*store.Incantation, error) {
	inc, err := r.store.Incantation(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.OwnerID != p.ID {
		return nil, &types.NotFoundError{Kind: "incantation", ID: id}
	}
	return inc, nil
}

// Incidents returns recent synthesis incidents.
func (r *Registry) Incidents(ctx context.Context, limit int) ([]*store.Incident, error) {
	return r.store.Incidents(ctx, limit)
}

func (r *Registry) incident(ctx context.Context, kind string, cause error) {
	var synthErr *types.SynthesisError
	if !errors.As(cause, &synthErr) {
		return
	}
	if _, err := r.store.RecordIncident(ctx, kind, cause); err != nil {
		logging.RegistryWarn("Failed to record %s incident: %v", kind, err)
	}
}

func overrideKeys(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ", ") + "]"
}
