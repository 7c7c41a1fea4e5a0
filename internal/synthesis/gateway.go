// Package synthesis is the only place that talks to the LLM about code.
// Every operation returns either a usable artifact (or schema) or a
// *types.SynthesisError; none of them touch stored state.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"jinn/internal/logging"
	"jinn/internal/transform"
	"jinn/internal/types"
)

// Loader verifies that an artifact loads and reports its entry signature.
// sandbox.Executor satisfies it.
type Loader interface {
	Verify(ctx context.Context, code string) (*transform.Signature, error)
}

// Gateway wraps the LLM collaborator with the craft, describe, repair and
// adjust protocols.
type Gateway struct {
	client   types.LLMClient
	loader   Loader
	packages []string
}

// NewGateway creates a gateway. packages is the import allow list quoted to
// the collaborator when crafting.
func NewGateway(client types.LLMClient, loader Loader, packages []string) *Gateway {
	return &Gateway{client: client, loader: loader, packages: packages}
}

// Craft asks for an artifact implementing request. A candidate that fails to
// load is sent back with its failure, up to retryBudget attempts in total.
func (g *Gateway) Craft(ctx context.Context, request string, retryBudget int) (string, string, error) {
	timer := logging.StartTimer(logging.CategorySynthesis, "craft")
	defer timer.Stop()

	if retryBudget < 1 {
		retryBudget = 1
	}
	system := fmt.Sprintf(craftSystemPrompt, joinPackages(g.packages))
	prompt := "Request:\n" + request

	var lastErr error
	for attempt := 1; attempt <= retryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", "", &types.SynthesisError{Op: "craft", Attempts: attempt - 1, Err: err}
		}

		logging.SynthesisDebug("craft attempt %d/%d", attempt, retryBudget)
		resp, err := g.client.CompleteWithSystem(ctx, system, prompt)
		if err != nil {
			return "", "", &types.SynthesisError{Op: "craft", Attempts: attempt, Err: err}
		}

		code := UnwrapContent(resp, "go")
		sig, code, err := g.prepare(ctx, code)
		if err == nil {
			logging.Synthesis("crafted %s(%s) in %d attempt(s)", sig.Name, strings.Join(sig.ParamNames(), ", "), attempt)
			return sig.Name, code, nil
		}

		lastErr = err
		logging.SynthesisWarn("craft attempt %d failed: %v", attempt, err)
		prompt = fmt.Sprintf(`Request:
%s

Your previous code:
%s

It failed with:
%s

Fix this error. Reply with the complete Go code only.`, request, code, failureText(err))
	}
	return "", "", &types.SynthesisError{Op: "craft", Attempts: retryBudget, Err: lastErr}
}

// Describe derives the call schema of an artifact. The result always agrees
// with the artifact's signature.
func (g *Gateway) Describe(ctx context.Context, code string) (*types.CallSchema, error) {
	timer := logging.StartTimer(logging.CategorySynthesis, "describe")
	defer timer.Stop()

	sig, err := transform.Inspect(code)
	if err != nil {
		return nil, &types.SynthesisError{Op: "describe", Attempts: 1, Err: err}
	}

	prompt := fmt.Sprintf("Describe this Go function:\n\n%s\n\nUse this schema:\n%s\n\nReply with JSON only.",
		code, functionSchemaTemplate)
	resp, err := g.client.CompleteWithSystem(ctx, describeSystemPrompt, prompt)
	if err != nil {
		return nil, &types.SynthesisError{Op: "describe", Attempts: 1, Err: err}
	}

	raw, err := parseSchemaJSON(UnwrapContent(resp, "json"))
	if err != nil {
		return nil, &types.SynthesisError{Op: "describe", Attempts: 1, Err: err}
	}
	schema := reconcileSchema(raw, sig)
	logging.SynthesisDebug("described %s with %d parameter(s)", schema.Name(), len(schema.Function.Parameters.Required))
	return &schema, nil
}

// Repair asks for a patched artifact given the arguments and trace of a
// failed call. The patch must keep the entry name and parameter names.
func (g *Gateway) Repair(ctx context.Context, code string, args map[string]interface{}, trace string) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", &types.SynthesisError{Op: "repair", Attempts: 1, Err: fmt.Errorf("failed to encode arguments: %w", err)}
	}
	prompt := fmt.Sprintf(`Fix this Go function.

Code:
%s

Arguments:
%s

Failure:
%s`, code, encoded, trace)
	return g.revise(ctx, "repair", code, prompt)
}

// Adjust asks for a revised artifact implementing a free-text change
// request. Same contract as Repair.
func (g *Gateway) Adjust(ctx context.Context, code, reason string) (string, error) {
	prompt := fmt.Sprintf(`Change this Go function as requested.

Code:
%s

Requested change:
%s`, code, reason)
	return g.revise(ctx, "adjust", code, prompt)
}

func (g *Gateway) revise(ctx context.Context, op, code, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategorySynthesis, op)
	defer timer.Stop()

	before, err := transform.Inspect(code)
	if err != nil {
		return "", &types.SynthesisError{Op: op, Attempts: 1, Err: err}
	}

	resp, err := g.client.CompleteWithSystem(ctx, repairSystemPrompt, prompt)
	if err != nil {
		return "", &types.SynthesisError{Op: op, Attempts: 1, Err: err}
	}
	after, patched, err := g.prepare(ctx, UnwrapContent(resp, "go"))
	if err != nil {
		return "", &types.SynthesisError{Op: op, Attempts: 1, Err: err}
	}
	if err := sameContract(before, after); err != nil {
		return "", &types.SynthesisError{Op: op, Attempts: 1, Err: err}
	}

	logging.Synthesis("%s produced a new artifact for %s", op, after.Name)
	return patched, nil
}

// prepare strips defaults and verifies the candidate loads.
func (g *Gateway) prepare(ctx context.Context, code string) (*transform.Signature, string, error) {
	stripped, err := transform.StripDefaults(code)
	if err != nil {
		return nil, code, err
	}
	sig, err := g.loader.Verify(ctx, stripped)
	if err != nil {
		return nil, stripped, err
	}
	return sig, stripped, nil
}

func sameContract(before, after *transform.Signature) error {
	if before.Name != after.Name {
		return fmt.Errorf("entry function renamed from %s to %s", before.Name, after.Name)
	}
	want, got := before.ParamNames(), after.ParamNames()
	if strings.Join(want, ",") != strings.Join(got, ",") {
		return fmt.Errorf("parameters of %s changed from (%s) to (%s)",
			before.Name, strings.Join(want, ", "), strings.Join(got, ", "))
	}
	return nil
}

// failureText prefers the sandbox trace over the wrapped error message.
func failureText(err error) string {
	var execErr *types.ExecutionError
	if errors.As(err, &execErr) && execErr.Trace != "" {
		return execErr.Trace
	}
	return err.Error()
}
