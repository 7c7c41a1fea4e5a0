// Package wish resolves free text against a principal's incantations. A wish
// is answered directly, routed to an existing incantation, or turns into a
// craft followed by one more resolution round.
package wish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jinn/internal/incantation"
	"jinn/internal/logging"
	"jinn/internal/mishap"
	"jinn/internal/store"
	"jinn/internal/types"
)

// CraftToolName is the synthetic tool offered while crafting is allowed.
const CraftToolName = "craft_incantation"

// State is a state of the resolution machine.
type State int

const (
	StateResolving State = iota
	StateCrafting
	StateExecuting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateCrafting:
		return "crafting"
	case StateExecuting:
		return "executing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is what a wish produced. Which fields are set depends on how it
// ended: Answer for a direct reply, Value for a successful call, Craft for a
// prepared craft request, Tool and Arguments whenever a tool was selected.
type Result struct {
	Answer    string                 `json:"answer,omitempty"`
	Value     interface{}            `json:"value,omitempty"`
	Craft     string                 `json:"craft,omitempty"`
	Tool      *store.Incantation     `json:"-"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Crafted   *store.Incantation     `json:"-"`
	Mishap    *store.Mishap          `json:"-"`
	Path      []State                `json:"-"`
}

// Resolver drives the wish protocol.
type Resolver struct {
	client   types.LLMClient
	registry *incantation.Registry
	ledger   *mishap.Ledger
}

// NewResolver creates a resolver.
func NewResolver(client types.LLMClient, registry *incantation.Registry, ledger *mishap.Ledger) *Resolver {
	return &Resolver{client: client, registry: registry, ledger: ledger}
}

// Wish resolves text and carries out the selection. A failing tool call is
// recorded as a mishap and its *types.ExecutionError returned together with
// the result naming the tool and arguments.
func (r *Resolver) Wish(ctx context.Context, p *store.Principal, text string) (*Result, error) {
	return r.run(ctx, p, text, true)
}

// Prepare resolves text without crafting or executing anything and returns
// the selection.
func (r *Resolver) Prepare(ctx context.Context, p *store.Principal, text string) (*Result, error) {
	return r.run(ctx, p, text, false)
}

// machine holds the per-wish state.
type machine struct {
	principal  *store.Principal
	text       string
	execute    bool
	allowCraft bool
	craftText  string
	res        *Result
	err        error
}

func (r *Resolver) run(ctx context.Context, p *store.Principal, text string, execute bool) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryWish, "wish")
	defer timer.Stop()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty wish", types.ErrInvalidArgument)
	}

	m := &machine{principal: p, text: text, execute: execute, allowCraft: true, res: &Result{}}
	state := StateResolving
	for {
		m.res.Path = append(m.res.Path, state)
		logging.WishDebug("wish by %s: %s", p.Moniker, state)

		switch state {
		case StateResolving:
			state = r.resolve(ctx, m)
		case StateCrafting:
			state = r.craft(ctx, m)
		case StateExecuting:
			state = r.executeTool(ctx, m)
		case StateDone:
			return m.res, nil
		case StateFailed:
			logging.Get(logging.CategoryWish).Warn("wish by %s failed: %v", p.Moniker, m.err)
			return m.res, m.err
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, m *machine) State {
	visible, err := r.registry.Visible(ctx, m.principal)
	if err != nil {
		m.err = err
		return StateFailed
	}
	byName, defs := toolset(visible, m)

	resp, err := r.client.CompleteWithTools(ctx, systemPrompt(m.allowCraft), m.text, defs)
	if err != nil {
		m.err = &types.SynthesisError{Op: "resolve", Attempts: 1, Err: err}
		return StateFailed
	}

	call, ok := resp.FirstToolCall()
	if !ok {
		m.res.Answer = resp.Text
		return StateDone
	}

	if call.Name == CraftToolName {
		if !m.allowCraft {
			m.err = &types.SynthesisError{Op: "resolve", Attempts: 1, Err: errors.New("no suitable incantation after crafting one")}
			return StateFailed
		}
		desc, _ := call.Input["text"].(string)
		if strings.TrimSpace(desc) == "" {
			desc = m.text
		}
		m.craftText = desc
		if !m.execute {
			m.res.Craft = desc
			return StateDone
		}
		return StateCrafting
	}

	tool, ok := byName[call.Name]
	if !ok {
		m.err = &types.SynthesisError{Op: "resolve", Attempts: 1, Err: fmt.Errorf("selected unknown incantation %q", call.Name)}
		return StateFailed
	}
	m.res.Tool = tool
	m.res.Arguments = call.Input
	if m.res.Arguments == nil {
		m.res.Arguments = map[string]interface{}{}
	}
	logging.Wish("wish by %s selected %s", m.principal.Moniker, tool.Name)
	if !m.execute {
		return StateDone
	}
	return StateExecuting
}

func (r *Resolver) craft(ctx context.Context, m *machine) State {
	inc, err := r.registry.Craft(ctx, m.principal, m.craftText)
	if err != nil {
		m.err = err
		return StateFailed
	}
	m.res.Crafted = inc
	m.allowCraft = false
	return StateResolving
}

func (r *Resolver) executeTool(ctx context.Context, m *machine) State {
	value, err := r.registry.Execute(ctx, m.res.Tool, m.res.Arguments)
	if err == nil {
		m.res.Value = value
		return StateDone
	}

	var execErr *types.ExecutionError
	if errors.As(err, &execErr) {
		mis, recErr := r.ledger.RecordFailure(ctx, m.res.Tool, m.res.Arguments, err)
		if recErr != nil {
			logging.Get(logging.CategoryWish).Error("failed to record mishap for %s: %v", m.res.Tool.Name, recErr)
		}
		m.res.Mishap = mis
	}
	m.err = err
	return StateFailed
}

// toolset returns the visible incantations by name and their definitions.
// On a name collision the incantation crafted during this wish wins, then
// the principal's own, then the newest.
func toolset(visible []*store.Incantation, m *machine) (map[string]*store.Incantation, []types.ToolDefinition) {
	byName := make(map[string]*store.Incantation, len(visible))
	for _, inc := range visible {
		if inc.Name == CraftToolName {
			continue
		}
		if cur, dup := byName[inc.Name]; !dup || m.outranks(inc, cur) {
			byName[inc.Name] = inc
		}
	}

	defs := make([]types.ToolDefinition, 0, len(byName)+1)
	for _, inc := range visible {
		if byName[inc.Name] == inc {
			defs = append(defs, inc.Schema.ToolDefinition())
		}
	}
	if m.allowCraft {
		defs = append(defs, craftTool())
	}
	return byName, defs
}

func (m *machine) outranks(a, b *store.Incantation) bool {
	rank := func(inc *store.Incantation) int {
		switch {
		case m.res.Crafted != nil && inc.ID == m.res.Crafted.ID:
			return 2
		case inc.OwnerID == m.principal.ID:
			return 1
		}
		return 0
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra > rb
	}
	return a.ID > b.ID
}

func craftTool() types.ToolDefinition {
	schema := types.NewCallSchema(CraftToolName,
		"Define a new tool when none of the available tools fits the request. "+
			"The tool should be generic enough to be useful in other situations.")
	schema.Function.Parameters.Properties["text"] = types.PropertySpec{
		Type:        "string",
		Description: "Natural language description of the tool to define",
	}
	schema.Function.Parameters.Required = []string{"text"}
	return schema.ToolDefinition()
}

func systemPrompt(allowCraft bool) string {
	prompt := "Fulfil the user's wish. Prefer calling one of the available tools."
	if allowCraft {
		prompt += " If there is no suitable tool available, define one with " + CraftToolName +
			" instead of fulfilling the original request."
	}
	return prompt
}
