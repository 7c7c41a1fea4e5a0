package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"jinn/internal/store"
	"jinn/internal/types"
)

// incantationSummary is the listing form of an incantation.
type incantationSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Owned       bool   `json:"owned"`
}

type mishapView struct {
	ID        int64                  `json:"id"`
	Request   map[string]interface{} `json:"request"`
	Traceback string                 `json:"traceback"`
	Code      string                 `json:"code"`
}

func (s *Server) handleListIncantations(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	incs, err := s.Registry.Visible(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]incantationSummary, 0, len(incs))
	for _, inc := range incs {
		out = append(out, incantationSummary{
			ID:          inc.ID,
			Name:        inc.Name,
			Description: inc.Schema.Description(),
			Public:      inc.Public,
			Owned:       inc.OwnerID == p.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"incantations": out})
}

type craftRequest struct {
	Text string `json:"text"`
}

// handleCraft crafts an incantation directly, outside of a wish. Accepts a
// JSON body or, when transcription is available, a recording.
func (s *Server) handleCraft(w http.ResponseWriter, r *http.Request) {
	if !s.Store.ConfigBool(r.Context(), store.KeyManualIncantationCrafting) {
		writeError(w, types.ErrCraftingDisabled)
		return
	}
	text, err := s.readText(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	inc, err := s.Registry.Craft(r.Context(), principal(r), text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": inc.ID, "name": inc.Name})
}

func (s *Server) handleGetIncantation(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.visible(w, r)
	if !ok {
		return
	}
	params, err := s.Registry.Parameters(inc)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"incantation": inc,
		"parameters":  params,
	}
	if inc.OwnerID == principal(r).ID {
		mishaps, err := s.Ledger.For(r.Context(), inc)
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]mishapView, 0, len(mishaps))
		for _, m := range mishaps {
			views = append(views, mishapView{
				ID:        m.ID,
				Request:   m.FilteredRequest(params),
				Traceback: m.Traceback,
				Code:      m.Code,
			})
		}
		resp["mishaps"] = views
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteIncantation(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.owned(w, r)
	if !ok {
		return
	}
	if err := s.Registry.Delete(r.Context(), inc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": inc.ID})
}

type runRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

// handleRun calls an incantation directly. A failing call is recorded as a
// mishap like a failing wish.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.visible(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]interface{}{}
	}

	result, err := s.Registry.Execute(r.Context(), inc, req.Arguments)
	if err != nil {
		var exec *types.ExecutionError
		if !errors.As(err, &exec) {
			writeError(w, err)
			return
		}
		m, recErr := s.Ledger.RecordFailure(r.Context(), inc, req.Arguments, err)
		if recErr != nil {
			writeError(w, recErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"error":     err.Error(),
			"traceback": exec.Trace,
			"mishap_id": m.ID,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

type overridesRequest struct {
	Overrides map[string]interface{} `json:"overrides"`
}

func (s *Server) readOverrides(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	var req overridesRequest
	if err := s.decode(w, r, &req); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(req.Overrides))
	for k, v := range req.Overrides {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = fmt.Sprint(val)
		case nil:
			out[k] = ""
		default:
			return nil, fmt.Errorf("%w: override %s must be a scalar", types.ErrInvalidArgument, k)
		}
	}
	return out, nil
}

// handleApplyOverrides binds overrides into the artifact and regenerates
// the schema.
func (s *Server) handleApplyOverrides(w http.ResponseWriter, r *http.Request) {
	s.updateOverrides(w, r, s.Registry.ApplyOverrides)
}

// handleStoreOverrides records overrides verbatim without touching the
// artifact.
func (s *Server) handleStoreOverrides(w http.ResponseWriter, r *http.Request) {
	s.updateOverrides(w, r, s.Registry.StoreOverrides)
}

type overrideFunc func(ctx context.Context, inc *store.Incantation, overrides map[string]string) (*store.Incantation, error)

func (s *Server) updateOverrides(w http.ResponseWriter, r *http.Request, apply overrideFunc) {
	inc, ok := s.owned(w, r)
	if !ok {
		return
	}
	overrides, err := s.readOverrides(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := apply(r.Context(), inc, overrides)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRedescribe(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.owned(w, r)
	if !ok {
		return
	}
	updated, err := s.Registry.Redescribe(r.Context(), inc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type adjustRequest struct {
	Reason       string `json:"reason"`
	UpdateSchema bool   `json:"update_schema"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.owned(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, fmt.Errorf("%w: reason is required", types.ErrInvalidArgument))
		return
	}
	updated, err := s.Registry.Adjust(r.Context(), inc, req.Reason, req.UpdateSchema)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type publicRequest struct {
	Public bool `json:"public"`
}

func (s *Server) handleSetPublic(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.owned(w, r)
	if !ok {
		return
	}
	var req publicRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.Registry.SetPublic(r.Context(), inc, req.Public)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// visible loads the incantation named by the path if the principal may see it.
func (s *Server) visible(w http.ResponseWriter, r *http.Request) (*store.Incantation, bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	inc, err := s.Registry.Get(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return inc, true
}

// owned loads the incantation named by the path if the principal owns it.
func (s *Server) owned(w http.ResponseWriter, r *http.Request) (*store.Incantation, bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	inc, err := s.Registry.Owned(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return inc, true
}
