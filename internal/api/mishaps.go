package api

import (
	"net/http"

	"jinn/internal/store"
)

func (s *Server) handleListMishaps(w http.ResponseWriter, r *http.Request) {
	mishaps, err := s.Ledger.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if mishaps == nil {
		mishaps = []*store.Mishap{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mishaps": mishaps})
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mishap(w, r)
	if !ok {
		return
	}
	inc, err := s.Ledger.Fix(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mishap(w, r)
	if !ok {
		return
	}
	result, err := s.Ledger.Retry(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Server) handleFixAndRetry(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mishap(w, r)
	if !ok {
		return
	}
	result, err := s.Ledger.FixAndRetry(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mishap(w, r)
	if !ok {
		return
	}
	if err := s.Ledger.Erase(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"erased": m.ID, "incantation_id": m.IncantationID})
}

// mishap loads the mishap named by the path if the principal owns its incantation.
func (s *Server) mishap(w http.ResponseWriter, r *http.Request) (*store.Mishap, bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	m, err := s.Ledger.Get(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return m, true
}
