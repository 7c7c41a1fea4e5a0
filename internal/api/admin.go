package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"jinn/internal/logging"
	"jinn/internal/store"
	"jinn/internal/types"
)

// maxLogBytes bounds the log tail returned by /api/log.
const maxLogBytes = 1 << 20

func (s *Server) handleListConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Store.ConfigAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": settings})
}

type configRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req configRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.ConfigSet(r.Context(), key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	logging.API("%s set config %s=%q", principal(r).Moniker, key, req.Value)
	writeJSON(w, http.StatusOK, store.Setting{Key: key, Value: req.Value})
}

func (s *Server) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := s.Store.ListPrincipals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"principals": principals})
}

// handleFlipVerification toggles a principal's verified flag.
func (s *Server) handleFlipVerification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.Store.Principal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.SetVerified(r.Context(), id, !p.Verified); err != nil {
		writeError(w, err)
		return
	}
	p.Verified = !p.Verified
	logging.Auth("%s set verified=%v on %s", principal(r).Moniker, p.Verified, p.Moniker)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", types.ErrInvalidArgument, raw))
			return
		}
		limit = n
	}
	incidents, err := s.Registry.Incidents(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if incidents == nil {
		incidents = []*store.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"incidents": incidents})
}

// handleLog returns the tail of the log file as plain text.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.LogFile == "" {
		writeError(w, &types.NotFoundError{Kind: "log file"})
		return
	}
	f, err := os.Open(s.LogFile)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, &types.NotFoundError{Kind: "log file"})
			return
		}
		writeError(w, err)
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > maxLogBytes {
		if _, err := f.Seek(-maxLogBytes, io.SeekEnd); err != nil {
			writeError(w, err)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
