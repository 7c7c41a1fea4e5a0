// Package api exposes jinn over JSON/HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"jinn/internal/auth"
	"jinn/internal/incantation"
	"jinn/internal/logging"
	"jinn/internal/mishap"
	"jinn/internal/speech"
	"jinn/internal/store"
	"jinn/internal/types"
	"jinn/internal/wish"
)

// Deps are the services the API serves.
type Deps struct {
	Store       *store.Store
	Auth        *auth.Authenticator
	Registry    *incantation.Registry
	Ledger      *mishap.Ledger
	Resolver    *wish.Resolver
	Transcriber speech.Transcriber // nil disables audio input
	Voice       speech.Synthesizer // nil disables audio output

	LogFile        string
	MaxUploadBytes int64
}

// Server routes API requests.
type Server struct {
	Deps
	mux *http.ServeMux
}

// NewServer creates a server and registers its routes.
func NewServer(deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}
	s := &Server{Deps: deps, mux: http.NewServeMux()}
	s.RegisterRoutes(s.mux)
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Sessions
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/me", s.authed(s.handleMe))

	// Wishes
	mux.HandleFunc("POST /api/wish", s.authed(s.handleWish))
	mux.HandleFunc("POST /api/wish/prepare", s.authed(s.handlePrepare))

	// Incantations
	mux.HandleFunc("GET /api/incantations", s.authed(s.handleListIncantations))
	mux.HandleFunc("POST /api/incantations", s.authed(s.handleCraft))
	mux.HandleFunc("GET /api/incantations/{id}", s.authed(s.handleGetIncantation))
	mux.HandleFunc("DELETE /api/incantations/{id}", s.authed(s.handleDeleteIncantation))
	mux.HandleFunc("POST /api/incantations/{id}/run", s.authed(s.handleRun))
	mux.HandleFunc("POST /api/incantations/{id}/overrides", s.authed(s.handleApplyOverrides))
	mux.HandleFunc("PUT /api/incantations/{id}/overrides", s.authed(s.handleStoreOverrides))
	mux.HandleFunc("POST /api/incantations/{id}/redescribe", s.authed(s.handleRedescribe))
	mux.HandleFunc("POST /api/incantations/{id}/adjust", s.authed(s.handleAdjust))
	mux.HandleFunc("POST /api/incantations/{id}/public", s.authed(s.handleSetPublic))

	// Mishaps
	mux.HandleFunc("GET /api/mishaps", s.authed(s.handleListMishaps))
	mux.HandleFunc("POST /api/mishaps/{id}/fix", s.authed(s.handleFix))
	mux.HandleFunc("POST /api/mishaps/{id}/retry", s.authed(s.handleRetry))
	mux.HandleFunc("POST /api/mishaps/{id}/fix-and-retry", s.authed(s.handleFixAndRetry))
	mux.HandleFunc("DELETE /api/mishaps/{id}", s.authed(s.handleErase))

	// Administration
	mux.HandleFunc("GET /api/config", s.admin(s.handleListConfig))
	mux.HandleFunc("PUT /api/config/{key}", s.admin(s.handleSetConfig))
	mux.HandleFunc("GET /api/principals", s.admin(s.handleListPrincipals))
	mux.HandleFunc("POST /api/principals/{id}/verification", s.admin(s.handleFlipVerification))
	mux.HandleFunc("GET /api/incidents", s.admin(s.handleListIncidents))
	mux.HandleFunc("GET /api/log", s.admin(s.handleLog))
}

// ServeHTTP logs every request and recovers from handler panics.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if p := recover(); p != nil {
			logging.APIError("panic serving %s %s: %v", r.Method, r.URL.Path, p)
			writeJSON(rec, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		logging.APIDebug("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	}()
	s.mux.ServeHTTP(rec, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// authed resolves the principal and stores it in the request context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Auth.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	}
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if err := auth.RequireAdmin(p); err != nil {
			writeError(w, err)
			return
		}
		next(w, r)
	})
}

func principal(r *http.Request) *store.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", types.ErrInvalidArgument, r.PathValue("id"))
	}
	return id, nil
}

// decode reads a JSON body. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.MaxUploadBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON: %v", types.ErrInvalidArgument, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors onto status codes. An execution failure is a
// completed request whose tool failed, so it is reported with 200.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound  *types.NotFoundError
		transform *types.TransformError
		synth     *types.SynthesisError
		exec      *types.ExecutionError
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, types.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, types.ErrUnverified), errors.Is(err, types.ErrForbidden), errors.Is(err, types.ErrCraftingDisabled):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, types.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	// A synthesis failure may wrap the transform error of its last candidate.
	case errors.As(err, &synth):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.As(err, &transform):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &exec):
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error(), "traceback": exec.Trace})
	default:
		logging.APIError("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
