package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"jinn/internal/auth"
	"jinn/internal/logging"
	"jinn/internal/types"
)

type loginRequest struct {
	Moniker  string `json:"moniker"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Moniker = strings.TrimSpace(req.Moniker)
	if req.Moniker == "" || req.Password == "" {
		writeError(w, fmt.Errorf("%w: moniker and password are required", types.ErrInvalidArgument))
		return
	}

	p, err := s.Auth.Login(r.Context(), req.Moniker, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := s.Auth.Sessions().Issue(p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session,
		Path:     "/",
		Expires:  time.Now().Add(s.Auth.Sessions().TTL()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logging.Auth("%s logged in (verified=%v admin=%v)", p.Moniker, p.Verified, p.Admin)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal": p,
		"session":   session,
		"token":     p.Token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principal(r))
}
