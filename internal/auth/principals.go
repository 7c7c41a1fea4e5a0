// Package auth authenticates principals: password login with first-use
// registration, opaque bearer tokens, and signed session tokens.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"jinn/internal/logging"
	"jinn/internal/store"
	"jinn/internal/types"
)

// Authenticator resolves credentials to principals.
type Authenticator struct {
	store    *store.Store
	sessions *Sessions
	cost     int
}

// NewAuthenticator creates an authenticator. sessions may be nil, in which
// case only bearer tokens are accepted on requests.
func NewAuthenticator(st *store.Store, sessions *Sessions) *Authenticator {
	return &Authenticator{store: st, sessions: sessions, cost: bcrypt.DefaultCost}
}

// Login returns the principal with moniker when password matches. A moniker
// seen for the first time is registered, unverified, with that password.
func (a *Authenticator) Login(ctx context.Context, moniker, password string) (*store.Principal, error) {
	return a.fetch(ctx, moniker, password, false)
}

// Provision is Login for an administrator: the principal is created (or
// promoted) as a verified administrator.
func (a *Authenticator) Provision(ctx context.Context, moniker, password string) (*store.Principal, error) {
	return a.fetch(ctx, moniker, password, true)
}

func (a *Authenticator) fetch(ctx context.Context, moniker, password string, admin bool) (*store.Principal, error) {
	moniker = strings.TrimSpace(moniker)
	if moniker == "" || password == "" {
		return nil, types.ErrUnauthorized
	}

	p, err := a.store.PrincipalByMoniker(ctx, moniker)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return a.register(ctx, moniker, password, admin)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		logging.AuthDebug("Password mismatch for %s", moniker)
		return nil, types.ErrUnauthorized
	}
	if admin && (!p.Admin || !p.Verified) {
		if err := a.store.SetAdmin(ctx, p.ID, true); err != nil {
			return nil, err
		}
		if err := a.store.SetVerified(ctx, p.ID, true); err != nil {
			return nil, err
		}
		p.Admin, p.Verified = true, true
	}
	return p, nil
}

func (a *Authenticator) register(ctx context.Context, moniker, password string, admin bool) (*store.Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	p := &store.Principal{
		Moniker:      moniker,
		PasswordHash: string(hash),
		Admin:        admin,
		Verified:     admin,
		Token:        uuid.NewString(),
	}
	if err := a.store.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	logging.Auth("Registered principal %d (%s, admin=%v)", p.ID, p.Moniker, p.Admin)
	return p, nil
}

// Authorize enforces the verified-or-administrator gate.
func Authorize(p *store.Principal) error {
	if p == nil {
		return types.ErrUnauthorized
	}
	if !p.Verified && !p.Admin {
		return types.ErrUnverified
	}
	return nil
}

// RequireAdmin returns ErrForbidden unless p is an administrator.
func RequireAdmin(p *store.Principal) error {
	if err := Authorize(p); err != nil {
		return err
	}
	if !p.Admin {
		return types.ErrForbidden
	}
	return nil
}

// Authenticate resolves the principal behind a request. The Authorization
// header carries either a principal's bearer token or a session token; a
// session token may also arrive in the session cookie.
func (a *Authenticator) Authenticate(r *http.Request) (*store.Principal, error) {
	ctx := r.Context()

	token := bearer(r.Header.Get("Authorization"))
	if token != "" {
		p, err := a.store.PrincipalByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, Authorize(p)
		}
	}
	if token == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" || a.sessions == nil {
		return nil, types.ErrUnauthorized
	}

	id, err := a.sessions.Parse(token)
	if err != nil {
		logging.AuthDebug("Rejected session token: %v", err)
		return nil, types.ErrUnauthorized
	}
	p, err := a.store.Principal(ctx, id)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, types.ErrUnauthorized
		}
		return nil, err
	}
	return p, Authorize(p)
}

func bearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Sessions returns the session issuer.
func (a *Authenticator) Sessions() *Sessions {
	return a.sessions
}
