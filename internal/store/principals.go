package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jinn/internal/logging"
	"jinn/internal/types"
)

// Principal is an authenticated user.
type Principal struct {
	ID           int64     `json:"id"`
	Moniker      string    `json:"moniker"`
	PasswordHash string    `json:"-"`
	Admin        bool      `json:"admin"`
	Verified     bool      `json:"verified"`
	Token        string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

const principalColumns = "id, moniker, password_hash, admin, verified, token, created_at"

// CreatePrincipal inserts p and fills in its ID and CreatedAt.
func (s *Store) CreatePrincipal(ctx context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO principals (moniker, password_hash, admin, verified, token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Moniker, p.PasswordHash, boolInt(p.Admin), boolInt(p.Verified), p.Token, created)
	if err != nil {
		return fmt.Errorf("failed to create principal %s: %w", p.Moniker, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	p.CreatedAt = parseTime(created)
	logging.StoreDebug("Created principal %d (%s)", p.ID, p.Moniker)
	return nil
}

// Principal returns the principal with the given id.
func (s *Store) Principal(ctx context.Context, id int64) (*Principal, error) {
	p, err := s.principalWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &types.NotFoundError{Kind: "principal", ID: id}
	}
	return p, nil
}

// PrincipalByMoniker returns nil, nil when no principal has that moniker.
func (s *Store) PrincipalByMoniker(ctx context.Context, moniker string) (*Principal, error) {
	return s.principalWhere(ctx, "moniker = ?", moniker)
}

// PrincipalByToken returns nil, nil when the token is unknown.
func (s *Store) PrincipalByToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, nil
	}
	return s.principalWhere(ctx, "token = ?", token)
}

func (s *Store) principalWhere(ctx context.Context, where string, arg interface{}) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE "+where, arg)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	return p, nil
}

// ListPrincipals returns all principals ordered by id.
func (s *Store) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+principalColumns+" FROM principals ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetVerified sets a principal's verification flag.
func (s *Store) SetVerified(ctx context.Context, id int64, verified bool) error {
	return s.setFlag(ctx, "verified", id, verified)
}

// SetAdmin sets a principal's administrator flag.
func (s *Store) SetAdmin(ctx context.Context, id int64, admin bool) error {
	return s.setFlag(ctx, "admin", id, admin)
}

func (s *Store) setFlag(ctx context.Context, column string, id int64, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE principals SET "+column+" = ? WHERE id = ?", boolInt(v), id)
	if err != nil {
		return fmt.Errorf("failed to update principal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Kind: "principal", ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrincipal(row scanner) (*Principal, error) {
	var (
		p               Principal
		admin, verified int
		created         string
	)
	if err := row.Scan(&p.ID, &p.Moniker, &p.PasswordHash, &admin, &verified, &p.Token, &created); err != nil {
		return nil, err
	}
	p.Admin = admin != 0
	p.Verified = verified != 0
	p.CreatedAt = parseTime(created)
	return &p, nil
}
