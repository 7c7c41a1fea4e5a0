package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jinn/internal/logging"
	"jinn/internal/types"
)

// Incantation is a synthesized tool owned by a principal.
type Incantation struct {
	ID        int64             `json:"id"`
	OwnerID   int64             `json:"owner_id"`
	Public    bool              `json:"public"`
	Name      string            `json:"name"`
	Request   string            `json:"request"`
	Code      string            `json:"code"`
	Schema    types.CallSchema  `json:"schema"`
	Overrides map[string]string `json:"overrides"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Parameters returns the parameter names declared by the schema.
func (inc *Incantation) Parameters() []string {
	return inc.Schema.ParameterNames()
}

const incantationColumns = "id, owner_id, public, name, request, code, schema, overrides, created_at, updated_at"

// CreateIncantation inserts inc and fills in its ID and timestamps.
func (s *Store) CreateIncantation(ctx context.Context, inc *Incantation) error {
	schema, overrides, err := encodeIncantation(inc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incantations (owner_id, public, name, request, code, schema, overrides, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.OwnerID, boolInt(inc.Public), inc.Name, inc.Request, inc.Code, schema, overrides, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create incantation %s: %w", inc.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inc.ID = id
	inc.CreatedAt = parseTime(ts)
	inc.UpdatedAt = inc.CreatedAt
	logging.StoreDebug("Created incantation %d (%s) for principal %d", inc.ID, inc.Name, inc.OwnerID)
	return nil
}

// Incantation returns the incantation with the given id.
func (s *Store) Incantation(ctx context.Context, id int64) (*Incantation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+incantationColumns+" FROM incantations WHERE id = ?", id)
	inc, err := scanIncantation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Kind: "incantation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incantation %d: %w", id, err)
	}
	return inc, nil
}

// VisibleIncantations returns the principal's own and all public
// incantations, ordered by id.
func (s *Store) VisibleIncantations(ctx context.Context, principalID int64) ([]*Incantation, error) {
	return s.queryIncantations(ctx,
		"SELECT "+incantationColumns+" FROM incantations WHERE owner_id = ? OR public = 1 ORDER BY id",
		principalID)
}

// IncantationsByOwner returns the principal's own incantations.
func (s *Store) IncantationsByOwner(ctx context.Context, ownerID int64) ([]*Incantation, error) {
	return s.queryIncantations(ctx,
		"SELECT "+incantationColumns+" FROM incantations WHERE owner_id = ? ORDER BY id",
		ownerID)
}

func (s *Store) queryIncantations(ctx context.Context, query string, args ...interface{}) ([]*Incantation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incantations: %w", err)
	}
	defer rows.Close()

	var out []*Incantation
	for rows.Next() {
		inc, err := scanIncantation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// UpdateIncantation writes name, visibility, code, schema and overrides in a
// single statement and bumps UpdatedAt.
func (s *Store) UpdateIncantation(ctx context.Context, inc *Incantation) error {
	schema, overrides, err := encodeIncantation(inc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE incantations
		 SET name = ?, public = ?, code = ?, schema = ?, overrides = ?, updated_at = ?
		 WHERE id = ?`,
		inc.Name, boolInt(inc.Public), inc.Code, schema, overrides, ts, inc.ID)
	if err != nil {
		return fmt.Errorf("failed to update incantation %d: %w", inc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Kind: "incantation", ID: inc.ID}
	}
	inc.UpdatedAt = parseTime(ts)
	logging.StoreDebug("Updated incantation %d (%s)", inc.ID, inc.Name)
	return nil
}

// DeleteIncantation removes an incantation together with its mishaps.
func (s *Store) DeleteIncantation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM mishaps WHERE incantation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete mishaps of incantation %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM incantations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete incantation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Kind: "incantation", ID: id}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.StoreDebug("Deleted incantation %d", id)
	return nil
}

func encodeIncantation(inc *Incantation) (string, string, error) {
	schema, err := json.Marshal(inc.Schema)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode schema: %w", err)
	}
	overrides := inc.Overrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	ov, err := json.Marshal(overrides)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode overrides: %w", err)
	}
	return string(schema), string(ov), nil
}

func scanIncantation(row scanner) (*Incantation, error) {
	var (
		inc                  Incantation
		public               int
		schema, overrides    string
		createdAt, updatedAt string
	)
	if err := row.Scan(&inc.ID, &inc.OwnerID, &public, &inc.Name, &inc.Request, &inc.Code,
		&schema, &overrides, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	inc.Public = public != 0
	if err := json.Unmarshal([]byte(schema), &inc.Schema); err != nil {
		return nil, fmt.Errorf("incantation %d has a corrupt schema: %w", inc.ID, err)
	}
	if err := json.Unmarshal([]byte(overrides), &inc.Overrides); err != nil {
		return nil, fmt.Errorf("incantation %d has corrupt overrides: %w", inc.ID, err)
	}
	if inc.Overrides == nil {
		inc.Overrides = map[string]string{}
	}
	inc.CreatedAt = parseTime(createdAt)
	inc.UpdatedAt = parseTime(updatedAt)
	return &inc, nil
}
