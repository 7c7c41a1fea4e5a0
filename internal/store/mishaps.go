package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jinn/internal/logging"
	"jinn/internal/types"
)

// Mishap is a captured runtime failure of an incantation.
type Mishap struct {
	ID            int64                  `json:"id"`
	IncantationID int64                  `json:"incantation_id"`
	Request       map[string]interface{} `json:"request"`
	Code          string                 `json:"code"`
	Traceback     string                 `json:"traceback"`
	CreatedAt     time.Time              `json:"created_at"`
}

// FilteredRequest returns the mishap's arguments restricted to params.
func (m *Mishap) FilteredRequest(params []string) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for _, p := range params {
		if v, ok := m.Request[p]; ok {
			out[p] = v
		}
	}
	return out
}

const mishapColumns = "id, incantation_id, request, code, traceback, created_at"

// CreateMishap inserts m and fills in its ID and CreatedAt.
func (s *Store) CreateMishap(ctx context.Context, m *Mishap) error {
	req := m.Request
	if req == nil {
		req = map[string]interface{}{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode mishap request: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mishaps (incantation_id, request, code, traceback, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.IncantationID, string(data), m.Code, m.Traceback, created)
	if err != nil {
		return fmt.Errorf("failed to record mishap for incantation %d: %w", m.IncantationID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	m.CreatedAt = parseTime(created)
	logging.StoreDebug("Recorded mishap %d for incantation %d", m.ID, m.IncantationID)
	return nil
}

// Mishap returns the mishap with the given id.
func (s *Store) Mishap(ctx context.Context, id int64) (*Mishap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+mishapColumns+" FROM mishaps WHERE id = ?", id)
	m, err := scanMishap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Kind: "mishap", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mishap %d: %w", id, err)
	}
	return m, nil
}

// MishapsFor returns the mishaps of one incantation, oldest first.
func (s *Store) MishapsFor(ctx context.Context, incantationID int64) ([]*Mishap, error) {
	return s.queryMishaps(ctx,
		"SELECT "+mishapColumns+" FROM mishaps WHERE incantation_id = ? ORDER BY id",
		incantationID)
}

// ListMishaps returns the mishaps of every incantation the principal owns.
func (s *Store) ListMishaps(ctx context.Context, ownerID int64) ([]*Mishap, error) {
	return s.queryMishaps(ctx,
		`SELECT m.id, m.incantation_id, m.request, m.code, m.traceback, m.created_at
		 FROM mishaps m JOIN incantations i ON i.id = m.incantation_id
		 WHERE i.owner_id = ? ORDER BY m.id`,
		ownerID)
}

func (s *Store) queryMishaps(ctx context.Context, query string, args ...interface{}) ([]*Mishap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mishaps: %w", err)
	}
	defer rows.Close()

	var out []*Mishap
	for rows.Next() {
		m, err := scanMishap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMishap removes one mishap.
func (s *Store) DeleteMishap(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM mishaps WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete mishap %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Kind: "mishap", ID: id}
	}
	return nil
}

// DeleteMishapsMatching removes every mishap of the incantation that has the
// given traceback and code snapshot, and reports how many were removed.
func (s *Store) DeleteMishapsMatching(ctx context.Context, incantationID int64, traceback, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM mishaps WHERE incantation_id = ? AND traceback = ? AND code = ?",
		incantationID, traceback, code)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mishaps of incantation %d: %w", incantationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	logging.StoreDebug("Deleted %d matching mishaps of incantation %d", n, incantationID)
	return n, nil
}

func scanMishap(row scanner) (*Mishap, error) {
	var (
		m       Mishap
		request string
		created string
	)
	if err := row.Scan(&m.ID, &m.IncantationID, &request, &m.Code, &m.Traceback, &created); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(request))
	dec.UseNumber()
	if err := dec.Decode(&m.Request); err != nil {
		return nil, fmt.Errorf("mishap %d has a corrupt request: %w", m.ID, err)
	}
	m.CreatedAt = parseTime(created)
	return &m, nil
}
