package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jinn/internal/logging"
)

// Incident kinds.
const (
	IncidentCraft      = "craft"
	IncidentOverride   = "override"
	IncidentAdjust     = "adjust"
	IncidentRedescribe = "redescribe"
)

// Incident is an operator-visible synthesis failure.
type Incident struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Traceback string    `json:"traceback"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordIncident appends an incident.
func (s *Store) RecordIncident(ctx context.Context, kind string, cause error) (*Incident, error) {
	inc := &Incident{Kind: kind}
	if cause != nil {
		inc.Traceback = cause.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO incidents (kind, traceback, created_at) VALUES (?, ?, ?)",
		inc.Kind, inc.Traceback, created)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s incident: %w", kind, err)
	}
	if inc.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	inc.CreatedAt = parseTime(created)
	logging.Get(logging.CategoryStore).Warn("%s incident %d: %s", kind, inc.ID, firstLine(inc.Traceback))
	return inc, nil
}

// Incidents returns the most recent incidents first. limit <= 0 means all.
func (s *Store) Incidents(ctx context.Context, limit int) ([]*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, kind, traceback, created_at FROM incidents ORDER BY id DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		var (
			inc     Incident
			created string
		)
		if err := rows.Scan(&inc.ID, &inc.Kind, &inc.Traceback, &created); err != nil {
			return nil, err
		}
		inc.CreatedAt = parseTime(created)
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
