package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"jinn/internal/logging"
)

// Config keys read by the core.
const (
	KeyModel                     = "model"
	KeyCraftRetries              = "craft_retries"
	KeyManualIncantationCrafting = "manual_incantation_crafting"
)

// Setting is one row of the config table.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DefaultSettings are inserted when missing every time the store opens.
var DefaultSettings = []Setting{
	{Key: KeyModel, Value: "gemini-2.5-flash"},
	{Key: KeyCraftRetries, Value: "3"},
	{Key: KeyManualIncantationCrafting, Value: "false"},
}

func (s *Store) seedConfig(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kv := range DefaultSettings {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO config (key, value) VALUES (?, ?)", kv.Key, kv.Value); err != nil {
			return fmt.Errorf("failed to seed config %s: %w", kv.Key, err)
		}
	}
	return nil
}

// ConfigGet returns the value of key and whether it exists.
func (s *Store) ConfigGet(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read config %s: %w", key, err)
	}
	return value, true, nil
}

// ConfigSet creates or replaces a config value.
func (s *Store) ConfigSet(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write config %s: %w", key, err)
	}
	logging.StoreDebug("Config %s set", key)
	return nil
}

// ConfigAll returns every config value ordered by key.
func (s *Store) ConfigAll(ctx context.Context) ([]Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM config ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var kv Setting
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// ConfigString returns the value of key, or def when it is missing or empty.
func (s *Store) ConfigString(ctx context.Context, key, def string) string {
	v, ok, err := s.ConfigGet(ctx, key)
	if err != nil || !ok || v == "" {
		return def
	}
	return v
}

// ConfigInt returns the integer value of key, or def when it is missing or
// not an integer.
func (s *Store) ConfigInt(ctx context.Context, key string, def int) int {
	v, ok, err := s.ConfigGet(ctx, key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("config %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

// ConfigBool reports whether key holds a true value ("1", "true", "yes", "on").
func (s *Store) ConfigBool(ctx context.Context, key string) bool {
	v, ok, err := s.ConfigGet(ctx, key)
	if err != nil || !ok {
		return false
	}
	switch v {
	case "1", "true", "True", "TRUE", "yes", "on":
		return true
	}
	return false
}
