package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Lookup returns the configuration value for key, with ok=false when the key
// has never been set.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.queryRow(ctx,
		"SELECT config_val FROM bot_config WHERE config_key = ?", []any{key}, &val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup config %q: %w", key, err)
	}
	return val, true, nil
}

// Get returns the configuration value for key, persisting and returning def
// on first read. Persisting the default makes the effective configuration
// visible to operators via getconfig.
func (s *Store) Get(ctx context.Context, key, def string) (string, error) {
	val, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		return val, nil
	}
	s.log.Warn("config value not set, persisting default", "key", key, "default", def)
	if err := s.Set(ctx, key, def); err != nil {
		return "", err
	}
	return def, nil
}

// Set upserts a configuration value and asynchronously notifies every
// OnChange subscriber registered for the key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO bot_config (config_key, config_val) VALUES (?, ?)
		ON CONFLICT(config_key) DO UPDATE SET config_val = excluded.config_val
	`, key, value)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	s.log.Debug("config set", "key", key, "value", value)

	s.mu.Lock()
	callbacks := make([]func(key, value string), 0, len(s.watchers[key]))
	for _, cb := range s.watchers[key] {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()
	for _, cb := range callbacks {
		go cb(key, value)
	}
	return nil
}

// Clear deletes a configuration value. Subscribers are not notified; a
// cleared key reads as unset until the next Get persists a default.
func (s *Store) Clear(ctx context.Context, key string) error {
	if _, err := s.exec(ctx, "DELETE FROM bot_config WHERE config_key = ?", key); err != nil {
		return fmt.Errorf("clear config %q: %w", key, err)
	}
	return nil
}

// OnChange registers a callback invoked (on its own goroutine) whenever Set
// succeeds for key. The returned cancel removes the subscription; module
// instances call it on retirement so rebuilds do not accumulate watchers.
func (s *Store) OnChange(key string, cb func(key, value string)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[int]func(key, value string))
	}
	s.watcherSeq++
	id := s.watcherSeq
	s.watchers[key][id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[key], id)
	}
}
