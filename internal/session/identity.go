// Package session owns the client's session identifier.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdgteacher/sdgchat/internal/storage"
)

// Identity is the persisted session id. It is created on first load,
// reused on later loads, and replaced when the backend issues a new one.
type Identity struct {
	kv  storage.KV
	now func() time.Time

	mu sync.RWMutex
	id string
}

// Load reads the session id from kv, generating and persisting a fresh one
// when none is stored yet.
func Load(kv storage.KV) (*Identity, error) {
	return load(kv, time.Now)
}

func load(kv storage.KV, now func() time.Time) (*Identity, error) {
	s := &Identity{kv: kv, now: now}

	id, err := kv.Get(storage.KeySessionID)
	switch {
	case err == nil && id != "":
		s.id = id
		return s, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("reading session id: %w", err)
	}

	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the current session id.
func (s *Identity) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Adopt replaces the session id with one issued by the backend. Empty or
// unchanged ids are ignored.
func (s *Identity) Adopt(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.id {
		return nil
	}
	if err := s.kv.Set(storage.KeySessionID, id); err != nil {
		return fmt.Errorf("persisting session id: %w", err)
	}
	slog.Debug("adopted backend session id", "old", s.id, "new", id)
	s.id = id
	return nil
}

// Reset generates a new session id and persists it.
func (s *Identity) Reset() error {
	id := generateID(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(storage.KeySessionID, id); err != nil {
		return fmt.Errorf("persisting session id: %w", err)
	}
	s.id = id
	return nil
}

// generateID returns "session_<unix-millis>_<9 random chars>".
func generateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}
