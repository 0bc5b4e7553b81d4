package storage

import "errors"

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// KV is the durable client-side key-value storage the rest of sdgchat
// persists into. Values are opaque strings (usually JSON).
// Implemented by *Store (SQLite) and *RedisKV.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// Durable keys shared by the session, profile and chat packages.
const (
	KeySessionID         = "sdg_session_id"
	KeyUsername          = "sdg_username"
	KeyChatMode          = "sdg_chat_mode"
	KeyProfiles          = "sdg_profiles"
	KeyEnvironmentMemory = "sdg_environment_memory"
)
