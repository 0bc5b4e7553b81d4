package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sdgteacher/sdgchat/internal/storage"
)

// ErrEmptyUsername is returned when an operation is given a blank username.
var ErrEmptyUsername = errors.New("username is required")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager persists the profile collection as one JSON document under
// storage.KeyProfiles. Every mutation is a whole-collection
// read-modify-write under a single lock, so the stored document is always
// either the old or the new collection.
type Manager struct {
	kv    storage.KV
	clock Clock

	mu sync.Mutex
}

// NewManager creates a Manager backed by kv.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv, clock: realClock{}}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(kv storage.KV, clock Clock) *Manager {
	return &Manager{kv: kv, clock: clock}
}

// ListProfiles returns every saved profile. A corrupted collection reads as
// empty.
func (m *Manager) ListProfiles() ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

// GetProfile returns the profile for username, or storage.ErrNotFound.
func (m *Manager) GetProfile(username string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.load()
	if err != nil {
		return Profile{}, err
	}
	if i := indexOf(profiles, username); i >= 0 {
		return profiles[i], nil
	}
	return Profile{}, storage.ErrNotFound
}

// GetOrCreateProfile selects the profile for username. A new profile starts
// with SessionsCount 1; selecting an existing one increments SessionsCount and
// refreshes LastAccess. LastSession records sessionID either way.
func (m *Manager) GetOrCreateProfile(username, sessionID string) (Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Profile{}, ErrEmptyUsername
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.load()
	if err != nil {
		return Profile{}, err
	}

	now := m.clock.Now()
	i := indexOf(profiles, username)
	if i < 0 {
		profiles = append(profiles, Profile{
			Username:          username,
			SessionsCount:     1,
			LastSession:       sessionID,
			CreatedAt:         now,
			LastAccess:        now,
			EnvironmentMemory: []Observation{},
		})
		i = len(profiles) - 1
		slog.Info("created profile", "username", username)
	} else {
		profiles[i].SessionsCount++
		profiles[i].LastAccess = now
		if sessionID != "" {
			profiles[i].LastSession = sessionID
		}
	}

	if err := m.save(profiles); err != nil {
		return Profile{}, err
	}
	return profiles[i], nil
}

// UpdateMemory replaces the profile's environment memory, keeping only the
// newest MaxObservations entries.
func (m *Manager) UpdateMemory(username string, memory []Observation) error {
	return m.mutate(username, func(p *Profile) {
		p.EnvironmentMemory = capObservations(memory)
	})
}

// AppendObservation appends one observation to the profile's memory,
// evicting the oldest entries beyond MaxObservations.
func (m *Manager) AppendObservation(username string, o Observation) error {
	return m.mutate(username, func(p *Profile) {
		p.EnvironmentMemory = capObservations(append(p.EnvironmentMemory, o))
	})
}

// UpdateDetails sets the free-text background and living situation fields.
func (m *Manager) UpdateDetails(username, background, livingSituation string) error {
	return m.mutate(username, func(p *Profile) {
		p.Background = background
		p.LivingSituation = livingSituation
	})
}

// DeleteProfile removes the profile for username. Missing profiles return
// storage.ErrNotFound.
func (m *Manager) DeleteProfile(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.load()
	if err != nil {
		return err
	}
	i := indexOf(profiles, username)
	if i < 0 {
		return storage.ErrNotFound
	}
	profiles = append(profiles[:i], profiles[i+1:]...)
	return m.save(profiles)
}

// FallbackMemory returns the environment memory recorded while no profile
// was active.
func (m *Manager) FallbackMemory() ([]Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadFallback()
}

// AppendFallback appends to the profile-less environment memory.
func (m *Manager) AppendFallback(o Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	memory, err := m.loadFallback()
	if err != nil {
		return err
	}
	data, err := json.Marshal(capObservations(append(memory, o)))
	if err != nil {
		return fmt.Errorf("marshalling environment memory: %w", err)
	}
	if err := m.kv.Set(storage.KeyEnvironmentMemory, string(data)); err != nil {
		return fmt.Errorf("saving environment memory: %w", err)
	}
	return nil
}

func (m *Manager) mutate(username string, fn func(p *Profile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.load()
	if err != nil {
		return err
	}
	i := indexOf(profiles, username)
	if i < 0 {
		return fmt.Errorf("profile %q: %w", username, storage.ErrNotFound)
	}
	fn(&profiles[i])
	return m.save(profiles)
}

// load must be called with m.mu held.
func (m *Manager) load() ([]Profile, error) {
	raw, err := m.kv.Get(storage.KeyProfiles)
	if errors.Is(err, storage.ErrNotFound) {
		return []Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}

	var profiles []Profile
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		slog.Warn("malformed profile collection, treating as empty", "error", err)
		return []Profile{}, nil
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// save must be called with m.mu held.
func (m *Manager) save(profiles []Profile) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("marshalling profiles: %w", err)
	}
	if err := m.kv.Set(storage.KeyProfiles, string(data)); err != nil {
		return fmt.Errorf("saving profiles: %w", err)
	}
	return nil
}

func (m *Manager) loadFallback() ([]Observation, error) {
	raw, err := m.kv.Get(storage.KeyEnvironmentMemory)
	if errors.Is(err, storage.ErrNotFound) {
		return []Observation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading environment memory: %w", err)
	}

	var memory []Observation
	if err := json.Unmarshal([]byte(raw), &memory); err != nil {
		slog.Warn("malformed environment memory, treating as empty", "error", err)
		return []Observation{}, nil
	}
	return memory, nil
}

// indexOf matches usernames exactly after trimming surrounding whitespace,
// the same normalisation GetOrCreateProfile applies when creating.
func indexOf(profiles []Profile, username string) int {
	username = strings.TrimSpace(username)
	for i := range profiles {
		if profiles[i].Username == username {
			return i
		}
	}
	return -1
}

// capObservations returns a copy holding at most the newest MaxObservations entries.
func capObservations(memory []Observation) []Observation {
	if len(memory) > MaxObservations {
		memory = memory[len(memory)-MaxObservations:]
	}
	out := make([]Observation, len(memory))
	copy(out, memory)
	return out
}
