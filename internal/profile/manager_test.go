package profile

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sdgteacher/sdgchat/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]string

	setCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.data[key] = value
	return nil
}

func (m *mockStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockStore) Keys(prefix string) ([]string, error) { return nil, nil }

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func observation(i int) Observation {
	var o Observation
	o.Stamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute))
	o.Type = TypeImage
	o.UserMessage = fmt.Sprintf("msg %d", i)
	return o
}

// --- Tests ---

func TestListProfiles_Empty(t *testing.T) {
	mgr := NewManager(newMockStore())

	profiles, err := mgr.ListProfiles()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(profiles))
	}
}

func TestListProfiles_CorruptedJSON(t *testing.T) {
	store := newMockStore()
	store.data[storage.KeyProfiles] = `[{"username": "ali`
	mgr := NewManager(store)

	profiles, err := mgr.ListProfiles()
	if err != nil {
		t.Fatalf("corrupted profiles should not error, got %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("expected empty list, got %d profiles", len(profiles))
	}
}

func TestGetOrCreateProfile_Create(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := NewManagerWithClock(newMockStore(), clock)

	p, err := mgr.GetOrCreateProfile("alice", "session_1")
	if err != nil {
		t.Fatalf("GetOrCreateProfile: %v", err)
	}
	if p.SessionsCount != 1 {
		t.Errorf("SessionsCount = %d, want 1", p.SessionsCount)
	}
	if !p.CreatedAt.Equal(clock.now) || !p.LastAccess.Equal(clock.now) {
		t.Errorf("timestamps = %v/%v, want %v", p.CreatedAt, p.LastAccess, clock.now)
	}
	if p.LastSession != "session_1" {
		t.Errorf("LastSession = %q, want %q", p.LastSession, "session_1")
	}
}

func TestGetOrCreateProfile_ExistingIncrements(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := NewManagerWithClock(newMockStore(), clock)

	first, _ := mgr.GetOrCreateProfile("alice", "s1")
	clock.Advance(time.Hour)

	second, err := mgr.GetOrCreateProfile("alice", "s2")
	if err != nil {
		t.Fatalf("GetOrCreateProfile: %v", err)
	}
	if second.SessionsCount != 2 {
		t.Errorf("SessionsCount = %d, want 2", second.SessionsCount)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.LastAccess.Equal(clock.now) {
		t.Errorf("LastAccess = %v, want %v", second.LastAccess, clock.now)
	}

	profiles, _ := mgr.ListProfiles()
	if len(profiles) != 1 {
		t.Errorf("expected 1 profile, got %d", len(profiles))
	}
}

func TestGetOrCreateProfile_ExactMatch(t *testing.T) {
	mgr := NewManager(newMockStore())

	mgr.GetOrCreateProfile("Alice", "")
	p, _ := mgr.GetOrCreateProfile("alice", "")
	if p.SessionsCount != 1 {
		t.Errorf("usernames should match exactly; SessionsCount = %d", p.SessionsCount)
	}

	profiles, _ := mgr.ListProfiles()
	if len(profiles) != 2 {
		t.Errorf("expected 2 profiles, got %d", len(profiles))
	}
}

func TestUsernameWhitespaceNormalised(t *testing.T) {
	mgr := NewManager(newMockStore())

	p, err := mgr.GetOrCreateProfile(" alice ", "")
	if err != nil {
		t.Fatalf("GetOrCreateProfile: %v", err)
	}
	if p.Username != "alice" {
		t.Errorf("Username = %q, want %q", p.Username, "alice")
	}

	if err := mgr.UpdateMemory(" alice", []Observation{observation(1)}); err != nil {
		t.Errorf("UpdateMemory: %v", err)
	}
	if err := mgr.AppendObservation("alice ", observation(2)); err != nil {
		t.Errorf("AppendObservation: %v", err)
	}
	if err := mgr.UpdateDetails("\talice", "student", ""); err != nil {
		t.Errorf("UpdateDetails: %v", err)
	}

	got, err := mgr.GetProfile(" alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if len(got.EnvironmentMemory) != 2 || got.Background != "student" {
		t.Errorf("profile = %+v", got)
	}

	if p, _ := mgr.GetOrCreateProfile("alice", ""); p.SessionsCount != 2 {
		t.Errorf("SessionsCount = %d, want 2", p.SessionsCount)
	}
	if err := mgr.DeleteProfile("alice "); err != nil {
		t.Errorf("DeleteProfile: %v", err)
	}
	if _, err := mgr.GetProfile("alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetProfile after delete: err = %v", err)
	}
}

func TestGetOrCreateProfile_EmptyUsername(t *testing.T) {
	mgr := NewManager(newMockStore())

	if _, err := mgr.GetOrCreateProfile("   ", ""); !errors.Is(err, ErrEmptyUsername) {
		t.Errorf("err = %v, want ErrEmptyUsername", err)
	}
}

func TestGetOrCreateProfile_RecoversFromCorruption(t *testing.T) {
	store := newMockStore()
	store.data[storage.KeyProfiles] = `not json`
	mgr := NewManager(store)

	p, err := mgr.GetOrCreateProfile("bob", "")
	if err != nil {
		t.Fatalf("GetOrCreateProfile: %v", err)
	}
	if p.SessionsCount != 1 {
		t.Errorf("SessionsCount = %d, want 1", p.SessionsCount)
	}

	profiles, err := mgr.ListProfiles()
	if err != nil || len(profiles) != 1 {
		t.Errorf("ListProfiles = %d, %v; want 1 profile", len(profiles), err)
	}
}

func TestUpdateMemory_CapsAtFifty(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.GetOrCreateProfile("alice", "")

	var memory []Observation
	for i := 0; i < 70; i++ {
		memory = append(memory, observation(i))
	}

	if err := mgr.UpdateMemory("alice", memory); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	p, _ := mgr.GetProfile("alice")
	if len(p.EnvironmentMemory) != MaxObservations {
		t.Fatalf("memory length = %d, want %d", len(p.EnvironmentMemory), MaxObservations)
	}
	if p.EnvironmentMemory[0].UserMessage != "msg 20" {
		t.Errorf("oldest kept = %q, want %q", p.EnvironmentMemory[0].UserMessage, "msg 20")
	}
	if p.EnvironmentMemory[MaxObservations-1].UserMessage != "msg 69" {
		t.Errorf("newest kept = %q, want %q", p.EnvironmentMemory[MaxObservations-1].UserMessage, "msg 69")
	}
}

func TestAppendObservation_EvictsOldestFirst(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.GetOrCreateProfile("alice", "")

	for i := 0; i < MaxObservations+5; i++ {
		if err := mgr.AppendObservation("alice", observation(i)); err != nil {
			t.Fatalf("AppendObservation %d: %v", i, err)
		}
		p, _ := mgr.GetProfile("alice")
		if len(p.EnvironmentMemory) > MaxObservations {
			t.Fatalf("memory grew to %d after %d appends", len(p.EnvironmentMemory), i+1)
		}
	}

	p, _ := mgr.GetProfile("alice")
	if p.EnvironmentMemory[0].UserMessage != "msg 5" {
		t.Errorf("oldest kept = %q, want %q", p.EnvironmentMemory[0].UserMessage, "msg 5")
	}
}

func TestUpdateMemory_UnknownProfile(t *testing.T) {
	mgr := NewManager(newMockStore())

	err := mgr.UpdateMemory("ghost", []Observation{observation(1)})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateDetails(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.GetOrCreateProfile("alice", "")

	if err := mgr.UpdateDetails("alice", "student", "shared flat"); err != nil {
		t.Fatalf("UpdateDetails: %v", err)
	}
	p, _ := mgr.GetProfile("alice")
	if p.Background != "student" || p.LivingSituation != "shared flat" {
		t.Errorf("details = %q/%q", p.Background, p.LivingSituation)
	}
}

func TestDeleteProfile(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.GetOrCreateProfile("alice", "")
	mgr.GetOrCreateProfile("bob", "")

	if err := mgr.DeleteProfile("alice"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, err := mgr.GetProfile("alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetProfile after delete: err = %v", err)
	}
	if err := mgr.DeleteProfile("alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestFallbackMemory(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	for i := 0; i < MaxObservations+3; i++ {
		if err := mgr.AppendFallback(observation(i)); err != nil {
			t.Fatalf("AppendFallback: %v", err)
		}
	}

	memory, err := mgr.FallbackMemory()
	if err != nil {
		t.Fatalf("FallbackMemory: %v", err)
	}
	if len(memory) != MaxObservations {
		t.Errorf("fallback length = %d, want %d", len(memory), MaxObservations)
	}

	store.data[storage.KeyEnvironmentMemory] = "{{{"
	memory, err = mgr.FallbackMemory()
	if err != nil || len(memory) != 0 {
		t.Errorf("corrupted fallback = %d, %v; want empty, nil", len(memory), err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.GetOrCreateProfile("alice", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mgr.AppendObservation("alice", observation(i))
		}(i)
	}
	wg.Wait()

	p, _ := mgr.GetProfile("alice")
	if len(p.EnvironmentMemory) != 20 {
		t.Errorf("lost updates: memory length = %d, want 20", len(p.EnvironmentMemory))
	}
}

func TestObservationStamp(t *testing.T) {
	var o Observation
	o.Stamp(time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC))

	if o.Date != "2026-10-16" || o.Time != "14:05" || o.Day != "Friday" {
		t.Errorf("Stamp = %q %q %q", o.Date, o.Time, o.Day)
	}
}
