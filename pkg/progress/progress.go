package progress

import (
	"strings"
	"sync"
	"time"

	"streamhub/pkg/persistence"
)

// StateKey is the persistence key watch progress is stored under
const StateKey = "progress"

// Position is how far into an item playback got, in seconds
type Position struct {
	CurrentTime float64   `json:"currentTime"`
	Duration    float64   `json:"duration"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Fraction returns CurrentTime/Duration clamped to [0,1]
func (p Position) Fraction() float64 {
	if p.Duration <= 0 {
		return 0
	}
	f := p.CurrentTime / p.Duration
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Store is the watch-progress collaborator
type Store interface {
	Get(contentID, contentType, episodeID string) (Position, bool)
	Set(contentID, contentType, episodeID string, p Position) error
}

// Key builds the lookup key for an item
func Key(contentID, contentType, episodeID string) string {
	parts := []string{contentID, contentType}
	if episodeID != "" {
		parts = append(parts, episodeID)
	}
	return strings.Join(parts, "|")
}

// StateStore keeps progress in the shared state file
type StateStore struct {
	mu      sync.Mutex
	manager *persistence.StateManager
	items   map[string]Position
}

// NewStateStore loads existing progress from m
func NewStateStore(m *persistence.StateManager) (*StateStore, error) {
	s := &StateStore{manager: m, items: map[string]Position{}}
	if _, err := m.Get(StateKey, &s.items); err != nil {
		return nil, err
	}
	if s.items == nil {
		s.items = map[string]Position{}
	}
	return s, nil
}

func (s *StateStore) Get(contentID, contentType, episodeID string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[Key(contentID, contentType, episodeID)]
	return p, ok
}

func (s *StateStore) Set(contentID, contentType, episodeID string, p Position) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.items[Key(contentID, contentType, episodeID)] = p
	snapshot := make(map[string]Position, len(s.items))
	for k, v := range s.items {
		snapshot[k] = v
	}
	s.mu.Unlock()
	return s.manager.Set(StateKey, snapshot)
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Position
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Position{}}
}

func (s *MemoryStore) Get(contentID, contentType, episodeID string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[Key(contentID, contentType, episodeID)]
	return p, ok
}

func (s *MemoryStore) Set(contentID, contentType, episodeID string, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[Key(contentID, contentType, episodeID)] = p
	return nil
}
