package addon

import (
	"fmt"

	"streamhub/pkg/persistence"
)

// StateKey is the persistence key the registry is stored under
const StateKey = "addons"

// StateStore keeps the registry in the shared state.json
type StateStore struct {
	manager *persistence.StateManager
}

// NewStateStore returns a Store backed by the given state manager
func NewStateStore(m *persistence.StateManager) *StateStore {
	return &StateStore{manager: m}
}

func (s *StateStore) LoadAddons() ([]Entry, error) {
	var entries []Entry
	if _, err := s.manager.Get(StateKey, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StateKey, err)
	}
	return entries, nil
}

func (s *StateStore) SaveAddons(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	return s.manager.Set(StateKey, entries)
}
