package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"streamhub/pkg/logger"
)

// StateManager handles persistent key-value storage in a JSON file
type StateManager struct {
	filePath string
	data     map[string]json.RawMessage
	mu       sync.RWMutex
}

var globalManager *StateManager
var managerMu sync.Mutex

// GetManager returns the process-wide state manager for dataDir
func GetManager(dataDir string) (*StateManager, error) {
	managerMu.Lock()
	defer managerMu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	m, err := Open(filepath.Join(dataDir, "state.json"))
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

// Open loads (or starts) a state file at path
func Open(path string) (*StateManager, error) {
	m := &StateManager{
		filePath: path,
		data:     make(map[string]json.RawMessage),
	}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return m, nil
}

func (m *StateManager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &m.data)
}

// Path returns the backing file path
func (m *StateManager) Path() string {
	return m.filePath
}

func (m *StateManager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

// saveLocked writes through a temp file so a crash never leaves a truncated state.json
func (m *StateManager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, m.filePath)
}

// Get retrieves data for a key and unmarshals it into target
func (m *StateManager) Get(key string, target interface{}) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return true, err
	}

	return true, nil
}

// Set stores data for a key and saves to disk
func (m *StateManager) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()

	if err := m.Save(); err != nil {
		logger.Warn("Failed to persist state", "key", key, "err", err)
		return err
	}
	return nil
}

// Delete removes a key and saves to disk; missing keys are not an error
func (m *StateManager) Delete(key string) error {
	m.mu.Lock()
	_, ok := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.Save()
}
