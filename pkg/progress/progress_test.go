package progress

import (
	"path/filepath"
	"testing"

	"streamhub/pkg/persistence"
)

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m, err := persistence.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := NewStateStore(m)
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}

	if err := s.Set("tt1", "series", "tt1:1:2", Position{CurrentTime: 600, Duration: 2400}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := s.Get("tt1", "series", "tt1:1:3"); ok {
		t.Error("other episode should have no progress")
	}

	m2, _ := persistence.Open(path)
	s2, err := NewStateStore(m2)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	p, ok := s2.Get("tt1", "series", "tt1:1:2")
	if !ok || p.CurrentTime != 600 || p.Fraction() != 0.25 {
		t.Errorf("reloaded = %+v ok=%v", p, ok)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestKeyAndFraction(t *testing.T) {
	if Key("tt1", "movie", "") == Key("tt1", "series", "") {
		t.Error("type must be part of the key")
	}
	if f := (Position{CurrentTime: 50, Duration: 0}).Fraction(); f != 0 {
		t.Errorf("zero duration fraction = %v", f)
	}
	if f := (Position{CurrentTime: 500, Duration: 100}).Fraction(); f != 1 {
		t.Errorf("overrun fraction = %v", f)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	s.Set("tt1", "movie", "", Position{CurrentTime: 1})
	if p, ok := s.Get("tt1", "movie", ""); !ok || p.CurrentTime != 1 {
		t.Errorf("Get = %+v %v", p, ok)
	}
}
