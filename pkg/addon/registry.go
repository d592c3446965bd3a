package addon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"streamhub/pkg/logger"
	"streamhub/pkg/stremio"
)

// ResourceStream is the resource name providers declare for stream lookups
const ResourceStream = "stream"

// basePriority is the priority of the first installed provider; each later
// slot is one lower.
const basePriority = 50

// Entry is one installed provider
type Entry struct {
	Manifest     *stremio.Manifest `json:"manifest"`
	TransportURL string            `json:"transportUrl"`
}

// ID returns the manifest id
func (e Entry) ID() string {
	if e.Manifest == nil {
		return ""
	}
	return e.Manifest.ID
}

// Name returns the manifest display name
func (e Entry) Name() string {
	if e.Manifest == nil {
		return ""
	}
	return e.Manifest.Name
}

func (e Entry) clone() Entry {
	return Entry{Manifest: e.Manifest.Clone(), TransportURL: e.TransportURL}
}

// Snapshot is an immutable view of the registry at one point in time.
// Readers may hold it across goroutines without locking.
type Snapshot struct {
	entries []Entry
	index   map[string]int
}

func newSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{
		entries: entries,
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		s.index[e.ID()] = i
	}
	return s
}

// Len returns the number of installed providers
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the providers in install order
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// Lookup returns the entry for id
func (s *Snapshot) Lookup(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i].clone(), true
}

// IndexOf returns the position of id, or -1
func (s *Snapshot) IndexOf(id string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// PriorityOf returns 50 minus the provider's index; unknown ids get 0.
func (s *Snapshot) PriorityOf(id string) int {
	i := s.IndexOf(id)
	if i < 0 {
		return 0
	}
	return basePriority - i
}

// CapableProviders returns, in install order, the providers whose manifest
// declares resource for contentType.
func (s *Snapshot) CapableProviders(resource, contentType string) []Entry {
	if s == nil {
		return nil
	}
	var out []Entry
	for _, e := range s.entries {
		if e.Manifest.Supports(resource, contentType) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Store persists the ordered provider list
type Store interface {
	LoadAddons() ([]Entry, error)
	SaveAddons([]Entry) error
}

// ManifestFetcher is satisfied by *Client
type ManifestFetcher interface {
	FetchManifest(ctx context.Context, rawURL string) (*stremio.Manifest, string, error)
}

// Registry owns the ordered list of installed providers. Mutations are
// serialized; every mutation publishes a fresh Snapshot.
type Registry struct {
	mu    sync.Mutex
	snap  atomic.Pointer[Snapshot]
	store Store

	subMu sync.Mutex
	subs  []func(*Snapshot)
}

// NewRegistry loads the persisted provider list from store (nil for a purely
// in-memory registry). Entries that fail validation or repeat an id are dropped.
func NewRegistry(store Store) (*Registry, error) {
	r := &Registry{store: store}
	var entries []Entry
	if store != nil {
		loaded, err := store.LoadAddons()
		if err != nil {
			return nil, fmt.Errorf("load addons: %w", err)
		}
		seen := make(map[string]bool, len(loaded))
		for _, e := range loaded {
			if err := Validate(e.Manifest); err != nil {
				logger.Warn("Dropping invalid persisted addon", "url", e.TransportURL, "err", err)
				continue
			}
			if seen[e.ID()] {
				logger.Warn("Dropping duplicate persisted addon", "id", e.ID())
				continue
			}
			seen[e.ID()] = true
			entries = append(entries, e.clone())
		}
	}
	r.snap.Store(newSnapshot(entries))
	logger.Debug("Addon registry ready", "count", len(entries))
	return r, nil
}

// Snapshot returns the current immutable view
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Subscribe registers fn to be called after every mutation with the snapshot
// current at that point. Calls happen on the mutating goroutine.
func (r *Registry) Subscribe(fn func(*Snapshot)) {
	r.subMu.Lock()
	r.subs = append(r.subs, fn)
	r.subMu.Unlock()
}

// Install appends a provider. If the id is already present it fails with
// ErrDuplicateID unless replace is set, in which case the entry is updated in place.
func (r *Registry) Install(m *stremio.Manifest, transportURL string, replace bool) error {
	if err := Validate(m); err != nil {
		return err
	}
	entry := Entry{Manifest: m.Clone(), TransportURL: strings.TrimSpace(transportURL)}

	r.mu.Lock()
	cur := r.snap.Load()
	entries := append([]Entry(nil), cur.entries...)
	if i := cur.IndexOf(m.ID); i >= 0 {
		if !replace {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		entries[i] = entry
		logger.Info("Replaced addon", "id", m.ID, "name", m.Name)
	} else {
		entries = append(entries, entry)
		logger.Info("Installed addon", "id", m.ID, "name", m.Name, "position", len(entries)-1)
	}
	r.publishLocked(entries)
	r.mu.Unlock()

	r.notify()
	return nil
}

// Remove deletes the provider with id. Unknown ids are a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	cur := r.snap.Load()
	i := cur.IndexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	entries := make([]Entry, 0, len(cur.entries)-1)
	entries = append(entries, cur.entries[:i]...)
	entries = append(entries, cur.entries[i+1:]...)
	r.publishLocked(entries)
	r.mu.Unlock()

	logger.Info("Removed addon", "id", id)
	r.notify()
	return true
}

// MoveUp swaps id with its predecessor. Returns false at the top or for unknown ids.
func (r *Registry) MoveUp(id string) bool {
	return r.move(id, -1)
}

// MoveDown swaps id with its successor. Returns false at the bottom or for unknown ids.
func (r *Registry) MoveDown(id string) bool {
	return r.move(id, 1)
}

func (r *Registry) move(id string, delta int) bool {
	r.mu.Lock()
	cur := r.snap.Load()
	i := cur.IndexOf(id)
	j := i + delta
	if i < 0 || j < 0 || j >= len(cur.entries) {
		r.mu.Unlock()
		return false
	}
	entries := append([]Entry(nil), cur.entries...)
	entries[i], entries[j] = entries[j], entries[i]
	r.publishLocked(entries)
	r.mu.Unlock()

	r.notify()
	return true
}

// Refresh re-fetches every installed manifest and replaces entries whose
// fetch succeeded. Order is preserved. Failed providers keep their old
// manifest; their errors are returned keyed by id.
func (r *Registry) Refresh(ctx context.Context, fetcher ManifestFetcher, concurrency int) map[string]error {
	entries := r.Snapshot().Entries()
	if len(entries) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	fresh := make([]*Entry, len(entries))
	errs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			m, transportURL, err := fetcher.FetchManifest(gctx, e.TransportURL)
			if err != nil {
				errs[i] = err
				return nil
			}
			if m.ID != e.ID() {
				errs[i] = fmt.Errorf("%w: id changed from %q to %q", ErrInvalidSchema, e.ID(), m.ID)
				return nil
			}
			fresh[i] = &Entry{Manifest: m, TransportURL: transportURL}
			return nil
		})
	}
	_ = g.Wait()

	failed := map[string]error{}
	for i, e := range entries {
		if errs[i] != nil {
			failed[e.ID()] = errs[i]
			logger.Warn("Failed to refresh addon", "id", e.ID(), "err", errs[i])
			continue
		}
		r.replaceIfPresent(*fresh[i])
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}

// replaceIfPresent swaps in a refreshed entry unless it was removed meanwhile
func (r *Registry) replaceIfPresent(e Entry) {
	r.mu.Lock()
	cur := r.snap.Load()
	i := cur.IndexOf(e.ID())
	if i < 0 {
		r.mu.Unlock()
		return
	}
	entries := append([]Entry(nil), cur.entries...)
	entries[i] = e.clone()
	r.publishLocked(entries)
	r.mu.Unlock()

	r.notify()
}

// publishLocked stores and persists a new snapshot. r.mu must be held.
func (r *Registry) publishLocked(entries []Entry) {
	snap := newSnapshot(entries)
	r.snap.Store(snap)

	if r.store != nil {
		if err := r.store.SaveAddons(snap.Entries()); err != nil {
			logger.Warn("Failed to persist addon registry", "err", err)
		}
	}
}

// notify hands the current snapshot to every subscriber. It runs without
// r.mu so subscribers may read or mutate the registry.
func (r *Registry) notify() {
	r.subMu.Lock()
	subs := make([]func(*Snapshot), len(r.subs))
	copy(subs, r.subs)
	r.subMu.Unlock()

	snap := r.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}
