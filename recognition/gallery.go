package recognition

import (
	"context"
	"log"
	"sort"
	"sync"
)

// Identity is an enrolled person.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Entry pairs an identity with its enrolled signature.
type Entry struct {
	Identity
	Signature Signature `json:"-"`
}

// GalleryStore is the persistence side of the gallery.
type GalleryStore interface {
	LoadSignatures(ctx context.Context) ([]Entry, error)
	SaveSignature(ctx context.Context, id Identity, sig Signature) error
	DeleteSignature(ctx context.Context, id int64) error
}

// Gallery holds every enrolled signature in memory, ordered by identity id.
// Storage is written before memory so a successful Upsert is never stale.
type Gallery struct {
	store GalleryStore

	writeMu sync.Mutex // serializes Upsert and Remove
	mu      sync.RWMutex
	entries []Entry
}

// LoadGallery reads all enrolled identities from store.
func LoadGallery(ctx context.Context, store GalleryStore) (*Gallery, error) {
	loaded, err := store.LoadSignatures(ctx)
	if err != nil {
		return nil, storageErr("load gallery", err)
	}

	g := &Gallery{store: store}
	seen := make(map[int64]int, len(loaded))
	for _, e := range loaded {
		entry := Entry{Identity: e.Identity, Signature: e.Signature.Clone()}
		if idx, ok := seen[e.ID]; ok {
			g.entries[idx] = entry
			continue
		}
		seen[e.ID] = len(g.entries)
		g.entries = append(g.entries, entry)
	}
	sort.SliceStable(g.entries, func(i, j int) bool { return g.entries[i].ID < g.entries[j].ID })

	log.Printf("gallery: loaded %d identities", len(g.entries))
	return g, nil
}

// Upsert replaces the signature for id.ID in storage and then in memory.
// On storage failure the in-memory gallery is left untouched.
func (g *Gallery) Upsert(ctx context.Context, id Identity, sig Signature) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	owned := sig.Clone()
	if err := g.store.SaveSignature(ctx, id, owned); err != nil {
		return storageErr("upsert signature", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	entry := Entry{Identity: id, Signature: owned}
	idx := sort.Search(len(g.entries), func(i int) bool { return g.entries[i].ID >= id.ID })
	if idx < len(g.entries) && g.entries[idx].ID == id.ID {
		g.entries[idx] = entry
		return nil
	}
	g.entries = append(g.entries, Entry{})
	copy(g.entries[idx+1:], g.entries[idx:])
	g.entries[idx] = entry
	return nil
}

// Remove deletes the identity from storage and then from memory.
// Removing an unknown id is a no-op.
func (g *Gallery) Remove(ctx context.Context, id int64) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if err := g.store.DeleteSignature(ctx, id); err != nil {
		return storageErr("remove signature", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e.ID == id {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup returns the entry for id.
func (g *Gallery) Lookup(id int64) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entries {
		if e.ID == id {
			return Entry{Identity: e.Identity, Signature: e.Signature.Clone()}, true
		}
	}
	return Entry{}, false
}

// Entries returns a copy of the gallery in id order.
func (g *Gallery) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		out[i] = Entry{Identity: e.Identity, Signature: e.Signature.Clone()}
	}
	return out
}

func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// view runs fn with a read lock held over the live entries. fn must not retain the slice.
func (g *Gallery) view(fn func([]Entry)) {
	if g == nil {
		fn(nil)
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.entries)
}
