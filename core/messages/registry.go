package messages

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

type entry struct {
	kind Kind
	seq  atomic.Uint64
}

// Registry stores message kind descriptors keyed by (owner, kind). It is
// populated once at startup and frozen before endpoints are created.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// Register adds a kind descriptor.
func (r *Registry) Register(k Kind) error {
	if k.Owner == "" || k.ID == "" {
		return fmt.Errorf("register kind %q/%q: owner and id are required", k.Owner, k.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %s: %w", k.Key(), ErrRegistryFrozen)
	}
	if _, ok := r.entries[k.Key()]; ok {
		return fmt.Errorf("register %s: %w", k.Key(), ErrDuplicateKind)
	}
	r.entries[k.Key()] = &entry{kind: k}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the descriptor registered for owner and id.
func (r *Registry) Lookup(owner Owner, id KindID) (Kind, error) {
	e, err := r.entry(Key{Owner: owner, ID: id})
	if err != nil {
		return Kind{}, err
	}
	return e.kind, nil
}

// LookupKey is Lookup for a routing key.
func (r *Registry) LookupKey(k Key) (Kind, error) { return r.Lookup(k.Owner, k.ID) }

// NextSeq returns the next emission sequence number of the kind, starting at 1.
func (r *Registry) NextSeq(k Key) (uint64, error) {
	e, err := r.entry(k)
	if err != nil {
		return 0, err
	}
	return e.seq.Add(1), nil
}

// Kinds returns all descriptors sorted by owner then id.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	out := make([]Kind, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.kind)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) entry(k Key) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[k]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", k, ErrUnknownKind)
	}
	return e, nil
}
