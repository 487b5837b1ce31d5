package chain

import (
	"sort"
	"sync"
)

// CodeIDRegistry maps symbolic contract kind keys (e.g. "dao-core") to the
// numeric code ids deployed on chain. It is constructed once at startup
// from config and passed by reference; Replace supports scheduled
// refreshes when new code ids land.
type CodeIDRegistry struct {
	mu      sync.RWMutex
	byKey   map[string][]uint64
	keyByID map[uint64][]string
}

// NewCodeIDRegistry builds a registry from a key -> code ids mapping.
func NewCodeIDRegistry(byKey map[string][]uint64) *CodeIDRegistry {
	r := &CodeIDRegistry{}
	r.Replace(byKey)
	return r
}

// Replace swaps the full mapping, used by the refresh lifecycle.
func (r *CodeIDRegistry) Replace(byKey map[string][]uint64) {
	keys := make(map[string][]uint64, len(byKey))
	ids := make(map[uint64][]string)
	for k, v := range byKey {
		cp := make([]uint64, len(v))
		copy(cp, v)
		keys[k] = cp
		for _, id := range v {
			ids[id] = append(ids[id], k)
		}
	}
	r.mu.Lock()
	r.byKey = keys
	r.keyByID = ids
	r.mu.Unlock()
}

// FindWasmCodeIDsByKeys returns the union of code ids registered under the
// given keys, sorted and deduplicated.
func (r *CodeIDRegistry) FindWasmCodeIDsByKeys(keys ...string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[uint64]struct{}{}
	var out []uint64
	for _, k := range keys {
		for _, id := range r.byKey[k] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindWasmCodeKeysByID returns the symbolic keys a code id is registered
// under, if any.
func (r *CodeIDRegistry) FindWasmCodeKeysByID(id uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ks := r.keyByID[id]
	out := make([]string, len(ks))
	copy(out, ks)
	return out
}

// MatchesWasmCodeKeys reports whether the code id is registered under at
// least one of the given keys.
func (r *CodeIDRegistry) MatchesWasmCodeKeys(id uint64, keys ...string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, have := range r.keyByID[id] {
		for _, want := range keys {
			if have == want {
				return true
			}
		}
	}
	return false
}
