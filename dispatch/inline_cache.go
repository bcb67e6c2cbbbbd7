package dispatch

// Inline caching for call sites
//
// Each call site remembers the bindings it resolved, keyed by the concrete
// receiver type. Most sites only ever see one receiver type; a proxy shared
// by several target types sees a handful; a generic helper may see many.
//
// Lookups read an immutable snapshot without locking. Updates build a new
// snapshot under the call site's mutex.

import (
	"reflect"
	"sync"
)

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No binding cached yet
	CacheMonomorphic                   // Single (type, binding) cached
	CachePolymorphic                   // 2..limit entries
	CacheMegamorphic                   // Too many types, entries moved to a map
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	case CacheMegamorphic:
		return "megamorphic"
	}
	return "unknown"
}

// DefaultPolymorphicLimit is the default number of receiver types a call
// site caches inline before going megamorphic.
const DefaultPolymorphicLimit = 6

// icEntry holds a single cached binding.
type icEntry struct {
	typ reflect.Type
	fn  binding
}

// inlineCache is one immutable state of a call site's cache.
type inlineCache struct {
	state   CacheState
	entries []icEntry
}

var emptyIC = &inlineCache{state: CacheEmpty}

// lookup returns the binding cached for t, or nil.
func (ic *inlineCache) lookup(t reflect.Type, mega *sync.Map) binding {
	switch ic.state {
	case CacheMonomorphic, CachePolymorphic:
		// Linear search through entries (typically 1-6)
		for i := range ic.entries {
			if ic.entries[i].typ == t {
				return ic.entries[i].fn
			}
		}
	case CacheMegamorphic:
		if fn, ok := mega.Load(t); ok {
			return fn.(binding)
		}
	}
	return nil
}

// update returns the cache state after recording (t, fn). Entries are
// copied, never mutated in place. A megamorphic cache moves its entries
// into mega and stays megamorphic.
func (ic *inlineCache) update(t reflect.Type, fn binding, limit int, mega *sync.Map) *inlineCache {
	if fn == nil {
		return ic // Don't cache failed lookups
	}

	switch ic.state {
	case CacheEmpty:
		return &inlineCache{state: CacheMonomorphic, entries: []icEntry{{typ: t, fn: fn}}}

	case CacheMonomorphic, CachePolymorphic:
		for i := range ic.entries {
			if ic.entries[i].typ == t {
				return ic // Already cached
			}
		}
		if len(ic.entries) < limit {
			entries := make([]icEntry, len(ic.entries), len(ic.entries)+1)
			copy(entries, ic.entries)
			entries = append(entries, icEntry{typ: t, fn: fn})
			return &inlineCache{state: CachePolymorphic, entries: entries}
		}
		// Too many types - go megamorphic
		for _, e := range ic.entries {
			mega.Store(e.typ, e.fn)
		}
		mega.Store(t, fn)
		return &inlineCache{state: CacheMegamorphic}

	case CacheMegamorphic:
		mega.LoadOrStore(t, fn)
	}
	return ic
}

// size returns the number of receiver types cached inline.
func (ic *inlineCache) size() int {
	return len(ic.entries)
}
