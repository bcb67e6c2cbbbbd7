package expando

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chazu/ducktape/dispatch"
)

// List is a dynamic list. Besides index access it exposes Count, Add and
// Clear as members.
type List struct {
	mu    sync.RWMutex
	items []any
}

var _ dispatch.Indexer = (*List)(nil)

// NewList creates a list holding items.
func NewList(items ...any) *List {
	return &List{items: slices.Clone(items)}
}

// Count returns the number of items.
func (l *List) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Add appends v.
func (l *List) Add(v any) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

// Remove deletes the first item equal to v.
func (l *List) Remove(v any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, item := range l.items {
		if equalValues(item, v) {
			l.items = slices.Delete(l.items, i, i+1)
			return true
		}
	}
	return false
}

// Clear removes every item.
func (l *List) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// Items returns a copy of the items.
func (l *List) Items() []any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Equal reports whether l and o hold equal items in the same order.
func (l *List) Equal(o *List) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil {
		return false
	}
	return equalValues(l.Items(), o.Items())
}

func (l *List) String() string {
	return fmt.Sprintf("list%v", l.Items())
}

// GetIndex implements dispatch.Indexer with a single int index.
func (l *List) GetIndex(keys []any) (any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, err := l.index(keys)
	if err != nil {
		return nil, err
	}
	return l.items[i], nil
}

// SetIndex implements dispatch.Indexer with a single int index.
func (l *List) SetIndex(keys []any, value any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, err := l.index(keys)
	if err != nil {
		return err
	}
	l.items[i] = value
	return nil
}

func (l *List) index(keys []any) (int, error) {
	if len(keys) != 1 {
		return 0, fmt.Errorf("list takes one index, got %d", len(keys))
	}
	rv, err := dispatch.Coerce(keys[0], intType)
	if err != nil {
		return 0, fmt.Errorf("list index: %w", err)
	}
	i := int(rv.Int())
	if i < 0 || i >= len(l.items) {
		return 0, fmt.Errorf("index %d out of range [0:%d]", i, len(l.items))
	}
	return i, nil
}
