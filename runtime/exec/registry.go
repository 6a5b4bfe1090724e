package exec

import (
	"sync"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/table"
)

// Key returns the registry key under which the result of the node with
// the given id is published. Keys of step results are never positive so
// they cannot collide with catalog table ids.
func Key(id uint) int64 {
	return -int64(id)
}

// Registry holds the results of executed steps for the lifetime of one
// query. Each key is published at most once.
type Registry struct {
	mu     sync.Mutex
	tables map[int64]*table.Table
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[int64]*table.Table)}
}

func (r *Registry) Put(key int64, t *table.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[key]; ok {
		return zqe.ErrInternal("temporary table %d is already registered", key)
	}
	r.tables[key] = t
	return nil
}

func (r *Registry) Lookup(key int64) (*table.Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[key]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[int64]*table.Table)
}
