// Package memexec is an in-memory implementation of the collaborators the
// execution engine needs: a table catalog, an expression translator and a
// device-aware executor that models GPU and CPU memory budgets.
package memexec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/table"
)

type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*table.Table
}

func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*table.Table)}
}

// Add registers t under name, replacing any table of the same name.
func (c *Catalog) Add(name string, t *table.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = t
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Table(name string) (*table.Table, error) {
	c.mu.RLock()
	t, ok := c.tables[name]
	c.mu.RUnlock()
	if !ok {
		return nil, zqe.ErrInvalid("unknown table %q%s", name, suggest(name, c.Names()))
	}
	return t, nil
}

func (c *Catalog) TableInfo(name string) (exec.TableInfo, error) {
	t, err := c.Table(name)
	if err != nil {
		return exec.TableInfo{}, err
	}
	return exec.TableInfo{
		Name:      name,
		Schema:    t.Schema(),
		Rows:      uint64(t.NumRows()),
		Fragments: t.Fragments(),
	}, nil
}

// suggest returns a "did you mean" hint naming the candidate closest to
// name, if any is close enough.
func suggest(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
