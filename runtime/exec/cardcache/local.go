package cardcache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Local is an in-process cache bounded to a fixed number of entries.
type Local struct {
	metrics
	mu  sync.Mutex
	arc *lru.ARCCache[string, uint64]
}

func NewLocal(size int, registerer prometheus.Registerer) (*Local, error) {
	arc, err := lru.NewARC[string, uint64](size)
	if err != nil {
		return nil, err
	}
	return &Local{
		metrics: newMetrics(registerer, "local"),
		arc:     arc,
	}, nil
}

func (c *Local) Get(_ context.Context, key string) (uint64, bool, error) {
	if card, ok := c.arc.Get(key); ok {
		c.hits.Inc()
		return card, true, nil
	}
	c.misses.Inc()
	return 0, false, nil
}

func (c *Local) Put(_ context.Context, key string, card uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.arc.Peek(key); ok {
		if existing != card {
			return fmt.Errorf("%w: %q holds %d, not %d", ErrConflict, key, existing, card)
		}
		return nil
	}
	c.arc.Add(key, card)
	return nil
}

func (c *Local) Len() int {
	return c.arc.Len()
}
