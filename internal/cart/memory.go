package cart

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps carts in process memory. Sessions accumulate for the
// life of the process.
type MemoryBackend struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{carts: make(map[string]*Cart)}
}

func (b *MemoryBackend) Load(ctx context.Context, sessionID string) (*Cart, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.carts[sessionID]
	if !ok {
		return &Cart{}, false, nil
	}
	return c.Clone(), true, nil
}

func (b *MemoryBackend) Save(ctx context.Context, sessionID string, c *Cart) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.carts[sessionID] = c.Clone()
	return nil
}

func (b *MemoryBackend) Update(ctx context.Context, sessionID string, fn UpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.carts[sessionID]
	c := stored.Clone()
	if err := fn(c, ok); err != nil {
		return err
	}
	b.carts[sessionID] = c.Clone()
	return nil
}

func (b *MemoryBackend) Sessions(ctx context.Context) ([]SessionInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SessionInfo, 0, len(b.carts))
	for id, c := range b.carts {
		out = append(out, SessionInfo{ID: id, Lines: c.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Verify MemoryBackend implements Backend at compile time.
var _ Backend = (*MemoryBackend)(nil)
