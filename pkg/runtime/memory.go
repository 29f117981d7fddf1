package runtime

import (
	"context"
	"sync"
)

// MemoryClient is an in-memory Client implementation used in tests and as a
// stand-in runtime. Added units are immediately "active".
type MemoryClient struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewMemoryClient creates an empty in-memory runtime.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{units: make(map[string]Unit)}
}

// Add records the unit as active. Returns ErrAlreadyExists on name clash.
func (c *MemoryClient) Add(ctx context.Context, unit Unit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.units[unit.Name]; exists {
		return ErrAlreadyExists
	}
	unit.ActivationState = ActivationActive
	c.units[unit.Name] = unit
	return nil
}

// Exists reports whether a unit with the given name was added.
func (c *MemoryClient) Exists(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.units[name]
	return exists, nil
}

// Remove deletes the unit. Missing units are ignored.
func (c *MemoryClient) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.units, name)
	return nil
}

// List returns all units.
func (c *MemoryClient) List(ctx context.Context) ([]Unit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	units := make([]Unit, 0, len(c.units))
	for _, unit := range c.units {
		units = append(units, unit)
	}
	return units, nil
}
