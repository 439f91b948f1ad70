package agent

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Catalog is the named set of agents available for selection
type Catalog struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string
}

// NewCatalog creates a catalog; names must be unique and non-empty
func NewCatalog(agents ...*Agent) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(agents); err != nil {
		return nil, err
	}
	return c, nil
}

func index(agents []*Agent) (map[string]*Agent, []string, error) {
	byName := make(map[string]*Agent, len(agents))
	order := make([]string, 0, len(agents))
	for _, a := range agents {
		if a == nil || a.Name == "" {
			return nil, nil, fmt.Errorf("agent name cannot be empty")
		}
		if _, dup := byName[a.Name]; dup {
			return nil, nil, fmt.Errorf("duplicate agent name: %s", a.Name)
		}
		byName[a.Name] = a
		order = append(order, a.Name)
	}
	return byName, order, nil
}

// Get looks an agent up by exact name
func (c *Catalog) Get(name string) (*Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[name]
	return a, ok
}

// List returns agents in registration order
func (c *Catalog) List() []*Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Agent, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.agents[name])
	}
	return out
}

// Names returns agent names in registration order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of agents
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Replace swaps the catalog contents atomically. Agents already handed out
// stay usable; their toolsets are not closed.
func (c *Catalog) Replace(agents []*Agent) error {
	byName, order, err := index(agents)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.agents = byName
	c.order = order
	c.mu.Unlock()

	log.Debug().Strs("agents", order).Msg("Agent catalog updated")
	return nil
}

// Close releases the toolsets of every agent in the catalog
func (c *Catalog) Close() error {
	for _, a := range c.List() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Str("agent", a.Name).Msg("Failed to close agent toolsets")
		}
	}
	return nil
}
