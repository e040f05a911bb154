package dispatch

import (
	"container/list"
	"sync"
	"time"

	"github.com/user/parley/internal/types"
)

// Agent is the per-session handler state tracked across runs. Agents hold no
// external resources, so evicting one is a plain drop.
type Agent struct {
	SessionID types.SessionID
	CreatedAt time.Time
	LastUsed  time.Time
	Runs      int
}

// AgentCache is a bounded LRU of per-session agents. When the cache is full,
// the least recently used agent is evicted; a later run for that session
// simply recreates it.
type AgentCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[types.SessionID]*list.Element
}

// NewAgentCache creates an agent cache bounded at capacity entries.
func NewAgentCache(capacity int) *AgentCache {
	if capacity <= 0 {
		capacity = 64
	}
	return &AgentCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[types.SessionID]*list.Element),
	}
}

// GetOrCreate returns the agent for the session, creating it if absent, and
// marks it most recently used.
func (c *AgentCache) GetOrCreate(sessionID types.SessionID) *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[sessionID]; ok {
		c.order.MoveToFront(elem)
		agent := elem.Value.(*Agent)
		agent.LastUsed = time.Now()
		return agent
	}

	agent := &Agent{
		SessionID: sessionID,
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
	}
	c.items[sessionID] = c.order.PushFront(agent)

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*Agent).SessionID)
	}
	return agent
}

// Len returns the number of cached agents.
func (c *AgentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Contains reports whether the session currently has a cached agent.
func (c *AgentCache) Contains(sessionID types.SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[sessionID]
	return ok
}
