package sim

import "sync"

// IDAllocator hands out entity identifiers. Identifiers must be unique for
// the lifetime of a simulation and are never reused.
type IDAllocator interface {
	NextID() int
}

// Counter is a monotonic IDAllocator safe for concurrent use.
type Counter struct {
	mu   sync.Mutex
	next int
}

// NewCounter returns a counter whose first identifier is start.
func NewCounter(start int) *Counter {
	return &Counter{next: start}
}

// NextID returns the current value and advances the counter.
func (c *Counter) NextID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}

// Peek returns the identifier the next call to NextID will hand out.
func (c *Counter) Peek() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Observe moves the counter past id so restored entities keep unique ids.
func (c *Counter) Observe(id int) {
	c.mu.Lock()
	if id >= c.next {
		c.next = id + 1
	}
	c.mu.Unlock()
}

type idObserver interface {
	Observe(id int)
}
