package vm

import (
	"fmt"
	"sync"
)

// DefaultCapacity is the slot capacity of a context when none is configured.
const DefaultCapacity = 1024

// State is the lifecycle state of a Context.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateCompleted
	StateFaulted
)

var stateNames = map[State]string{
	StateInitialized: "Initialized",
	StateRunning:     "Running",
	StateCompleted:   "Completed",
	StateFaulted:     "Faulted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

type slot struct {
	val  Value
	gen  uint32
	live bool
}

// Context is the memory region backing one execution strand.
// Slots are reserved up front; frames are carved from the top and released
// in LIFO order. A Context must not be used by two goroutines at once,
// except for a shared context, whose slot accesses are locked. Frames of a
// shared context are still carved by one goroutine at a time.
type Context struct {
	slots []slot
	top   int
	state State

	mu *sync.RWMutex // nil unless shared
}

// NewContext reserves a context with the given slot capacity.
func NewContext(capacity int) *Context {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Context{
		slots: make([]slot, capacity),
		state: StateInitialized,
	}
}

// newSharedContext creates a context whose slots may be read and written by
// several strands at once, such as the global context of a program.
func newSharedContext(capacity int) *Context {
	c := NewContext(capacity)
	c.mu = new(sync.RWMutex)
	return c
}

func (c *Context) lock() {
	if c.mu != nil {
		c.mu.Lock()
	}
}

func (c *Context) unlock() {
	if c.mu != nil {
		c.mu.Unlock()
	}
}

func (c *Context) rlock() {
	if c.mu != nil {
		c.mu.RLock()
	}
}

func (c *Context) runlock() {
	if c.mu != nil {
		c.mu.RUnlock()
	}
}

// Capacity returns the number of reserved slots.
func (c *Context) Capacity() int { return len(c.slots) }

// Used returns the number of slots currently held by frames.
func (c *Context) Used() int { return c.top }

// State returns the lifecycle state.
func (c *Context) State() State { return c.state }

// alloc carves n slots from the top of the context.
func (c *Context) alloc(n int) (int, error) {
	if n < 0 || c.top+n > len(c.slots) {
		return 0, NewInsufficientMemoryError(n, len(c.slots)-c.top)
	}
	base := c.top
	c.top += n
	return base, nil
}

// release ends every slot lifetime at or above base and pops them.
func (c *Context) release(base int) {
	for i := base; i < c.top; i++ {
		c.kill(i)
	}
	c.top = base
}

func (c *Context) kill(i int) {
	c.lock()
	defer c.unlock()
	s := &c.slots[i]
	if s.live {
		s.gen++
	}
	s.live = false
	s.val = nil
}

// declare begins a new lifetime for slot i.
func (c *Context) declare(i int, v Value) {
	c.lock()
	defer c.unlock()
	s := &c.slots[i]
	s.gen++
	s.live = true
	s.val = v
}

func (c *Context) set(i int, v Value) {
	c.lock()
	defer c.unlock()
	s := &c.slots[i]
	if !s.live {
		s.gen++
		s.live = true
	}
	s.val = v
}

func (c *Context) get(i int) (Value, bool) {
	c.rlock()
	defer c.runlock()
	s := &c.slots[i]
	return s.val, s.live
}

func (c *Context) ref(i int) Ref {
	c.rlock()
	defer c.runlock()
	return Ref{ctx: c, index: i, gen: c.slots[i].gen}
}

// load reads slot i if it still holds the lifetime gen.
func (c *Context) load(i int, gen uint32) (Value, error) {
	c.rlock()
	defer c.runlock()
	s, err := c.resolve(i, gen)
	if err != nil {
		return nil, err
	}
	return s.val, nil
}

// store writes slot i if it still holds the lifetime gen.
func (c *Context) store(i int, gen uint32, v Value) error {
	c.lock()
	defer c.unlock()
	s, err := c.resolve(i, gen)
	if err != nil {
		return err
	}
	s.val = v
	return nil
}

func (c *Context) resolve(i int, gen uint32) (*slot, error) {
	if i < 0 || i >= len(c.slots) {
		return nil, NewNullReferenceError("reference outside of its context")
	}
	s := &c.slots[i]
	if !s.live || s.gen != gen {
		return nil, NewNullReferenceError("dereferencing a dangling reference")
	}
	return s, nil
}

// unwind drops every frame above floor without running destructors.
func (c *Context) unwind(floor int) {
	c.release(floor)
	c.state = StateFaulted
}
