package vm

import (
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestContextAllocRelease(t *testing.T) {
	c := NewContext(8)
	if c.Capacity() != 8 || c.Used() != 0 || c.State() != StateInitialized {
		t.Fatalf("fresh context: capacity=%d used=%d state=%s", c.Capacity(), c.Used(), c.State())
	}

	a, err := c.alloc(3)
	if err != nil || a != 0 {
		t.Fatalf("alloc(3) = %d, %v", a, err)
	}
	b, err := c.alloc(5)
	if err != nil || b != 3 {
		t.Fatalf("alloc(5) = %d, %v", b, err)
	}

	_, err = c.alloc(1)
	var rtErr *RuntimeError
	if !errors.As(err, &rtErr) || rtErr.Type != ErrorOutOfMemory {
		t.Fatalf("alloc past capacity = %v, want ErrorOutOfMemory", err)
	}
	if c.Used() != 8 {
		t.Errorf("failed alloc changed Used to %d", c.Used())
	}

	c.release(b)
	if c.Used() != 3 {
		t.Errorf("Used after release = %d, want 3", c.Used())
	}
}

func TestDefaultCapacity(t *testing.T) {
	if got := NewContext(0).Capacity(); got != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", got, DefaultCapacity)
	}
}

func TestRefLifetime(t *testing.T) {
	c := NewContext(4)
	base, _ := c.alloc(2)

	c.declare(base, int32(1))
	r := c.ref(base)
	if v, err := r.Load(); err != nil || v != int32(1) {
		t.Fatalf("Load = %v, %v", v, err)
	}
	if err := r.Store(int32(2)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if v, _ := c.get(base); v != int32(2) {
		t.Errorf("slot = %v, want 2", v)
	}

	c.kill(base)
	if _, err := r.Load(); !isNullReference(err) {
		t.Errorf("Load after the lifetime ended = %v, want null reference", err)
	}

	// a new occupant of the same slot is invisible to old references
	c.declare(base, int32(3))
	if _, err := r.Load(); !isNullReference(err) {
		t.Errorf("Load of a reused slot = %v, want null reference", err)
	}

	c.release(base)
	if v, live := c.get(base); live || v != nil {
		t.Errorf("released slot still holds %v", v)
	}

	var null Ref
	if !null.IsNull() || null.String() != "ref(null)" {
		t.Errorf("zero Ref = %s", null)
	}
	if err := null.Store(int32(1)); !isNullReference(err) {
		t.Errorf("Store through null = %v", err)
	}
}

func TestSharedContextConcurrentAccess(t *testing.T) {
	c := newSharedContext(4)
	c.alloc(2)
	c.declare(0, int32(0))
	r := c.ref(0)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if w%2 == 0 {
					if err := r.Store(int32(i)); err != nil {
						t.Errorf("Store: %v", err)
						return
					}
				} else if _, err := r.Load(); err != nil {
					t.Errorf("Load: %v", err)
					return
				}
				c.set(1, int32(i))
				c.get(1)
			}
		}()
	}
	wg.Wait()

	if c.mu == nil || NewContext(4).mu != nil {
		t.Error("only shared contexts carry a lock")
	}
}

func TestStateString(t *testing.T) {
	names := map[State]string{
		StateInitialized: "Initialized",
		StateRunning:     "Running",
		StateCompleted:   "Completed",
		StateFaulted:     "Faulted",
		State(9):         "State(9)",
	}
	for s, want := range names {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func isNullReference(err error) bool {
	var rtErr *RuntimeError
	return errors.As(err, &rtErr) && rtErr.Type == ErrorNullReference
}

func TestPropertyOnlyLatestLifetimeResolves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("refs from earlier lifetimes of a slot never resolve", prop.ForAll(
		func(lifetimes int) bool {
			c := NewContext(1)
			c.alloc(1)
			refs := make([]Ref, lifetimes)
			for i := range refs {
				c.declare(0, int32(i))
				refs[i] = c.ref(0)
			}
			for i, r := range refs {
				v, err := r.Load()
				if i == lifetimes-1 {
					if err != nil || v != int32(i) {
						return false
					}
				} else if err == nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
	))

	properties.Property("LIFO frames never exceed capacity and release to zero", prop.ForAll(
		func(frames []int) bool {
			c := NewContext(64)
			var bases []int
			for _, n := range frames {
				base, err := c.alloc(n)
				if err != nil {
					if c.Used()+n <= c.Capacity() {
						return false
					}
					break
				}
				if base != c.Used()-n {
					return false
				}
				bases = append(bases, base)
			}
			if c.Used() > c.Capacity() {
				return false
			}
			for i := len(bases) - 1; i >= 0; i-- {
				c.release(bases[i])
			}
			return c.Used() == 0
		},
		gen.SliceOf(gen.IntRange(0, 16)),
	))

	properties.TestingRun(t)
}
