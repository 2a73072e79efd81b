package launcher

import "math/rand/v2"

// WorkerContext is the per-worker state used while launching packets. It
// owns the packet random stream and one cache slot per source. A context
// must only ever be used by a single goroutine.
type WorkerContext struct {
	system     *SourceSystem
	stream     packetStream
	generation uint64
	slots      []CacheSlot
	current    int

	hits   uint64
	misses uint64
}

func newWorkerContext(system *SourceSystem) *WorkerContext {
	wc := &WorkerContext{
		system: system,
		stream: newPacketStream(),
		slots:  make([]CacheSlot, len(system.sources)),
	}
	for i := range wc.slots {
		wc.slots[i].owner = wc
	}
	return wc
}

// Rand returns the random generator for the packet being launched. It is
// reseeded from the history index before every launch.
func (wc *WorkerContext) Rand() *rand.Rand {
	return wc.stream.rng
}

// Slot returns the cache slot of the source currently launching
func (wc *WorkerContext) Slot() *CacheSlot {
	return &wc.slots[wc.current]
}

// CacheHits returns the number of successful cache lookups
func (wc *WorkerContext) CacheHits() uint64 { return wc.hits }

// CacheMisses returns the number of cache lookups that required a rebuild
func (wc *WorkerContext) CacheMisses() uint64 { return wc.misses }

// begin prepares the context for launching historyIndex from source s
func (wc *WorkerContext) begin(seed, historyIndex uint64, s int, generation uint64) {
	wc.stream.reseed(seed, historyIndex)
	wc.current = s
	wc.generation = generation
}

// CacheSlot holds the sampling structure of one subcomponent of a source.
// Entries expire when a new emission segment starts.
type CacheSlot struct {
	owner      *WorkerContext
	valid      bool
	generation uint64
	component  int
	value      any
}

// Lookup returns the value stored for component during the current segment
func (c *CacheSlot) Lookup(component int) (any, bool) {
	if c.valid && c.component == component && c.generation == c.owner.generation {
		c.owner.hits++
		return c.value, true
	}
	c.owner.misses++
	return nil, false
}

// Store replaces the slot contents, releasing the previous component's value
func (c *CacheSlot) Store(component int, value any) {
	c.valid = true
	c.generation = c.owner.generation
	c.component = component
	c.value = value
}
