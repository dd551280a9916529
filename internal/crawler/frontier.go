package crawler

import "sync"

// Frontier is the deduplicated set of paths to visit. Seeds form the first
// round; every later round is the set of paths first discovered during the
// previous one. A path is scheduled at most once per run.
type Frontier struct {
	mu sync.Mutex

	seeds   []string
	seedSet map[string]struct{}

	discovered map[string]struct{}

	pending    []string
	pendingSet map[string]struct{}
}

// NewFrontier creates a frontier whose first round is seeds, with
// duplicates removed and order kept.
func NewFrontier(seeds []string) *Frontier {
	f := &Frontier{
		seedSet:    make(map[string]struct{}, len(seeds)),
		discovered: make(map[string]struct{}),
		pendingSet: make(map[string]struct{}),
	}
	for _, s := range seeds {
		if _, dup := f.seedSet[s]; dup {
			continue
		}
		f.seedSet[s] = struct{}{}
		f.seeds = append(f.seeds, s)
	}
	return f
}

// Seeds returns the seed round
func (f *Frontier) Seeds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seeds...)
}

// PushIfNew schedules path for the next round unless it is a seed, was
// discovered before, or is already pending. It reports whether path was added.
func (f *Frontier) PushIfNew(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seedSet[path]; ok {
		return false
	}
	if f.seen(path) {
		return false
	}
	if _, ok := f.pendingSet[path]; ok {
		return false
	}

	f.markLocked(path)
	f.pending = append(f.pending, path)
	f.pendingSet[path] = struct{}{}
	return true
}

// NextRound drains and returns the pending paths. An empty result means the
// crawl is exhausted.
func (f *Frontier) NextRound() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	round := f.pending
	f.pending = nil
	f.pendingSet = make(map[string]struct{})
	return round
}

// Mark records path as discovered without scheduling it
func (f *Frontier) Mark(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markLocked(path)
}

// Discovered reports whether path was ever discovered or marked
func (f *Frontier) Discovered(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen(path)
}

// DiscoveredCount returns the size of the discovered set
func (f *Frontier) DiscoveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.discovered)
}

// Pending returns the number of paths waiting for the next round
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Frontier) seen(path string) bool {
	_, ok := f.discovered[path]
	return ok
}

func (f *Frontier) markLocked(path string) {
	f.discovered[path] = struct{}{}
}
