package crawler

// frontier is the FIFO queue of URLs waiting to be explored.
// A URL is queued at most once while it is pending.
//
// Design decision: We explore in insertion order (breadth-first) instead of
// an arbitrary set order because:
//  1. The result set is the same, only the discovery order changes
//  2. Logs and tests become reproducible
type frontier struct {
	queue   []string
	pending map[string]bool
}

// newFrontier creates a frontier holding the given URLs without duplicates.
func newFrontier(urls []string) *frontier {
	f := &frontier{
		queue:   make([]string, 0, len(urls)),
		pending: make(map[string]bool, len(urls)),
	}
	for _, u := range urls {
		f.push(u)
	}
	return f
}

// push appends u unless it is already pending.
func (f *frontier) push(u string) {
	if f.pending[u] {
		return
	}
	f.pending[u] = true
	f.queue = append(f.queue, u)
}

// pop removes and returns the oldest URL. It must not be called on an empty frontier.
func (f *frontier) pop() string {
	u := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.pending, u)
	return u
}

// contains reports whether u is pending.
func (f *frontier) contains(u string) bool {
	return f.pending[u]
}

// len returns the number of pending URLs.
func (f *frontier) len() int {
	return len(f.queue)
}
