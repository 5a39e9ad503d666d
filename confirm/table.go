package confirm

import "sync"

// Table tracks confirmations that await a decision from a remote
// front-end. Entries are resolved at most once and removed on resolution,
// timeout or interruption.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan bool
}

// NewTable creates an empty pending table.
func NewTable() *Table {
	return &Table{pending: make(map[string]chan bool)}
}

// Register creates the wait channel for id. The entry must exist before
// the request is published anywhere, so a response arriving immediately
// still finds it.
func (t *Table) Register(id string) <-chan bool {
	ch := make(chan bool, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

// Resolve delivers a decision to the waiter for id. It reports whether an
// entry was pending; resolving an unknown or already-resolved id is a
// no-op.
func (t *Table) Resolve(id string, approved bool) bool {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	// Buffered channel: the waiter may already have given up, in which
	// case the value is dropped with the channel.
	ch <- approved
	return true
}

// Remove drops a pending entry without resolving it. Used by waiters that
// time out or get interrupted.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Len returns the number of unresolved entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
