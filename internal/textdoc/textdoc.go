// Package textdoc defines the shared text document that every entity store
// writes through. The document is the only mutable shared resource: all
// structured state lives embedded in its text, and a transaction commits the
// whole next text as one change.
package textdoc

import "sync"

// Document is the interface consumed by the codec and store layers. The
// production implementation is backed by the collaborative editing layer;
// Memory below is used by the API service and by tests.
type Document interface {
	// Text returns the current full text snapshot.
	Text() string
	// Transact runs fn against a snapshot and commits the result atomically.
	// A transaction that leaves the text unchanged does not notify observers.
	Transact(fn func(tx *Tx))
	// Observe registers a change callback and returns a cancel func.
	Observe(fn func()) func()
}

// Tx accumulates edits against a snapshot of the document text. All edits are
// plain string transformations; the commit replaces the whole text at once so
// a concurrent reader never sees a half-applied state.
type Tx struct {
	text string
}

// Text returns the working text of the transaction.
func (t *Tx) Text() string { return t.text }

// SetText replaces the whole working text.
func (t *Tx) SetText(s string) { t.text = s }

// Splice deletes [start, end) byte range and inserts repl in its place.
// Out-of-range offsets are clamped.
func (t *Tx) Splice(start, end int, repl string) {
	if start < 0 {
		start = 0
	}
	if end > len(t.text) {
		end = len(t.text)
	}
	if start > end {
		start = end
	}
	t.text = t.text[:start] + repl + t.text[end:]
}

// Memory is an in-process Document. Writers serialize on a mutex; observers
// are invoked after commit, outside the lock.
type Memory struct {
	mu        sync.Mutex
	text      string
	observers map[int]func()
	nextObs   int
}

// NewMemory creates a Memory document with the given initial text.
func NewMemory(text string) *Memory {
	return &Memory{text: text, observers: make(map[int]func())}
}

func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

func (m *Memory) Transact(fn func(tx *Tx)) {
	m.mu.Lock()
	tx := &Tx{text: m.text}
	fn(tx)
	changed := tx.text != m.text
	if changed {
		m.text = tx.text
	}
	var fns []func()
	if changed {
		for _, f := range m.observers {
			fns = append(fns, f)
		}
	}
	m.mu.Unlock()

	for _, f := range fns {
		f()
	}
}

func (m *Memory) Observe(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}
