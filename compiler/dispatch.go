package compiler

import (
	"errors"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Dispatch: handler tables keyed by kind tuples
// ---------------------------------------------------------------------------

// ErrNoHandler is returned by Resolve when neither a handler nor a default is
// available.
var ErrNoHandler = errors.New("no handler")

// Signature is a registered kind tuple.
type Signature []Kind

func (s Signature) key() string {
	parts := make([]string, len(s))
	for i, k := range s {
		parts[i] = string(k)
	}
	return strings.Join(parts, "\x00")
}

// compatible reports whether every live kind is a sub-kind of the stored one.
func (s Signature) compatible(live []Kind) bool {
	if len(s) != len(live) {
		return false
	}
	for i, k := range live {
		if !k.IsA(s[i]) {
			return false
		}
	}
	return true
}

type entry[H any] struct {
	sig     Signature
	handler H
}

// DispatchTable routes a kind tuple to a handler. Lookup order is: exact
// match, first structurally compatible registration (in registration order),
// the parent table, then the nearest default.
//
// Registration must be finished before the first Resolve; registering on a
// table that has resolved panics.
type DispatchTable[H any] struct {
	parent     *DispatchTable[H]
	exact      map[string]int
	entries    []entry[H]
	def        H
	hasDefault bool
	memoize    bool

	mu     sync.RWMutex
	sealed bool
	memo   map[string]H
}

// NewDispatchTable creates an empty table. With memoize set, resolved
// handlers are cached by kind tuple.
func NewDispatchTable[H any](memoize bool) *DispatchTable[H] {
	return &DispatchTable[H]{
		exact:   make(map[string]int),
		memoize: memoize,
	}
}

// Extend creates a child table. The child answers from its own
// registrations first and forwards everything else to t.
func (t *DispatchTable[H]) Extend() *DispatchTable[H] {
	child := NewDispatchTable[H](t.memoize)
	child.parent = t
	return child
}

// Parent returns the table t was extended from, or nil.
func (t *DispatchTable[H]) Parent() *DispatchTable[H] {
	return t.parent
}

// SetDefault sets the fallback handler.
func (t *DispatchTable[H]) SetDefault(h H) {
	t.checkOpen()
	t.def = h
	t.hasDefault = true
}

// Register associates h with each signature. A later registration of an
// identical signature replaces the earlier one.
func (t *DispatchTable[H]) Register(h H, sigs ...Signature) {
	t.checkOpen()
	for _, sig := range sigs {
		k := sig.key()
		if i, ok := t.exact[k]; ok {
			t.entries[i].handler = h
			continue
		}
		t.exact[k] = len(t.entries)
		t.entries = append(t.entries, entry[H]{sig: append(Signature(nil), sig...), handler: h})
	}
}

// On is Register for single-kind signatures.
func (t *DispatchTable[H]) On(h H, kinds ...Kind) {
	sigs := make([]Signature, len(kinds))
	for i, k := range kinds {
		sigs[i] = Signature{k}
	}
	t.Register(h, sigs...)
}

func (t *DispatchTable[H]) checkOpen() {
	t.mu.RLock()
	sealed := t.sealed
	t.mu.RUnlock()
	if sealed {
		panic("compiler: handler registered after dispatch table was used")
	}
}

// Resolve returns the handler for the live kind tuple.
func (t *DispatchTable[H]) Resolve(live ...Kind) (H, error) {
	k := Signature(live).key()

	t.mu.RLock()
	if h, ok := t.memo[k]; ok {
		t.mu.RUnlock()
		return h, nil
	}
	t.mu.RUnlock()

	h, ok := t.lookup(k, live)
	if !ok {
		h, ok = t.fallback()
	}

	for cur := t.parent; cur != nil; cur = cur.parent {
		cur.seal()
	}
	t.mu.Lock()
	t.sealed = true
	if ok && t.memoize {
		if t.memo == nil {
			t.memo = make(map[string]H)
		}
		t.memo[k] = h
	}
	t.mu.Unlock()

	if !ok {
		var zero H
		return zero, ErrNoHandler
	}
	return h, nil
}

func (t *DispatchTable[H]) seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// lookup searches t and its ancestors, ignoring defaults.
func (t *DispatchTable[H]) lookup(k string, live []Kind) (H, bool) {
	if i, ok := t.exact[k]; ok {
		return t.entries[i].handler, true
	}
	for _, e := range t.entries {
		if e.sig.compatible(live) {
			return e.handler, true
		}
	}
	if t.parent != nil {
		return t.parent.lookup(k, live)
	}
	var zero H
	return zero, false
}

// fallback returns the nearest default along the parent chain.
func (t *DispatchTable[H]) fallback() (H, bool) {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.hasDefault {
			return cur.def, true
		}
	}
	var zero H
	return zero, false
}
