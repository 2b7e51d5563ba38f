// Package dedup ensures a repeatable engagement action is counted at most
// once per session.
//
// The motivating case: the user hits "copy" on the same snippet five times
// in a row. The clipboard write happens five times, but the remote
// copy-counter bump must fire once. The tracker remembers which snippet ids
// have already been recorded within the current session scope.
//
// THE ATOMICITY RULE:
// ShouldRecord is a single check-and-mark. It must not be split into
// "check, go do the remote call, then mark" — two near-simultaneous calls
// for the same id would both see "not yet recorded" and both fire the RPC.
// Marking first means a failure of the subsequent RPC under-counts (the id
// is burned for this session), which the design accepts; double-counting
// from the same session is the thing that must never happen.
package dedup

import "sync"

// Scope is a session-lifetime set of consumed keys. Its lifetime defines
// the dedup window: a MemoryScope lasts for one process, a SQLiteScope for
// as long as its backing file survives.
//
// Implementations do not need to be goroutine-safe; the Tracker serializes
// access.
type Scope interface {
	Contains(key string) (bool, error)
	Put(key string) error
}

// Tracker gates side-effecting engagement actions on a Scope.
type Tracker struct {
	mu    sync.Mutex
	scope Scope
}

// NewTracker creates a Tracker over the given scope.
func NewTracker(scope Scope) *Tracker {
	return &Tracker{scope: scope}
}

// ShouldRecord reports whether the action for id has not been recorded yet
// in this session, marking it consumed in the same critical section. It
// returns true exactly once per id per scope lifetime.
//
// A scope read error is treated as "already recorded": when the tracker
// cannot tell, suppressing the action is the safe side, because the
// counter must never be bumped twice.
func (t *Tracker) ShouldRecord(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen, err := t.scope.Contains(id)
	if err != nil || seen {
		return false
	}
	if err := t.scope.Put(id); err != nil {
		return false
	}
	return true
}

// MemoryScope is the in-process scope: cleared when the process exits,
// which matches "one client session" for a freshly started client.
type MemoryScope struct {
	keys map[string]struct{}
}

var _ Scope = (*MemoryScope)(nil)

// NewMemoryScope creates an empty in-memory scope.
func NewMemoryScope() *MemoryScope {
	return &MemoryScope{keys: make(map[string]struct{})}
}

func (m *MemoryScope) Contains(key string) (bool, error) {
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemoryScope) Put(key string) error {
	m.keys[key] = struct{}{}
	return nil
}
