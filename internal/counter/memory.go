package counter

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps counters in process memory. Updates of one scope run
// under that scope's mutex; different scopes proceed in parallel.
type MemoryStore struct {
	mu    sync.Mutex // guards locks and data
	locks map[Scope]*sync.Mutex
	data  map[Key]Counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: map[Scope]*sync.Mutex{},
		data:  map[Key]Counter{},
	}
}

func (m *MemoryStore) Update(ctx context.Context, scope Scope, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	l, ok := m.locks[scope]
	if !ok {
		l = &sync.Mutex{}
		m.locks[scope] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: m, scope: scope, staged: map[string]Counter{}}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	for ruleID, c := range tx.staged {
		m.data[scope.Key(ruleID)] = c
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, campaignID string) ([]Entry, error) {
	m.mu.Lock()
	out := make([]Entry, 0)
	for k, c := range m.data {
		if k.CampaignID == campaignID {
			out = append(out, Entry{Key: k, Counter: copyCounter(c)})
		}
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := strings.Compare(a.Key.UserID, b.Key.UserID); c != 0 {
			return c
		}
		return strings.Compare(a.Key.RuleID, b.Key.RuleID)
	})
	return out, nil
}

type memTx struct {
	store  *MemoryStore
	scope  Scope
	staged map[string]Counter
}

func (t *memTx) Get(_ context.Context, ruleID string) (Counter, bool, error) {
	if c, ok := t.staged[ruleID]; ok {
		return copyCounter(c), true, nil
	}
	t.store.mu.Lock()
	c, ok := t.store.data[t.scope.Key(ruleID)]
	t.store.mu.Unlock()
	return copyCounter(c), ok, nil
}

func (t *memTx) Put(ctx context.Context, ruleID string, c Counter) error {
	prev, _, _ := t.Get(ctx, ruleID)
	if err := CheckAdvance(prev, c); err != nil {
		return err
	}
	t.staged[ruleID] = copyCounter(c)
	return nil
}

func copyCounter(c Counter) Counter {
	if c.LastFired != nil {
		v := *c.LastFired
		c.LastFired = &v
	}
	return c
}
