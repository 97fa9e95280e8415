package subscription

import (
	"context"
	"sync"

	"github.com/dmitrymomot/studykit/svc/plan"
)

// MemoryStore is a Store for tests. InTx holds a single global lock and
// discards writes when fn fails.
type MemoryStore struct {
	mu     sync.Mutex
	owners map[string]Owner
}

func NewMemoryStore(owners ...Owner) *MemoryStore {
	m := &MemoryStore{owners: make(map[string]Owner, len(owners))}
	for _, o := range owners {
		m.owners[o.UserID] = o
	}
	return m
}

func (m *MemoryStore) Get(userID string) (Owner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[userID]
	return o, ok
}

func (m *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, pending: make(map[string]plan.Subscription)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, sub := range tx.pending {
		o := m.owners[id]
		o.Subscription = sub
		m.owners[id] = o
	}
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	pending map[string]plan.Subscription
}

func (t *memoryTx) LockByUserID(_ context.Context, userID string) (Owner, error) {
	o, ok := t.store.owners[userID]
	if !ok {
		return Owner{}, ErrUserNotFound
	}
	return o, nil
}

func (t *memoryTx) LockBySubscriptionRef(_ context.Context, ref string) (Owner, error) {
	for _, o := range t.store.owners {
		if o.Subscription.SubscriptionRef == ref {
			return o, nil
		}
	}
	return Owner{}, ErrUserNotFound
}

func (t *memoryTx) Save(_ context.Context, userID string, sub plan.Subscription) error {
	if _, ok := t.store.owners[userID]; !ok {
		return ErrUserNotFound
	}
	t.pending[userID] = sub
	return nil
}
