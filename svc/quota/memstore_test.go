package quota_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kathanp/emailbot/svc/store"
)

var errStoreDown = errors.New("store unreachable")

// memStore is an in-memory quota.Store with switchable failures.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*store.User
	cycles    []store.BillingCycle
	subLogs   []store.SubscriptionLog
	sent      map[string][]time.Time
	senders   map[string]int64
	templates map[string]int64
	campaigns map[string]int64

	failUser, failCycles, failCounts, failPlanWrite, failAppend bool
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*store.User{},
		sent:      map[string][]time.Time{},
		senders:   map[string]int64{},
		templates: map[string]int64{},
		campaigns: map[string]int64{},
	}
}

func (m *memStore) addUser(plan string, created time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &store.User{ID: bson.NewObjectID(), Email: "owner@example.com", Plan: plan, CreatedAt: created}
	m.users[u.Key()] = u
	return u.Key()
}

func (m *memStore) addSent(userID string, at time.Time, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range n {
		m.sent[userID] = append(m.sent[userID], at)
	}
}

func (m *memStore) User(_ context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUser {
		return nil, errStoreDown
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdatePlan(_ context.Context, id, plan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlanWrite {
		return errStoreDown
	}
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Plan = plan
	return nil
}

func (m *memStore) LatestCycle(_ context.Context, userID string) (*store.BillingCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCycles {
		return nil, errStoreDown
	}
	var latest *store.BillingCycle
	for i := range m.cycles {
		c := m.cycles[i]
		if c.UserID != userID {
			continue
		}
		if latest == nil || c.PeriodStart.After(latest.PeriodStart) {
			latest = &c
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) AppendCycle(_ context.Context, c *store.BillingCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return errStoreDown
	}
	m.cycles = append(m.cycles, *c)
	return nil
}

func (m *memStore) AppendSubscriptionLog(_ context.Context, l *store.SubscriptionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return errStoreDown
	}
	m.subLogs = append(m.subLogs, *l)
	return nil
}

func (m *memStore) CountSentEmails(_ context.Context, userID string, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCounts {
		return 0, errStoreDown
	}
	var n int64
	for _, at := range m.sent[userID] {
		if !at.Before(start) && at.Before(end) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountSenders(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCounts {
		return 0, errStoreDown
	}
	return m.senders[userID], nil
}

func (m *memStore) CountActiveTemplates(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCounts {
		return 0, errStoreDown
	}
	return m.templates[userID], nil
}

func (m *memStore) CountCampaigns(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCounts {
		return 0, errStoreDown
	}
	return m.campaigns[userID], nil
}

func (m *memStore) planOf(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].Plan
}

func (m *memStore) cyclesOf(userID string) []store.BillingCycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(m.cycles), func(c store.BillingCycle) bool { return c.UserID != userID })
}
