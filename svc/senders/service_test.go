package senders_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/oauth2"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/senders"
	"github.com/kathanp/emailbot/svc/store"
)

type memSenders struct {
	mu   sync.Mutex
	rows []*store.Sender
}

func (m *memSenders) Create(_ context.Context, s *store.Sender) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = bson.NewObjectID()
	cp := *s
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memSenders) ByID(_ context.Context, userID, id string) (*store.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID.Hex() == id && r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSenders) ByEmail(_ context.Context, userID, email string) (*store.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.Email == email && r.VerificationStatus != store.SenderDeleted {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSenders) List(_ context.Context, userID string) ([]store.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Sender{}
	for _, r := range m.rows {
		if r.UserID == userID && r.VerificationStatus != store.SenderDeleted {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memSenders) SetStatus(_ context.Context, userID, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID.Hex() == id && r.UserID == userID {
			r.VerificationStatus = status
			return nil
		}
	}
	return store.ErrNotFound
}

type memUsers map[string]*store.User

func (m memUsers) ByID(_ context.Context, id string) (*store.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type fixedQuota struct{ limit quota.ResourceLimit }

func (q fixedQuota) CheckSenderLimit(context.Context, string) quota.ResourceLimit { return q.limit }

var allow = fixedQuota{quota.ResourceLimit{Resource: plans.ResourceSenders, CanAdd: true, Limit: 3, Remaining: 3}}

type fakeSES struct {
	mu       sync.Mutex
	verified map[string]bool
	created  []string
	deleted  []string
	failNew  error
}

func (f *fakeSES) Kind() delivery.Kind { return delivery.KindSES }

func (f *fakeSES) Send(context.Context, string, delivery.Message) (string, error) { return "ses-1", nil }

func (f *fakeSES) VerifyIdentity(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNew != nil {
		return f.failNew
	}
	f.created = append(f.created, email)
	return nil
}

func (f *fakeSES) IdentityVerified(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.verified[email]
	if !ok {
		return false, delivery.ErrIdentityNotFound
	}
	return v, nil
}

func (f *fakeSES) DeleteIdentity(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, email)
	return nil
}

type stubProvider struct{ kind delivery.Kind }

func (p stubProvider) Kind() delivery.Kind { return p.kind }

func (p stubProvider) Send(context.Context, string, delivery.Message) (string, error) { return "id", nil }

const uid = "65f1c0ffee0000000000beef"

func fixture(t *testing.T, q senders.Quota) (*senders.Service, *memSenders, *fakeSES, memUsers) {
	t.Helper()
	st := &memSenders{}
	ses := &fakeSES{verified: map[string]bool{}}
	users := memUsers{uid: {
		Email:       "owner@example.com",
		GoogleEmail: "Owner@Gmail.com",
		GoogleToken: &store.GoogleToken{AccessToken: "at", RefreshToken: "rt"},
	}}
	gmail := func(_ context.Context, tok *oauth2.Token) (delivery.Provider, error) {
		if tok.RefreshToken != "rt" {
			return nil, errors.New("bad token")
		}
		return stubProvider{kind: delivery.KindGmail}, nil
	}
	svc := senders.New(st, users, q,
		senders.WithSES(ses),
		senders.WithGmail(gmail),
		senders.WithProvider(stubProvider{kind: delivery.KindSMTP}),
	)
	return svc, st, ses, users
}

func TestAdd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ses sender starts pending", func(t *testing.T) {
		t.Parallel()
		svc, _, ses, _ := fixture(t, allow)

		s, err := svc.Add(ctx, uid, senders.AddRequest{Email: " News <News@Example.com> ", Provider: "SES"})
		require.NoError(t, err)
		assert.Equal(t, "news@example.com", s.Email)
		assert.Equal(t, store.SenderPending, s.VerificationStatus)
		assert.Equal(t, []string{"news@example.com"}, ses.created)
	})

	t.Run("smtp sender is verified", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := fixture(t, allow)

		s, err := svc.Add(ctx, uid, senders.AddRequest{Email: "ops@example.com", Provider: "smtp"})
		require.NoError(t, err)
		assert.Equal(t, store.SenderVerified, s.VerificationStatus)
	})

	t.Run("gmail must match linked account", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := fixture(t, allow)

		s, err := svc.Add(ctx, uid, senders.AddRequest{Email: "owner@gmail.com", Provider: "gmail"})
		require.NoError(t, err)
		assert.Equal(t, store.SenderVerified, s.VerificationStatus)

		_, err = svc.Add(ctx, uid, senders.AddRequest{Email: "other@gmail.com", Provider: "gmail"})
		assert.ErrorIs(t, err, senders.ErrGmailMismatch)
	})

	t.Run("gmail without linked account", func(t *testing.T) {
		t.Parallel()
		svc, _, _, users := fixture(t, allow)
		users[uid].GoogleToken = nil

		_, err := svc.Add(ctx, uid, senders.AddRequest{Email: "owner@gmail.com", Provider: "gmail"})
		assert.ErrorIs(t, err, senders.ErrGmailNotLinked)
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := fixture(t, allow)

		_, err := svc.Add(ctx, uid, senders.AddRequest{Email: "ops@example.com", Provider: "smtp"})
		require.NoError(t, err)
		_, err = svc.Add(ctx, uid, senders.AddRequest{Email: "OPS@example.com", Provider: "smtp"})
		assert.ErrorIs(t, err, senders.ErrDuplicateSender)
	})

	t.Run("limit reached", func(t *testing.T) {
		t.Parallel()
		full := fixedQuota{quota.ResourceLimit{Resource: plans.ResourceSenders, Current: 1, Limit: 1, Plan: "free"}}
		svc, st, _, _ := fixture(t, full)

		_, err := svc.Add(ctx, uid, senders.AddRequest{Email: "ops@example.com", Provider: "smtp"})
		require.ErrorIs(t, err, quota.ErrLimitReached)
		assert.Empty(t, st.rows)
	})

	t.Run("input errors", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := fixture(t, allow)

		_, err := svc.Add(ctx, uid, senders.AddRequest{Email: "not-an-email", Provider: "smtp"})
		assert.ErrorIs(t, err, senders.ErrInvalidEmail)

		_, err = svc.Add(ctx, uid, senders.AddRequest{Email: "a@b.io", Provider: "pigeon"})
		assert.ErrorIs(t, err, delivery.ErrUnknownKind)

		_, err = svc.Add(ctx, uid, senders.AddRequest{Email: "a@b.io", Provider: "postmark"})
		assert.ErrorIs(t, err, senders.ErrProviderUnavailable)
	})

	t.Run("ses registration failure", func(t *testing.T) {
		t.Parallel()
		svc, st, ses, _ := fixture(t, allow)
		ses.failNew = errors.New("throttled")

		_, err := svc.Add(ctx, uid, senders.AddRequest{Email: "news@example.com", Provider: "ses"})
		assert.ErrorIs(t, err, senders.ErrVerificationFailed)
		assert.Empty(t, st.rows)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, ses, _ := fixture(t, allow)

	pending, err := svc.Add(ctx, uid, senders.AddRequest{Email: "news@example.com", Provider: "ses"})
	require.NoError(t, err)
	id := pending.ID.Hex()

	ses.verified["news@example.com"] = false
	s, err := svc.Refresh(ctx, uid, id)
	require.NoError(t, err)
	assert.Equal(t, store.SenderPending, s.VerificationStatus)

	ses.verified["news@example.com"] = true
	s, err = svc.Refresh(ctx, uid, id)
	require.NoError(t, err)
	assert.Equal(t, store.SenderVerified, s.VerificationStatus)

	lost, err := svc.Add(ctx, uid, senders.AddRequest{Email: "gone@example.com", Provider: "ses"})
	require.NoError(t, err)
	s, err = svc.Refresh(ctx, uid, lost.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, store.SenderFailed, s.VerificationStatus)

	_, err = svc.Refresh(ctx, uid, bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, senders.ErrSenderNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, ses, _ := fixture(t, allow)

	s, err := svc.Add(ctx, uid, senders.AddRequest{Email: "news@example.com", Provider: "ses"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, uid, s.ID.Hex()))
	assert.Equal(t, []string{"news@example.com"}, ses.deleted)

	list, err := svc.List(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, svc.Delete(ctx, uid, s.ID.Hex()), senders.ErrSenderNotFound)

	_, err = svc.Add(ctx, uid, senders.AddRequest{Email: "news@example.com", Provider: "ses"})
	assert.NoError(t, err)
}

func TestProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _, users := fixture(t, allow)
	user := users[uid]

	p, err := svc.Provider(ctx, user, &store.Sender{Provider: "ses", VerificationStatus: store.SenderVerified})
	require.NoError(t, err)
	assert.Equal(t, delivery.KindSES, p.Kind())

	p, err = svc.Provider(ctx, user, &store.Sender{Provider: "gmail", VerificationStatus: store.SenderVerified})
	require.NoError(t, err)
	assert.Equal(t, delivery.KindGmail, p.Kind())

	p, err = svc.Provider(ctx, user, &store.Sender{Provider: "smtp", VerificationStatus: store.SenderVerified})
	require.NoError(t, err)
	assert.Equal(t, delivery.KindSMTP, p.Kind())

	_, err = svc.Provider(ctx, user, &store.Sender{Provider: "ses", VerificationStatus: store.SenderPending})
	assert.ErrorIs(t, err, senders.ErrNotVerified)

	_, err = svc.Provider(ctx, user, &store.Sender{Provider: "dev", VerificationStatus: store.SenderVerified})
	assert.ErrorIs(t, err, senders.ErrProviderUnavailable)

	assert.Equal(t, []delivery.Kind{delivery.KindSES, delivery.KindGmail, delivery.KindSMTP}, svc.Kinds())
}
