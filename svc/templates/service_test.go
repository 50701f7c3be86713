package templates_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/store"
	"github.com/kathanp/emailbot/svc/templates"
)

type memTemplates struct {
	rows map[string]*store.Template
}

func (m *memTemplates) Create(_ context.Context, t *store.Template) error {
	t.ID = bson.NewObjectID()
	cp := *t
	m.rows[t.ID.Hex()] = &cp
	return nil
}

func (m *memTemplates) ByID(_ context.Context, userID, id string) (*store.Template, error) {
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, store.ErrInvalidID
	}
	t, ok := m.rows[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) List(_ context.Context, userID string) ([]store.Template, error) {
	out := []store.Template{}
	for _, t := range m.rows {
		if t.UserID == userID && t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTemplates) Deactivate(_ context.Context, userID, id string) error {
	t, ok := m.rows[id]
	if !ok || t.UserID != userID {
		return store.ErrNotFound
	}
	t.IsActive = false
	return nil
}

type memFiles map[string]*store.ContactFile

func (m memFiles) ByID(_ context.Context, userID, id string) (*store.ContactFile, error) {
	f, ok := m[id]
	if !ok || f.UserID != userID {
		return nil, store.ErrNotFound
	}
	return f, nil
}

type templateQuota struct{ canAdd bool }

func (q templateQuota) CheckTemplateLimit(context.Context, string) quota.ResourceLimit {
	return quota.ResourceLimit{Resource: plans.ResourceTemplates, CanAdd: q.canAdd, Current: 3, Limit: 3, Plan: "free"}
}

const uid = "65f1c0ffee0000000000beef"

func TestCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &memTemplates{rows: map[string]*store.Template{}}
	svc := templates.New(st, memFiles{}, templateQuota{canAdd: true}, nil)

	tpl, err := svc.Create(ctx, uid, templates.CreateRequest{
		Name:    " Welcome ",
		Subject: "Hi {FIRST_NAME}",
		Body:    "Your code is {CODE}. Thanks, {FIRST_NAME}. {lower} stays.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", tpl.Name)
	assert.True(t, tpl.IsActive)
	assert.Equal(t, []string{"CODE", "FIRST_NAME"}, tpl.Variables)

	got, err := svc.Get(ctx, uid, tpl.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, tpl.Subject, got.Subject)

	_, err = svc.Create(ctx, uid, templates.CreateRequest{Name: "x", Subject: " ", Body: "b"})
	assert.ErrorIs(t, err, templates.ErrEmptyTemplate)
}

func TestCreateLimitReached(t *testing.T) {
	t.Parallel()

	st := &memTemplates{rows: map[string]*store.Template{}}
	svc := templates.New(st, memFiles{}, templateQuota{canAdd: false}, nil)

	_, err := svc.Create(context.Background(), uid, templates.CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.ErrorIs(t, err, quota.ErrLimitReached)
	assert.Empty(t, st.rows)
}

func TestDeactivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &memTemplates{rows: map[string]*store.Template{}}
	svc := templates.New(st, memFiles{}, templateQuota{canAdd: true}, nil)

	tpl, err := svc.Create(ctx, uid, templates.CreateRequest{Name: "n", Subject: "s", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, uid, tpl.ID.Hex()))
	_, err = svc.Get(ctx, uid, tpl.ID.Hex())
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, uid, tpl.ID.Hex()), templates.ErrTemplateNotFound)

	list, err := svc.List(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, uid, "not-hex")
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
}

func TestValidateAgainstFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &memTemplates{rows: map[string]*store.Template{}}
	fileID := bson.NewObjectID().Hex()
	files := memFiles{fileID: {UserID: uid, Columns: []string{"email", "First_Name"}}}
	svc := templates.New(st, files, templateQuota{canAdd: true}, nil)

	tpl, err := svc.Create(ctx, uid, templates.CreateRequest{
		Name: "n", Subject: "Hello {FIRST_NAME}", Body: "Your company {COMPANY}",
	})
	require.NoError(t, err)

	res, err := svc.ValidateAgainstFile(ctx, uid, tpl.ID.Hex(), fileID)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"COMPANY"}, res.Missing)
	assert.Equal(t, []string{"FIRST_NAME"}, res.Available)

	_, err = svc.ValidateAgainstFile(ctx, uid, tpl.ID.Hex(), bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, templates.ErrFileNotFound)
}
