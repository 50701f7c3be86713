package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Templates struct {
	coll *mongo.Collection
}

func (r *Templates) Create(ctx context.Context, t *Template) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := r.coll.InsertOne(ctx, t)
	if err != nil {
		return fmt.Errorf("templates: insert: %w", err)
	}
	t.ID = insertedID(res)
	return nil
}

func (r *Templates) ByID(ctx context.Context, userID, id string) (*Template, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var t Template
	if err := findOne(ctx, r.coll, bson.D{{Key: "_id", Value: oid}, {Key: "user_id", Value: userID}}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the user's active templates, newest first.
func (r *Templates) List(ctx context.Context, userID string) ([]Template, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "is_active", Value: true}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("templates: find: %w", err)
	}
	out := []Template{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("templates: decode: %w", err)
	}
	return out, nil
}

func (r *Templates) Deactivate(ctx context.Context, userID, id string) error {
	return updateOwned(ctx, r.coll, userID, id, bson.D{
		{Key: "is_active", Value: false},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *Templates) CountActive(ctx context.Context, userID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "user_id", Value: userID}, {Key: "is_active", Value: true}})
	if err != nil {
		return 0, fmt.Errorf("templates: count: %w", err)
	}
	return n, nil
}

type Senders struct {
	coll *mongo.Collection
}

func (r *Senders) Create(ctx context.Context, s *Sender) error {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	res, err := r.coll.InsertOne(ctx, s)
	if err != nil {
		return fmt.Errorf("senders: insert: %w", err)
	}
	s.ID = insertedID(res)
	return nil
}

func (r *Senders) ByID(ctx context.Context, userID, id string) (*Sender, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var s Sender
	if err := findOne(ctx, r.coll, bson.D{{Key: "_id", Value: oid}, {Key: "user_id", Value: userID}}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ByEmail finds a non-deleted sender with the given address.
func (r *Senders) ByEmail(ctx context.Context, userID, email string) (*Sender, error) {
	var s Sender
	err := findOne(ctx, r.coll, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "email", Value: email},
		{Key: "verification_status", Value: bson.D{{Key: "$ne", Value: SenderDeleted}}},
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the user's non-deleted senders.
func (r *Senders) List(ctx context.Context, userID string) ([]Sender, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "verification_status", Value: bson.D{{Key: "$ne", Value: SenderDeleted}}},
		},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("senders: find: %w", err)
	}
	out := []Sender{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("senders: decode: %w", err)
	}
	return out, nil
}

func (r *Senders) SetStatus(ctx context.Context, userID, id, status string) error {
	return updateOwned(ctx, r.coll, userID, id, bson.D{
		{Key: "verification_status", Value: status},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

// CountInUse counts senders that are not deleted.
func (r *Senders) CountInUse(ctx context.Context, userID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "verification_status", Value: bson.D{{Key: "$ne", Value: SenderDeleted}}},
	})
	if err != nil {
		return 0, fmt.Errorf("senders: count: %w", err)
	}
	return n, nil
}

type Files struct {
	coll *mongo.Collection
}

func (r *Files) Create(ctx context.Context, f *ContactFile) error {
	f.CreatedAt = time.Now().UTC()
	f.RowCount = len(f.Contacts)
	res, err := r.coll.InsertOne(ctx, f)
	if err != nil {
		return fmt.Errorf("files: insert: %w", err)
	}
	f.ID = insertedID(res)
	return nil
}

// ByID returns the file including its parsed contacts.
func (r *Files) ByID(ctx context.Context, userID, id string) (*ContactFile, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var f ContactFile
	if err := findOne(ctx, r.coll, bson.D{{Key: "_id", Value: oid}, {Key: "user_id", Value: userID}}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// List returns file metadata without the contact rows, newest first.
func (r *Files) List(ctx context.Context, userID string) ([]ContactFile, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetProjection(bson.D{{Key: "contacts", Value: 0}}),
	)
	if err != nil {
		return nil, fmt.Errorf("files: find: %w", err)
	}
	out := []ContactFile{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("files: decode: %w", err)
	}
	return out, nil
}

func (r *Files) Delete(ctx context.Context, userID, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "user_id", Value: userID}})
	if err != nil {
		return fmt.Errorf("files: delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type Campaigns struct {
	coll *mongo.Collection
}

func (r *Campaigns) Create(ctx context.Context, c *Campaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	res, err := r.coll.InsertOne(ctx, c)
	if err != nil {
		return fmt.Errorf("campaigns: insert: %w", err)
	}
	c.ID = insertedID(res)
	return nil
}

func (r *Campaigns) ByID(ctx context.Context, userID, id string) (*Campaign, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var c Campaign
	if err := findOne(ctx, r.coll, bson.D{{Key: "_id", Value: oid}, {Key: "user_id", Value: userID}}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the user's campaigns, newest first, capped at limit when positive.
func (r *Campaigns) List(ctx context.Context, userID string, limit int64) ([]Campaign, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("campaigns: find: %w", err)
	}
	out := []Campaign{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("campaigns: decode: %w", err)
	}
	return out, nil
}

// Complete records the terminal counts of a dispatched campaign.
func (r *Campaigns) Complete(ctx context.Context, c *Campaign) error {
	return updateOwned(ctx, r.coll, c.UserID, c.ID.Hex(), bson.D{
		{Key: "status", Value: CampaignCompleted},
		{Key: "total_emails", Value: c.TotalEmails},
		{Key: "successful_sends", Value: c.SuccessfulSends},
		{Key: "failed_sends", Value: c.FailedSends},
		{Key: "end_time", Value: c.EndTime},
		{Key: "duration_seconds", Value: c.DurationSeconds},
		{Key: "updated_at", Value: touched(c)},
	})
}

// Fail marks a campaign that could not be dispatched.
func (r *Campaigns) Fail(ctx context.Context, c *Campaign) error {
	return updateOwned(ctx, r.coll, c.UserID, c.ID.Hex(), bson.D{
		{Key: "status", Value: CampaignFailed},
		{Key: "failure_reason", Value: c.FailureReason},
		{Key: "end_time", Value: c.EndTime},
		{Key: "updated_at", Value: touched(c)},
	})
}

// touched stamps c.UpdatedAt with the current time unless the caller set it.
func touched(c *Campaign) time.Time {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	return c.UpdatedAt
}

func (r *Campaigns) Count(ctx context.Context, userID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return 0, fmt.Errorf("campaigns: count: %w", err)
	}
	return n, nil
}
