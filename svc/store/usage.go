package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type BillingCycles struct {
	coll *mongo.Collection
}

// Latest returns the cycle with the greatest period_start for the user.
func (r *BillingCycles) Latest(ctx context.Context, userID string) (*BillingCycle, error) {
	var c BillingCycle
	err := r.coll.FindOne(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		options.FindOne().SetSort(bson.D{{Key: "period_start", Value: -1}}),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing_cycles: find latest: %w", err)
	}
	return &c, nil
}

func (r *BillingCycles) Append(ctx context.Context, c *BillingCycle) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := r.coll.InsertOne(ctx, c)
	if err != nil {
		return fmt.Errorf("billing_cycles: insert: %w", err)
	}
	c.ID = insertedID(res)
	return nil
}

type EmailLogs struct {
	coll *mongo.Collection
}

// CountSent counts successful sends with sent_at in [start, end).
func (r *EmailLogs) CountSent(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "status", Value: EmailStatusSent},
		{Key: "sent_at", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lt", Value: end}}},
	})
	if err != nil {
		return 0, fmt.Errorf("email_logs: count: %w", err)
	}
	return n, nil
}

func (r *EmailLogs) InsertMany(ctx context.Context, logs []EmailLog) error {
	if len(logs) == 0 {
		return nil
	}
	docs := make([]any, len(logs))
	for i := range logs {
		docs[i] = logs[i]
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("email_logs: insert: %w", err)
	}
	return nil
}

// ByCampaign returns the log records of one campaign.
func (r *EmailLogs) ByCampaign(ctx context.Context, userID, campaignID string) ([]EmailLog, error) {
	cur, err := r.coll.Find(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "campaign_id", Value: campaignID},
	})
	if err != nil {
		return nil, fmt.Errorf("email_logs: find: %w", err)
	}
	out := []EmailLog{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("email_logs: decode: %w", err)
	}
	return out, nil
}

type SubscriptionLogs struct {
	coll *mongo.Collection
}

func (r *SubscriptionLogs) Append(ctx context.Context, l *SubscriptionLog) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	res, err := r.coll.InsertOne(ctx, l)
	if err != nil {
		return fmt.Errorf("subscription_logs: insert: %w", err)
	}
	l.ID = insertedID(res)
	return nil
}

// List returns the user's plan changes, newest first.
func (r *SubscriptionLogs) List(ctx context.Context, userID string) ([]SubscriptionLog, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("subscription_logs: find: %w", err)
	}
	out := []SubscriptionLog{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("subscription_logs: decode: %w", err)
	}
	return out, nil
}
