// Package store persists accounts, campaigns and usage records in MongoDB.
//
// Documents use native ObjectIDs for _id. Cross-references such as user_id are
// stored as the hex form of the referenced ObjectID.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	mdb "github.com/kathanp/emailbot/pkg/mongo"
)

// Store groups the repositories over one database.
type Store struct {
	Users            *Users
	BillingCycles    *BillingCycles
	EmailLogs        *EmailLogs
	SubscriptionLogs *SubscriptionLogs
	Templates        *Templates
	Senders          *Senders
	Files            *Files
	Campaigns        *Campaigns
}

type Option func(*Store)

// WithTokenCipher seals Google OAuth tokens before they reach the users collection.
func WithTokenCipher(c TokenCipher) Option {
	return func(s *Store) { s.Users.cipher = c }
}

func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		Users:            &Users{coll: db.Collection(UsersCollection)},
		BillingCycles:    &BillingCycles{coll: db.Collection(BillingCyclesCollection)},
		EmailLogs:        &EmailLogs{coll: db.Collection(EmailLogsCollection)},
		SubscriptionLogs: &SubscriptionLogs{coll: db.Collection(SubscriptionLogsCollection)},
		Templates:        &Templates{coll: db.Collection(TemplatesCollection)},
		Senders:          &Senders{coll: db.Collection(SendersCollection)},
		Files:            &Files{coll: db.Collection(FilesCollection)},
		Campaigns:        &Campaigns{coll: db.Collection(CampaignsCollection)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Indexes lists the indexes the repositories rely on.
func Indexes() []mdb.Index {
	return []mdb.Index{
		{Collection: UsersCollection, Keys: bson.D{{Key: "email", Value: 1}}, Unique: true, Name: "uniq_email"},
		{Collection: UsersCollection, Keys: bson.D{{Key: "google_id", Value: 1}}, Name: "google_id"},
		{Collection: UsersCollection, Keys: bson.D{{Key: "stripe_customer_id", Value: 1}}, Name: "stripe_customer"},
		{Collection: EmailLogsCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "sent_at", Value: 1}}, Name: "user_status_sent_at"},
		{Collection: EmailLogsCollection, Keys: bson.D{{Key: "campaign_id", Value: 1}}, Name: "campaign"},
		{Collection: BillingCyclesCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "period_start", Value: -1}}, Name: "user_period_start"},
		{Collection: SubscriptionLogsCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}, Name: "user_timestamp"},
		{Collection: TemplatesCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_active", Value: 1}}, Name: "user_active"},
		{Collection: SendersCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "verification_status", Value: 1}}, Name: "user_status"},
		{Collection: SendersCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "email", Value: 1}}, Name: "user_email"},
		{Collection: FilesCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}, Name: "user_created_at"},
		{Collection: CampaignsCollection, Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}, Name: "user_created_at"},
	}
}

// EnsureIndexes creates every index from Indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return mdb.EnsureIndexes(ctx, db, Indexes())
}

func objectID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, errors.Join(ErrInvalidID, fmt.Errorf("%q", hex))
	}
	return id, nil
}

// findOne decodes the first match of filter into v, translating a miss into ErrNotFound.
func findOne(ctx context.Context, coll *mongo.Collection, filter bson.D, v any) error {
	err := coll.FindOne(ctx, filter).Decode(v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: find: %w", coll.Name(), err)
	}
	return nil
}

// updateOwned applies $set to the document id owned by userID.
func updateOwned(ctx context.Context, coll *mongo.Collection, userID, id string, set bson.D) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "user_id", Value: userID}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("%s: update: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func insertedID(res *mongo.InsertOneResult) bson.ObjectID {
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		return id
	}
	return bson.NilObjectID
}
