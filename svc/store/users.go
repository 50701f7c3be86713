package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TokenCipher encrypts OAuth tokens at rest, scoped to the owning user.
type TokenCipher interface {
	Seal(scope, plaintext string) (string, error)
	Open(scope, value string) (string, error)
}

type Users struct {
	coll   *mongo.Collection
	cipher TokenCipher
}

// Create inserts u and fills in its ID. A taken email yields ErrDuplicate.
func (r *Users) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.ID = bson.NilObjectID

	res, err := r.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("users: insert: %w", err)
	}
	u.ID = insertedID(res)
	return nil
}

func (r *Users) ByID(ctx context.Context, id string) (*User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *Users) ByEmail(ctx context.Context, email string) (*User, error) {
	return r.find(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *Users) ByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return r.find(ctx, bson.D{{Key: "google_id", Value: googleID}})
}

func (r *Users) ByStripeCustomer(ctx context.Context, customerID string) (*User, error) {
	return r.find(ctx, bson.D{{Key: "stripe_customer_id", Value: customerID}})
}

func (r *Users) find(ctx context.Context, filter bson.D) (*User, error) {
	var u User
	if err := findOne(ctx, r.coll, filter, &u); err != nil {
		return nil, err
	}
	if r.cipher != nil && u.GoogleToken != nil {
		tok, err := u.GoogleToken.Opened(r.cipher, u.Key())
		if err != nil {
			return nil, fmt.Errorf("users: open google token: %w", err)
		}
		u.GoogleToken = tok
	}
	return &u, nil
}

func (r *Users) set(ctx context.Context, id string, set bson.D) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	set = append(set, bson.E{Key: "updated_at", Value: time.Now().UTC()})
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("users: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Users) UpdatePlan(ctx context.Context, id, plan string) error {
	return r.set(ctx, id, bson.D{{Key: "plan", Value: plan}})
}

func (r *Users) SetStripeCustomer(ctx context.Context, id, customerID string) error {
	return r.set(ctx, id, bson.D{{Key: "stripe_customer_id", Value: customerID}})
}

func (r *Users) SetStripeSubscription(ctx context.Context, id, subscriptionID string) error {
	return r.set(ctx, id, bson.D{{Key: "stripe_subscription_id", Value: subscriptionID}})
}

// LinkGoogle stores the Google identity and OAuth grant on the account.
// The grant is sealed first when a TokenCipher is configured.
func (r *Users) LinkGoogle(ctx context.Context, id, googleID, googleEmail string, tok *GoogleToken) error {
	if r.cipher != nil && tok != nil {
		sealed, err := tok.Sealed(r.cipher, id)
		if err != nil {
			return fmt.Errorf("users: seal google token: %w", err)
		}
		tok = sealed
	}
	return r.set(ctx, id, bson.D{
		{Key: "google_id", Value: googleID},
		{Key: "google_email", Value: googleEmail},
		{Key: "google_token", Value: tok},
	})
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
