package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TokenCollection defines the interface for the revoked-token list
type TokenCollection interface {
	RevokeToken(ctx context.Context, token string) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
}

// MongoTokenCollection implements TokenCollection for MongoDB. Entries expire
// via the TTL index created in EnsureIndexes.
type MongoTokenCollection struct {
	Collection *mongo.Collection
}

// RevokeToken adds a refresh token to the revoked list
func (c *MongoTokenCollection) RevokeToken(ctx context.Context, token string) error {
	_, err := c.Collection.InsertOne(ctx, models.RevokedToken{
		Token:     token,
		CreatedAt: time.Now(),
	})
	return err
}

// IsTokenRevoked reports whether a refresh token has been revoked
func (c *MongoTokenCollection) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	err := c.Collection.FindOne(ctx, bson.M{"token": token}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
