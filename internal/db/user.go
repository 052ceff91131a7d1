package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by find operations when no document matches.
var ErrNotFound = errors.New("document not found")

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByName(ctx context.Context, name string) (*models.User, error)
	FindUserByRefreshToken(ctx context.Context, token string) (*models.User, error)
	FindUsers(ctx context.Context, filter bson.M, skip, limit int64) ([]models.User, error)
	CountUsers(ctx context.Context, filter bson.M) (int64, error)
	UpdateUserByID(ctx context.Context, id primitive.ObjectID, set bson.M) error
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
	SetDriverActive(ctx context.Context, id primitive.ObjectID, active bool) error
	PruneBoundedFleet(ctx context.Context, driverID, fleetID primitive.ObjectID) error
	SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error
}

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// InsertUser inserts a new user into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user models.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	_, err := c.Collection.InsertOne(ctx, user)
	return err
}

func (c *MongoUserCollection) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := c.Collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID finds a user by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

// FindUserByUsername finds a user by their username
func (c *MongoUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"username": username})
}

// FindUserByEmail finds a user by their email
func (c *MongoUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"email": email})
}

// FindUserByName finds a user by their display name
func (c *MongoUserCollection) FindUserByName(ctx context.Context, name string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"name": name})
}

// FindUserByRefreshToken finds the user holding the given refresh token
func (c *MongoUserCollection) FindUserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"refresh_token": token})
}

// FindUsers finds users matching the filter with pagination
func (c *MongoUserCollection) FindUsers(ctx context.Context, filter bson.M, skip, limit int64) ([]models.User, error) {
	opts := options.Find()
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers counts users matching the filter
func (c *MongoUserCollection) CountUsers(ctx context.Context, filter bson.M) (int64, error) {
	return c.Collection.CountDocuments(ctx, filter)
}

// UpdateUserByID applies a partial update to a user
func (c *MongoUserCollection) UpdateUserByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["updated_at"] = time.Now()
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser deletes a user from the database
func (c *MongoUserCollection) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDriverActive flips the driver's active flag
func (c *MongoUserCollection) SetDriverActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return c.UpdateUserByID(ctx, id, bson.M{"active": active})
}

// PruneBoundedFleet removes a stale fleet reference from the driver's
// bounded-fleet set.
func (c *MongoUserCollection) PruneBoundedFleet(ctx context.Context, driverID, fleetID primitive.ObjectID) error {
	_, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": driverID},
		bson.M{"$pull": bson.M{"bounded_fleets": fleetID}, "$set": bson.M{"updated_at": time.Now()}},
	)
	return err
}

// SetRefreshToken stores the user's current refresh token
func (c *MongoUserCollection) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return c.UpdateUserByID(ctx, id, bson.M{"refresh_token": token})
}
