package db

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newestFirst orders pings newest first, with _id as a tie-breaker for pings
// sharing a timestamp.
var newestFirst = bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}

// LocationCollection defines the interface for live location ping operations
type LocationCollection interface {
	InsertLocation(ctx context.Context, loc models.FleetLocation) error
	FindLocationByID(ctx context.Context, id primitive.ObjectID) (*models.FleetLocation, error)
	FindLocations(ctx context.Context, filter bson.M) ([]models.FleetLocation, error)
	FindNthNewest(ctx context.Context, fleetID primitive.ObjectID, n int64) (*models.FleetLocation, error)
	FindOlderThanNewest(ctx context.Context, fleetID primitive.ObjectID) ([]models.FleetLocation, error)
	CountLocations(ctx context.Context, filter bson.M) (int64, error)
	UpdateLocationByID(ctx context.Context, id primitive.ObjectID, set bson.M) error
	DeleteLocation(ctx context.Context, id primitive.ObjectID) error
}

// ArchiveCollection defines the interface for archived location pings. The
// archive write is an upsert keyed by the original ping id, so a retried move
// never duplicates a record.
type ArchiveCollection interface {
	UpsertLocation(ctx context.Context, loc models.FleetLocation) error
	FindArchived(ctx context.Context, filter bson.M, skip, limit int64) ([]models.FleetLocation, error)
	CountArchived(ctx context.Context, filter bson.M) (int64, error)
	UpdateArchivedByID(ctx context.Context, id primitive.ObjectID, set bson.M) error
}

// MongoLocationCollection implements LocationCollection for MongoDB
type MongoLocationCollection struct {
	Collection *mongo.Collection
}

// InsertLocation inserts a live ping
func (c *MongoLocationCollection) InsertLocation(ctx context.Context, loc models.FleetLocation) error {
	_, err := c.Collection.InsertOne(ctx, loc)
	return err
}

// FindLocationByID finds a live ping by its ID
func (c *MongoLocationCollection) FindLocationByID(ctx context.Context, id primitive.ObjectID) (*models.FleetLocation, error) {
	var loc models.FleetLocation
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&loc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

// FindLocations finds live pings matching the filter, newest first
func (c *MongoLocationCollection) FindLocations(ctx context.Context, filter bson.M) ([]models.FleetLocation, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var locs []models.FleetLocation
	if err := cursor.All(ctx, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

// FindNthNewest returns the ping at position n (0-based) in newest-first order
// for the fleet, or ErrNotFound when the fleet has fewer pings.
func (c *MongoLocationCollection) FindNthNewest(ctx context.Context, fleetID primitive.ObjectID, n int64) (*models.FleetLocation, error) {
	opts := options.FindOne().SetSort(newestFirst).SetSkip(n)
	var loc models.FleetLocation
	err := c.Collection.FindOne(ctx, bson.M{"fleet_id": fleetID}, opts).Decode(&loc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

// FindOlderThanNewest returns every live ping for the fleet except the newest
// one, newest first.
func (c *MongoLocationCollection) FindOlderThanNewest(ctx context.Context, fleetID primitive.ObjectID) ([]models.FleetLocation, error) {
	opts := options.Find().SetSort(newestFirst).SetSkip(1)
	cursor, err := c.Collection.Find(ctx, bson.M{"fleet_id": fleetID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var locs []models.FleetLocation
	if err := cursor.All(ctx, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

// CountLocations counts live pings matching the filter
func (c *MongoLocationCollection) CountLocations(ctx context.Context, filter bson.M) (int64, error) {
	return c.Collection.CountDocuments(ctx, filter)
}

// UpdateLocationByID applies a partial update to a live ping
func (c *MongoLocationCollection) UpdateLocationByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLocation deletes a live ping
func (c *MongoLocationCollection) DeleteLocation(ctx context.Context, id primitive.ObjectID) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoArchiveCollection implements ArchiveCollection for MongoDB
type MongoArchiveCollection struct {
	Collection *mongo.Collection
}

// UpsertLocation writes an archived copy of a ping keyed by its original id
func (c *MongoArchiveCollection) UpsertLocation(ctx context.Context, loc models.FleetLocation) error {
	opts := options.Replace().SetUpsert(true)
	_, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": loc.ID}, loc, opts)
	return err
}

// FindArchived finds archived pings matching the filter with pagination
func (c *MongoArchiveCollection) FindArchived(ctx context.Context, filter bson.M, skip, limit int64) ([]models.FleetLocation, error) {
	opts := options.Find().SetSort(newestFirst)
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

	var locs []models.FleetLocation
	if err := cursor.All(ctx, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

// CountArchived counts archived pings matching the filter
func (c *MongoArchiveCollection) CountArchived(ctx context.Context, filter bson.M) (int64, error) {
	return c.Collection.CountDocuments(ctx, filter)
}

// UpdateArchivedByID applies an administrative correction to an archived ping
func (c *MongoArchiveCollection) UpdateArchivedByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
