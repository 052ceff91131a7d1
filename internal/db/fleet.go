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

// FleetCollection defines the interface for fleet database operations
type FleetCollection interface {
	InsertFleet(ctx context.Context, fleet models.Fleet) error
	FindFleetByID(ctx context.Context, id primitive.ObjectID) (*models.Fleet, error)
	FindFleetByLicencePlate(ctx context.Context, plate string) (*models.Fleet, error)
	FindFleets(ctx context.Context, filter bson.M, skip, limit int64) ([]models.Fleet, error)
	CountFleets(ctx context.Context, filter bson.M) (int64, error)
	UpdateFleetByID(ctx context.Context, id primitive.ObjectID, set bson.M) error
	DeleteFleet(ctx context.Context, id primitive.ObjectID) error
	ActivateFleet(ctx context.Context, id, driverID primitive.ObjectID) (bool, error)
	DeactivateFleet(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// MongoFleetCollection implements FleetCollection for MongoDB
type MongoFleetCollection struct {
	Collection *mongo.Collection
}

// InsertFleet inserts a new fleet into the database
func (c *MongoFleetCollection) InsertFleet(ctx context.Context, fleet models.Fleet) error {
	fleet.CreatedAt = time.Now()
	fleet.UpdatedAt = time.Now()

	_, err := c.Collection.InsertOne(ctx, fleet)
	return err
}

func (c *MongoFleetCollection) findOne(ctx context.Context, filter bson.M) (*models.Fleet, error) {
	var fleet models.Fleet
	err := c.Collection.FindOne(ctx, filter).Decode(&fleet)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &fleet, nil
}

// FindFleetByID finds a fleet by its ID
func (c *MongoFleetCollection) FindFleetByID(ctx context.Context, id primitive.ObjectID) (*models.Fleet, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

// FindFleetByLicencePlate finds a fleet by its licence plate
func (c *MongoFleetCollection) FindFleetByLicencePlate(ctx context.Context, plate string) (*models.Fleet, error) {
	return c.findOne(ctx, bson.M{"licence_plate": plate})
}

// FindFleets finds fleets matching the filter with pagination
func (c *MongoFleetCollection) FindFleets(ctx context.Context, filter bson.M, skip, limit int64) ([]models.Fleet, error) {
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

	var fleets []models.Fleet
	if err := cursor.All(ctx, &fleets); err != nil {
		return nil, err
	}
	return fleets, nil
}

// CountFleets counts fleets matching the filter
func (c *MongoFleetCollection) CountFleets(ctx context.Context, filter bson.M) (int64, error) {
	return c.Collection.CountDocuments(ctx, filter)
}

// UpdateFleetByID applies a partial update to a fleet
func (c *MongoFleetCollection) UpdateFleetByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
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

// DeleteFleet deletes a fleet from the database
func (c *MongoFleetCollection) DeleteFleet(ctx context.Context, id primitive.ObjectID) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivateFleet flips an idle fleet to driving with a single conditional
// update. Returns false when no idle fleet with that id matched, which means
// the fleet is already active (or gone) and no mutation happened.
func (c *MongoFleetCollection) ActivateFleet(ctx context.Context, id, driverID primitive.ObjectID) (bool, error) {
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "active": false},
		bson.M{"$set": bson.M{"active": true, "driver_id": driverID, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

// DeactivateFleet flips a driving fleet back to idle, clearing the driver
// reference. Returns false when the fleet was not active; no mutation happens
// in that case, so the call is idempotent.
func (c *MongoFleetCollection) DeactivateFleet(ctx context.Context, id primitive.ObjectID) (bool, error) {
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{"active": false, "driver_id": nil, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}
