package db

import (
	"context"

	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// GraveyardCollection receives copies of users and fleets about to be removed.
// Records are written once, before the delete, and never read back by the
// service itself.
type GraveyardCollection interface {
	ArchiveUser(ctx context.Context, user models.User) error
	ArchiveFleet(ctx context.Context, fleet models.Fleet) error
}

// MongoGraveyardCollection implements GraveyardCollection over the
// deletedUsers and deletedFleets collections.
type MongoGraveyardCollection struct {
	Users  *mongo.Collection
	Fleets *mongo.Collection
}

// ArchiveUser copies a user into deletedUsers
func (c *MongoGraveyardCollection) ArchiveUser(ctx context.Context, user models.User) error {
	_, err := c.Users.InsertOne(ctx, user)
	return err
}

// ArchiveFleet copies a fleet into deletedFleets
func (c *MongoGraveyardCollection) ArchiveFleet(ctx context.Context, fleet models.Fleet) error {
	_, err := c.Fleets.InsertOne(ctx, fleet)
	return err
}
