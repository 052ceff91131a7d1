package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// TimestampLayout is the wire format of ping timestamps: UTC with fixed
// millisecond precision, so lexicographic order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NowTimestamp returns the current time formatted as a ping timestamp.
func NowTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// FleetLocation is a time-stamped location ping pushed by the driver of an
// active fleet. Live pings are kept in the primary collection; once they age
// out of the retention window they move to the archive collection unchanged.
type FleetLocation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FleetID   primitive.ObjectID `bson:"fleet_id" json:"fleetId"`
	DriverID  primitive.ObjectID `bson:"driver_id" json:"driverId"`
	Location  Location           `bson:"location" json:"location"`
	Timestamp string             `bson:"timestamp" json:"timestamp"`
}
