package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Route describes the start and finish stops of a fleet's assigned route.
type Route struct {
	Start  string `bson:"start" json:"start"`
	Finish string `bson:"finish" json:"finish"`
}

// Fleet represents a tracked vehicle. Active is true exactly while a driver is
// driving it, in which case DriverID references that driver; otherwise DriverID
// is nil.
type Fleet struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	LicencePlate string              `bson:"licence_plate" json:"licencePlate"`
	Type         string              `bson:"type" json:"type"`
	Route        Route               `bson:"route" json:"route"`
	RouteNumber  int                 `bson:"route_number" json:"routeNumber"`
	Active       bool                `bson:"active" json:"active"`
	DriverID     *primitive.ObjectID `bson:"driver_id" json:"driverId"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// CreateFleetRequest represents a fleet creation request
type CreateFleetRequest struct {
	LicencePlate string `json:"licencePlate"`
	Type         string `json:"type"`
	Route        *Route `json:"route"`
	RouteNumber  *int   `json:"routeNumber"`
}
