package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleHCM    Role = "hcm"
	RoleDriver Role = "driver"
)

// User represents a user account. A user with the driver role may be bound to
// one or more fleets and is Active exactly while driving one of them.
type User struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Username      string               `bson:"username" json:"username"`
	Email         string               `bson:"email" json:"email"`
	PasswordHash  string               `bson:"password_hash" json:"-"`
	Name          string               `bson:"name" json:"name"`
	Age           int                  `bson:"age" json:"age"`
	Roles         []Role               `bson:"roles" json:"roles"`
	BoundedFleets []primitive.ObjectID `bson:"bounded_fleets" json:"bounded_fleets"`
	Active        bool                 `bson:"active" json:"active"`
	RefreshToken  string               `bson:"refresh_token,omitempty" json:"-"`
	CreatedAt     time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims represents the verified content of an access token
type Claims struct {
	UserID string `json:"user_id"`
	Exp    int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleHCM, RoleDriver:
		return true
	default:
		return false
	}
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user carries at least one of the given roles.
func (u *User) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// IsBoundTo reports whether the user is authorized to drive the given fleet.
func (u *User) IsBoundTo(fleetID primitive.ObjectID) bool {
	for _, id := range u.BoundedFleets {
		if id == fleetID {
			return true
		}
	}
	return false
}
