package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/fleet-tracker/internal/auth"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/middleware"
	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserHandler handles user management requests
type UserHandler struct {
	authService *auth.Service
	users       db.UserCollection
	graveyard   db.GraveyardCollection
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *auth.Service, users db.UserCollection, graveyard db.GraveyardCollection) *UserHandler {
	return &UserHandler{
		authService: authService,
		users:       users,
		graveyard:   graveyard,
	}
}

func formatUser(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":            u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"name":          u.Name,
		"age":           u.Age,
		"roles":         u.Roles,
		"active":        u.Active,
		"boundedFleets": u.BoundedFleets,
	}
}

// roleScope narrows a user query by the requester's role: admins see every
// non-admin account, hcm users see drivers only.
func roleScope(requester *models.User, filter bson.M) bson.M {
	filter["roles"] = bson.M{"$ne": models.RoleAdmin}
	if requester.HasRole(models.RoleHCM) && !requester.HasRole(models.RoleAdmin) {
		filter["roles"] = models.RoleDriver
	}
	return filter
}

// List returns users with pagination
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	requester, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "auth", "User context not found")
		return
	}

	limit, page, skip := pagination(r)
	filter := roleScope(requester, bson.M{})

	total, err := h.users.CountUsers(r.Context(), filter)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if total <= skip {
		skip = 0
	}
	users, err := h.users.FindUsers(r.Context(), filter, skip, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if len(users) == 0 {
		respondError(w, http.StatusNotFound, "user_not_found", "No users found in the database.")
		return
	}

	formatted := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		formatted = append(formatted, formatUser(&users[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Users retrieved successfully",
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
		"users":       formatted,
	})
}

// Search returns users matching exact field filters with pagination
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	requester, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "auth", "User context not found")
		return
	}

	limit, page, skip := pagination(r)
	filter := bson.M{}
	q := r.URL.Query()
	if v := q.Get("_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid user id")
			return
		}
		filter["_id"] = id
	}
	if v := q.Get("username"); v != "" {
		filter["username"] = v
	}
	if v := q.Get("name"); v != "" {
		filter["name"] = v
	}
	if v := q.Get("email"); v != "" {
		filter["email"] = v
	}
	if v := q.Get("age"); v != "" {
		if age, err := strconv.Atoi(v); err == nil {
			filter["age"] = age
		}
	}
	if v := q.Get("active"); v != "" {
		filter["active"] = v == "true"
	}
	filter = roleScope(requester, filter)

	total, err := h.users.CountUsers(r.Context(), filter)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if total <= skip {
		skip = 0
	}
	users, err := h.users.FindUsers(r.Context(), filter, skip, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if len(users) == 0 {
		respondError(w, http.StatusNotFound, "user_not_found", "No users found for the specified criteria.")
		return
	}

	formatted := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		formatted = append(formatted, formatUser(&users[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Users retrieved successfully",
		"users":       formatted,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
	})
}

// Update applies a restricted partial update to a user. Only password, email,
// name, age and boundedFleets may change through this route.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid user id")
		return
	}

	var ops map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return
	}

	allowed := map[string]bool{"password": true, "email": true, "name": true, "age": true, "boundedFleets": true}
	for field := range ops {
		if !allowed[field] {
			respondError(w, http.StatusForbidden, "validation", "You are not allowed to update the field: "+field)
			return
		}
	}

	set := bson.M{}
	if raw, ok := ops["password"]; ok {
		var password string
		if err := json.Unmarshal(raw, &password); err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid password")
			return
		}
		if err := h.authService.ValidatePassword(password); err != nil {
			respondError(w, http.StatusBadRequest, "validation", err.Error())
			return
		}
		hash, err := h.authService.HashPassword(password)
		if err != nil {
			respondInternalError(w, err)
			return
		}
		set["password_hash"] = hash
	}
	if raw, ok := ops["email"]; ok {
		var email string
		if err := json.Unmarshal(raw, &email); err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid email")
			return
		}
		if err := h.authService.ValidateEmail(email); err != nil {
			respondError(w, http.StatusBadRequest, "validation", err.Error())
			return
		}
		set["email"] = email
	}
	if raw, ok := ops["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || name == "" {
			respondError(w, http.StatusBadRequest, "validation", "Name must not be empty")
			return
		}
		set["name"] = name
	}
	if raw, ok := ops["age"]; ok {
		var age int
		if err := json.Unmarshal(raw, &age); err != nil || age <= 0 {
			respondError(w, http.StatusBadRequest, "validation", "Age must be a positive integer")
			return
		}
		set["age"] = age
	}
	if raw, ok := ops["boundedFleets"]; ok {
		var hexes []string
		if err := json.Unmarshal(raw, &hexes); err != nil {
			respondError(w, http.StatusBadRequest, "validation", "BoundedFleets must be an array")
			return
		}
		fleets := make([]primitive.ObjectID, 0, len(hexes))
		for _, hex := range hexes {
			id, err := primitive.ObjectIDFromHex(hex)
			if err != nil {
				respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id in boundedFleets")
				return
			}
			fleets = append(fleets, id)
		}
		set["bounded_fleets"] = fleets
	}
	if len(set) == 0 {
		respondError(w, http.StatusBadRequest, "validation", "No fields to update")
		return
	}

	if err := h.users.UpdateUserByID(r.Context(), userID, set); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user_not_found", "User not found")
			return
		}
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "User updated successfully"})
}

// Delete archives a user into deletedUsers, then removes the original.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid user id")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user_not_found", "User not found")
			return
		}
		respondInternalError(w, err)
		return
	}

	// Copy before delete: a crash in between duplicates the record in the
	// graveyard rather than losing it.
	if err := h.graveyard.ArchiveUser(r.Context(), *user); err != nil {
		respondInternalError(w, err)
		return
	}
	if err := h.users.DeleteUser(r.Context(), userID); err != nil && !errors.Is(err, db.ErrNotFound) {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}
