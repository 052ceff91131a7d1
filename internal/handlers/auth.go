package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ukydev/fleet-tracker/internal/auth"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthHandler handles registration, login and token lifecycle requests
type AuthHandler struct {
	authService *auth.Service
	users       db.UserCollection
	tokens      db.TokenCollection
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, users db.UserCollection, tokens db.TokenCollection) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		users:       users,
		tokens:      tokens,
	}
}

// Register handles user registration. New accounts always start as inactive
// drivers with no bounded fleets; roles are granted administratively.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return
	}

	if req.Username == "" || req.Password == "" || req.Email == "" || req.Name == "" || req.Age <= 0 {
		respondError(w, http.StatusBadRequest, "validation", "Invalid user data format")
		return
	}
	if err := h.authService.ValidateUsername(req.Username); err != nil {
		respondError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if err := h.authService.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if err := h.authService.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	if _, err := h.users.FindUserByUsername(r.Context(), req.Username); err == nil {
		respondError(w, http.StatusBadRequest, "validation", "Username already exists")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		respondInternalError(w, err)
		return
	}
	if _, err := h.users.FindUserByEmail(r.Context(), req.Email); err == nil {
		respondError(w, http.StatusBadRequest, "validation", "Email already exists")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		respondInternalError(w, err)
		return
	}

	passwordHash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	user := models.User{
		ID:            primitive.NewObjectID(),
		Username:      req.Username,
		Email:         req.Email,
		PasswordHash:  passwordHash,
		Name:          req.Name,
		Age:           req.Age,
		Roles:         []models.Role{models.RoleDriver},
		BoundedFleets: []primitive.ObjectID{},
		Active:        false,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := h.users.InsertUser(r.Context(), user); err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "User created successfully",
		"createdUser": formatUser(&user),
	})
}

// Login verifies credentials against the stored hash and issues an access and
// a refresh token, persisting the refresh token on the user record.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return
	}
	if req.UsernameOrEmail == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation", "Username or password is missing")
		return
	}

	user, err := h.users.FindUserByUsername(r.Context(), req.UsernameOrEmail)
	if errors.Is(err, db.ErrNotFound) {
		user, err = h.users.FindUserByEmail(r.Context(), req.UsernameOrEmail)
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "auth", "Invalid username or password")
			return
		}
		respondInternalError(w, err)
		return
	}

	if err := h.authService.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		respondError(w, http.StatusUnauthorized, "auth", "Invalid username or password")
		return
	}

	accessToken, err := h.authService.GenerateAccessToken(user.ID.Hex())
	if err != nil {
		respondInternalError(w, err)
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken(user.ID.Hex())
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if err := h.users.SetRefreshToken(r.Context(), user.ID, refreshToken); err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.LoginResponse{
		Message:      "Logged in successfully",
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "validation", "Refresh token is missing")
		return
	}

	revoked, err := h.tokens.IsTokenRevoked(r.Context(), req.RefreshToken)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if revoked {
		respondError(w, http.StatusUnauthorized, "auth", "Invalid refresh token")
		return
	}

	user, err := h.users.FindUserByRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "auth", "Invalid refresh token")
			return
		}
		respondInternalError(w, err)
		return
	}
	if _, err := h.authService.ValidateRefreshToken(req.RefreshToken); err != nil {
		respondError(w, http.StatusUnauthorized, "auth", "Invalid refresh token")
		return
	}

	accessToken, err := h.authService.GenerateAccessToken(user.ID.Hex())
	if err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":     "Access token refreshed successfully",
		"accessToken": accessToken,
	})
}

// Logout revokes the presented refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "validation", "Token is missing")
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), req.RefreshToken); err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
