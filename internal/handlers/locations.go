package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/middleware"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/tracking"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tracker is the slice of the tracking service the location routes need.
type Tracker interface {
	StartDrive(ctx context.Context, driverID, fleetID primitive.ObjectID) error
	StopDrive(ctx context.Context, driverID, fleetID primitive.ObjectID) error
	SubmitPing(ctx context.Context, driverID primitive.ObjectID, req tracking.SubmitRequest) (*models.FleetLocation, error)
	SearchPings(ctx context.Context, q tracking.SearchQuery) ([]models.FleetLocation, error)
}

// LocationHandler handles drive sessions and location ping requests
type LocationHandler struct {
	tracker Tracker
	live    db.LocationCollection
	archive db.ArchiveCollection
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(tracker Tracker, live db.LocationCollection, archive db.ArchiveCollection) *LocationHandler {
	return &LocationHandler{
		tracker: tracker,
		live:    live,
		archive: archive,
	}
}

type fleetIDRequest struct {
	FleetID string `json:"fleetId"`
}

func (h *LocationHandler) driverAndFleet(w http.ResponseWriter, r *http.Request) (driverID, fleetID primitive.ObjectID, ok bool) {
	user, found := middleware.UserFromContext(r.Context())
	if !found {
		respondError(w, http.StatusUnauthorized, "auth", "User context not found")
		return driverID, fleetID, false
	}

	var req fleetIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FleetID == "" {
		respondError(w, http.StatusBadRequest, "validation", "fleetId is required")
		return driverID, fleetID, false
	}
	fleetID, err := primitive.ObjectIDFromHex(req.FleetID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
		return driverID, fleetID, false
	}
	return user.ID, fleetID, true
}

// Drive starts a driving session for the authenticated driver.
func (h *LocationHandler) Drive(w http.ResponseWriter, r *http.Request) {
	driverID, fleetID, ok := h.driverAndFleet(w, r)
	if !ok {
		return
	}
	if err := h.tracker.StartDrive(r.Context(), driverID, fleetID); err != nil {
		respondTrackingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Driving started successfully"})
}

// Stop ends a driving session for the authenticated driver.
func (h *LocationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	driverID, fleetID, ok := h.driverAndFleet(w, r)
	if !ok {
		return
	}
	if err := h.tracker.StopDrive(r.Context(), driverID, fleetID); err != nil {
		respondTrackingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Driving stopped successfully"})
}

// Create submits a location ping for the authenticated driver's active
// session.
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, found := middleware.UserFromContext(r.Context())
	if !found {
		respondError(w, http.StatusUnauthorized, "auth", "User context not found")
		return
	}

	var req struct {
		FleetID      string           `json:"fleetId"`
		LicencePlate string           `json:"licencePlate"`
		Location     *models.Location `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return
	}
	if req.Location == nil || (req.FleetID == "" && req.LicencePlate == "") {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet location data format")
		return
	}

	submit := tracking.SubmitRequest{
		LicencePlate: req.LicencePlate,
		Location:     *req.Location,
	}
	if req.FleetID != "" {
		fleetID, err := primitive.ObjectIDFromHex(req.FleetID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
			return
		}
		submit.FleetID = &fleetID
	}

	ping, err := h.tracker.SubmitPing(r.Context(), user.ID, submit)
	if err != nil {
		respondTrackingError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":              "Fleet location created successfully",
		"createdFleetLocation": ping,
	})
}

// List returns every live ping.
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	total, err := h.live.CountLocations(r.Context(), bson.M{})
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if total == 0 {
		respondError(w, http.StatusNotFound, "fleet_location_not_found", "No fleet locations found in the database.")
		return
	}
	locs, err := h.live.FindLocations(r.Context(), bson.M{})
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

// Search filters live pings by fleet, licence plate, driver name and an
// optional radius around a reference coordinate.
func (h *LocationHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := tracking.SearchQuery{
		LicencePlate: q.Get("licensePlate"),
		DriverName:   q.Get("driverName"),
	}
	if v := q.Get("fleetId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
			return
		}
		query.FleetID = &id
	}

	lat, lon, radius := q.Get("lat"), q.Get("lon"), q.Get("radius")
	if lat != "" && lon != "" && radius != "" {
		latF, errLat := strconv.ParseFloat(lat, 64)
		lonF, errLon := strconv.ParseFloat(lon, 64)
		radF, errRad := strconv.ParseFloat(radius, 64)
		if errLat != nil || errLon != nil || errRad != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid radius parameters")
			return
		}
		query.Lat, query.Lon, query.Radius = &latF, &lonF, &radF
	}

	locs, err := h.tracker.SearchPings(r.Context(), query)
	if err != nil {
		respondTrackingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

// Old returns archived pings with pagination.
func (h *LocationHandler) Old(w http.ResponseWriter, r *http.Request) {
	limit, _, skip := pagination(r)

	locs, err := h.archive.FindArchived(r.Context(), bson.M{}, skip, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if len(locs) == 0 {
		respondError(w, http.StatusNotFound, "fleet_location_not_found", "No old fleet locations found in the database.")
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

// OldSearch filters archived pings by fleet and driver with pagination.
func (h *LocationHandler) OldSearch(w http.ResponseWriter, r *http.Request) {
	limit, _, skip := pagination(r)

	filter := bson.M{}
	q := r.URL.Query()
	if v := q.Get("fleetId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
			return
		}
		filter["fleet_id"] = id
	}
	if v := q.Get("driverId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid driver id")
			return
		}
		filter["driver_id"] = id
	}
	if v := q.Get("timestamp"); v != "" {
		filter["timestamp"] = v
	}

	total, err := h.archive.CountArchived(r.Context(), filter)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if total <= skip {
		skip = 0
	}
	locs, err := h.archive.FindArchived(r.Context(), filter, skip, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if len(locs) == 0 {
		respondError(w, http.StatusNotFound, "fleet_location_not_found", "No old fleet locations found for the specified criteria.")
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

func decodeLocationPatch(w http.ResponseWriter, r *http.Request) (bson.M, bool) {
	var ops struct {
		Location  *models.Location `json:"location"`
		Timestamp *string          `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return nil, false
	}
	set := bson.M{}
	if ops.Location != nil {
		set["location"] = *ops.Location
	}
	if ops.Timestamp != nil {
		set["timestamp"] = *ops.Timestamp
	}
	if len(set) == 0 {
		respondError(w, http.StatusBadRequest, "validation", "No fields to update")
		return nil, false
	}
	return set, true
}

// Update applies an administrative correction to a live ping.
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "fleetLocationId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet location id")
		return
	}
	set, ok := decodeLocationPatch(w, r)
	if !ok {
		return
	}
	if _, err := h.live.FindLocationByID(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondTrackingError(w, tracking.ErrPingNotFound)
			return
		}
		respondInternalError(w, err)
		return
	}
	if err := h.live.UpdateLocationByID(r.Context(), id, set); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondTrackingError(w, tracking.ErrPingNotFound)
			return
		}
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Fleet location updated successfully"})
}

// UpdateOld applies an administrative correction to an archived ping.
func (h *LocationHandler) UpdateOld(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "oldFleetLocationId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet location id")
		return
	}
	set, ok := decodeLocationPatch(w, r)
	if !ok {
		return
	}
	if err := h.archive.UpdateArchivedByID(r.Context(), id, set); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "fleet_location_not_found", "No old fleet location found with this ID.")
			return
		}
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Old fleet location updated successfully"})
}

// Delete removes a live ping.
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "fleetLocationId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet location id")
		return
	}
	if _, err := h.live.FindLocationByID(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondTrackingError(w, tracking.ErrPingNotFound)
			return
		}
		respondInternalError(w, err)
		return
	}
	if err := h.live.DeleteLocation(r.Context(), id); err != nil && !errors.Is(err, db.ErrNotFound) {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Fleet location deleted successfully"})
}
