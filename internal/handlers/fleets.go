package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FleetHandler handles fleet management requests
type FleetHandler struct {
	fleets    db.FleetCollection
	graveyard db.GraveyardCollection
}

// NewFleetHandler creates a new fleet handler
func NewFleetHandler(fleets db.FleetCollection, graveyard db.GraveyardCollection) *FleetHandler {
	return &FleetHandler{
		fleets:    fleets,
		graveyard: graveyard,
	}
}

// List returns fleets with pagination
func (h *FleetHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, page, skip := pagination(r)

	total, err := h.fleets.CountFleets(r.Context(), bson.M{})
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if total <= skip {
		skip = 0
	}
	fleets, err := h.fleets.FindFleets(r.Context(), bson.M{}, skip, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if len(fleets) == 0 {
		respondError(w, http.StatusNotFound, "fleet_not_found", "No fleets found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Fleets retrieved successfully",
		"fleets":      fleets,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
	})
}

// Create registers a new fleet. Fleets always start idle with no driver.
func (h *FleetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFleetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return
	}
	if req.LicencePlate == "" || req.Type == "" || req.Route == nil || req.RouteNumber == nil ||
		req.Route.Start == "" || req.Route.Finish == "" {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet data format")
		return
	}

	if _, err := h.fleets.FindFleetByLicencePlate(r.Context(), req.LicencePlate); err == nil {
		respondError(w, http.StatusBadRequest, "validation", "Fleet with this licencePlate already exists")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		respondInternalError(w, err)
		return
	}

	fleet := models.Fleet{
		ID:           primitive.NewObjectID(),
		LicencePlate: req.LicencePlate,
		Type:         req.Type,
		Route:        *req.Route,
		RouteNumber:  *req.RouteNumber,
		Active:       false,
		DriverID:     nil,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := h.fleets.InsertFleet(r.Context(), fleet); err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Fleet created successfully",
		"createdFleet": fleet,
	})
}

// Search returns fleets matching exact field filters
func (h *FleetHandler) Search(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	q := r.URL.Query()
	if v := q.Get("_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
			return
		}
		filter["_id"] = id
	}
	if v := q.Get("licencePlate"); v != "" {
		filter["licence_plate"] = v
	}
	if v := q.Get("type"); v != "" {
		filter["type"] = v
	}
	if v := q.Get("route.start"); v != "" {
		filter["route.start"] = v
	}
	if v := q.Get("route.finish"); v != "" {
		filter["route.finish"] = v
	}
	if v := q.Get("routeNumber"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter["route_number"] = n
		}
	}
	if v := q.Get("active"); v != "" {
		filter["active"] = v == "true"
	}
	if v := q.Get("driverId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid driver id")
			return
		}
		filter["driver_id"] = id
	}

	fleets, err := h.fleets.FindFleets(r.Context(), filter, 0, 0)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if len(fleets) == 0 {
		respondError(w, http.StatusNotFound, "fleet_not_found", "No fleets found for the specified criteria")
		return
	}
	respondJSON(w, http.StatusOK, fleets)
}

// Update applies field edits to a fleet. Activation state is owned by the
// tracking service and cannot be changed through this route.
func (h *FleetHandler) Update(w http.ResponseWriter, r *http.Request) {
	fleetID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "fleetId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
		return
	}

	var ops map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid JSON")
		return
	}

	set := bson.M{}
	if raw, ok := ops["licencePlate"]; ok {
		var plate string
		if err := json.Unmarshal(raw, &plate); err != nil || plate == "" {
			respondError(w, http.StatusBadRequest, "validation", "Invalid licencePlate")
			return
		}
		set["licence_plate"] = plate
	}
	if raw, ok := ops["type"]; ok {
		var t string
		if err := json.Unmarshal(raw, &t); err != nil || t == "" {
			respondError(w, http.StatusBadRequest, "validation", "Invalid type")
			return
		}
		set["type"] = t
	}
	if raw, ok := ops["route"]; ok {
		var route models.Route
		if err := json.Unmarshal(raw, &route); err != nil || route.Start == "" || route.Finish == "" {
			respondError(w, http.StatusBadRequest, "validation", "Invalid route")
			return
		}
		set["route"] = route
	}
	if raw, ok := ops["routeNumber"]; ok {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			respondError(w, http.StatusBadRequest, "validation", "Invalid routeNumber")
			return
		}
		set["route_number"] = n
	}
	if len(set) == 0 {
		respondError(w, http.StatusBadRequest, "validation", "No fields to update")
		return
	}

	if err := h.fleets.UpdateFleetByID(r.Context(), fleetID, set); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "fleet_not_found", "Fleet not found")
			return
		}
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Fleet updated successfully"})
}

// Delete archives a fleet into deletedFleets, then removes the original.
func (h *FleetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fleetID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "fleetId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid fleet id")
		return
	}

	fleet, err := h.fleets.FindFleetByID(r.Context(), fleetID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "fleet_not_found", "Fleet not found")
			return
		}
		respondInternalError(w, err)
		return
	}

	if err := h.graveyard.ArchiveFleet(r.Context(), *fleet); err != nil {
		respondInternalError(w, err)
		return
	}
	if err := h.fleets.DeleteFleet(r.Context(), fleetID); err != nil && !errors.Is(err, db.ErrNotFound) {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Fleet deleted successfully"})
}
