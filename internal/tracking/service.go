package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Config holds the tunables of the activation and retention pipeline.
type Config struct {
	// IdleWindow is the inactivity duration after which a driving session is
	// force-stopped.
	IdleWindow time.Duration
	// LiveWindow is how many recent pings per fleet stay in the live
	// collection before older ones move to the archive.
	LiveWindow int64
}

// ConfigFromEnv reads IDLE_TIMEOUT and LIVE_WINDOW with defaults of 30
// minutes and 5 pings.
func ConfigFromEnv() Config {
	cfg := Config{
		IdleWindow: 30 * time.Minute,
		LiveWindow: 5,
	}
	if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.IdleWindow = parsed
		}
	}
	if v := os.Getenv("LIVE_WINDOW"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.LiveWindow = n
		}
	}
	return cfg
}

// Service implements the fleet/driver activation state machine and the
// location ping pipeline over the storage collections.
type Service struct {
	fleets  db.FleetCollection
	users   db.UserCollection
	live    db.LocationCollection
	archive db.ArchiveCollection
	idle    *IdleSupervisor
	cfg     Config
}

// NewService wires a tracking service and its idle-timeout supervisor.
func NewService(fleets db.FleetCollection, users db.UserCollection, live db.LocationCollection, archive db.ArchiveCollection, cfg Config) *Service {
	s := &Service{
		fleets:  fleets,
		users:   users,
		live:    live,
		archive: archive,
		cfg:     cfg,
	}
	s.idle = NewIdleSupervisor(cfg.IdleWindow, s.deactivateSession)
	return s
}

// Supervisor exposes the idle supervisor for shutdown wiring.
func (s *Service) Supervisor() *IdleSupervisor {
	return s.idle
}

// StartDrive transitions an idle fleet and its driver into the driving state
// and arms the driver's idle timer. A failed precondition leaves no mutation
// behind, except that a stale bounded-fleet reference to a missing fleet is
// pruned from the driver record.
func (s *Service) StartDrive(ctx context.Context, driverID, fleetID primitive.ObjectID) error {
	driver, err := s.users.FindUserByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrDriverNotFound
		}
		return fmt.Errorf("find driver: %w", err)
	}

	fleet, err := s.fleets.FindFleetByID(ctx, fleetID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			if driver.IsBoundTo(fleetID) {
				if pruneErr := s.users.PruneBoundedFleet(ctx, driverID, fleetID); pruneErr != nil {
					log.WithError(pruneErr).WithField("driver_id", driverID.Hex()).
						Warn("Failed to prune stale bounded fleet")
				}
			}
			return ErrFleetNotFound
		}
		return fmt.Errorf("find fleet: %w", err)
	}

	if fleet.Active {
		return ErrAlreadyActive
	}
	if !driver.IsBoundTo(fleetID) {
		return ErrNotBound
	}

	// Conditional update: only an idle fleet matches, so two concurrent
	// starts cannot both activate it.
	activated, err := s.fleets.ActivateFleet(ctx, fleetID, driverID)
	if err != nil {
		return fmt.Errorf("activate fleet: %w", err)
	}
	if !activated {
		return ErrAlreadyActive
	}

	if err := s.users.SetDriverActive(ctx, driverID, true); err != nil {
		// Roll the fleet back so the failed call leaves no partial state.
		if _, rbErr := s.fleets.DeactivateFleet(ctx, fleetID); rbErr != nil {
			log.WithError(rbErr).WithField("fleet_id", fleetID.Hex()).
				Error("Failed to roll back fleet activation")
		}
		return fmt.Errorf("activate driver: %w", err)
	}

	s.idle.Arm(driverID.Hex(), fleetID.Hex())

	log.WithFields(log.Fields{
		"driver_id": driverID.Hex(),
		"fleet_id":  fleetID.Hex(),
	}).Info("Driving session started")
	return nil
}

// StopDrive ends a driving session: every live ping for the fleet except the
// newest moves to the archive, then fleet and driver return to idle. Partial
// archive failure leaves the completed moves in place.
func (s *Service) StopDrive(ctx context.Context, driverID, fleetID primitive.ObjectID) error {
	fleet, err := s.fleets.FindFleetByID(ctx, fleetID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrFleetNotFound
		}
		return fmt.Errorf("find fleet: %w", err)
	}
	if !fleet.Active {
		return ErrNotActive
	}

	driver, err := s.users.FindUserByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrDriverNotFound
		}
		return fmt.Errorf("find driver: %w", err)
	}
	if !driver.IsBoundTo(fleetID) {
		return ErrNotBound
	}

	older, err := s.live.FindOlderThanNewest(ctx, fleetID)
	if err != nil {
		return fmt.Errorf("find session pings: %w", err)
	}
	for _, loc := range older {
		if err := s.archiveAndRemove(ctx, loc); err != nil {
			return fmt.Errorf("archive session ping: %w", err)
		}
	}

	if _, err := s.fleets.DeactivateFleet(ctx, fleetID); err != nil {
		return fmt.Errorf("deactivate fleet: %w", err)
	}
	if err := s.users.SetDriverActive(ctx, driverID, false); err != nil {
		return fmt.Errorf("deactivate driver: %w", err)
	}

	s.idle.Cancel(driverID.Hex())

	log.WithFields(log.Fields{
		"driver_id":      driverID.Hex(),
		"fleet_id":       fleetID.Hex(),
		"archived_pings": len(older),
	}).Info("Driving session stopped")
	return nil
}

// deactivateSession is the idle-timeout callback. It unconditionally forces
// fleet and driver back to idle, is idempotent when the session already
// stopped, and never propagates errors since no caller is waiting.
func (s *Service) deactivateSession(driverID, fleetID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"driver_id": driverID,
		"fleet_id":  fleetID,
	})
	logger.Info("Idle window elapsed, deactivating driver and fleet")

	fleetOID, err := primitive.ObjectIDFromHex(fleetID)
	if err != nil {
		logger.WithError(err).Error("Invalid fleet id in idle timer")
		return
	}
	driverOID, err := primitive.ObjectIDFromHex(driverID)
	if err != nil {
		logger.WithError(err).Error("Invalid driver id in idle timer")
		return
	}

	deactivated, err := s.fleets.DeactivateFleet(ctx, fleetOID)
	if err != nil {
		logger.WithError(err).Error("Failed to deactivate fleet on idle timeout")
		return
	}
	if !deactivated {
		logger.Debug("Fleet already idle, nothing to do")
	}
	if err := s.users.SetDriverActive(ctx, driverOID, false); err != nil {
		logger.WithError(err).Error("Failed to deactivate driver on idle timeout")
	}
}

// SubmitRequest identifies the target fleet by id or licence plate and
// carries the ping coordinates.
type SubmitRequest struct {
	FleetID      *primitive.ObjectID
	LicencePlate string
	Location     models.Location
}

// SubmitPing validates a ping against the current activation state, persists
// it with a server-assigned timestamp, re-arms the driver's idle timer and
// enforces the live retention window.
func (s *Service) SubmitPing(ctx context.Context, driverID primitive.ObjectID, req SubmitRequest) (*models.FleetLocation, error) {
	var fleet *models.Fleet
	var err error
	if req.FleetID != nil {
		fleet, err = s.fleets.FindFleetByID(ctx, *req.FleetID)
	} else {
		fleet, err = s.fleets.FindFleetByLicencePlate(ctx, req.LicencePlate)
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrFleetNotFound
		}
		return nil, fmt.Errorf("find fleet: %w", err)
	}

	driver, err := s.users.FindUserByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("find driver: %w", err)
	}

	if !driver.IsBoundTo(fleet.ID) {
		return nil, ErrNotBound
	}
	if !driver.Active {
		return nil, ErrDriverNotActive
	}
	if !fleet.Active {
		return nil, ErrFleetNotActive
	}
	if fleet.DriverID == nil || *fleet.DriverID != driverID {
		return nil, ErrDriverMismatch
	}

	ping := models.FleetLocation{
		ID:        primitive.NewObjectID(),
		FleetID:   fleet.ID,
		DriverID:  driverID,
		Location:  req.Location,
		Timestamp: models.NowTimestamp(),
	}
	if err := s.live.InsertLocation(ctx, ping); err != nil {
		return nil, fmt.Errorf("insert ping: %w", err)
	}

	s.idle.Arm(driverID.Hex(), fleet.ID.Hex())

	// Retention: if the fleet now holds more than LiveWindow pings, the one
	// just past the window boundary moves to the archive. Evaluated fresh on
	// every submission rather than assuming exactly one crossed.
	overflow, err := s.live.FindNthNewest(ctx, fleet.ID, s.cfg.LiveWindow)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("find retention overflow: %w", err)
		}
	} else if err := s.archiveAndRemove(ctx, *overflow); err != nil {
		return nil, fmt.Errorf("archive overflow ping: %w", err)
	}

	return &ping, nil
}

// SearchQuery narrows a ping search. Lat/Lon/Radius must be set together to
// apply the radius filter.
type SearchQuery struct {
	FleetID      *primitive.ObjectID
	LicencePlate string
	DriverName   string
	Lat          *float64
	Lon          *float64
	Radius       *float64
}

// SearchPings resolves licence plates and driver names to ids, runs an
// equality query and, when reference coordinates are given, keeps only pings
// within Radius kilometers of them. The radius filter is brute force over the
// candidate set.
func (s *Service) SearchPings(ctx context.Context, q SearchQuery) ([]models.FleetLocation, error) {
	filter := bson.M{}

	if q.FleetID != nil {
		filter["fleet_id"] = *q.FleetID
	}
	if q.LicencePlate != "" {
		fleet, err := s.fleets.FindFleetByLicencePlate(ctx, q.LicencePlate)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, ErrFleetNotFound
			}
			return nil, fmt.Errorf("find fleet: %w", err)
		}
		filter["fleet_id"] = fleet.ID
	}
	if q.DriverName != "" {
		driver, err := s.users.FindUserByName(ctx, q.DriverName)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, ErrDriverNotFound
			}
			return nil, fmt.Errorf("find driver: %w", err)
		}
		filter["driver_id"] = driver.ID
	}

	locs, err := s.live.FindLocations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find pings: %w", err)
	}

	if q.Lat != nil && q.Lon != nil && q.Radius != nil {
		filtered := make([]models.FleetLocation, 0, len(locs))
		for _, loc := range locs {
			d := Haversine(*q.Lat, *q.Lon, loc.Location.Lat, loc.Location.Lon)
			if d <= *q.Radius {
				filtered = append(filtered, loc)
			}
		}
		locs = filtered
	}
	return locs, nil
}

// archiveAndRemove moves one ping from the live collection to the archive.
// The archive write happens first and is an upsert by the original id, so a
// crash between the two steps duplicates the record instead of losing it and
// a retried move converges.
func (s *Service) archiveAndRemove(ctx context.Context, loc models.FleetLocation) error {
	if err := s.archive.UpsertLocation(ctx, loc); err != nil {
		return fmt.Errorf("archive ping: %w", err)
	}
	if err := s.live.DeleteLocation(ctx, loc.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Already removed by an earlier, interrupted move.
			return nil
		}
		return fmt.Errorf("remove live ping: %w", err)
	}
	return nil
}
