package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockFleetCollection is a mock implementation of FleetCollection
type MockFleetCollection struct {
	mock.Mock
}

func (m *MockFleetCollection) InsertFleet(ctx context.Context, fleet models.Fleet) error {
	args := m.Called(ctx, fleet)
	return args.Error(0)
}

func (m *MockFleetCollection) FindFleetByID(ctx context.Context, id primitive.ObjectID) (*models.Fleet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Fleet), args.Error(1)
}

func (m *MockFleetCollection) FindFleetByLicencePlate(ctx context.Context, plate string) (*models.Fleet, error) {
	args := m.Called(ctx, plate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Fleet), args.Error(1)
}

func (m *MockFleetCollection) FindFleets(ctx context.Context, filter bson.M, skip, limit int64) ([]models.Fleet, error) {
	args := m.Called(ctx, filter, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Fleet), args.Error(1)
}

func (m *MockFleetCollection) CountFleets(ctx context.Context, filter bson.M) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFleetCollection) UpdateFleetByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	args := m.Called(ctx, id, set)
	return args.Error(0)
}

func (m *MockFleetCollection) DeleteFleet(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFleetCollection) ActivateFleet(ctx context.Context, id, driverID primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id, driverID)
	return args.Bool(0), args.Error(1)
}

func (m *MockFleetCollection) DeactivateFleet(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByName(ctx context.Context, name string) (*models.User, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUsers(ctx context.Context, filter bson.M, skip, limit int64) ([]models.User, error) {
	args := m.Called(ctx, filter, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) CountUsers(ctx context.Context, filter bson.M) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserCollection) UpdateUserByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	args := m.Called(ctx, id, set)
	return args.Error(0)
}

func (m *MockUserCollection) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) SetDriverActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockUserCollection) PruneBoundedFleet(ctx context.Context, driverID, fleetID primitive.ObjectID) error {
	args := m.Called(ctx, driverID, fleetID)
	return args.Error(0)
}

func (m *MockUserCollection) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

// MockLocationCollection is a mock implementation of LocationCollection
type MockLocationCollection struct {
	mock.Mock
}

func (m *MockLocationCollection) InsertLocation(ctx context.Context, loc models.FleetLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *MockLocationCollection) FindLocationByID(ctx context.Context, id primitive.ObjectID) (*models.FleetLocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FleetLocation), args.Error(1)
}

func (m *MockLocationCollection) FindLocations(ctx context.Context, filter bson.M) ([]models.FleetLocation, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FleetLocation), args.Error(1)
}

func (m *MockLocationCollection) FindNthNewest(ctx context.Context, fleetID primitive.ObjectID, n int64) (*models.FleetLocation, error) {
	args := m.Called(ctx, fleetID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FleetLocation), args.Error(1)
}

func (m *MockLocationCollection) FindOlderThanNewest(ctx context.Context, fleetID primitive.ObjectID) ([]models.FleetLocation, error) {
	args := m.Called(ctx, fleetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FleetLocation), args.Error(1)
}

func (m *MockLocationCollection) CountLocations(ctx context.Context, filter bson.M) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLocationCollection) UpdateLocationByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	args := m.Called(ctx, id, set)
	return args.Error(0)
}

func (m *MockLocationCollection) DeleteLocation(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockArchiveCollection is a mock implementation of ArchiveCollection
type MockArchiveCollection struct {
	mock.Mock
}

func (m *MockArchiveCollection) UpsertLocation(ctx context.Context, loc models.FleetLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *MockArchiveCollection) FindArchived(ctx context.Context, filter bson.M, skip, limit int64) ([]models.FleetLocation, error) {
	args := m.Called(ctx, filter, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FleetLocation), args.Error(1)
}

func (m *MockArchiveCollection) CountArchived(ctx context.Context, filter bson.M) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockArchiveCollection) UpdateArchivedByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	args := m.Called(ctx, id, set)
	return args.Error(0)
}

type serviceMocks struct {
	fleets  *MockFleetCollection
	users   *MockUserCollection
	live    *MockLocationCollection
	archive *MockArchiveCollection
}

func newTestService(cfg Config) (*Service, *serviceMocks) {
	m := &serviceMocks{
		fleets:  new(MockFleetCollection),
		users:   new(MockUserCollection),
		live:    new(MockLocationCollection),
		archive: new(MockArchiveCollection),
	}
	svc := NewService(m.fleets, m.users, m.live, m.archive, cfg)
	return svc, m
}

func (m *serviceMocks) assertExpectations(t *testing.T) {
	m.fleets.AssertExpectations(t)
	m.users.AssertExpectations(t)
	m.live.AssertExpectations(t)
	m.archive.AssertExpectations(t)
}

// defaultConfig keeps the idle window long enough that timers never fire
// during a test run.
func defaultConfig() Config {
	return Config{IdleWindow: time.Hour, LiveWindow: 5}
}

func idleFleet(id primitive.ObjectID) *models.Fleet {
	return &models.Fleet{ID: id, LicencePlate: "34ABC123", Active: false}
}

func drivingFleet(id, driverID primitive.ObjectID) *models.Fleet {
	return &models.Fleet{ID: id, LicencePlate: "34ABC123", Active: true, DriverID: &driverID}
}

func boundDriver(id, fleetID primitive.ObjectID, active bool) *models.User {
	return &models.User{
		ID:            id,
		Username:      "driver1",
		Name:          "Test Driver",
		Roles:         []models.Role{models.RoleDriver},
		BoundedFleets: []primitive.ObjectID{fleetID},
		Active:        active,
	}
}

func TestService_StartDrive(t *testing.T) {
	ctx := context.Background()
	driverID := primitive.NewObjectID()
	fleetID := primitive.NewObjectID()

	t.Run("successful start", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())
		defer svc.Supervisor().Shutdown()

		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)
		m.fleets.On("ActivateFleet", mock.Anything, fleetID, driverID).Return(true, nil)
		m.users.On("SetDriverActive", mock.Anything, driverID, true).Return(nil)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.NoError(t, err)
		assert.True(t, svc.Supervisor().Pending(driverID.Hex()))
		m.assertExpectations(t)
	})

	t.Run("driver not found", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByID", mock.Anything, driverID).Return(nil, db.ErrNotFound)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrDriverNotFound, err)
		m.assertExpectations(t)
	})

	t.Run("missing fleet prunes stale binding", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(nil, db.ErrNotFound)
		m.users.On("PruneBoundedFleet", mock.Anything, driverID, fleetID).Return(nil)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrFleetNotFound, err)
		m.assertExpectations(t)
	})

	t.Run("missing fleet without binding skips prune", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		unbound := boundDriver(driverID, primitive.NewObjectID(), false)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(unbound, nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(nil, db.ErrNotFound)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrFleetNotFound, err)
		m.users.AssertNotCalled(t, "PruneBoundedFleet", mock.Anything, mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("fleet already active", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrAlreadyActive, err)
		m.fleets.AssertNotCalled(t, "ActivateFleet", mock.Anything, mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("driver not bound", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		unbound := boundDriver(driverID, primitive.NewObjectID(), false)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(unbound, nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrNotBound, err)
		m.assertExpectations(t)
	})

	t.Run("lost activation race", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)
		m.fleets.On("ActivateFleet", mock.Anything, fleetID, driverID).Return(false, nil)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrAlreadyActive, err)
		assert.False(t, svc.Supervisor().Pending(driverID.Hex()))
		m.users.AssertNotCalled(t, "SetDriverActive", mock.Anything, mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("driver activation failure rolls fleet back", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)
		m.fleets.On("ActivateFleet", mock.Anything, fleetID, driverID).Return(true, nil)
		m.users.On("SetDriverActive", mock.Anything, driverID, true).Return(assert.AnError)
		m.fleets.On("DeactivateFleet", mock.Anything, fleetID).Return(true, nil)

		err := svc.StartDrive(ctx, driverID, fleetID)

		assert.Error(t, err)
		assert.False(t, svc.Supervisor().Pending(driverID.Hex()))
		m.assertExpectations(t)
	})
}

func TestService_StopDrive(t *testing.T) {
	ctx := context.Background()
	driverID := primitive.NewObjectID()
	fleetID := primitive.NewObjectID()

	t.Run("successful stop archives older pings", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())
		svc.Supervisor().Arm(driverID.Hex(), fleetID.Hex())
		defer svc.Supervisor().Shutdown()

		older := []models.FleetLocation{
			{ID: primitive.NewObjectID(), FleetID: fleetID, DriverID: driverID, Timestamp: "2026-08-29T10:00:01.000Z"},
			{ID: primitive.NewObjectID(), FleetID: fleetID, DriverID: driverID, Timestamp: "2026-08-29T10:00:00.000Z"},
		}

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)
		m.live.On("FindOlderThanNewest", mock.Anything, fleetID).Return(older, nil)
		m.archive.On("UpsertLocation", mock.Anything, older[0]).Return(nil)
		m.archive.On("UpsertLocation", mock.Anything, older[1]).Return(nil)
		m.live.On("DeleteLocation", mock.Anything, older[0].ID).Return(nil)
		m.live.On("DeleteLocation", mock.Anything, older[1].ID).Return(nil)
		m.fleets.On("DeactivateFleet", mock.Anything, fleetID).Return(true, nil)
		m.users.On("SetDriverActive", mock.Anything, driverID, false).Return(nil)

		err := svc.StopDrive(ctx, driverID, fleetID)

		assert.NoError(t, err)
		assert.False(t, svc.Supervisor().Pending(driverID.Hex()))
		m.assertExpectations(t)
	})

	t.Run("fleet not found", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(nil, db.ErrNotFound)

		err := svc.StopDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrFleetNotFound, err)
		m.assertExpectations(t)
	})

	t.Run("fleet not active", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)

		err := svc.StopDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrNotActive, err)
		m.assertExpectations(t)
	})

	t.Run("driver not bound", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		unbound := boundDriver(driverID, primitive.NewObjectID(), true)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(unbound, nil)

		err := svc.StopDrive(ctx, driverID, fleetID)

		assert.Equal(t, ErrNotBound, err)
		m.fleets.AssertNotCalled(t, "DeactivateFleet", mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("deleted pings tolerated during archive", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())
		defer svc.Supervisor().Shutdown()

		older := []models.FleetLocation{
			{ID: primitive.NewObjectID(), FleetID: fleetID, DriverID: driverID, Timestamp: "2026-08-29T10:00:00.000Z"},
		}

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)
		m.live.On("FindOlderThanNewest", mock.Anything, fleetID).Return(older, nil)
		m.archive.On("UpsertLocation", mock.Anything, older[0]).Return(nil)
		m.live.On("DeleteLocation", mock.Anything, older[0].ID).Return(db.ErrNotFound)
		m.fleets.On("DeactivateFleet", mock.Anything, fleetID).Return(true, nil)
		m.users.On("SetDriverActive", mock.Anything, driverID, false).Return(nil)

		err := svc.StopDrive(ctx, driverID, fleetID)

		assert.NoError(t, err)
		m.assertExpectations(t)
	})
}

func TestService_IdleTimeout(t *testing.T) {
	driverID := primitive.NewObjectID()
	fleetID := primitive.NewObjectID()

	svc, m := newTestService(Config{IdleWindow: 20 * time.Millisecond, LiveWindow: 5})
	defer svc.Supervisor().Shutdown()

	deactivated := make(chan struct{})
	m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)
	m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)
	m.fleets.On("ActivateFleet", mock.Anything, fleetID, driverID).Return(true, nil)
	m.users.On("SetDriverActive", mock.Anything, driverID, true).Return(nil)
	m.fleets.On("DeactivateFleet", mock.Anything, fleetID).Return(true, nil)
	m.users.On("SetDriverActive", mock.Anything, driverID, false).Return(nil).Run(func(args mock.Arguments) {
		close(deactivated)
	})

	err := svc.StartDrive(context.Background(), driverID, fleetID)
	assert.NoError(t, err)

	select {
	case <-deactivated:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for idle deactivation")
	}
	assert.False(t, svc.Supervisor().Pending(driverID.Hex()))
	m.assertExpectations(t)
}

func TestService_SubmitPing(t *testing.T) {
	ctx := context.Background()
	driverID := primitive.NewObjectID()
	fleetID := primitive.NewObjectID()
	loc := models.Location{Lat: 41.0082, Lon: 28.9784}

	t.Run("successful submit by fleet id", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())
		defer svc.Supervisor().Shutdown()

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)
		m.live.On("InsertLocation", mock.Anything, mock.AnythingOfType("models.FleetLocation")).Return(nil)
		m.live.On("FindNthNewest", mock.Anything, fleetID, int64(5)).Return(nil, db.ErrNotFound)

		ping, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.NoError(t, err)
		assert.NotNil(t, ping)
		assert.Equal(t, fleetID, ping.FleetID)
		assert.Equal(t, driverID, ping.DriverID)
		assert.Equal(t, loc, ping.Location)
		assert.NotEmpty(t, ping.Timestamp)
		assert.True(t, svc.Supervisor().Pending(driverID.Hex()))
		m.assertExpectations(t)
	})

	t.Run("successful submit by licence plate", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())
		defer svc.Supervisor().Shutdown()

		m.fleets.On("FindFleetByLicencePlate", mock.Anything, "34ABC123").Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)
		m.live.On("InsertLocation", mock.Anything, mock.AnythingOfType("models.FleetLocation")).Return(nil)
		m.live.On("FindNthNewest", mock.Anything, fleetID, int64(5)).Return(nil, db.ErrNotFound)

		ping, err := svc.SubmitPing(ctx, driverID, SubmitRequest{LicencePlate: "34ABC123", Location: loc})

		assert.NoError(t, err)
		assert.Equal(t, fleetID, ping.FleetID)
		m.assertExpectations(t)
	})

	t.Run("retention overflow moves oldest ping", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())
		defer svc.Supervisor().Shutdown()

		overflow := &models.FleetLocation{
			ID:        primitive.NewObjectID(),
			FleetID:   fleetID,
			DriverID:  driverID,
			Timestamp: "2026-08-29T09:00:00.000Z",
		}

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)
		m.live.On("InsertLocation", mock.Anything, mock.AnythingOfType("models.FleetLocation")).Return(nil)
		m.live.On("FindNthNewest", mock.Anything, fleetID, int64(5)).Return(overflow, nil)
		m.archive.On("UpsertLocation", mock.Anything, *overflow).Return(nil)
		m.live.On("DeleteLocation", mock.Anything, overflow.ID).Return(nil)

		_, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("fleet not found", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(nil, db.ErrNotFound)

		_, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.Equal(t, ErrFleetNotFound, err)
		m.assertExpectations(t)
	})

	t.Run("driver not bound", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		unbound := boundDriver(driverID, primitive.NewObjectID(), true)
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(unbound, nil)

		_, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.Equal(t, ErrNotBound, err)
		m.assertExpectations(t)
	})

	t.Run("driver not active", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, driverID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, false), nil)

		_, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.Equal(t, ErrDriverNotActive, err)
		m.live.AssertNotCalled(t, "InsertLocation", mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("fleet not active", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(idleFleet(fleetID), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)

		_, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.Equal(t, ErrFleetNotActive, err)
		m.assertExpectations(t)
	})

	t.Run("fleet driven by someone else", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		otherDriver := primitive.NewObjectID()
		m.fleets.On("FindFleetByID", mock.Anything, fleetID).Return(drivingFleet(fleetID, otherDriver), nil)
		m.users.On("FindUserByID", mock.Anything, driverID).Return(boundDriver(driverID, fleetID, true), nil)

		_, err := svc.SubmitPing(ctx, driverID, SubmitRequest{FleetID: &fleetID, Location: loc})

		assert.Equal(t, ErrDriverMismatch, err)
		m.assertExpectations(t)
	})
}

func TestService_SearchPings(t *testing.T) {
	ctx := context.Background()
	driverID := primitive.NewObjectID()
	fleetID := primitive.NewObjectID()

	t.Run("filter by fleet id", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		pings := []models.FleetLocation{{ID: primitive.NewObjectID(), FleetID: fleetID}}
		m.live.On("FindLocations", mock.Anything, bson.M{"fleet_id": fleetID}).Return(pings, nil)

		result, err := svc.SearchPings(ctx, SearchQuery{FleetID: &fleetID})

		assert.NoError(t, err)
		assert.Equal(t, pings, result)
		m.assertExpectations(t)
	})

	t.Run("licence plate resolves to fleet id", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByLicencePlate", mock.Anything, "34ABC123").Return(drivingFleet(fleetID, driverID), nil)
		m.live.On("FindLocations", mock.Anything, bson.M{"fleet_id": fleetID}).Return([]models.FleetLocation{}, nil)

		result, err := svc.SearchPings(ctx, SearchQuery{LicencePlate: "34ABC123"})

		assert.NoError(t, err)
		assert.Empty(t, result)
		m.assertExpectations(t)
	})

	t.Run("unknown licence plate", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.fleets.On("FindFleetByLicencePlate", mock.Anything, "99XYZ999").Return(nil, db.ErrNotFound)

		_, err := svc.SearchPings(ctx, SearchQuery{LicencePlate: "99XYZ999"})

		assert.Equal(t, ErrFleetNotFound, err)
		m.assertExpectations(t)
	})

	t.Run("driver name resolves to driver id", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByName", mock.Anything, "Test Driver").Return(boundDriver(driverID, fleetID, true), nil)
		m.live.On("FindLocations", mock.Anything, bson.M{"driver_id": driverID}).Return([]models.FleetLocation{}, nil)

		_, err := svc.SearchPings(ctx, SearchQuery{DriverName: "Test Driver"})

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("unknown driver name", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		m.users.On("FindUserByName", mock.Anything, "Nobody").Return(nil, db.ErrNotFound)

		_, err := svc.SearchPings(ctx, SearchQuery{DriverName: "Nobody"})

		assert.Equal(t, ErrDriverNotFound, err)
		m.assertExpectations(t)
	})

	t.Run("radius filter drops distant pings", func(t *testing.T) {
		svc, m := newTestService(defaultConfig())

		near := models.FleetLocation{ID: primitive.NewObjectID(), FleetID: fleetID, Location: models.Location{Lat: 41.0090, Lon: 28.9790}}
		far := models.FleetLocation{ID: primitive.NewObjectID(), FleetID: fleetID, Location: models.Location{Lat: 48.8566, Lon: 2.3522}}
		m.live.On("FindLocations", mock.Anything, bson.M{"fleet_id": fleetID}).Return([]models.FleetLocation{near, far}, nil)

		lat, lon, radius := 41.0082, 28.9784, 5.0
		result, err := svc.SearchPings(ctx, SearchQuery{FleetID: &fleetID, Lat: &lat, Lon: &lon, Radius: &radius})

		assert.NoError(t, err)
		assert.Equal(t, []models.FleetLocation{near}, result)
		m.assertExpectations(t)
	})
}
