package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/tracking"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Submitter feeds pings into the tracking pipeline.
type Submitter interface {
	SubmitPing(ctx context.Context, driverID primitive.ObjectID, req tracking.SubmitRequest) (*models.FleetLocation, error)
}

// pingPayload is the JSON shape drivers publish on the ping topic. The broker
// authenticates publishers; the bridge runs inside that trust boundary and
// takes the driver id from the payload.
type pingPayload struct {
	DriverID     string           `json:"driverId"`
	FleetID      string           `json:"fleetId"`
	LicencePlate string           `json:"licencePlate"`
	Location     *models.Location `json:"location"`
}

// Bridge subscribes to a broker topic and forwards location pings into the
// same pipeline the HTTP route uses.
type Bridge struct {
	client  paho.Client
	topic   string
	tracker Submitter
}

// NewBridge connects to the broker and returns a bridge ready to Start.
func NewBridge(brokerURL, clientID, topic string, tracker Submitter) (*Bridge, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return &Bridge{
		client:  client,
		topic:   topic,
		tracker: tracker,
	}, nil
}

// Start subscribes to the ping topic. Handler errors are logged, never
// propagated: there is no publisher waiting for a response.
func (b *Bridge) Start() error {
	token := b.client.Subscribe(b.topic, 1, b.handle)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %q: %w", b.topic, token.Error())
	}
	log.WithField("topic", b.topic).Info("MQTT ping bridge subscribed")
	return nil
}

func (b *Bridge) handle(_ paho.Client, msg paho.Message) {
	logger := log.WithField("topic", msg.Topic())

	var payload pingPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		logger.WithError(err).Warn("Dropping malformed ping payload")
		return
	}
	if payload.Location == nil || payload.DriverID == "" ||
		(payload.FleetID == "" && payload.LicencePlate == "") {
		logger.Warn("Dropping incomplete ping payload")
		return
	}

	driverID, err := primitive.ObjectIDFromHex(payload.DriverID)
	if err != nil {
		logger.WithError(err).Warn("Dropping ping with invalid driver id")
		return
	}

	req := tracking.SubmitRequest{
		LicencePlate: payload.LicencePlate,
		Location:     *payload.Location,
	}
	if payload.FleetID != "" {
		fleetID, err := primitive.ObjectIDFromHex(payload.FleetID)
		if err != nil {
			logger.WithError(err).Warn("Dropping ping with invalid fleet id")
			return
		}
		req.FleetID = &fleetID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := b.tracker.SubmitPing(ctx, driverID, req); err != nil {
		logger.WithError(err).WithField("driver_id", payload.DriverID).
			Warn("Rejected ping from broker")
	}
}

// Close disconnects from the broker, letting in-flight handlers finish.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
