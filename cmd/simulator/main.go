package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Start points for simulated drives
var cities = []Location{
	{Lat: 51.5074, Lon: -0.1278},  // London
	{Lat: 40.7128, Lon: -74.0060}, // New York
	{Lat: 48.8566, Lon: 2.3522},   // Paris
	{Lat: 41.0082, Lon: 28.9784},  // Istanbul
	{Lat: 52.5200, Lon: 13.4050},  // Berlin
	{Lat: 1.3521, Lon: 103.8198},  // Singapore
	{Lat: 25.2048, Lon: 55.2708},  // Dubai
	{Lat: -6.2088, Lon: 106.8456}, // Jakarta
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

var authToken string

func authorizedPost(url string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func login(apiURL, username, password string) error {
	resp, err := authorizedPost(apiURL+"/login", map[string]string{
		"usernameOrEmail": username,
		"password":        password,
	})
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status: %d", resp.StatusCode)
	}
	var result struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	authToken = result.AccessToken
	return nil
}

func startDrive(apiURL, fleetID string) error {
	resp, err := authorizedPost(apiURL+"/fleetLocations/drive", map[string]string{"fleetId": fleetID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drive start failed with status: %d", resp.StatusCode)
	}
	return nil
}

func stopDrive(apiURL, fleetID string) error {
	resp, err := authorizedPost(apiURL+"/fleetLocations/stop", map[string]string{"fleetId": fleetID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drive stop failed with status: %d", resp.StatusCode)
	}
	return nil
}

func sendPing(apiURL, fleetID string, loc Location) {
	resp, err := authorizedPost(apiURL+"/fleetLocations", map[string]interface{}{
		"fleetId":  fleetID,
		"location": loc,
	})
	if err != nil {
		log.WithError(err).Error("Failed to send ping")
		return
	}
	defer resp.Body.Close()
	log.WithFields(log.Fields{
		"fleet_id": fleetID,
		"status":   resp.Status,
		"lat":      loc.Lat,
		"lon":      loc.Lon,
	}).Info("Sent ping")
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api/v1"
	}

	fleetID := os.Getenv("SIM_FLEET_ID")
	if fleetID == "" {
		log.Fatal("SIM_FLEET_ID is required")
	}

	authToken = os.Getenv("SIM_AUTH_TOKEN")
	if authToken == "" {
		username := os.Getenv("SIM_USERNAME")
		password := os.Getenv("SIM_PASSWORD")
		if username == "" || password == "" {
			log.Fatal("Set SIM_AUTH_TOKEN or SIM_USERNAME and SIM_PASSWORD")
		}
		if err := login(apiURL, username, password); err != nil {
			log.WithError(err).Fatal("Login failed")
		}
	}

	interval := 5 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}
	pings := 20
	if v := os.Getenv("SIM_PING_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			pings = n
		}
	}

	log.WithFields(log.Fields{
		"api_url":  apiURL,
		"fleet_id": fleetID,
		"interval": interval,
		"pings":    pings,
	}).Info("Starting drive simulation")

	if err := startDrive(apiURL, fleetID); err != nil {
		log.WithError(err).Fatal("Failed to start drive")
	}

	position := jitterLocation(cities[rand.Intn(len(cities))], 500)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for i := 0; i < pings; i++ {
		<-tick.C
		// Drift roughly a city block per tick.
		position = jitterLocation(position, 150)
		sendPing(apiURL, fleetID, position)
	}

	if err := stopDrive(apiURL, fleetID); err != nil {
		log.WithError(err).Fatal("Failed to stop drive")
	}
	log.Info("Drive simulation finished")
}
