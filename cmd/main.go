package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-tracker/internal/auth"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/handlers"
	"github.com/ukydev/fleet-tracker/internal/middleware"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/mqtt"
	"github.com/ukydev/fleet-tracker/internal/tracking"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using process environment")
	}
	log.SetFormatter(&log.JSONFormatter{})

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())
	log.Info("Connected to MongoDB")

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "fleet"
	}
	database := client.Database(dbName)

	if err := db.EnsureIndexes(context.Background(), database); err != nil {
		log.WithError(err).Fatal("Failed to create indexes")
	}

	users := &db.MongoUserCollection{Collection: database.Collection(db.CollUsers)}
	fleets := &db.MongoFleetCollection{Collection: database.Collection(db.CollFleets)}
	live := &db.MongoLocationCollection{Collection: database.Collection(db.CollLocations)}
	archive := &db.MongoArchiveCollection{Collection: database.Collection(db.CollOldLocations)}
	tokens := &db.MongoTokenCollection{Collection: database.Collection(db.CollRevokedTokens)}
	graveyard := &db.MongoGraveyardCollection{
		Users:  database.Collection(db.CollDeletedUsers),
		Fleets: database.Collection(db.CollDeletedFleets),
	}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Failed to create auth service")
	}

	trackingCfg := tracking.ConfigFromEnv()
	tracker := tracking.NewService(fleets, users, live, archive, trackingCfg)
	defer tracker.Supervisor().Shutdown()

	log.WithFields(log.Fields{
		"idle_window": trackingCfg.IdleWindow,
		"live_window": trackingCfg.LiveWindow,
	}).Info("Tracking service configured")

	authHandler := handlers.NewAuthHandler(authService, users, tokens)
	userHandler := handlers.NewUserHandler(authService, users, graveyard)
	fleetHandler := handlers.NewFleetHandler(fleets, graveyard)
	locationHandler := handlers.NewLocationHandler(tracker, live, archive)
	authMW := middleware.NewAuthMiddleware(authService, users)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)

			r.Route("/users", func(r chi.Router) {
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM)).Get("/", userHandler.List)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM)).Get("/search", userHandler.Search)
				r.With(authMW.RequireSelfOrAdmin).Patch("/{userId}", userHandler.Update)
				r.With(authMW.RequireRole(models.RoleAdmin)).Delete("/{userId}", userHandler.Delete)
			})

			r.Route("/fleets", func(r chi.Router) {
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM, models.RoleDriver)).Get("/", fleetHandler.List)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM, models.RoleDriver)).Get("/search", fleetHandler.Search)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM)).Post("/", fleetHandler.Create)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM)).Put("/{fleetId}", fleetHandler.Update)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleHCM)).Delete("/{fleetId}", fleetHandler.Delete)
			})

			r.Route("/fleetLocations", func(r chi.Router) {
				viewers := authMW.RequireRole(models.RoleAdmin, models.RoleHCM, models.RoleDriver)
				drivers := authMW.RequireRole(models.RoleDriver)
				admins := authMW.RequireRole(models.RoleAdmin)

				r.With(drivers).Post("/drive", locationHandler.Drive)
				r.With(drivers).Post("/stop", locationHandler.Stop)
				r.With(drivers).Post("/", locationHandler.Create)
				r.With(viewers).Get("/", locationHandler.List)
				r.With(viewers).Get("/search", locationHandler.Search)
				r.With(viewers).Get("/old", locationHandler.Old)
				r.With(viewers).Get("/old/search", locationHandler.OldSearch)
				r.With(viewers).Patch("/old/{oldFleetLocationId}", locationHandler.UpdateOld)
				r.With(admins).Patch("/{fleetLocationId}", locationHandler.Update)
				r.With(admins).Delete("/{fleetLocationId}", locationHandler.Delete)
			})
		})
	})

	if brokerURL := os.Getenv("MQTT_BROKER"); brokerURL != "" {
		topic := os.Getenv("MQTT_TOPIC")
		if topic == "" {
			topic = "fleet/pings"
		}
		bridge, err := mqtt.NewBridge(brokerURL, "fleet-tracker-api", topic, tracker)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect MQTT bridge")
		}
		if err := bridge.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start MQTT bridge")
		}
		defer bridge.Close()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.WithField("port", port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
}
