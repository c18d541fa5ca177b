package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/auth"
	"github.com/maintly/pm-engine/internal/config"
	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/handlers"
	"github.com/maintly/pm-engine/internal/ingest"
	"github.com/maintly/pm-engine/internal/middleware"
	"github.com/maintly/pm-engine/internal/notify"
	"github.com/maintly/pm-engine/internal/pm"
	"github.com/maintly/pm-engine/internal/scheduler"
	"github.com/maintly/pm-engine/internal/workorder"
)

func main() {
	// .env is optional; env vars win either way.
	_ = godotenv.Load()

	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	log.Info("Connected to MongoDB")

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = cfg.Mongo.Database
	}
	store := db.NewMongoStore(client.Database(dbName))

	workOrderURL := os.Getenv("WORKORDER_API_URL")
	if workOrderURL == "" {
		workOrderURL = cfg.WorkOrder.BaseURL
	}
	workOrderToken := os.Getenv("WORKORDER_API_TOKEN")
	if workOrderToken == "" {
		workOrderToken = cfg.WorkOrder.Token
	}
	workOrders := workorder.NewHTTPClient(workOrderURL, workOrderToken)

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.MQTT.Broker
	}
	var notifier notify.Notifier = notify.LogNotifier{}
	if broker != "" {
		mqttNotifier, err := notify.NewMQTTNotifier(broker, cfg.MQTT.ClientID+"-alerts")
		if err != nil {
			log.WithError(err).Warn("Alert broker unavailable, falling back to log notifier")
		} else {
			defer mqttNotifier.Close()
			notifier = mqttNotifier
		}

		sub, err := ingest.NewSubscriber(store, broker, cfg.MQTT.ClientID+"-ingest", cfg.MQTT.ReadingsTopic)
		if err != nil {
			log.WithError(err).Warn("Meter feed broker unavailable, readings limited to HTTP")
		} else {
			defer sub.Close()
		}
	}

	generator := pm.NewGenerator(store, workOrders)
	lifecycle := pm.NewLifecycle(store)
	driver := pm.NewDriver(store, generator, notifier)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(driver, cfg.Scheduler.FullPassSpec, cfg.Scheduler.MeterPassSpec, cfg.Scheduler.LookaheadDays)
		if err != nil {
			log.WithError(err).Fatal("Failed to build scheduler")
		}
		sched.Start()
		defer sched.Stop()
		log.WithFields(log.Fields{
			"full_pass":  cfg.Scheduler.FullPassSpec,
			"meter_pass": cfg.Scheduler.MeterPassSpec,
		}).Info("In-process scheduler started")
	}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Failed to build auth service")
	}
	authMW := middleware.NewAuthMiddleware(authService)

	pmHandler := handlers.NewPMHandler(driver, lifecycle, store, cfg.Scheduler.LookaheadDays)
	adminHandler := handlers.NewAdminHandler(store)
	router := handlers.NewRouter(pmHandler, adminHandler, authMW)

	port := os.Getenv("PORT")
	if port == "" {
		port = fmt.Sprintf("%d", cfg.Server.Port)
	}
	log.WithField("port", port).Info("HTTP server listening")
	log.Fatal(http.ListenAndServe(":"+port, router))
}
