// Shadecore - RF window shade command coordinator
//
// Shadecore accepts fire-and-forget shade and scene commands over HTTP,
// drives multi-shot RF transmission sequences through an MQTT-attached
// bridge, and reports task lifecycle events to WebSocket clients.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/DOUGSKEEZ/monty-sub006/migrations"

	"github.com/DOUGSKEEZ/monty-sub006/internal/api"
	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
	"github.com/DOUGSKEEZ/monty-sub006/internal/dispatch"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/config"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/database"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/influxdb"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/logging"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/mqtt"
	"github.com/DOUGSKEEZ/monty-sub006/internal/transmitter"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit // wiring: each component is connected once, in dependency order
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting shadecore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and apply migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise shade/scene catalog
	repo := catalog.NewSQLiteRepository(db.DB)
	registry := catalog.NewRegistry(repo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading shade catalog: %w", refreshErr)
	}
	shades, err := registry.ListShades(ctx)
	if err != nil {
		return fmt.Errorf("listing shades: %w", err)
	}
	log.Info("shade catalog initialised", "shades", len(shades))

	// Connect to MQTT broker; the RF bridge publishes through it
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Asynchronous publisher for task lifecycle events. Closed after the
	// dispatcher, so every task emitted during shutdown still drains.
	mqttEvents := newMQTTEventSink(mqttClient, log)
	defer mqttEvents.Close()

	// RF bridge transmitter publishing command frames over MQTT
	rfBridge := transmitter.New(mqttClient, registry)
	rfBridge.SetLogger(log)

	// Command dispatcher
	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, cfg.Transmitter.AckTimeout, registry, rfBridge)
	dispatcher.SetLogger(log)
	if influxClient != nil {
		dispatcher.SetTelemetry(influxClient)
	}
	defer func() {
		log.Info("stopping dispatcher")
		dispatcher.Close()
	}()

	// Zombie reaper for stuck sequences
	reaper := dispatch.NewReaper(dispatcher.Registry(), cfg.Dispatch.ReaperInterval)
	reaper.SetLogger(log)
	if influxClient != nil {
		reaper.SetTelemetry(influxClient)
	}

	// REST API and WebSocket server
	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Catalog:    registry,
		Dispatcher: dispatcher,
		MQTT:       mqttClient,
		DB:         db,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Task lifecycle events fan out to WebSocket clients and the MQTT bus
	events := multiSink{srv.Hub(), mqttEvents}
	dispatcher.SetEvents(events)
	reaper.SetEvents(events)

	reaper.Start()
	defer func() {
		log.Info("stopping reaper")
		reaper.Stop()
	}()

	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHADECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHADECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// multiSink fans a dispatch event out to several sinks.
type multiSink []dispatch.EventSink

func (m multiSink) Emit(e dispatch.Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

// eventPublisher is the MQTT surface the event sink needs. *mqtt.Client
// satisfies it.
type eventPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// eventQueueSize bounds the events awaiting publication. Emit drops when
// the queue is full rather than stall a submission on a slow broker.
const eventQueueSize = 256

// mqttEventSink publishes task lifecycle events to the MQTT bus so other
// systems (dashboards, automations) can follow dispatch activity without
// holding a WebSocket connection. Emit never blocks; a single writer
// goroutine drains the queue and does the broker waits.
type mqttEventSink struct {
	publisher eventPublisher
	topics    mqtt.Topics
	logger    *logging.Logger

	queue chan dispatch.Event
	done  chan struct{}
}

func newMQTTEventSink(publisher eventPublisher, logger *logging.Logger) *mqttEventSink {
	s := &mqttEventSink{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan dispatch.Event, eventQueueSize),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *mqttEventSink) Emit(e dispatch.Event) {
	select {
	case s.queue <- e:
	default:
		s.logger.Debug("event queue full, dropping event", "type", e.Type, "task_id", e.TaskID)
	}
}

// Close stops the writer goroutine after the queued events have been
// published. Emit must not be called after Close.
func (s *mqttEventSink) Close() {
	close(s.queue)
	<-s.done
}

func (s *mqttEventSink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.publish(e)
	}
}

func (s *mqttEventSink) publish(e dispatch.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(s.topics.TaskEvent(e.Type), payload, 0, false); err != nil {
		s.logger.Debug("task event publish failed", "type", e.Type, "error", err)
	}

	// Scene starts are additionally published retained, so late subscribers
	// can read the most recently activated scene.
	if e.Type == dispatch.EventTaskStarted {
		if name, ok := strings.CutPrefix(e.Target, "scene:"); ok {
			if err := s.publisher.PublishRetained(s.topics.SceneActivated(name), payload); err != nil {
				s.logger.Debug("scene activation publish failed", "scene", name, "error", err)
			}
		}
	}
}
