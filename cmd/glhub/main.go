// Gray Logic Hub - home automation hub
//
// This is the main entry point for the hub process. It loads the
// configuration, opens the database, starts the event loop with the plugin
// runtime and the JSON-RPC dispatcher, and serves clients over TCP,
// WebSocket, Bluetooth RFCOMM and the cloud relay until it receives
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/eventloop"
	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/jsonrpc"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
	"github.com/nerrad567/gray-logic-hub/internal/session"
	"github.com/nerrad567/gray-logic-hub/internal/transport"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// restoreTimeout bounds loading and re-setting up stored things at start-up.
const restoreTimeout = time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	if cfg.Server.UUID == "" {
		cfg.Server.UUID = derivedServerUUID(cfg.Server.Name)
		log.Warn("server.uuid not set, using a host-derived id", "uuid", cfg.Server.UUID)
	}

	m := metrics.New()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)

	authMgr := auth.NewManager(auth.NewUserRepository(db.DB), auth.NewTokenRepository(db.DB), auth.Options{
		Secret:   []byte(cfg.Security.JWT.Secret),
		TokenTTL: time.Duration(cfg.Security.JWT.TokenTTL) * 24 * time.Hour,
		Logger:   log.Component("auth"),
	})
	if loadErr := authMgr.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading users and tokens: %w", loadErr)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub, err := newHub(cfg, hubDeps{
		log:    log,
		db:     db,
		auth:   authMgr,
		mqtt:   mqttClient,
		influx: influxClient,
		m:      m,
	})
	if err != nil {
		return err
	}
	return hub.serve(ctx)
}

// hubDeps are the infrastructure clients the hub is assembled from.
type hubDeps struct {
	log    *logging.Logger
	db     *database.DB
	auth   *auth.Manager
	mqtt   *mqtt.Client // nil when MQTT is disabled
	influx *influxdb.Client
	m      *metrics.Metrics
}

// hub is the assembled process: the event loop and everything that runs
// on it, plus the transports and HTTP server feeding it.
type hub struct {
	cfg *config.Config
	log *logging.Logger

	loop       *eventloop.Loop
	ops        *pending.Correlator
	registry   *session.Registry
	dispatcher *jsonrpc.Dispatcher
	broker     *hardware.Broker
	runtime    *integrations.Runtime
	publisher  *integrations.StatePublisher
	recorder   *audit.Recorder
	transports []transport.Transport
	api        *api.Server
	mqttUp     func() bool
}

// serve starts every component and blocks until ctx is cancelled, then
// shuts down in reverse order. The event loop is stopped last so the
// disconnects reported by closing transports are still processed.
func (h *hub) serve(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.loop.Run(loopCtx) })

	// Queue drainers stop with the loop rather than with ctx, so a
	// failed start does not leave g.Wait blocked on them.
	workCtx, stopWorkers := context.WithCancel(loopCtx)
	defer stopWorkers()
	g.Go(func() error {
		h.recorder.Run(workCtx)
		return nil
	})
	if h.publisher != nil {
		g.Go(func() error {
			h.publisher.Run(workCtx)
			return nil
		})
	}

	if err := h.restore(gctx); err != nil {
		stopLoop()
		return errors.Join(err, g.Wait())
	}

	if err := h.broker.Start(gctx); err != nil {
		stopLoop()
		return errors.Join(fmt.Errorf("starting hardware broker: %w", err), g.Wait())
	}

	started := make([]transport.Transport, 0, len(h.transports))
	startErr := func() error {
		for _, t := range h.transports {
			if err := t.Start(gctx); err != nil {
				return fmt.Errorf("starting %s transport: %w", t.Name(), err)
			}
			started = append(started, t)
			h.log.Info("transport started", "transport", t.Name())
		}
		if h.api != nil {
			if err := h.api.Start(gctx); err != nil {
				return fmt.Errorf("starting API server: %w", err)
			}
		}
		return nil
	}()

	if startErr == nil {
		h.log.Info("initialisation complete, waiting for shutdown signal",
			"server", h.cfg.Server.Name, "uuid", h.cfg.Server.UUID)
		<-gctx.Done()
		h.log.Info("shutdown signal received, cleaning up")
	}

	if h.api != nil {
		if err := h.api.Close(); err != nil {
			h.log.Error("error closing API server", "error", err)
		}
	}
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(); err != nil {
			h.log.Error("error stopping transport", "transport", started[i].Name(), "error", err)
		}
	}
	h.broker.Stop()
	stopLoop()

	err := errors.Join(startErr, g.Wait())
	if err == nil {
		h.log.Info("Gray Logic Hub stopped")
	}
	return err
}

// restore re-creates stored things on the loop.
func (h *hub) restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, restoreTimeout)
	defer cancel()

	var restoreErr error
	if err := h.loop.Do(ctx, func() { restoreErr = h.runtime.Restore(ctx) }); err != nil {
		return fmt.Errorf("restoring things: %w", err)
	}
	if restoreErr != nil {
		return fmt.Errorf("restoring things: %w", restoreErr)
	}
	return nil
}

// status collects the loop-owned part of GET /api/v1/status.
func (h *hub) status(ctx context.Context) (api.HubStatus, error) {
	st := api.HubStatus{
		Server:            api.ServerInfo{Name: h.cfg.Server.Name, UUID: h.cfg.Server.UUID},
		Clients:           h.registry.CountByTransport(),
		PendingOperations: make(map[string]int),
		MQTT:              api.MQTTStatus{Enabled: h.cfg.MQTT.Enabled},
	}
	err := h.loop.Do(ctx, func() {
		st.Things = h.runtime.ThingCount()
		for kind, n := range h.ops.PendingByKind() {
			st.PendingOperations[string(kind)] = n
		}
	})
	if err != nil {
		return api.HubStatus{}, err
	}
	if h.mqttUp != nil {
		st.MQTT.Connected = h.mqttUp()
	}
	return st, nil
}

// getConfigPath returns the configuration file path.
// Uses GLHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
