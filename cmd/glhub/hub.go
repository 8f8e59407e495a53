package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/eventloop"
	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/jsonrpc"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
	"github.com/nerrad567/gray-logic-hub/internal/plugins"
	"github.com/nerrad567/gray-logic-hub/internal/session"
	"github.com/nerrad567/gray-logic-hub/internal/transport/bluetooth"
	"github.com/nerrad567/gray-logic-hub/internal/transport/cloud"
	"github.com/nerrad567/gray-logic-hub/internal/transport/tcp"
	"github.com/nerrad567/gray-logic-hub/internal/transport/websocket"
)

// newHub wires the event loop, session registry, dispatcher, hardware
// broker, plugin runtime, transports and HTTP server. Nothing is started.
func newHub(cfg *config.Config, deps hubDeps) (*hub, error) {
	log := deps.log
	h := &hub{cfg: cfg, log: log}

	h.loop = eventloop.New()
	h.loop.SetLogger(log.Component("eventloop"))

	h.ops = pending.New(h.loop)
	h.ops.SetLogger(log.Component("pending"))
	h.ops.SetMetrics(deps.m)

	sessOpts := session.Options{
		AuthenticationRequired: cfg.JSONRPC.AuthenticationRequired,
		Validator:              deps.auth,
		Logger:                 log.Component("session"),
	}
	if cfg.Security.RateLimit.Enabled {
		sessOpts.RequestsPerMinute = cfg.Security.RateLimit.RequestsPerMinute
		sessOpts.Burst = cfg.Security.RateLimit.Burst
	}
	h.registry = session.NewRegistry(sessOpts)

	h.dispatcher = jsonrpc.New(h.loop, h.registry, h.ops, jsonrpc.Options{
		RequireHello:     cfg.JSONRPC.RequireHello,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		Metrics:          deps.m,
		Logger:           log.Component("jsonrpc"),
	})

	h.broker = hardware.NewBroker(h.loop, hardwareOptions(cfg, deps))

	h.runtime = integrations.New(h.loop, h.ops, h.broker, integrations.NewSQLiteStore(deps.db.DB), integrations.Options{
		SetupTimeout:     cfg.SetupTimeout(),
		ActionTimeout:    cfg.ActionTimeout(),
		DiscoveryTimeout: cfg.DiscoveryTimeout(),
		Metrics:          deps.m,
		Logger:           log.Component("integrations"),
		PluginLogger: func(pluginID string) integrations.Logger {
			return log.Component("plugin").With("plugin_id", pluginID)
		},
	})
	if err := loadPlugins(h.runtime, cfg.Plugins.Enabled); err != nil {
		return nil, err
	}

	jsonrpcNS := jsonrpc.NewJSONRPCNamespace(h.dispatcher, jsonrpc.JSONRPCOptions{
		Server: jsonrpc.ServerInfo{
			Name:    cfg.Server.Name,
			UUID:    cfg.Server.UUID,
			Version: version,
			Locale:  cfg.Server.Locale,
		},
		Auth:        deps.auth,
		AuthTimeout: cfg.AuthenticationTimeout(),
	})
	for _, ns := range []*jsonrpc.Namespace{jsonrpcNS, jsonrpc.NewIntegrationsNamespace(h.runtime)} {
		if err := h.dispatcher.Register(ns); err != nil {
			return nil, fmt.Errorf("registering %s namespace: %w", ns.Name, err)
		}
	}

	h.runtime.AddObserver(jsonrpc.NewNotifier(h.dispatcher))
	auditRepo := audit.NewSQLiteRepository(deps.db.DB)
	h.recorder = audit.NewRecorder(auditRepo, log.Component("audit"))
	h.runtime.AddObserver(h.recorder)
	if deps.influx != nil {
		h.runtime.AddObserver(integrations.NewHistoryObserver(deps.influx))
	}
	if deps.mqtt != nil {
		h.publisher = integrations.NewStatePublisher(deps.mqtt, byte(cfg.MQTT.QoS), log.Component("publisher"))
		h.runtime.AddObserver(h.publisher)
		h.mqttUp = deps.mqtt.IsConnected
	}

	ws, err := h.buildTransports(deps)
	if err != nil {
		return nil, err
	}

	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Version: version,
			Status:  h.status,
			Metrics: deps.m.Handler(),
			Audit:   auditRepo,
		}
		if ws != nil {
			apiDeps.WebSocket = ws
			apiDeps.WebSocketPath = cfg.Transports.WebSocket.Path
		}
		if h.api, err = api.New(apiDeps); err != nil {
			return nil, fmt.Errorf("creating API server: %w", err)
		}
	}
	return h, nil
}

// buildTransports creates every enabled transport. The WebSocket
// transport is returned separately so it can be mounted on the API router.
func (h *hub) buildTransports(deps hubDeps) (*websocket.Transport, error) {
	cfg := h.cfg.Transports
	log := h.log

	if cfg.TCP.Enabled {
		opts := tcp.Options{
			Host:          cfg.TCP.Host,
			Port:          cfg.TCP.Port,
			MaxBufferSize: h.cfg.JSONRPC.MaxBufferSize,
			Logger:        log.Component("transport").With("transport", tcp.Name),
		}
		if cfg.TCP.TLS.Enabled {
			tlsCfg, err := tcp.LoadTLSConfig(cfg.TCP.TLS.CertFile, cfg.TCP.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("loading tcp tls config: %w", err)
			}
			opts.TLS = tlsCfg
		}
		if h.cfg.Zeroconf.Enabled {
			opts.Advertiser = tcp.NewZeroconfAdvertiser(h.cfg.Server.Name, h.cfg.Zeroconf.ServiceType,
				h.cfg.Zeroconf.Domain, h.cfg.Server.UUID, version)
		}
		h.transports = append(h.transports, tcp.New(opts, h.dispatcher))
	}

	var ws *websocket.Transport
	if cfg.WebSocket.Enabled {
		ws = websocket.New(websocket.Options{
			PingInterval:   secs(cfg.WebSocket.PingInterval),
			PongTimeout:    secs(cfg.WebSocket.PongTimeout),
			MaxMessageSize: int64(cfg.WebSocket.MaxMessageSize),
			Logger:         log.Component("transport").With("transport", websocket.Name),
		}, h.dispatcher)
		h.transports = append(h.transports, ws)
	}

	if cfg.Bluetooth.Enabled {
		h.transports = append(h.transports, bluetooth.New(bluetooth.Options{
			ServiceName:   cfg.Bluetooth.ServiceName,
			Channel:       uint16(cfg.Bluetooth.Channel),
			MaxBufferSize: h.cfg.JSONRPC.MaxBufferSize,
			Logger:        log.Component("transport").With("transport", bluetooth.Name),
		}, h.dispatcher))
	}

	if cfg.Cloud.Enabled {
		h.transports = append(h.transports, cloud.New(cloud.Options{
			Relay:      cfg.Cloud.Relay,
			Token:      cfg.Cloud.Token,
			ServerUUID: h.cfg.Server.UUID,
			ServerName: h.cfg.Server.Name,
			TLS: &tls.Config{
				MinVersion: tls.VersionTLS12,
				//nolint:gosec // Opt-in for self-hosted relays with private certificates
				InsecureSkipVerify: cfg.Cloud.InsecureSkipVerify,
			},
			InitialDelay:       secs(cfg.Cloud.Reconnect.InitialDelay),
			MaxDelay:           secs(cfg.Cloud.Reconnect.MaxDelay),
			MaxAttempts:        cfg.Cloud.Reconnect.MaxAttempts,
			AuthTimeout:        h.cfg.AuthenticationTimeout(),
			MaxBufferSize:      h.cfg.JSONRPC.MaxBufferSize,
			OnConnectionChange: deps.m.SetCloudConnected,
			Logger:             log.Component("transport").With("transport", cloud.Name),
		}, h.dispatcher))
	}

	if len(h.transports) == 0 {
		log.Warn("no transports enabled, clients cannot connect")
	}
	return ws, nil
}

// hardwareOptions maps the hardware section onto broker options. The
// BLE central and mDNS feed are only created when enabled.
func hardwareOptions(cfg *config.Config, deps hubDeps) hardware.Options {
	hw := cfg.Hardware
	opts := hardware.Options{
		TickInterval:  cfg.TickInterval(),
		HTTPTimeout:   secs(hw.Network.Timeout),
		MaxConcurrent: int64(hw.Network.MaxConcurrent),
		Logger:        deps.log.Component("hardware"),
	}
	if hw.Bluetooth.Enabled {
		opts.Scanner = &hardware.BlueZScanner{
			Adapter: hw.Bluetooth.Adapter,
			Logger:  deps.log.Component("hardware").With("resource", string(hardware.BluetoothLE)),
		}
	}
	if hw.Discovery.Enabled {
		opts.Browser = hardware.ZeroconfBrowser{}
		opts.ServiceTypes = hw.Discovery.ServiceTypes
		opts.Domain = hw.Discovery.Domain
	}
	// A nil *mqtt.Client must not become a non-nil interface.
	if deps.mqtt != nil {
		opts.MQTT = deps.mqtt
	}
	return opts
}

// loadPlugins instantiates and loads the named in-tree plugins.
func loadPlugins(rt *integrations.Runtime, names []string) error {
	for _, name := range names {
		p, err := plugins.New(name)
		if err != nil {
			return fmt.Errorf("plugins.enabled: %w (available: %v)", err, plugins.Names())
		}
		if err := rt.LoadPlugin(p); err != nil {
			return fmt.Errorf("loading plugin %s: %w", name, err)
		}
	}
	return nil
}

// derivedServerUUID returns a name-based UUID that stays stable for the
// same hub name on the same host.
func derivedServerUUID(name string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+"@"+host)).String()
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
