package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transports TransportsConfig `yaml:"transports"`
	Zeroconf   ZeroconfConfig   `yaml:"zeroconf"`
	JSONRPC    JSONRPCConfig    `yaml:"jsonrpc"`
	Operations OperationsConfig `yaml:"operations"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Security   SecurityConfig   `yaml:"security"`
}

// ServerConfig identifies this hub to clients (JSONRPC.Hello, mDNS TXT records).
type ServerConfig struct {
	Name   string `yaml:"name"`
	UUID   string `yaml:"uuid"`
	Locale string `yaml:"locale"`
}

// TransportsConfig groups the four client transports.
type TransportsConfig struct {
	TCP       TCPConfig       `yaml:"tcp"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Cloud     CloudConfig     `yaml:"cloud"`
}

// TCPConfig contains the raw TCP (optionally TLS) JSON-RPC listener settings.
type TCPConfig struct {
	Enabled bool      `yaml:"enabled"`
	Host    string    `yaml:"host"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// WebSocketConfig contains WebSocket transport settings.
// The endpoint is served by the API server's router.
type WebSocketConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// BluetoothConfig contains RFCOMM server settings.
type BluetoothConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	// Channel is the RFCOMM channel to request from BlueZ (0 lets BlueZ choose).
	Channel int `yaml:"channel"`
}

// CloudConfig contains the cloud relay tunnel settings.
type CloudConfig struct {
	Enabled bool `yaml:"enabled"`
	// Relay is the host:port of the relay's TLS endpoint.
	Relay              string `yaml:"relay"`
	Token              string `yaml:"token"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	// Reconnect delays in seconds.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// ZeroconfConfig controls mDNS advertisement of the TCP endpoint.
type ZeroconfConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceType string `yaml:"service_type"`
	Domain      string `yaml:"domain"`
}

// JSONRPCConfig contains dispatcher behaviour settings.
type JSONRPCConfig struct {
	// RequireHello makes JSONRPC.Hello mandatory as the first call of every client.
	RequireHello bool `yaml:"require_hello"`
	// HandshakeTimeout is how long a client may take to say Hello (seconds).
	HandshakeTimeout int `yaml:"handshake_timeout"`
	// AuthenticationRequired enables token checks on every non-exempt call.
	AuthenticationRequired bool `yaml:"authentication_required"`
	// MaxBufferSize bounds an unterminated inbound frame (bytes).
	MaxBufferSize int `yaml:"max_buffer_size"`
}

// OperationsConfig contains deadlines for asynchronous plugin operations (seconds).
type OperationsConfig struct {
	ActionTimeout         int `yaml:"action_timeout"`
	SetupTimeout          int `yaml:"setup_timeout"`
	DiscoveryTimeout      int `yaml:"discovery_timeout"`
	AuthenticationTimeout int `yaml:"authentication_timeout"`
}

// HardwareConfig contains settings for the shared hardware resources.
type HardwareConfig struct {
	// TickInterval is the period of the shared plugin timer (milliseconds).
	TickInterval int                     `yaml:"tick_interval"`
	Network      NetworkResourceConfig   `yaml:"network"`
	Bluetooth    BluetoothResourceConfig `yaml:"bluetooth"`
	Discovery    DiscoveryResourceConfig `yaml:"discovery"`
}

// NetworkResourceConfig configures the shared outbound HTTP client.
type NetworkResourceConfig struct {
	Timeout       int `yaml:"timeout"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// BluetoothResourceConfig configures the shared BLE central.
type BluetoothResourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Adapter string `yaml:"adapter"`
}

// DiscoveryResourceConfig configures the shared mDNS browse feed.
type DiscoveryResourceConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ServiceTypes []string `yaml:"service_types"`
	Domain       string   `yaml:"domain"`
}

// PluginsConfig selects which in-tree plugins are loaded.
type PluginsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// APIConfig contains HTTP server settings (health, status, metrics, WebSocket).
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains session token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the lifetime of tokens issued by JSONRPC.Authenticate (days).
	TokenTTL int `yaml:"token_ttl"`
}

// RateLimitConfig contains per-session RPC rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GLHUB_SECTION_KEY
// For example: GLHUB_DATABASE_PATH, GLHUB_TCP_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:   "Gray Logic Hub",
			Locale: "en_US",
		},
		Transports: TransportsConfig{
			TCP: TCPConfig{
				Enabled: true,
				Host:    "0.0.0.0",
				Port:    2222,
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				Path:           "/ws",
				MaxMessageSize: 1 << 20,
				PingInterval:   30,
				PongTimeout:    10,
			},
			Bluetooth: BluetoothConfig{
				ServiceName: "glhub",
			},
			Cloud: CloudConfig{
				Reconnect: ReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
		Zeroconf: ZeroconfConfig{
			ServiceType: "_jsonrpc._tcp",
			Domain:      "local.",
		},
		JSONRPC: JSONRPCConfig{
			RequireHello:           true,
			HandshakeTimeout:       10,
			AuthenticationRequired: true,
			MaxBufferSize:          10 * 1024,
		},
		Operations: OperationsConfig{
			ActionTimeout:         30,
			SetupTimeout:          30,
			DiscoveryTimeout:      30,
			AuthenticationTimeout: 10,
		},
		Hardware: HardwareConfig{
			TickInterval: 1000,
			Network: NetworkResourceConfig{
				Timeout:       15,
				MaxConcurrent: 8,
			},
			Bluetooth: BluetoothResourceConfig{
				Adapter: "hci0",
			},
			Discovery: DiscoveryResourceConfig{
				ServiceTypes: []string{"_http._tcp"},
				Domain:       "local.",
			},
		},
		Plugins: PluginsConfig{
			Enabled: []string{"mock"},
		},
		Database: DatabaseConfig{
			Path:        "./data/glhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "glhub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 365,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             50,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GLHUB_SERVER_UUID"); v != "" {
		cfg.Server.UUID = v
	}

	// Database
	if v := os.Getenv("GLHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Transports
	if v := os.Getenv("GLHUB_TCP_HOST"); v != "" {
		cfg.Transports.TCP.Host = v
	}
	if v := os.Getenv("GLHUB_TCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Transports.TCP.Port = port
		}
	}
	if v := os.Getenv("GLHUB_CLOUD_TOKEN"); v != "" {
		cfg.Transports.Cloud.Token = v
	}

	// MQTT
	if v := os.Getenv("GLHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GLHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GLHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GLHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GLHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GLHUB_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Name == "" {
		errs = append(errs, "server.name is required")
	}

	// Transports
	tcp := c.Transports.TCP
	if tcp.Enabled {
		if tcp.Port < 1 || tcp.Port > 65535 {
			errs = append(errs, "transports.tcp.port must be between 1 and 65535")
		}
		if tcp.TLS.Enabled && (tcp.TLS.CertFile == "" || tcp.TLS.KeyFile == "") {
			errs = append(errs, "transports.tcp.tls requires cert_file and key_file")
		}
	}
	ws := c.Transports.WebSocket
	if ws.Enabled {
		if !strings.HasPrefix(ws.Path, "/") {
			errs = append(errs, "transports.websocket.path must start with /")
		}
		if !c.API.Enabled {
			errs = append(errs, "transports.websocket requires api.enabled")
		}
	}
	cloud := c.Transports.Cloud
	if cloud.Enabled {
		if cloud.Relay == "" {
			errs = append(errs, "transports.cloud.relay is required when the cloud transport is enabled")
		}
		if cloud.Token == "" {
			errs = append(errs, "transports.cloud.token is required (set GLHUB_CLOUD_TOKEN environment variable)")
		}
	}
	if c.Zeroconf.Enabled && !tcp.Enabled {
		errs = append(errs, "zeroconf advertises the tcp transport, which is disabled")
	}

	// JSON-RPC
	if c.JSONRPC.HandshakeTimeout <= 0 {
		errs = append(errs, "jsonrpc.handshake_timeout must be positive")
	}
	if c.JSONRPC.MaxBufferSize < 1024 {
		errs = append(errs, "jsonrpc.max_buffer_size must be at least 1024 bytes")
	}

	// Operations
	if c.Operations.ActionTimeout <= 0 || c.Operations.SetupTimeout <= 0 ||
		c.Operations.DiscoveryTimeout <= 0 || c.Operations.AuthenticationTimeout <= 0 {
		errs = append(errs, "operations timeouts must be positive")
	}

	// Hardware
	if c.Hardware.TickInterval < 10 {
		errs = append(errs, "hardware.tick_interval must be at least 10ms")
	}
	if c.Hardware.Network.MaxConcurrent < 1 {
		errs = append(errs, "hardware.network.max_concurrent must be at least 1")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security: the JWT secret signs every session token handed out by
	// JSONRPC.Authenticate, so it is mandatory whenever authentication is on.
	const minJWTSecretLength = 32
	if c.JSONRPC.AuthenticationRequired {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set GLHUB_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}
	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// HandshakeTimeout returns the JSONRPC.Hello deadline as a Duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.JSONRPC.HandshakeTimeout) * time.Second
}

// ActionTimeout returns the async action deadline as a Duration.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Operations.ActionTimeout) * time.Second
}

// SetupTimeout returns the async thing setup deadline as a Duration.
func (c *Config) SetupTimeout() time.Duration {
	return time.Duration(c.Operations.SetupTimeout) * time.Second
}

// DiscoveryTimeout returns the async discovery deadline as a Duration.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Operations.DiscoveryTimeout) * time.Second
}

// AuthenticationTimeout returns the deadline for off-loop credential work.
func (c *Config) AuthenticationTimeout() time.Duration {
	return time.Duration(c.Operations.AuthenticationTimeout) * time.Second
}

// TickInterval returns the shared hardware timer period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Hardware.TickInterval) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
