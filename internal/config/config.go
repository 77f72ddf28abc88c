package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Auth       AuthConfig       `json:"auth"`
	Signing    SigningConfig    `json:"signing"`
	Ledger     LedgerConfig     `json:"ledger"`
	Anchoring  AnchoringConfig  `json:"anchoring"`
	Reconciler ReconcilerConfig `json:"reconciler"`
	Audit      AuditConfig      `json:"audit"`
	Archive    ArchiveConfig    `json:"archive"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// AuthConfig carries token-signing material for the account service.
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// SigningConfig holds the detached-signature keys. Keys maps institution
// IDs to their dedicated key; FallbackKey signs for everyone else.
type SigningConfig struct {
	Keys        map[string]string `json:"keys"`
	FallbackKey string            `json:"fallback_key"`
}

// LedgerConfig represents the Stellar anchor configuration.
type LedgerConfig struct {
	HorizonURL        string        `json:"horizon_url"`
	NetworkPassphrase string        `json:"network_passphrase"`
	AnchorSecretSeed  string        `json:"anchor_secret_seed"`
	SubmitTimeout     time.Duration `json:"submit_timeout"`
	MaxAttempts       int           `json:"max_attempts"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
}

// AnchoringConfig tunes the issuance-side anchoring behavior.
type AnchoringConfig struct {
	Timeout    time.Duration `json:"timeout"`
	BatchLimit int           `json:"batch_limit"`
}

// ReconcilerConfig tunes the pending-anchor reconciliation loop. Schedule
// is a cron expression used by the in-process scheduler; the standalone
// worker polls on PollInterval instead.
type ReconcilerConfig struct {
	Enabled       bool          `json:"enabled"`
	Schedule      string        `json:"schedule"`
	PollInterval  time.Duration `json:"poll_interval"`
	BatchSize     int           `json:"batch_size"`
	AnchorTimeout time.Duration `json:"anchor_timeout"`
}

// AuditConfig points at the MongoDB verification trail. An empty URI
// disables the trail.
type AuditConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// ArchiveConfig points at the S3 bucket for rendered certificates. An
// empty bucket disables archiving.
type ArchiveConfig struct {
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Endpoint  string `json:"endpoint"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "registry",
			SSLMode: "disable",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Ledger: LedgerConfig{
			HorizonURL:        "https://horizon-testnet.stellar.org",
			NetworkPassphrase: "Test SDF Network ; September 2015",
			SubmitTimeout:     30 * time.Second,
			MaxAttempts:       3,
			RetryBackoff:      2 * time.Second,
		},
		Anchoring: AnchoringConfig{
			Timeout:    20 * time.Second,
			BatchLimit: 200,
		},
		Reconciler: ReconcilerConfig{
			Enabled:       true,
			Schedule:      "@every 1m",
			PollInterval:  time.Minute,
			BatchSize:     25,
			AnchorTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Database: "registry",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			config.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		config.Database.SSLMode = sslMode
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if key := os.Getenv("SIGNING_FALLBACK_KEY"); key != "" {
		config.Signing.FallbackKey = key
	}
	if url := os.Getenv("HORIZON_URL"); url != "" {
		config.Ledger.HorizonURL = url
	}
	if passphrase := os.Getenv("STELLAR_NETWORK_PASSPHRASE"); passphrase != "" {
		config.Ledger.NetworkPassphrase = passphrase
	}
	if seed := os.Getenv("ANCHOR_SECRET_SEED"); seed != "" {
		config.Ledger.AnchorSecretSeed = seed
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		config.Audit.URI = uri
	}
	if db := os.Getenv("MONGO_DATABASE"); db != "" {
		config.Audit.Database = db
	}
	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		config.Archive.Bucket = bucket
	}
	if region := os.Getenv("S3_REGION"); region != "" {
		config.Archive.Region = region
	}
	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		config.Archive.Endpoint = endpoint
	}
	if key := os.Getenv("S3_ACCESS_KEY"); key != "" {
		config.Archive.AccessKey = key
	}
	if key := os.Getenv("S3_SECRET_KEY"); key != "" {
		config.Archive.SecretKey = key
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SigningKeys decodes the per-institution key map into raw key bytes.
func (c *SigningConfig) SigningKeys() map[string][]byte {
	if len(c.Keys) == 0 {
		return nil
	}
	keys := make(map[string][]byte, len(c.Keys))
	for issuer, key := range c.Keys {
		keys[issuer] = []byte(key)
	}
	return keys
}
