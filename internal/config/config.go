package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "GYMDESK"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "gymdesk.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "gymdesk_session"
	defaultSessionTTL    = 12 * 60
	defaultAdminUsername = "admin"
	defaultTimezone      = "UTC"
	defaultRowBackend    = "database"
	defaultXLSXPath      = "attendance.xlsx"
	defaultPartitioning  = "per_day"
	defaultCheckInPolicy = "known_member"
	defaultCheckInLock   = "local"
	defaultPublicBaseURL = "http://localhost:8080"
	defaultArchivePrefix = "attendance"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Row store backends.
const (
	RowStoreMemory   = "memory"
	RowStoreDatabase = "database"
	RowStoreXLSX     = "xlsx"
)

// Check-in lock providers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// AppConfig captures runtime configuration for the front-desk server.
type AppConfig struct {
	HTTPAddress string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel string
	LogFile  string

	SigningSecret     string
	CookieName        string
	SessionTTL        time.Duration
	AdminUsername     string
	AdminPasswordHash string
	APIToken          string

	Timezone string

	RowStoreBackend string
	XLSXPath        string
	Partitioning    string

	CheckInPolicy string
	CheckInLock   string
	RedisAddress  string

	PublicBaseURL      string
	CORSAllowedOrigins []string

	Archive ArchiveConfig
}

// ArchiveConfig configures optional S3 uploads of attendance exports.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
}

// Enabled reports whether a bucket is configured.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Bucket) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", DriverSQLite)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTL)
	configViper.SetDefault("auth.admin_username", defaultAdminUsername)
	configViper.SetDefault("clock.timezone", defaultTimezone)
	configViper.SetDefault("rowstore.backend", defaultRowBackend)
	configViper.SetDefault("rowstore.xlsx_path", defaultXLSXPath)
	configViper.SetDefault("rowstore.partition", defaultPartitioning)
	configViper.SetDefault("checkin.policy", defaultCheckInPolicy)
	configViper.SetDefault("checkin.lock", defaultCheckInLock)
	configViper.SetDefault("public.base_url", defaultPublicBaseURL)
	configViper.SetDefault("archive.key_prefix", defaultArchivePrefix)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		LogFile:            configViper.GetString("log.file"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		CookieName:         configViper.GetString("auth.cookie_name"),
		SessionTTL:         time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		AdminUsername:      configViper.GetString("auth.admin_username"),
		AdminPasswordHash:  configViper.GetString("auth.admin_password_hash"),
		APIToken:           configViper.GetString("auth.api_token"),
		Timezone:           configViper.GetString("clock.timezone"),
		RowStoreBackend:    strings.ToLower(strings.TrimSpace(configViper.GetString("rowstore.backend"))),
		XLSXPath:           configViper.GetString("rowstore.xlsx_path"),
		Partitioning:       strings.ToLower(strings.TrimSpace(configViper.GetString("rowstore.partition"))),
		CheckInPolicy:      strings.ToLower(strings.TrimSpace(configViper.GetString("checkin.policy"))),
		CheckInLock:        strings.ToLower(strings.TrimSpace(configViper.GetString("checkin.lock"))),
		RedisAddress:       configViper.GetString("redis.address"),
		PublicBaseURL:      configViper.GetString("public.base_url"),
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		Archive: ArchiveConfig{
			Bucket:          configViper.GetString("archive.s3_bucket"),
			Region:          configViper.GetString("archive.s3_region"),
			Endpoint:        configViper.GetString("archive.s3_endpoint"),
			AccessKeyID:     configViper.GetString("archive.access_key_id"),
			SecretAccessKey: configViper.GetString("archive.secret_access_key"),
			KeyPrefix:       configViper.GetString("archive.key_prefix"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	switch c.RowStoreBackend {
	case RowStoreMemory, RowStoreDatabase:
	case RowStoreXLSX:
		if strings.TrimSpace(c.XLSXPath) == "" {
			return fmt.Errorf("rowstore.xlsx_path is required for the xlsx backend")
		}
	default:
		return fmt.Errorf("rowstore.backend must be one of memory, database, xlsx; got %q", c.RowStoreBackend)
	}
	switch c.Partitioning {
	case "per_day", "combined":
	default:
		return fmt.Errorf("rowstore.partition must be per_day or combined, got %q", c.Partitioning)
	}
	switch c.CheckInPolicy {
	case "open", "known_member", "active_membership":
	default:
		return fmt.Errorf("checkin.policy must be open, known_member or active_membership; got %q", c.CheckInPolicy)
	}
	switch c.CheckInLock {
	case LockLocal:
	case LockRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("redis.address is required when checkin.lock is redis")
		}
	default:
		return fmt.Errorf("checkin.lock must be %q or %q, got %q", LockLocal, LockRedis, c.CheckInLock)
	}
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		return fmt.Errorf("public.base_url is required")
	}
	if c.Archive.Enabled() {
		if strings.TrimSpace(c.Archive.Region) == "" {
			return fmt.Errorf("archive.s3_region is required when archive.s3_bucket is set")
		}
		if strings.TrimSpace(c.Archive.AccessKeyID) == "" {
			return fmt.Errorf("archive.access_key_id is required when archive.s3_bucket is set")
		}
		if strings.TrimSpace(c.Archive.SecretAccessKey) == "" {
			return fmt.Errorf("archive.secret_access_key is required when archive.s3_bucket is set")
		}
	}
	return nil
}
