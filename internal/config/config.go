package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters. OpsKeyHash is the
// bcrypt hash of the operations API key guarding ingestion and admin
// routes; handler tokens are HS256 JWTs.
type AuthConfig struct {
	JWTSecret           string
	AccessTokenTTLHours int
	OpsKeyHash          string
}

// ElevatedPolicy selects how elevated handlers join ordinary
// eligibility pools.
type ElevatedPolicy string

const (
	// ElevatedPolicyUnion always unions elevated handlers into every
	// unit's pool.
	ElevatedPolicyUnion ElevatedPolicy = "union"
	// ElevatedPolicyFallback consults elevated handlers only when the
	// unit pool is empty.
	ElevatedPolicyFallback ElevatedPolicy = "fallback"
)

// EngineConfig is the assignment and SLA policy block.
type EngineConfig struct {
	ValidUnits       []string
	SLAWindow        time.Duration
	ReminderLead     time.Duration
	EscalationWindow time.Duration
	AutoCloseWindow  time.Duration
	ElevatedPolicy   ElevatedPolicy
}

// SchedulerConfig drives the durable timer scheduler's periodic jobs.
type SchedulerConfig struct {
	ReconcileEvery  time.Duration
	PurgeEvery      time.Duration
	IntentRetention time.Duration
}

// NotifyConfig selects the notification sink.
type NotifyConfig struct {
	Sink   string
	Stream string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:           getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLHours: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_HOURS", 12),
			OpsKeyHash:          os.Getenv("AUTH_OPS_KEY_HASH"),
		},
		Engine: EngineConfig{
			ValidUnits:       getEnvAsSlice("ENGINE_VALID_UNITS", []string{"general", "support", "billing"}),
			SLAWindow:        getEnvAsDuration("ENGINE_SLA_WINDOW", 24*time.Hour),
			ReminderLead:     getEnvAsDuration("ENGINE_REMINDER_LEAD", 2*time.Hour),
			EscalationWindow: getEnvAsDuration("ENGINE_ESCALATION_WINDOW", 4*time.Hour),
			AutoCloseWindow:  getEnvAsDuration("ENGINE_AUTO_CLOSE_WINDOW", 72*time.Hour),
			ElevatedPolicy:   parseElevatedPolicy(getEnv("ENGINE_ELEVATED_POLICY", string(ElevatedPolicyUnion))),
		},
		Scheduler: SchedulerConfig{
			ReconcileEvery:  getEnvAsDuration("SCHED_RECONCILE_EVERY", time.Minute),
			PurgeEvery:      getEnvAsDuration("SCHED_PURGE_EVERY", time.Hour),
			IntentRetention: getEnvAsDuration("SCHED_INTENT_RETENTION", 7*24*time.Hour),
		},
		Notify: NotifyConfig{
			Sink:   getEnv("NOTIFY_SINK", "log"),
			Stream: getEnv("NOTIFY_STREAM", "helpdesk:notifications"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// UnitSet returns the valid units as a membership set.
func (e EngineConfig) UnitSet() map[string]struct{} {
	set := make(map[string]struct{}, len(e.ValidUnits))
	for _, unit := range e.ValidUnits {
		set[unit] = struct{}{}
	}
	return set
}

func parseElevatedPolicy(val string) ElevatedPolicy {
	switch ElevatedPolicy(strings.ToLower(strings.TrimSpace(val))) {
	case ElevatedPolicyFallback:
		return ElevatedPolicyFallback
	default:
		return ElevatedPolicyUnion
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsSlice(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
