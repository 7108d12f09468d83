package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"campusloans/pkg/client"
	"campusloans/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LoanPeriod           time.Duration
	OverdueSweepInterval time.Duration
	RevalidateOnActivate bool

	CatalogBaseURL string
	CatalogTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventDedupTTL time.Duration

	EventIngressKey string

	KafkaEnabled            bool
	DeviceEventsTopic       string
	ReservationEventsTopic  string
	ConfirmationEventsTopic string
	LoanEventsTopic         string
	NotificationTopic       string
	DLQTopic                string
	ConsumerGroup           string

	ServiceName string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LoanPeriod:           getEnvDuration(EnvLoanPeriod, DefaultLoanPeriod),
		OverdueSweepInterval: getEnvDuration(EnvOverdueSweepInterval, DefaultOverdueSweepInterval),
		RevalidateOnActivate: getEnvBool(EnvRevalidateOnActivate, DefaultRevalidateOnActivate),

		CatalogBaseURL: getEnvStr(EnvCatalogBaseURL, DefaultCatalogBaseURL),
		CatalogTimeout: getEnvDuration(EnvCatalogTimeout, DefaultCatalogTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),
		EventDedupTTL: getEnvDuration(EnvEventDedupTTL, DefaultEventDedupTTL),

		EventIngressKey: getEnvStr(EnvEventIngressKey, ""),

		KafkaEnabled:            getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		DeviceEventsTopic:       getEnvStr(EnvDeviceEventsTopic, DefaultDeviceEventsTopic),
		ReservationEventsTopic:  getEnvStr(EnvReservationEventsTopic, DefaultReservationEventsTopic),
		ConfirmationEventsTopic: getEnvStr(EnvConfirmationEventsTopic, DefaultConfirmationEventsTopic),
		LoanEventsTopic:         getEnvStr(EnvLoanEventsTopic, DefaultLoanEventsTopic),
		NotificationTopic:       getEnvStr(EnvNotificationTopic, DefaultNotificationTopic),
		DLQTopic:                getEnvStr(EnvDLQTopic, DefaultDLQTopic),
		ConsumerGroup:           getEnvStr(EnvConsumerGroup, DefaultConsumerGroup),

		ServiceName: serviceName,

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// SetRedis connects Redis when REDIS_ADDR is set. Without it the services fall
// back to in-process stores.
func (cfg *Config) SetRedis() {
	if cfg.RedisAddr == "" {
		cfg.Log.Info("Redis not configured, using in-memory event dedup")
		return
	}
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.LoanPeriod <= 0 {
		errors = append(errors, fmt.Sprintf("LoanPeriod must be positive, got: %s", cfg.LoanPeriod))
	}
	if cfg.OverdueSweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("OverdueSweepInterval must be at least 1m, got: %s", cfg.OverdueSweepInterval))
	}
	if cfg.CatalogBaseURL != "" && !regexp.MustCompile(`^https?://`).MatchString(cfg.CatalogBaseURL) {
		errors = append(errors, fmt.Sprintf("CatalogBaseURL must start with http:// or https://, got: %s", cfg.CatalogBaseURL))
	}
	if cfg.CatalogTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("CatalogTimeout must be positive, got: %s", cfg.CatalogTimeout))
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if cfg.EventDedupTTL <= 0 {
		errors = append(errors, fmt.Sprintf("EventDedupTTL must be positive, got: %s", cfg.EventDedupTTL))
	}

	if cfg.KafkaEnabled {
		topics := map[string]string{
			"DeviceEventsTopic":       cfg.DeviceEventsTopic,
			"ReservationEventsTopic":  cfg.ReservationEventsTopic,
			"ConfirmationEventsTopic": cfg.ConfirmationEventsTopic,
			"LoanEventsTopic":         cfg.LoanEventsTopic,
			"NotificationTopic":       cfg.NotificationTopic,
			"ConsumerGroup":           cfg.ConsumerGroup,
		}
		for name, value := range topics {
			if value == "" {
				errors = append(errors, fmt.Sprintf("%s cannot be empty when Kafka is enabled", name))
			}
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"loan_period", cfg.LoanPeriod,
		"overdue_sweep_interval", cfg.OverdueSweepInterval,
		"revalidate_on_activate", cfg.RevalidateOnActivate,
		"catalog_base_url", cfg.CatalogBaseURL,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"event_dedup_ttl", cfg.EventDedupTTL,
		"event_ingress_key_set", cfg.EventIngressKey != "",
		"kafka_enabled", cfg.KafkaEnabled,
		"loan_events_topic", cfg.LoanEventsTopic,
		"consumer_group", cfg.ConsumerGroup,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
