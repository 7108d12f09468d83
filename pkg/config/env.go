package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLoanPeriod           = "LOAN_PERIOD"
	EnvOverdueSweepInterval = "OVERDUE_SWEEP_INTERVAL"
	EnvRevalidateOnActivate = "REVALIDATE_ON_ACTIVATE"

	EnvCatalogBaseURL = "CATALOG_BASE_URL"
	EnvCatalogTimeout = "CATALOG_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvEventDedupTTL = "EVENT_DEDUP_TTL"

	EnvEventIngressKey = "EVENT_INGRESS_KEY"

	EnvKafkaEnabled            = "KAFKA_ENABLED"
	EnvDeviceEventsTopic       = "DEVICE_EVENTS_TOPIC"
	EnvReservationEventsTopic  = "RESERVATION_EVENTS_TOPIC"
	EnvConfirmationEventsTopic = "CONFIRMATION_EVENTS_TOPIC"
	EnvLoanEventsTopic         = "LOAN_EVENTS_TOPIC"
	EnvNotificationTopic       = "NOTIFICATION_TOPIC"
	EnvDLQTopic                = "DLQ_TOPIC"
	EnvConsumerGroup           = "KAFKA_CONSUMER_GROUP"
)
