package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "campusloans"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultLoanPeriod           = 48 * time.Hour
	DefaultOverdueSweepInterval = 1 * time.Hour
	DefaultRevalidateOnActivate = true

	DefaultCatalogBaseURL = "http://localhost:8081"
	DefaultCatalogTimeout = 10 * time.Second

	DefaultRedisAddr     = ""
	DefaultRedisDB       = 0
	DefaultEventDedupTTL = 72 * time.Hour

	DefaultKafkaEnabled            = true
	DefaultDeviceEventsTopic       = "device-events"
	DefaultReservationEventsTopic  = "reservation-events"
	DefaultConfirmationEventsTopic = "confirmation-events"
	DefaultLoanEventsTopic         = "loan-events"
	DefaultNotificationTopic       = "notification-emails"
	DefaultDLQTopic                = "dlq-loans"
	DefaultConsumerGroup           = "loans-service"
)
