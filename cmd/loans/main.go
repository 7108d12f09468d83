package main

import (
	"campusloans/internal/loans/gateway"
	"campusloans/internal/loans/handler"
	"campusloans/internal/loans/notifier"
	"campusloans/internal/loans/publisher"
	"campusloans/internal/loans/repository"
	"campusloans/internal/loans/service"
	"campusloans/internal/loans/validator"
	"campusloans/internal/loans/worker"
	"campusloans/pkg/app"
	"campusloans/pkg/client"
	"campusloans/pkg/config"
	"campusloans/pkg/contracts"
	"campusloans/pkg/dedup"
	"campusloans/pkg/kafka"
	kafka_config "campusloans/pkg/kafka/config"
	kafka_middleware "campusloans/pkg/kafka/middleware"
)

const ServiceName = "loans"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Loans service")
	serverApp := app.NewApplication(cfg)
	counters := kafka_middleware.NewCounters()

	var kafkaCfg *kafka_config.Config
	if cfg.KafkaEnabled {
		var err error
		if kafkaCfg, err = kafka_config.Load(); err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)
	}

	loanService, producers := initServices(cfg, kafkaCfg, counters)
	eventGateway := gateway.New(loanService, initDedup(cfg), cfg.Log)

	if kafkaCfg != nil {
		initConsumers(cfg, kafkaCfg, counters, eventGateway, serverApp)
	}
	serverApp.AddWorker(worker.NewSweeper(loanService, cfg.OverdueSweepInterval, cfg.Log))

	serverApp.SetApp(
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Client.Redis, counters, cfg.Log),
		contracts.Handlers{
			handler.NewLoanHandler(loanService, cfg.Log),
			handler.NewEventHandler(eventGateway, cfg.EventIngressKey, cfg.Log),
		},
	)
	// Background emails still need their producer while draining.
	serverApp.OnShutdown(loanService.Drain)
	for _, p := range producers {
		serverApp.OnShutdown(closeProducer(cfg, p))
	}
	serverApp.OnShutdown(cfg.GracefulShutdown)
	serverApp.Run()
}

func initServices(cfg *config.Config, kafkaCfg *kafka_config.Config, counters *kafka_middleware.Counters) (service.LoanService, []*kafka.Producer) {
	deps := service.Dependencies{
		Loans:     repository.NewMongoLoanRepository(cfg),
		Snapshots: repository.NewMongoSnapshotRepository(cfg),
		Validator: validator.NewLoanValidator(cfg.Log),
		Clock:     service.SystemClock(),
	}

	if cfg.CatalogBaseURL != "" {
		deps.Catalog = client.NewCatalogClient(cfg.CatalogBaseURL, cfg.CatalogTimeout)
	} else {
		cfg.Log.Warn("Catalog URL not configured, resync and activation re-check disabled")
	}

	var producers []*kafka.Producer
	if kafkaCfg != nil {
		loanEvents := newProducer(cfg, kafkaCfg, counters, cfg.LoanEventsTopic)
		emails := newProducer(cfg, kafkaCfg, counters, cfg.NotificationTopic)
		producers = append(producers, loanEvents, emails)
		deps.Publisher = publisher.NewKafkaPublisher(loanEvents, cfg.Log)
		deps.Notifier = notifier.NewKafkaNotifier(emails, cfg.Log)
	} else {
		cfg.Log.Warn("Kafka disabled, loan events and emails are only logged")
		deps.Publisher = publisher.NewLogPublisher(cfg.Log)
		deps.Notifier = notifier.NewLogNotifier(cfg.Log)
	}

	loanService := service.NewLoanService(deps, cfg)
	cfg.Log.Info("Loans service initialized",
		"database", cfg.MongoDatabaseName,
		"loan_period", cfg.LoanPeriod,
	)
	return loanService, producers
}

func initDedup(cfg *config.Config) dedup.Store {
	if cfg.Client.Redis != nil {
		return dedup.NewRedisStore(cfg.Client.Redis, cfg.EventDedupTTL)
	}
	return dedup.NewMemoryStore(cfg.EventDedupTTL)
}

func newProducer(cfg *config.Config, kafkaCfg *kafka_config.Config, counters *kafka_middleware.Counters, topic string) *kafka.Producer {
	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, topic, cfg.DLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}
	producer.Use(kafka_middleware.CountingProducerMiddleware(counters))
	return producer
}

func closeProducer(cfg *config.Config, producer *kafka.Producer) func() {
	return func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "topic", producer.Topic(), "error", err)
		}
	}
}

func initConsumers(cfg *config.Config, kafkaCfg *kafka_config.Config, counters *kafka_middleware.Counters, gw *gateway.Gateway, serverApp *app.Application) {
	topics := map[string]gateway.Source{
		cfg.DeviceEventsTopic:       gateway.SourceCatalog,
		cfg.ReservationEventsTopic:  gateway.SourceReservations,
		cfg.ConfirmationEventsTopic: gateway.SourceConfirmations,
	}

	for topic, source := range topics {
		consumer, err := kafka.NewConsumer(kafkaCfg, cfg.Log, topic, cfg.ConsumerGroup, cfg.DLQTopic, gw.KafkaHandler(source))
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka consumer", "topic", topic, "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		}
		consumer.Use(kafka_middleware.CountingConsumerMiddleware(counters))
		serverApp.AddWorker(consumer)
	}
}
