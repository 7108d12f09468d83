package main

import (
	"campusloans/internal/devices/handler"
	"campusloans/internal/devices/publisher"
	"campusloans/internal/devices/repository"
	"campusloans/internal/devices/service"
	"campusloans/internal/devices/validator"
	"campusloans/pkg/app"
	"campusloans/pkg/config"
	"campusloans/pkg/kafka"
	kafka_config "campusloans/pkg/kafka/config"
	kafka_middleware "campusloans/pkg/kafka/middleware"
)

const ServiceName = "devices"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Devices service")
	serverApp := app.NewApplication(cfg)
	counters := kafka_middleware.NewCounters()

	var events service.EventPublisher
	if cfg.KafkaEnabled {
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)

		producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, cfg.DeviceEventsTopic, cfg.DLQTopic)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "topic", cfg.DeviceEventsTopic, "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		}
		producer.Use(kafka_middleware.CountingProducerMiddleware(counters))
		serverApp.OnShutdown(func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		})
		events = publisher.NewKafkaPublisher(producer, cfg.Log)
	} else {
		cfg.Log.Warn("Kafka disabled, device events are only logged")
		events = publisher.NewLogPublisher(cfg.Log)
	}

	deviceService := initServices(cfg, events)
	serverApp.SetApp(
		handler.NewHealthHandler(cfg.Client.Mongo, counters, cfg.Log),
		handler.NewDeviceHandler(deviceService, cfg.Log),
	)
	serverApp.OnShutdown(cfg.GracefulShutdown)
	serverApp.Run()
}

func initServices(cfg *config.Config, events service.EventPublisher) service.DeviceService {
	deviceValidator := validator.NewDeviceValidator(cfg.Log)
	deviceRepo := repository.NewMongoDeviceRepository(cfg)
	deviceService := service.NewDeviceService(
		deviceRepo,
		deviceValidator,
		events,
		cfg,
	)

	cfg.Log.Info("Devices service initialized", "database", cfg.MongoDatabaseName)
	return deviceService
}
