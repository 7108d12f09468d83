package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	httputil "campusloans/pkg/http"
	kafka_middleware "campusloans/pkg/kafka/middleware"
	"campusloans/pkg/logger"
)

type HealthResponse struct {
	Status   string                             `json:"status"`
	Database string                             `json:"database,omitempty"`
	Cache    string                             `json:"cache,omitempty"`
	Messages *kafka_middleware.CountersSnapshot `json:"messages,omitempty"`
}

// HealthHandler serves liveness and readiness. Redis and the message
// counters are optional.
type HealthHandler struct {
	mongoClient *mongo.Client
	redisClient *redis.Client
	counters    *kafka_middleware.Counters
	log         *logger.Logger
}

func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client, counters *kafka_middleware.Counters, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		mongoClient: mongoClient,
		redisClient: redisClient,
		counters:    counters,
		log:         log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ready", Database: "ok"}
	status := http.StatusOK

	if err := h.mongoClient.Ping(ctx, nil); err != nil {
		h.log.Error("Database health check failed", "error", err, "path", r.URL.Path)
		resp.Status, resp.Database = "unavailable", "error"
		status = http.StatusServiceUnavailable
	}

	// Dedup falls back to processing everything, so Redis only degrades.
	if h.redisClient != nil {
		resp.Cache = "ok"
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			h.log.Warn("Redis health check failed", "error", err, "path", r.URL.Path)
			resp.Cache = "degraded"
		}
	}

	if h.counters != nil {
		snap := h.counters.Snapshot()
		resp.Messages = &snap
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
