package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"campusloans/internal/loans/gateway"
	apperrors "campusloans/pkg/errors"
	httputil "campusloans/pkg/http"
	"campusloans/pkg/logger"
)

const HeaderEventKey = "X-Event-Key"

type EventGateway interface {
	HandleBatch(ctx context.Context, source gateway.Source, raws []json.RawMessage) (*gateway.BatchResult, error)
}

// EventHandler is the webhook ingress for upstream services. When a key is
// configured every delivery must carry it in X-Event-Key.
type EventHandler struct {
	gateway EventGateway
	key     string
	log     *logger.Logger
}

func NewEventHandler(gw EventGateway, key string, log *logger.Logger) *EventHandler {
	return &EventHandler{
		gateway: gw,
		key:     key,
		log:     log,
	}
}

func (h *EventHandler) ingest(source gateway.Source) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if !h.authorized(r) {
			h.log.Warn("Rejected event delivery with bad key", "source", source, "remote_addr", r.RemoteAddr)
			h.writeError(w, source, apperrors.Unauthorized("Invalid event key"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, source, apperrors.InvalidInput("Could not read request body"))
			return
		}

		raws, err := gateway.ParseBatch(body)
		if err != nil {
			h.writeError(w, source, err)
			return
		}

		result, err := h.gateway.HandleBatch(r.Context(), source, raws)
		if err != nil {
			// The sender redelivers the whole batch; dedup skips what succeeded.
			h.log.Error("Event batch needs redelivery",
				"source", source,
				"received", result.Received,
				"failed", result.Failed,
				"error", err,
			)
			h.writeError(w, source, err)
			return
		}

		if result.ValidationResponse != "" {
			if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{
				"validationResponse": result.ValidationResponse,
			}); err != nil {
				h.log.Error("failed to write JSON response", "handler", "Events", "operation", "WriteJSON", "error", err)
			}
			return
		}

		if err := httputil.WriteJSON(w, http.StatusOK, result); err != nil {
			h.log.Error("failed to write JSON response", "handler", "Events", "operation", "WriteJSON", "error", err)
		}
	}
}

func (h *EventHandler) authorized(r *http.Request) bool {
	if h.key == "" {
		return true
	}
	got := r.Header.Get(HeaderEventKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.key)) == 1
}

func (h *EventHandler) writeError(w http.ResponseWriter, source gateway.Source, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Events", "source", source, "operation", "WriteError", "error", writeErr)
	}
}

func (h *EventHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/events/catalog", h.ingest(gateway.SourceCatalog))
	router.POST("/api/v1/events/reservations", h.ingest(gateway.SourceReservations))
	router.POST("/api/v1/events/confirmations", h.ingest(gateway.SourceConfirmations))
}
