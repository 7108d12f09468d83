package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"campusloans/internal/devices/service"
	"campusloans/pkg/auth"
	httputil "campusloans/pkg/http"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"
)

type DeviceHandler struct {
	service service.DeviceService
	log     *logger.Logger
}

func NewDeviceHandler(service service.DeviceService, log *logger.Logger) *DeviceHandler {
	return &DeviceHandler{
		service: service,
		log:     log,
	}
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var d model.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), &d); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, d); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *DeviceHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := strings.TrimSpace(ps.ByName("id"))
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "GetByID", "operation", "WriteJSON", "error", err)
		}
		return
	}

	d, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, d); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DeviceHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	devices, totalCount, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, devices, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := strings.TrimSpace(ps.ByName("id"))
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Update", "operation", "WriteJSON", "error", err)
		}
		return
	}

	var updates model.DeviceUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	d, err := h.service.Update(r.Context(), id, &updates)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Update", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, d); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := strings.TrimSpace(ps.ByName("id"))
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Delete", "operation", "WriteJSON", "error", err)
		}
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Delete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

// Snapshot serves the availability feed in {data, total_count} pages.
func (h *DeviceHandler) Snapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Snapshot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	snaps, totalCount, err := h.service.Snapshots(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Snapshot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, snaps, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "Snapshot", "operation", "WritePaginated", "error", err)
	}
}

func (h *DeviceHandler) PublishSnapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	published, err := h.service.PublishSnapshots(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "PublishSnapshot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteAccepted(w, map[string]int{"published": published}); err != nil {
		h.log.Error("failed to write accepted response", "handler", "PublishSnapshot", "operation", "WriteAccepted", "error", err)
	}
}

// RegisterRoutes leaves reads open: the loan service pulls the catalog
// without a user identity.
func (h *DeviceHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/devices", auth.Require(h.log, auth.PermDevicesWrite, h.Create))
	router.GET("/api/v1/devices", h.GetAll)
	router.GET("/api/v1/devices/snapshot", h.Snapshot)
	router.POST("/api/v1/devices/snapshot/publish", auth.Require(h.log, auth.PermDevicesWrite, h.PublishSnapshot))
	router.GET("/api/v1/devices/id/:id", h.GetByID)
	router.PATCH("/api/v1/devices/id/:id", auth.Require(h.log, auth.PermDevicesWrite, h.Update))
	router.DELETE("/api/v1/devices/id/:id", auth.Require(h.log, auth.PermDevicesWrite, h.Delete))
}
