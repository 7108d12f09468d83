package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"campusloans/internal/loans/service"
	"campusloans/pkg/auth"
	apperrors "campusloans/pkg/errors"
	httputil "campusloans/pkg/http"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"
)

type LoanHandler struct {
	service service.LoanService
	log     *logger.Logger
}

func NewLoanHandler(service service.LoanService, log *logger.Logger) *LoanHandler {
	return &LoanHandler{
		service: service,
		log:     log,
	}
}

type activateLoanRequest struct {
	ReservationID string `json:"reservation_id,omitempty"`
}

func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	caller, _ := auth.FromContext(r.Context())
	loan, err := h.service.CreateLoan(r.Context(), caller.UserID, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	// A waitlisted loan is accepted but not yet holding a device.
	write := httputil.WriteCreated
	if loan.Status == model.LoanWaitlisted {
		write = httputil.WriteAccepted
	}
	if err := write(w, loan); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *LoanHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := h.requireID(w, ps, "GetByID")
	if !ok {
		return
	}

	caller, _ := auth.FromContext(r.Context())
	loan, err := h.service.GetLoan(r.Context(), id, caller)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, loan); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	query := r.URL.Query()
	filter := model.LoanFilter{
		LoanID: strings.TrimSpace(query.Get("loan_id")),
		UserID: strings.TrimSpace(query.Get("user_id")),
		Status: model.LoanStatus(strings.TrimSpace(query.Get("status"))),
		Limit:  limit,
		Offset: offset,
	}

	caller, _ := auth.FromContext(r.Context())
	loans, totalCount, err := h.service.ListLoans(r.Context(), filter, caller)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, loans, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *LoanHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := h.requireID(w, ps, "Cancel")
	if !ok {
		return
	}

	var req model.CancelLoanRequest
	if !h.decodeOptional(w, r, &req, "Cancel") {
		return
	}

	caller, _ := auth.FromContext(r.Context())
	loan, err := h.service.CancelLoan(r.Context(), service.LoanRef{LoanID: id}, caller, req.Reason)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, loan); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) Activate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := h.requireID(w, ps, "Activate")
	if !ok {
		return
	}

	var req activateLoanRequest
	if !h.decodeOptional(w, r, &req, "Activate") {
		return
	}

	ref := service.LoanRef{LoanID: id, ReservationID: strings.TrimSpace(req.ReservationID)}
	loan, err := h.service.ActivateLoan(r.Context(), ref)
	if err != nil {
		h.writeError(w, "Activate", err)
		return
	}

	if err := httputil.WriteSuccess(w, loan); err != nil {
		h.log.Error("failed to write success response", "handler", "Activate", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) Return(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := h.requireID(w, ps, "Return")
	if !ok {
		return
	}

	loan, err := h.service.ReturnLoan(r.Context(), service.LoanRef{LoanID: id})
	if err != nil {
		h.writeError(w, "Return", err)
		return
	}

	if err := httputil.WriteSuccess(w, loan); err != nil {
		h.log.Error("failed to write success response", "handler", "Return", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) ProcessWaitlist(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := h.requireID(w, ps, "ProcessWaitlist")
	if !ok {
		return
	}

	promoted, err := h.service.ProcessWaitlist(r.Context(), id)
	if err != nil {
		h.writeError(w, "ProcessWaitlist", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"device_id": id,
		"promoted":  promoted,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "ProcessWaitlist", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) Resync(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	result, err := h.service.Snapshots().Resync(r.Context())
	if err != nil {
		h.writeError(w, "Resync", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Resync", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) GetSnapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := h.requireID(w, ps, "GetSnapshot")
	if !ok {
		return
	}

	snap, err := h.service.Snapshots().Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetSnapshot", err)
		return
	}

	if err := httputil.WriteSuccess(w, snap); err != nil {
		h.log.Error("failed to write success response", "handler", "GetSnapshot", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LoanHandler) requireID(w http.ResponseWriter, ps httprouter.Params, handler string) (string, bool) {
	id := strings.TrimSpace(ps.ByName("id"))
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", handler, "operation", "WriteJSON", "error", err)
		}
		return "", false
	}
	return id, true
}

// decodeOptional accepts an empty body as the zero request.
func (h *LoanHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any, handler string) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.writeError(w, handler, apperrors.InvalidInput("Invalid request body"))
	return false
}

func (h *LoanHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *LoanHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/loans", auth.Require(h.log, auth.PermLoansCreate, h.Create))
	router.GET("/api/v1/loans", auth.Require(h.log, auth.PermLoansRead, h.GetAll))
	router.GET("/api/v1/loans/id/:id", auth.Require(h.log, auth.PermLoansRead, h.GetByID))
	router.POST("/api/v1/loans/id/:id/cancel", auth.Require(h.log, auth.PermLoansCancel, h.Cancel))
	router.POST("/api/v1/loans/id/:id/activate", auth.Require(h.log, auth.PermLoansManage, h.Activate))
	router.POST("/api/v1/loans/id/:id/return", auth.Require(h.log, auth.PermLoansManage, h.Return))
	router.POST("/api/v1/devices/:id/waitlist/process", auth.Require(h.log, auth.PermLoansManage, h.ProcessWaitlist))
	router.POST("/api/v1/snapshots/resync", auth.Require(h.log, auth.PermLoansManage, h.Resync))
	router.GET("/api/v1/snapshots/id/:id", auth.Require(h.log, auth.PermLoansRead, h.GetSnapshot))
}
