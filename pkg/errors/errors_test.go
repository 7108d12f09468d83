package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   NotFoundWithID("Loan", "l-1"),
			expected: "NOT_FOUND: Loan not found",
		},
		{
			name:     "with underlying error",
			appErr:   Internal("Failed to persist loan", errors.New("write concern timeout")),
			expected: "INTERNAL_ERROR: Failed to persist loan (caused by: write concern timeout)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConstructors_StatusAndCode(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
		retryable  bool
	}{
		{"not found", NotFoundWithID("Loan", "l-1"), CodeNotFound, http.StatusNotFound, false},
		{"device not found", DeviceNotFound("d-1"), CodeDeviceNotFound, http.StatusNotFound, true},
		{"forbidden", Forbidden("not your loan"), CodeForbidden, http.StatusForbidden, false},
		{"unauthorized", Unauthorized("missing identity"), CodeUnauthorized, http.StatusUnauthorized, false},
		{"invalid state", InvalidState("cannot activate", nil), CodeInvalidState, http.StatusConflict, false},
		{"already returned", AlreadyReturned("l-1"), CodeAlreadyReturned, http.StatusConflict, false},
		{"retryable conflict", RetryableConflict("version changed", nil), CodeConflict, http.StatusConflict, true},
		{"unavailable", Unavailable("Loan store", nil), CodeUnavailable, http.StatusServiceUnavailable, true},
		{"malformed event", MalformedEvent("missing reservationId"), CodeMalformedEvent, http.StatusBadRequest, false},
		{"validation", Validation("bad", map[string]any{"field": "device_id"}), CodeValidation, http.StatusUnprocessableEntity, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("status = %d, want %d", tt.err.StatusCode(), tt.wantStatus)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestDeviceNotFound_CarriesDeviceID(t *testing.T) {
	err := DeviceNotFound("dev-42")
	if err.Details["device_id"] != "dev-42" {
		t.Errorf("expected device_id detail, got %v", err.Details)
	}
}

func TestAsAppError_UnwrapsWrappedErrors(t *testing.T) {
	appErr := AlreadyReturned("l-9")
	wrapped := fmt.Errorf("cancel loan: %w", appErr)

	if got := AsAppError(wrapped); got != appErr {
		t.Errorf("AsAppError() should find the AppError through wrapping")
	}
	if !IsAppError(wrapped) {
		t.Errorf("IsAppError() should see through wrapping")
	}

	regular := errors.New("socket closed")
	result := AsAppError(regular)
	if result.Code != CodeInternal || result.Err != regular {
		t.Errorf("AsAppError() should wrap plain errors as internal, got %+v", result)
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(Forbidden("x")) {
		t.Error("Forbidden is a domain error")
	}
	if !IsDomainError(fmt.Errorf("wrapped: %w", InvalidState("x", nil))) {
		t.Error("wrapped InvalidState is a domain error")
	}
	if IsDomainError(Unavailable("store", nil)) {
		t.Error("Unavailable is an infrastructure error")
	}
	if IsDomainError(RetryableConflict("x", nil)) {
		t.Error("version conflicts must be retried")
	}
	if !IsDomainError(fmt.Errorf("link: %w", Conflict("Reservation is already linked to another loan"))) {
		t.Error("a reservation linked elsewhere will not resolve on retry")
	}
	if IsDomainError(errors.New("boom")) {
		t.Error("plain errors are not domain errors")
	}
}

func TestHasCode(t *testing.T) {
	err := AlreadyReturned("l-1")
	if !HasCode(err, CodeInvalidState, CodeAlreadyReturned) {
		t.Error("HasCode should match any of the given codes")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("HasCode matched the wrong code")
	}
}

func TestAppError_ToJSON(t *testing.T) {
	body := string(DeviceNotFound("d-7").ToJSON())

	for _, want := range []string{CodeDeviceNotFound, `"retryable":true`, "d-7"} {
		if !strings.Contains(body, want) {
			t.Errorf("ToJSON() = %s, missing %s", body, want)
		}
	}
}
