package errors

import (
	"encoding/json"
	"net/http"
)

func WriteError(w http.ResponseWriter, err error) error {
	appErr := AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())

	response := ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Retryable: appErr.Retryable,
		Details:   appErr.Details,
	}

	return json.NewEncoder(w).Encode(response)
}
