package api

import (
	"encoding/json"
	"net/http"

	"crewhall/src/services"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, kind, code, message string) {
	writeJSON(w, status, Envelope{
		Message: message,
		Error:   &ErrorBody{Kind: kind, Code: code},
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := services.AsError(err)
	writeFailure(w, statusFor(svcErr.Kind), string(svcErr.Kind), svcErr.Code, svcErr.Message)
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation, services.KindStateConflict:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindCapacityExceeded:
		return http.StatusConflict
	case services.KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
