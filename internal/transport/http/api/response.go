package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Meta      any    `json:"meta,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

func Success(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, RequestID: requestID})
}

// SuccessWithMeta carries pagination totals or similar alongside the data.
func SuccessWithMeta(w http.ResponseWriter, data, meta any, requestID string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: meta, RequestID: requestID})
}

func Created(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &Error{Code: code, Message: message}, RequestID: requestID})
}

func FailWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &Error{Code: code, Message: message, Details: details}, RequestID: requestID})
}

// PublicEnvelope is the shape the embedded widget reads. Its error is a
// plain string, unlike the admin envelope.
type PublicEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

func PublicSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, PublicEnvelope{Success: true, Data: data})
}

func PublicSuccessMessage(w http.ResponseWriter, data any, message string) {
	WriteJSON(w, http.StatusOK, PublicEnvelope{Success: true, Data: data, Message: message})
}

func PublicList(w http.ResponseWriter, data any, total int) {
	WriteJSON(w, http.StatusOK, PublicEnvelope{Success: true, Data: data, Total: &total})
}

func PublicFail(w http.ResponseWriter, status int, message, detail string) {
	WriteJSON(w, status, PublicEnvelope{Success: false, Error: message, Message: detail})
}

func PublicFailWithDetails(w http.ResponseWriter, status int, message string, details any) {
	WriteJSON(w, status, PublicEnvelope{Success: false, Error: message, Details: details})
}
