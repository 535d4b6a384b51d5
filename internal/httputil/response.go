package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Response is the JSON envelope every endpoint uses.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// RespondSuccess sends a success envelope with an optional data payload.
func RespondSuccess(w http.ResponseWriter, message string, data any, statusCode int) {
	RespondJSON(w, Response{Success: true, Message: message, Data: data}, statusCode)
}

// RespondError sends an error envelope with the given message and status code.
func RespondError(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, Response{Success: false, Message: message}, statusCode)
}

// RespondValidation sends a 400 with the first validation message at the top
// level and the full list under data.errors.
func RespondValidation(w http.ResponseWriter, errs []string) {
	RespondJSON(w, Response{
		Success: false,
		Message: errs[0],
		Data:    map[string]any{"errors": errs},
	}, http.StatusBadRequest)
}
