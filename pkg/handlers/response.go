package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse writes a JSON {"error": message} body and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{"error": message})
}

// WriteJSON writes a JSON response and returns any encoding error.
// Answers carry markdown and SQL, so HTML characters are not escaped.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}
