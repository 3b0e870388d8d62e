package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEventError reports a rejected event, naming the field when validation failed.
func writeEventError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var ve *event.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// intQuery reads a positive integer query parameter, falling back to def.
func intQuery(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
