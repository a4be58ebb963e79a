// Package handler provides the HTTP handlers of the onboarding service.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"onboard/pkg/errors"
)

const maxJSONBody = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, status int, fields map[string]string, extra map[string]interface{}) {
	body := map[string]interface{}{
		"error":  "Validation failed",
		"fields": fields,
	}
	for k, v := range extra {
		body[k] = v
	}
	respondJSON(w, status, body)
}

var errEmptyBody = errors.New("Request body is required")

// decodeJSON reads a size-limited JSON body and rejects unknown fields.
// An empty body is allowed when optional is true.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			if optional {
				return nil
			}
			return errEmptyBody
		}
		return errors.New("Invalid request body")
	}
	return nil
}
