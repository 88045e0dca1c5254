package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// errMalformedBody covers unreadable or syntactically invalid request bodies.
var errMalformedBody = errors.New("malformed request body")

// envelope is the base shape of every JSON response.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, statusCode int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError emits the uniform failure envelope.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, envelope{"success": false, "message": message})
}

func writeSuccess(w http.ResponseWriter, statusCode int, fields envelope) {
	body := envelope{"success": true}
	for key, value := range fields {
		body[key] = value
	}
	writeJSON(w, statusCode, body)
}

// decodeBody parses a JSON request body into dst, rejecting trailing garbage.
func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := decoder.Decode(dst); err != nil {
		return errMalformedBody
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errMalformedBody
	}
	return nil
}
