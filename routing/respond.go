package routing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// JSON writes v with the given status.
//
//	// Symfony: new JsonResponse($data, Response::HTTP_OK)
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error body: {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"error": message})
}

// Bind decodes a JSON request body into v. Unknown fields and trailing
// content are rejected, matching the strictness of the config loaders.
func Bind(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("routing: request body holds more than one JSON value")
	}
	return nil
}
