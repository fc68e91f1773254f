package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"forkline.io/internal/fault"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleFault translates a domain error into an HTTP response. Internal
// causes never leak to the client.
func handleFault(w http.ResponseWriter, r *http.Request, err error) {
	code := fault.HTTPStatus(err)
	msg := "internal error"
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Kind() != fault.Internal {
		msg = fe.Error()
	}
	writeError(w, r, code, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
