package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"example.com/socialfeed/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

// writeError shapes err for the client. Validation and conflict errors go
// out as a list under "errors", everything else as a single "msg". Internal
// causes are logged and never sent.
func writeError(w http.ResponseWriter, module string, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err)
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		writeJSON(w, appErr.Kind.Status(), map[string]any{"errors": appErr.Fields})
	case apperr.KindConflict:
		fields := []apperr.FieldError{{Msg: appErr.Msg}}
		writeJSON(w, appErr.Kind.Status(), map[string]any{"errors": fields})
	case apperr.KindInternal:
		logg.Error(module, "Request failed", appErr.Err)
		writeJSON(w, appErr.Kind.Status(), map[string]string{"msg": appErr.Msg})
	default:
		writeJSON(w, appErr.Kind.Status(), map[string]string{"msg": appErr.Msg})
	}
}

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body of at most maxBodyBytes into dst.
// An empty body leaves dst untouched so that field validation reports what
// is missing.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation(apperr.FieldError{Msg: "Request body too large"})
	}
	return apperr.Validation(apperr.FieldError{Msg: "Invalid request body"})
}
