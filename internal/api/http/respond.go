package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/testportal/internal/apperr"
)

// envelope is the response body shape: {"success": bool, ...}.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = true
	writeJSON(w, status, body)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Unauthorized, apperr.InvalidCredential:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Locked:
		return http.StatusLocked
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Integrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a classified error to its status. Storage and unknown
// failures are logged and answered with a generic message.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := envelope{"success": false, "error": err.Error()}

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Msg != "" {
		body["error"] = ae.Msg
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: %v", err)
		body["error"] = "internal server error"
	}
	if kind == apperr.Locked {
		body["remaining_minutes"] = apperr.RemainingMinutes(err)
	}
	writeJSON(w, status, body)
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, envelope{"success": false, "error": msg})
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.Validation, "request body is empty")
		}
		return apperr.Wrap(apperr.Validation, "invalid JSON body", err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.Validation, "invalid %s", name)
	}
	return id, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
