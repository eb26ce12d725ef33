package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/rs/zerolog"
)

var ErrUnauthorized = errors.New("unauthorized")

type messageResp struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageResp{Message: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Unexpected errors are logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID(r)).Str("path", r.URL.Path).Msg("request failed")
		writeMessage(w, code, "internal server error")
		return
	}
	writeMessage(w, code, err.Error())
}
