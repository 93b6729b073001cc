package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"market-genome/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain sentinels onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with a public message. Server-side failures never leak
// their cause; notFound overrides the generic 404 text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusNotFound:
		if notFound != "" {
			msg = notFound
		}
	case http.StatusTooManyRequests:
		msg = "too many messages, slow down"
	case http.StatusServiceUnavailable:
		msg = "server is busy, try again shortly"
	case http.StatusGatewayTimeout:
		msg = "request timed out"
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	if code >= 500 {
		l := s.logFor(r)
		l.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeError(w, code, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
