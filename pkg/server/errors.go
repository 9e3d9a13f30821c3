package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
)

// errRateLimited is reported when a caller exceeds its request budget.
var errRateLimited = errors.New("rate limit exceeded")

// httpError carries an explicit status and the message shown to the client.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func statusError(status int, message string) error {
	return &httpError{status: status, message: message}
}

// statusFor maps a failure to its HTTP status.
func statusFor(err error) int {
	var (
		he *httpError
		ae *auth.AuthError
		ve *agent.ValidationError
		up *agent.UpstreamModelError
	)
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.As(err, &ae):
		return http.StatusUnauthorized
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, agent.ErrTurnTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &up):
		return http.StatusBadGateway
	case errors.Is(err, agent.ErrIterationLimit):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs server-side failures and answers {"error": ...}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Info("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
