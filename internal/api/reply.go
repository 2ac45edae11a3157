package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/plates-cli/internal/rarity"
)

// httpError is an error with a fixed response status.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

var errTooManyRequests = &httpError{status: http.StatusTooManyRequests, msg: "rate limit exceeded"}

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var he *httpError
	var re *rarity.RangeError
	switch {
	case errors.As(err, &he):
		writeJSON(w, he.status, errorResponse{Error: he.msg})
	case errors.As(err, &re):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: re.Error()})
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
