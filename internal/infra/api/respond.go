package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"finkargo-billing/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrCompanyNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedPlan),
		errors.Is(err, domain.ErrDuplicatePayment),
		errors.Is(err, domain.ErrActiveSubscriptionExists):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// publicMessage hides internal error details behind the status text.
func publicMessage(status int, err error) string {
	if status >= 500 {
		if status == http.StatusBadGateway {
			return "payment provider unavailable, please retry"
		}
		return "internal error"
	}
	return err.Error()
}
