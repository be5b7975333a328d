package service

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
)

var authOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "user_auth_outcomes_total",
	Help: "Identity operations by operation and outcome.",
}, []string{"operation", "outcome"})

// observe counts one finished operation. The outcome is "success", the
// lower-cased error code, or "error" for unclassified failures.
func observe(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			outcome = strings.ToLower(appErr.Code)
		}
	}
	authOutcomes.WithLabelValues(operation, outcome).Inc()
}
