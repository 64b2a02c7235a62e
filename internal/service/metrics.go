package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/prperemyshlev/blog-auth-service/internal/service"

type authMetrics struct {
	logins        metric.Int64Counter
	refreshes     metric.Int64Counter
	registrations metric.Int64Counter
}

// newAuthMetrics registers the auth counters on the global meter provider
func newAuthMetrics() *authMetrics {
	meter := otel.Meter(meterName)
	return &authMetrics{
		logins:        counter(meter, "auth.logins", "Login attempts by result"),
		refreshes:     counter(meter, "auth.refreshes", "Refresh token exchanges by result"),
		registrations: counter(meter, "auth.registrations", "Registration attempts by result"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(name)
	}
	return c
}

func (m *authMetrics) login(ctx context.Context, result string) {
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *authMetrics) refresh(ctx context.Context, result string) {
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *authMetrics) registration(ctx context.Context, result string) {
	m.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// resultOf labels an operation outcome for metrics
func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "invalid_input"
	case errors.Is(err, ErrUserExists):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidRefreshToken):
		return "rejected"
	default:
		return "error"
	}
}
