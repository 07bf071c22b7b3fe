package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgadmin/pkg/constants"
)

// WithLogger returns a new context carrying the request-scoped logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context.
// Outside a request it falls back to the standard logger.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

// UseRequestID returns the request id set by the logging middleware.
// If no id was set, the second return value will be false.
func UseRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(constants.RequestIDKey).(string)
	return v, ok && v != ""
}

func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, constants.CSRFTokenKey, token)
}

// UseCSRFToken returns the token issued for the current request.
func UseCSRFToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(constants.CSRFTokenKey).(string)
	return v, ok && v != ""
}
