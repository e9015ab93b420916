// Package audit emits structured audit events for security-relevant auth
// actions. Events go to the shared log stream; downstream collection is a
// deployment concern.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"maktab.org/internal/auth"
	"maktab.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and subject context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	entry := append([]zap.Field{zap.String("type", "audit")}, fields...)
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if sub, ok := auth.SubjectFromContext(ctx); ok {
		entry = append(entry, zap.String("principal_id", sub.ID), zap.String("role", string(sub.Role)))
		if sub.TenantID != "" {
			entry = append(entry, zap.String("tenant_id", sub.TenantID))
		}
	}
	obs.Logger().Info(event, entry...)
	return nil
}
