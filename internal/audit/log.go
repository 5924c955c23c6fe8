package audit

import (
	"context"
	"errors"
	"strings"

	"coralrefuge.org/internal/auth"
	"coralrefuge.org/internal/obs"
)

// Admin actions recorded in the audit trail.
const (
	EventAdminLogin        = "admin.login"
	EventAdminLoginFailed  = "admin.login_failed"
	EventCertificateResend = "sponsorship.certificate_resend"
	EventPartnerCreated    = "partner.created"
	EventPartnerUpdated    = "partner.updated"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
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

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := obs.Logger().Info().Str("type", "audit").Str("event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry = entry.Str("user_id", userID)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	entry.Interface("fields", fields).Msg("audit")
	return nil
}
