// Package audit records security and business events. Recording is best
// effort: a failed write is logged and never fails the caller.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

const unknown = "unknown"

type requestKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequest stores the client address and user agent for later entries.
func WithRequest(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

func requestFrom(ctx context.Context) (string, string) {
	info, _ := ctx.Value(requestKey{}).(requestInfo)
	ip, ua := info.ip, info.userAgent
	if ip == "" {
		ip = unknown
	}
	if ua == "" {
		ua = unknown
	}
	return ip, ua
}

// Writer persists audit entries.
type Writer interface {
	AppendAudit(ctx context.Context, e *domain.AuditEntry) error
}

// Logger writes audit entries through a Writer.
type Logger struct {
	w   Writer
	now func() time.Time
}

// NewLogger creates an audit logger. A nil writer only logs.
func NewLogger(w Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// Record appends an entry for actor. Errors are logged and dropped.
func (l *Logger) Record(ctx context.Context, actor domain.Principal, action, resourceType, resourceID string, details map[string]any) {
	if l == nil {
		return
	}

	ip, ua := requestFrom(ctx)
	entry := &domain.AuditEntry{
		ID:           uuid.New().String(),
		UserID:       actor.UserID,
		UserName:     actor.Name,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    ip,
		UserAgent:    ua,
		Timestamp:    l.now().UTC(),
	}
	if entry.UserID == "" {
		entry.UserID = domain.SystemPrincipal.UserID
		entry.UserName = domain.SystemPrincipal.Name
	}

	if l.w == nil {
		slog.Debug("audit entry not persisted", "action", action, "resource_id", resourceID)
		return
	}

	// The entry outlives a cancelled request.
	if err := l.w.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		slog.Error("failed to write audit entry",
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"error", err,
		)
	}
}

// Security records a security event with a risk level.
func (l *Logger) Security(ctx context.Context, actor domain.Principal, action, resourceType, resourceID, risk string, details map[string]any) {
	merged := make(map[string]any, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	merged["risk_level"] = risk
	l.Record(ctx, actor, action, resourceType, resourceID, merged)
}

// System records an entry attributed to the system user.
func (l *Logger) System(ctx context.Context, action, resourceType, resourceID string, details map[string]any) {
	l.Record(ctx, domain.SystemPrincipal, action, resourceType, resourceID, details)
}
