package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

type memWriter struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
	err     error
}

func (m *memWriter) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestLogger(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsToUnknownRequest", func(t *testing.T) {
		w := &memWriter{}
		NewLogger(w).System(ctx, domain.ActionFraudFlagsGenerated, domain.ResourceClaim, "claim-1", nil)

		if len(w.entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(w.entries))
		}
		e := w.entries[0]
		if e.IPAddress != "unknown" || e.UserAgent != "unknown" {
			t.Errorf("expected unknown request info, got %q / %q", e.IPAddress, e.UserAgent)
		}
		if e.UserID != "system" || e.UserName != "System" {
			t.Errorf("expected system user, got %q / %q", e.UserID, e.UserName)
		}
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Error("expected id and timestamp to be set")
		}
	})

	t.Run("RequestInfoFromContext", func(t *testing.T) {
		w := &memWriter{}
		rctx := WithRequest(ctx, "203.0.113.7", "curl/8.0")
		actor := domain.Principal{UserID: "u-1", Name: "Carl Clerk", Role: domain.RoleCompanyUser}
		NewLogger(w).Security(rctx, actor, domain.ActionUnauthorizedClaimAccess, domain.ResourceClaim, "claim-9",
			domain.RiskHigh, map[string]any{"attempted_fields": []string{"status"}})

		e := w.entries[0]
		if e.IPAddress != "203.0.113.7" || e.UserAgent != "curl/8.0" {
			t.Errorf("unexpected request info %q / %q", e.IPAddress, e.UserAgent)
		}
		if e.Details["risk_level"] != domain.RiskHigh {
			t.Errorf("expected risk level HIGH, got %v", e.Details["risk_level"])
		}
		if e.UserName != "Carl Clerk" {
			t.Errorf("expected actor name, got %q", e.UserName)
		}
	})

	t.Run("WriteErrorIsSwallowed", func(t *testing.T) {
		w := &memWriter{err: errors.New("disk full")}
		NewLogger(w).System(ctx, domain.ActionClaimCreated, domain.ResourceClaim, "claim-1", nil)
		if len(w.entries) != 0 {
			t.Error("expected nothing written")
		}
	})

	t.Run("NilLogger", func(t *testing.T) {
		var l *Logger
		l.System(ctx, domain.ActionClaimCreated, domain.ResourceClaim, "claim-1", nil)
		NewLogger(nil).System(ctx, domain.ActionClaimCreated, domain.ResourceClaim, "claim-1", nil)
	})
}
