// Package flags serves the fraud flag review queue.
package flags

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/claimwatch/internal/audit"
	"github.com/opensource-finance/claimwatch/internal/domain"
)

// Review status filter values.
const (
	StatusPending  = "pending"
	StatusReviewed = "reviewed"
)

// Service lists and reviews fraud flags.
type Service struct {
	store domain.Store
	audit *audit.Logger
	now   func() time.Time
}

// NewService creates a flag service.
func NewService(store domain.Store, auditor *audit.Logger) *Service {
	return &Service{store: store, audit: auditor, now: time.Now}
}

// ParseFilter builds a filter from query parameters. Empty values match
// everything.
func ParseFilter(severity, status, claimID string) (domain.FlagFilter, error) {
	var f domain.FlagFilter

	if s := strings.TrimSpace(severity); s != "" {
		sev, err := domain.ParseSeverity(strings.ToLower(s))
		if err != nil {
			return f, &domain.ValidationError{Field: "severity", Message: "must be one of low, medium, high, critical"}
		}
		f.Severity = sev
	}

	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
	case StatusPending:
		reviewed := false
		f.Reviewed = &reviewed
	case StatusReviewed:
		reviewed := true
		f.Reviewed = &reviewed
	default:
		return f, &domain.ValidationError{Field: "status", Message: "must be pending or reviewed"}
	}

	f.ClaimID = strings.TrimSpace(claimID)
	return f, nil
}

// List returns the flags visible to p that match filter. Administrators and
// auditors see every company; company users only their own.
func (s *Service) List(ctx context.Context, p domain.Principal, filter domain.FlagFilter) ([]*domain.FraudFlag, error) {
	if !p.CanSeeAll() {
		if p.CompanyID == "" {
			return nil, domain.ErrUnauthorized
		}
		filter.CompanyID = p.CompanyID
	}

	list, err := s.store.ListFlags(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud flags: %w", err)
	}

	s.audit.Record(ctx, p, domain.ActionViewFraudFlags, domain.ResourceFraudFlag, "all_flags", map[string]any{
		"flags_accessed": len(list),
		"user_role":      string(p.Role),
		"company_id":     p.CompanyID,
	})

	return list, nil
}

// Review marks a pending flag as reviewed by p. A flag is reviewed once;
// later attempts fail with domain.ErrAlreadyReviewed.
func (s *Service) Review(ctx context.Context, p domain.Principal, id, notes string) (*domain.FraudFlag, error) {
	flag, err := s.store.GetFlag(ctx, id)
	if err != nil {
		return nil, err
	}

	owner := ""
	if flag.Claim != nil {
		owner = flag.Claim.CompanyID
	}
	if !p.CanView(owner) {
		s.audit.Security(ctx, p, domain.ActionUnauthorizedFlagReview, domain.ResourceFraudFlag, id, domain.RiskHigh, map[string]any{
			"flag_id":           id,
			"claim_id":          flag.ClaimID,
			"attempted_company": p.CompanyID,
		})
		return nil, domain.ErrUnauthorized
	}

	notes = strings.TrimSpace(notes)
	at := s.now().UTC()
	if err := s.store.MarkFlagReviewed(ctx, id, p.Name, notes, at); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, p, domain.ActionReviewFraudFlag, domain.ResourceFraudFlag, id, map[string]any{
		"claim_id": flag.ClaimID,
		"notes":    notes,
	})

	flag.Reviewed = true
	flag.ReviewedBy = p.Name
	flag.ReviewedAt = &at
	flag.Notes = notes
	return flag, nil
}
