// Package velocity answers claimant history questions: how often a claimant
// files, and which claims came from the same person recently.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// Windows used by the duplicate guard and the history rules.
const (
	EmailWindow     = 7 * 24 * time.Hour
	FrequencyWindow = 365 * 24 * time.Hour
	IncidentWindow  = 30 // days before the incident date
)

// Service runs history queries against a claim store. It is cheap to
// construct, so callers build one over a transaction when they need to.
type Service struct {
	finder domain.ClaimFinder
}

// NewService creates a velocity service over finder.
func NewService(finder domain.ClaimFinder) *Service {
	return &Service{finder: finder}
}

// ClaimantClaims returns the claims filed under name whose incident date lies
// within IncidentWindow days before (and including) incident.
func (s *Service) ClaimantClaims(ctx context.Context, name string, incident time.Time, excludeID string) ([]*domain.Claim, error) {
	if name == "" {
		return nil, fmt.Errorf("claimant name is required")
	}

	from := incident.AddDate(0, 0, -IncidentWindow)
	to := incident
	claims, err := s.finder.FindClaims(ctx, domain.ClaimQuery{
		ClaimantName: name,
		IncidentFrom: &from,
		IncidentTo:   &to,
		ExcludeID:    excludeID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load claimant history: %w", err)
	}
	return claims, nil
}

// ClaimantFrequency counts the claims filed under name since now-window.
func (s *Service) ClaimantFrequency(ctx context.Context, name, excludeID string, window time.Duration, now time.Time) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("claimant name is required")
	}

	since := now.Add(-window)
	count, err := s.finder.CountClaims(ctx, domain.ClaimQuery{
		ClaimantName: name,
		CreatedSince: &since,
		ExcludeID:    excludeID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count claimant claims: %w", err)
	}
	return count, nil
}

// RecentByEmail returns the newest claim filed from email since now-window,
// or nil when there is none. An empty email never matches.
func (s *Service) RecentByEmail(ctx context.Context, email string, window time.Duration, now time.Time) (*domain.Claim, error) {
	if email == "" {
		return nil, nil
	}

	since := now.Add(-window)
	claims, err := s.finder.FindClaims(ctx, domain.ClaimQuery{
		ClaimantEmail: email,
		CreatedSince:  &since,
		Limit:         1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load email history: %w", err)
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return claims[0], nil
}

// CompanyClaims returns every other claim of a company.
func (s *Service) CompanyClaims(ctx context.Context, companyID, excludeID string) ([]*domain.Claim, error) {
	if companyID == "" {
		return nil, fmt.Errorf("company id is required")
	}

	claims, err := s.finder.FindClaims(ctx, domain.ClaimQuery{
		CompanyID: companyID,
		ExcludeID: excludeID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load company claims: %w", err)
	}
	return claims, nil
}
