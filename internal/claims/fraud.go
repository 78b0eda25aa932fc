package claims

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// EvaluateFraud re-runs fraud detection for a stored claim and returns the
// flags inserted by this pass. Findings already pending review are not
// inserted twice.
func (s *Service) EvaluateFraud(ctx context.Context, claimID string) ([]*domain.FraudFlag, error) {
	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, claim)
}

// ReevaluateClaim runs EvaluateFraud on behalf of p. Only administrators and
// auditors may trigger it.
func (s *Service) ReevaluateClaim(ctx context.Context, p domain.Principal, claimID string) ([]*domain.FraudFlag, error) {
	if !p.CanSeeAll() {
		s.audit.Security(ctx, p, domain.ActionUnauthorizedClaimAccess, domain.ResourceClaim, claimID, domain.RiskHigh, map[string]any{
			"claim_id":          claimID,
			"attempted_company": p.CompanyID,
			"operation":         "evaluate",
		})
		return nil, domain.ErrUnauthorized
	}
	return s.EvaluateFraud(ctx, claimID)
}

type flagKey struct {
	claimID  string
	flagType domain.FlagType
	severity domain.Severity
}

// evaluate runs the rule engine against committed data and stores the
// resulting flags in their own transaction. Rule failures are audited and do
// not stop the flags of the rules that succeeded.
func (s *Service) evaluate(ctx context.Context, claim *domain.Claim) ([]*domain.FraudFlag, error) {
	now := s.now()

	candidates, evalErr := s.engine.EvaluateAll(ctx, claim, now)
	if evalErr != nil {
		slog.Warn("fraud evaluation incomplete",
			"claim_id", claim.ID,
			"error", evalErr,
		)
		s.audit.System(ctx, domain.ActionFraudEvaluationError, domain.ResourceClaim, claim.ID, map[string]any{
			"claim_id": claim.ID,
			"error":    evalErr.Error(),
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var inserted []*domain.FraudFlag
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		pending := false
		existing, err := tx.ListFlags(ctx, domain.FlagFilter{ClaimID: claim.ID, Reviewed: &pending})
		if err != nil {
			return err
		}
		seen := make(map[flagKey]bool, len(existing)+len(candidates))
		for _, f := range existing {
			seen[flagKey{f.ClaimID, f.Type, f.Severity}] = true
		}

		for _, c := range candidates {
			key := flagKey{claim.ID, c.Type, c.Severity}
			if seen[key] {
				continue
			}
			seen[key] = true

			flag := &domain.FraudFlag{
				ID:          uuid.New().String(),
				ClaimID:     claim.ID,
				Type:        c.Type,
				Severity:    c.Severity,
				Description: c.Description,
				Confidence:  c.Confidence,
				Metadata:    c.Metadata,
				FlaggedBy:   domain.SystemPrincipal.UserID,
				FlaggedAt:   now.UTC(),
			}
			if err := tx.InsertFlag(ctx, flag); err != nil {
				return err
			}
			inserted = append(inserted, flag)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store fraud flags: %w", err)
	}
	if len(inserted) == 0 {
		return nil, nil
	}

	batch := make([]domain.FlagCandidate, len(inserted))
	for i, f := range inserted {
		batch[i] = domain.FlagCandidate{Type: f.Type, Severity: f.Severity, Description: f.Description, Confidence: f.Confidence}
	}
	summary := s.processor.Summarize(batch)

	s.audit.System(ctx, domain.ActionFraudFlagsGenerated, domain.ResourceClaim, claim.ID, summary.AuditDetails(claim.ID))
	s.publish(ctx, claim.CompanyID, domain.TopicFlagsGenerated, summary.Event(claim.ID))

	if summary.Escalate {
		slog.Warn("claim escalated for review",
			"claim_id", claim.ID,
			"claim_number", claim.ClaimNumber,
			"highest_severity", summary.HighestSeverity.String(),
			"risk_score", summary.RiskScore,
		)
	}

	return inserted, nil
}
