// Package claims implements claim intake and maintenance: validation, the
// duplicate guard, claim number allocation, fraud evaluation and the
// ownership rules around updates and deletes.
package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/claimwatch/internal/audit"
	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/guard"
	"github.com/opensource-finance/claimwatch/internal/rules"
	"github.com/opensource-finance/claimwatch/internal/triage"
)

// maxNumberAttempts bounds the search for a free claim number.
const maxNumberAttempts = 20

// ErrNumbersExhausted is returned when no free claim number was found.
var ErrNumbersExhausted = errors.New("no free claim number")

// Invalidator drops cached views of the claim corpus.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service owns the claim lifecycle.
type Service struct {
	repo      domain.Repository
	engine    *rules.Engine
	processor *triage.Processor
	audit     *audit.Logger
	bus       domain.EventBus
	search    Invalidator

	now    func() time.Time
	suffix func() int
}

// NewService creates a claim service. bus and search may be nil.
func NewService(repo domain.Repository, engine *rules.Engine, processor *triage.Processor, auditor *audit.Logger, bus domain.EventBus, search Invalidator) *Service {
	if processor == nil {
		processor = triage.NewProcessor()
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		processor: processor,
		audit:     auditor,
		bus:       bus,
		search:    search,
		now:       time.Now,
		suffix:    func() int { return rand.IntN(9999) + 1 },
	}
}

// CreateResult is returned for an accepted claim.
type CreateResult struct {
	ClaimID     string              `json:"claimId"`
	ClaimNumber string              `json:"claimNumber"`
	Flags       []*domain.FraudFlag `json:"fraudFlags,omitempty"`
}

// CreateClaim validates and stores a new claim, then runs fraud detection
// against it. A submission the duplicate guard matches is rejected with a
// *domain.DuplicateRejectedError and nothing is stored.
func (s *Service) CreateClaim(ctx context.Context, p domain.Principal, in *domain.ClaimInput) (*CreateResult, error) {
	now := s.now()

	claim, err := in.Validate(now)
	if err != nil {
		return nil, err
	}

	companyID := p.CompanyID
	if p.Role == domain.RoleAdmin && strings.TrimSpace(in.CompanyID) != "" {
		companyID = strings.TrimSpace(in.CompanyID)
	}
	if !p.CanModify(companyID) {
		s.audit.Security(ctx, p, domain.ActionUnauthorizedClaimAccess, domain.ResourceClaim, "", domain.RiskHigh, map[string]any{
			"attempted_company": companyID,
			"operation":         "create",
		})
		return nil, domain.ErrUnauthorized
	}
	if companyID == "" {
		return nil, &domain.ValidationError{Field: "companyId", Message: "is required"}
	}

	claim.ID = uuid.New().String()
	claim.CompanyID = companyID
	claim.CreatedAt = now.UTC()
	claim.UpdatedAt = claim.CreatedAt

	var match *guard.Match
	err = s.repo.WithTx(ctx, func(tx domain.Store) error {
		company, err := tx.GetCompany(ctx, companyID)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ValidationError{Field: "companyId", Message: "does not exist"}
		}
		if err != nil {
			return err
		}
		claim.CompanyName = company.Name

		match, err = guard.Check(ctx, tx, claim, now)
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if match != nil {
			return match.Rejection()
		}

		claim.ClaimNumber, err = s.allocateNumber(ctx, tx, now)
		if err != nil {
			return err
		}
		return tx.InsertClaim(ctx, claim)
	})

	if match != nil {
		s.audit.Security(ctx, p, domain.ActionDuplicateClaimAttempt, domain.ResourceClaim, "", domain.RiskHigh, map[string]any{
			"similar_claim": match.ClaimNumber,
			"check":         match.Check,
			"claimant_name": claim.ClaimantName,
			"policy_number": claim.PolicyNumber,
		})
		s.publish(ctx, companyID, domain.TopicDuplicateRejected, domain.ClaimEvent{
			ClaimID:     match.ClaimID,
			ClaimNumber: match.ClaimNumber,
			CompanyID:   companyID,
			Check:       match.Check,
		})
		slog.Info("duplicate claim rejected",
			"company_id", companyID,
			"similar_claim", match.ClaimNumber,
			"check", match.Check,
		)
		return nil, match.Rejection()
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return nil, err
	}
	if err != nil {
		s.audit.Security(ctx, p, domain.ActionClaimCreationError, domain.ResourceClaim, "", domain.RiskMedium, map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}

	s.invalidate(ctx)

	flags, err := s.evaluate(ctx, claim)
	if err != nil {
		slog.Error("failed to store fraud flags",
			"claim_id", claim.ID,
			"error", err,
		)
	}

	s.audit.Record(ctx, p, domain.ActionClaimCreated, domain.ResourceClaim, claim.ID, map[string]any{
		"claim_id":     claim.ID,
		"claim_number": claim.ClaimNumber,
		"amount":       claim.EstimatedAmount.StringFixed(2),
		"type":         string(claim.Type),
	})
	s.publish(ctx, companyID, domain.TopicClaimCreated, domain.ClaimEvent{
		ClaimID:     claim.ID,
		ClaimNumber: claim.ClaimNumber,
		CompanyID:   companyID,
	})

	slog.Info("claim created",
		"claim_id", claim.ID,
		"claim_number", claim.ClaimNumber,
		"company_id", companyID,
		"flags", len(flags),
	)

	return &CreateResult{ClaimID: claim.ID, ClaimNumber: claim.ClaimNumber, Flags: flags}, nil
}

// GetClaim returns one claim with all of its flags.
func (s *Service) GetClaim(ctx context.Context, p domain.Principal, id string) (*domain.Claim, error) {
	claim, err := s.repo.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanView(claim.CompanyID) {
		s.audit.Security(ctx, p, domain.ActionUnauthorizedClaimAccess, domain.ResourceClaim, id, domain.RiskHigh, map[string]any{
			"claim_id":          id,
			"attempted_company": p.CompanyID,
			"operation":         "read",
		})
		return nil, domain.ErrUnauthorized
	}

	claim.Flags, err = s.repo.ListFlags(ctx, domain.FlagFilter{ClaimID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud flags: %w", err)
	}
	return claim, nil
}

// ListClaims returns the claims visible to p, newest first. Company users
// see their company's claims with pending flags attached; administrators and
// auditors see every claim and the access is audited.
func (s *Service) ListClaims(ctx context.Context, p domain.Principal) ([]*domain.Claim, error) {
	if p.CanSeeAll() {
		all, err := s.repo.FindClaims(ctx, domain.ClaimQuery{})
		if err != nil {
			return nil, fmt.Errorf("failed to list claims: %w", err)
		}
		s.audit.Record(ctx, p, domain.ActionViewAllClaims, domain.ResourceClaim, "all_claims", map[string]any{
			"claims_accessed": len(all),
			"access_type":     "data_interchange",
			"user_role":       string(p.Role),
			"company_id":      p.CompanyID,
		})
		return all, nil
	}

	if p.CompanyID == "" {
		return nil, domain.ErrUnauthorized
	}

	list, err := s.repo.FindClaims(ctx, domain.ClaimQuery{CompanyID: p.CompanyID})
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	pending := false
	flags, err := s.repo.ListFlags(ctx, domain.FlagFilter{CompanyID: p.CompanyID, Reviewed: &pending})
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud flags: %w", err)
	}
	byClaim := make(map[string][]*domain.FraudFlag)
	for _, f := range flags {
		byClaim[f.ClaimID] = append(byClaim[f.ClaimID], f)
	}
	for _, c := range list {
		c.Flags = byClaim[c.ID]
	}
	return list, nil
}

// UpdateClaim applies patch to a claim the principal may modify.
func (s *Service) UpdateClaim(ctx context.Context, p domain.Principal, id string, patch *domain.ClaimPatch) (*domain.Claim, error) {
	claim, err := s.repo.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanModify(claim.CompanyID) {
		s.audit.Security(ctx, p, domain.ActionUnauthorizedClaimAccess, domain.ResourceClaim, id, domain.RiskHigh, map[string]any{
			"claim_id":          id,
			"attempted_company": p.CompanyID,
		})
		return nil, domain.ErrUnauthorized
	}

	changed, err := patch.Apply(claim)
	if err != nil {
		return nil, err
	}
	claim.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateClaim(ctx, claim); err != nil {
		s.audit.Security(ctx, p, domain.ActionClaimUpdateError, domain.ResourceClaim, id, domain.RiskMedium, map[string]any{
			"claim_id": id,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("failed to update claim: %w", err)
	}

	s.invalidate(ctx)
	s.audit.Record(ctx, p, domain.ActionClaimUpdated, domain.ResourceClaim, id, map[string]any{
		"claim_id":       id,
		"updated_fields": changed,
		"company_id":     claim.CompanyID,
	})

	return claim, nil
}

// DeleteClaim removes a claim and its flags in one transaction.
func (s *Service) DeleteClaim(ctx context.Context, p domain.Principal, id string) error {
	claim, err := s.repo.GetClaim(ctx, id)
	if err != nil {
		return err
	}
	if !p.CanModify(claim.CompanyID) {
		s.audit.Security(ctx, p, domain.ActionUnauthorizedClaimDelete, domain.ResourceClaim, id, domain.RiskCritical, map[string]any{
			"claim_id":          id,
			"attempted_company": p.CompanyID,
		})
		return domain.ErrUnauthorized
	}

	var removed int
	err = s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		if removed, err = tx.DeleteFlagsForClaim(ctx, id); err != nil {
			return err
		}
		return tx.DeleteClaim(ctx, id)
	})
	if err != nil {
		s.audit.Security(ctx, p, domain.ActionClaimDeleteError, domain.ResourceClaim, id, domain.RiskHigh, map[string]any{
			"claim_id": id,
			"error":    err.Error(),
		})
		return fmt.Errorf("failed to delete claim: %w", err)
	}

	s.invalidate(ctx)
	s.audit.Security(ctx, p, domain.ActionClaimDeleted, domain.ResourceClaim, id, domain.RiskHigh, map[string]any{
		"claim_id":      id,
		"claim_number":  claim.ClaimNumber,
		"company_id":    claim.CompanyID,
		"flags_removed": removed,
	})
	return nil
}

// allocateNumber picks a random CLM-<year>-NNNN number not yet in use.
func (s *Service) allocateNumber(ctx context.Context, tx domain.Store, now time.Time) (string, error) {
	for range maxNumberAttempts {
		number := fmt.Sprintf("CLM-%d-%04d", now.Year(), s.suffix())
		exists, err := tx.ClaimNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrNumbersExhausted, maxNumberAttempts)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.search != nil {
		s.search.Invalidate(ctx)
	}
}

func (s *Service) publish(ctx context.Context, scope, topic string, event any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, scope, topic, payload); err != nil {
		slog.Warn("failed to publish event",
			"topic", topic,
			"scope", scope,
			"error", err,
		)
	}
}
