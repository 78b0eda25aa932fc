package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

const claimColumns = `
	c.id, c.claim_number, c.policy_number, c.claimant_name, c.claimant_email,
	c.claimant_phone, c.incident_date, c.reported_date, c.claim_type, c.status,
	c.description, c.estimated_amount, c.approved_amount, c.assigned_to,
	c.company_id, COALESCE(co.name, ''), c.created_at, c.updated_at`

const claimFrom = `
	FROM insurance_claims c
	LEFT JOIN companies co ON co.id = c.company_id`

// InsertClaim stores a new claim.
func (r *SQLRepository) InsertClaim(ctx context.Context, c *domain.Claim) error {
	if c.ID == "" || c.ClaimNumber == "" || c.CompanyID == "" {
		return fmt.Errorf("%w: claim id, number and company are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO insurance_claims (
			id, claim_number, policy_number, claimant_name, claimant_email,
			claimant_phone, incident_date, reported_date, claim_type, status,
			description, estimated_amount, approved_amount, assigned_to,
			company_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		c.ID, c.ClaimNumber, c.PolicyNumber, c.ClaimantName, c.ClaimantEmail,
		c.ClaimantPhone, c.IncidentDate.Format(domain.DateLayout), c.ReportedDate.Format(domain.DateLayout),
		string(c.Type), string(c.Status),
		c.Description, c.EstimatedAmount, c.ApprovedAmount, c.AssignedTo,
		c.CompanyID, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim by ID.
func (r *SQLRepository) GetClaim(ctx context.Context, id string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + claimFrom + ` WHERE c.id = ?`

	c, err := scanClaim(r.q.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return c, nil
}

// UpdateClaim writes the mutable fields of c.
func (r *SQLRepository) UpdateClaim(ctx context.Context, c *domain.Claim) error {
	query := `
		UPDATE insurance_claims
		SET status = ?, description = ?, estimated_amount = ?, approved_amount = ?,
			assigned_to = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.q.ExecContext(ctx, r.rebind(query),
		string(c.Status), c.Description, c.EstimatedAmount, c.ApprovedAmount,
		c.AssignedTo, c.UpdatedAt.UTC(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClaim removes a claim row.
func (r *SQLRepository) DeleteClaim(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, r.rebind(`DELETE FROM insurance_claims WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimNumberExists reports whether a claim number is taken.
func (r *SQLRepository) ClaimNumberExists(ctx context.Context, number string) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx,
		r.rebind(`SELECT 1 FROM insurance_claims WHERE claim_number = ? LIMIT 1`), number,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check claim number: %w", err)
	}
	return true, nil
}

// FindClaims returns the claims matching q, newest first.
func (r *SQLRepository) FindClaims(ctx context.Context, q domain.ClaimQuery) ([]*domain.Claim, error) {
	where, args := claimWhere(q)
	query := `SELECT ` + claimColumns + claimFrom + where + ` ORDER BY c.created_at DESC, c.claim_number`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}

	return claims, rows.Err()
}

// CountClaims counts the claims matching q. Limit is ignored.
func (r *SQLRepository) CountClaims(ctx context.Context, q domain.ClaimQuery) (int, error) {
	where, args := claimWhere(q)
	query := `SELECT COUNT(*) FROM insurance_claims c` + where

	var count int
	if err := r.q.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return count, nil
}

func claimWhere(q domain.ClaimQuery) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if q.CompanyID != "" {
		add("c.company_id = ?", q.CompanyID)
	}
	if q.ClaimantName != "" {
		add("c.claimant_name = ?", q.ClaimantName)
	}
	if q.ClaimantEmail != "" {
		add("c.claimant_email = ?", q.ClaimantEmail)
	}
	if q.PolicyNumber != "" {
		add("c.policy_number = ?", q.PolicyNumber)
	}
	if q.IncidentDate != nil {
		add("c.incident_date = ?", q.IncidentDate.Format(domain.DateLayout))
	}
	if q.IncidentFrom != nil {
		add("c.incident_date >= ?", q.IncidentFrom.Format(domain.DateLayout))
	}
	if q.IncidentTo != nil {
		add("c.incident_date <= ?", q.IncidentTo.Format(domain.DateLayout))
	}
	if q.CreatedSince != nil {
		add("c.created_at >= ?", q.CreatedSince.UTC())
	}
	if q.ExcludeID != "" {
		add("c.id <> ?", q.ExcludeID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanClaim(s rowScanner) (*domain.Claim, error) {
	var c domain.Claim
	var incident, reported, claimType, status string

	if err := s.Scan(
		&c.ID, &c.ClaimNumber, &c.PolicyNumber, &c.ClaimantName, &c.ClaimantEmail,
		&c.ClaimantPhone, &incident, &reported, &claimType, &status,
		&c.Description, &c.EstimatedAmount, &c.ApprovedAmount, &c.AssignedTo,
		&c.CompanyID, &c.CompanyName, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if c.IncidentDate, err = parseStoredDate(incident); err != nil {
		return nil, fmt.Errorf("claim %s incident date: %w", c.ID, err)
	}
	if c.ReportedDate, err = parseStoredDate(reported); err != nil {
		return nil, fmt.Errorf("claim %s reported date: %w", c.ID, err)
	}
	c.Type = domain.ClaimType(claimType)
	c.Status = domain.ClaimStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	return &c, nil
}

// parseStoredDate accepts the YYYY-MM-DD text written by InsertClaim.
func parseStoredDate(s string) (time.Time, error) {
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	return domain.ParseDate(s)
}
