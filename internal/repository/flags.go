package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

const flagSelect = `
	SELECT f.id, f.claim_id, f.flag_type, f.severity, f.description, f.confidence,
		   f.metadata, f.flagged_by, f.flagged_at, f.reviewed, f.reviewed_by,
		   f.reviewed_at, f.notes,
		   c.claim_number, c.claimant_name, c.estimated_amount, c.claim_type,
		   c.company_id, COALESCE(co.name, '')
	FROM fraud_flags f
	JOIN insurance_claims c ON c.id = f.claim_id
	LEFT JOIN companies co ON co.id = c.company_id`

// InsertFlag stores a new fraud flag.
func (r *SQLRepository) InsertFlag(ctx context.Context, f *domain.FraudFlag) error {
	if f.ID == "" || f.ClaimID == "" {
		return fmt.Errorf("%w: flag id and claim id are required", ErrInvalidInput)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown flag type %q", ErrInvalidInput, f.Type)
	}

	var metadata sql.NullString
	if len(f.Metadata) > 0 {
		raw, err := json.Marshal(f.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode flag metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO fraud_flags (
			id, claim_id, flag_type, severity, description, confidence,
			metadata, flagged_by, flagged_at, reviewed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		f.ID, f.ClaimID, string(f.Type), f.Severity, f.Description, f.Confidence,
		metadata, f.FlaggedBy, f.FlaggedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fraud flag: %w", err)
	}
	return nil
}

// GetFlag retrieves a flag with its claim summary.
func (r *SQLRepository) GetFlag(ctx context.Context, id string) (*domain.FraudFlag, error) {
	f, err := scanFlag(r.q.QueryRowContext(ctx, r.rebind(flagSelect+` WHERE f.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fraud flag: %w", err)
	}
	return f, nil
}

// ListFlags returns the flags matching filter, newest first.
func (r *SQLRepository) ListFlags(ctx context.Context, filter domain.FlagFilter) ([]*domain.FraudFlag, error) {
	var conds []string
	var args []any

	if filter.Severity != 0 {
		conds = append(conds, "f.severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Reviewed != nil {
		conds = append(conds, "f.reviewed = ?")
		args = append(args, boolToInt(*filter.Reviewed))
	}
	if filter.ClaimID != "" {
		conds = append(conds, "f.claim_id = ?")
		args = append(args, filter.ClaimID)
	}
	if filter.CompanyID != "" {
		conds = append(conds, "c.company_id = ?")
		args = append(args, filter.CompanyID)
	}

	query := flagSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY f.flagged_at DESC, f.id"

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fraud flags: %w", err)
	}
	defer rows.Close()

	var flags []*domain.FraudFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fraud flag: %w", err)
		}
		flags = append(flags, f)
	}

	return flags, rows.Err()
}

// MarkFlagReviewed moves an unreviewed flag to reviewed. A flag that is
// already reviewed keeps its reviewer and timestamp.
func (r *SQLRepository) MarkFlagReviewed(ctx context.Context, id, reviewer, notes string, at time.Time) error {
	query := `
		UPDATE fraud_flags
		SET reviewed = 1, reviewed_by = ?, reviewed_at = ?, notes = ?
		WHERE id = ? AND reviewed = 0
	`

	result, err := r.q.ExecContext(ctx, r.rebind(query), reviewer, at.UTC(), notes, id)
	if err != nil {
		return fmt.Errorf("failed to review fraud flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	var reviewed int
	err = r.q.QueryRowContext(ctx, r.rebind(`SELECT reviewed FROM fraud_flags WHERE id = ?`), id).Scan(&reviewed)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read fraud flag: %w", err)
	}
	return domain.ErrAlreadyReviewed
}

// DeleteFlagsForClaim removes every flag of a claim and returns how many.
func (r *SQLRepository) DeleteFlagsForClaim(ctx context.Context, claimID string) (int, error) {
	result, err := r.q.ExecContext(ctx, r.rebind(`DELETE FROM fraud_flags WHERE claim_id = ?`), claimID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete fraud flags: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanFlag(s rowScanner) (*domain.FraudFlag, error) {
	var f domain.FraudFlag
	var c domain.FlagClaim
	var flagType, claimType string
	var metadata sql.NullString
	var reviewed int
	var reviewedAt sql.NullTime

	if err := s.Scan(
		&f.ID, &f.ClaimID, &flagType, &f.Severity, &f.Description, &f.Confidence,
		&metadata, &f.FlaggedBy, &f.FlaggedAt, &reviewed, &f.ReviewedBy,
		&reviewedAt, &f.Notes,
		&c.ClaimNumber, &c.ClaimantName, &c.EstimatedAmount, &claimType,
		&c.CompanyID, &c.CompanyName,
	); err != nil {
		return nil, err
	}

	f.Type = domain.FlagType(flagType)
	f.FlaggedAt = f.FlaggedAt.UTC()
	f.Reviewed = reviewed == 1
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		f.ReviewedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &f.Metadata); err != nil {
			return nil, fmt.Errorf("flag %s metadata: %w", f.ID, err)
		}
	}
	c.Type = domain.ClaimType(claimType)
	f.Claim = &c

	return &f, nil
}
