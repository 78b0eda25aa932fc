package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// AppendAudit stores one audit entry. Audit rows are never updated.
func (r *SQLRepository) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" || e.Action == "" {
		return fmt.Errorf("%w: audit id and action are required", ErrInvalidInput)
	}

	var details sql.NullString
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, user_name, action, resource_type, resource_id,
			details, ip_address, user_agent, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		e.ID, e.UserID, e.UserName, e.Action, e.ResourceType, e.ResourceID,
		details, e.IPAddress, e.UserAgent, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the entries recorded for an action, oldest first.
func (r *SQLRepository) ListAuditEntries(ctx context.Context, action string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, user_id, user_name, action, resource_type, resource_id,
			   details, ip_address, user_agent, timestamp
		FROM audit_logs
		WHERE action = ?
		ORDER BY timestamp, id
	`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), action)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var details sql.NullString
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.UserName, &e.Action, &e.ResourceType, &e.ResourceID,
			&details, &e.IPAddress, &e.UserAgent, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("audit %s details: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
