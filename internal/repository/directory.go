package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// SaveCompany inserts or updates a company.
func (r *SQLRepository) SaveCompany(ctx context.Context, c *domain.Company) error {
	if c.ID == "" || c.Name == "" || c.LicenseNumber == "" {
		return fmt.Errorf("%w: company id, name and license number are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO companies (id, name, license_number, contact_email, contact_phone, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			license_number = excluded.license_number,
			contact_email = excluded.contact_email,
			contact_phone = excluded.contact_phone,
			is_active = excluded.is_active
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		c.ID, c.Name, c.LicenseNumber, c.ContactEmail, c.ContactPhone,
		boolToInt(c.Active), c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	return nil
}

// GetCompany retrieves a company by ID.
func (r *SQLRepository) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	query := `
		SELECT id, name, license_number, contact_email, contact_phone, is_active, created_at
		FROM companies
		WHERE id = ?
	`

	var c domain.Company
	var active int
	err := r.q.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&c.ID, &c.Name, &c.LicenseNumber, &c.ContactEmail, &c.ContactPhone, &active, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	c.Active = active == 1
	return &c, nil
}

// SaveUser inserts or updates a user.
func (r *SQLRepository) SaveUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" || u.Email == "" {
		return fmt.Errorf("%w: user id and email are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO users (id, email, name, role, company_id, is_active, two_factor_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			role = excluded.role,
			company_id = excluded.company_id,
			is_active = excluded.is_active,
			two_factor_enabled = excluded.two_factor_enabled
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		u.ID, u.Email, u.Name, string(u.Role), nullString(u.CompanyID),
		boolToInt(u.Active), boolToInt(u.TwoFactorEnabled), u.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *SQLRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, name, role, company_id, is_active, two_factor_enabled, created_at
		FROM users
		WHERE id = ?
	`

	var u domain.User
	var role string
	var companyID sql.NullString
	var active, twoFactor int
	err := r.q.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&u.ID, &u.Email, &u.Name, &role, &companyID, &active, &twoFactor, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = domain.Role(role)
	u.CompanyID = companyID.String
	u.Active = active == 1
	u.TwoFactorEnabled = twoFactor == 1
	return &u, nil
}
