package domain

import "time"

// Role is a user's authorisation role.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleAuditor     Role = "auditor"
	RoleCompanyUser Role = "company_user"
)

// Company is an insurer tenant.
type Company struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LicenseNumber string    `json:"licenseNumber"`
	ContactEmail  string    `json:"contactEmail,omitempty"`
	ContactPhone  string    `json:"contactPhone,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
}

// User is an account that can act on claims.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             Role      `json:"role"`
	CompanyID        string    `json:"companyId,omitempty"`
	Active           bool      `json:"active"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Principal is the authenticated actor of one request.
type Principal struct {
	UserID      string
	Name        string
	Role        Role
	CompanyID   string
	CompanyName string
}

// SystemPrincipal acts for background and batch work.
var SystemPrincipal = Principal{UserID: "system", Name: "System", Role: RoleAdmin}

// CanSeeAll reports whether the principal reads across companies.
func (p Principal) CanSeeAll() bool {
	return p.Role == RoleAdmin || p.Role == RoleAuditor
}

// CanModify reports whether the principal may change or delete a claim
// owned by companyID.
func (p Principal) CanModify(companyID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleCompanyUser:
		return p.CompanyID != "" && p.CompanyID == companyID
	}
	return false
}

// CanView reports whether the principal may read data owned by companyID.
func (p Principal) CanView(companyID string) bool {
	if p.CanSeeAll() {
		return true
	}
	return p.CompanyID != "" && p.CompanyID == companyID
}
