package domain

import "time"

// AuditEntry is one append-only audit row.
type AuditEntry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	UserName     string         `json:"userName"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ipAddress"`
	UserAgent    string         `json:"userAgent"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Risk levels recorded under the risk_level detail of security events.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// Audit actions.
const (
	ActionClaimCreated            = "CLAIM_CREATED"
	ActionClaimUpdated            = "CLAIM_UPDATED"
	ActionClaimDeleted            = "CLAIM_DELETED"
	ActionClaimCreationError      = "CLAIM_CREATION_ERROR"
	ActionClaimUpdateError        = "CLAIM_UPDATE_ERROR"
	ActionClaimDeleteError        = "CLAIM_DELETE_ERROR"
	ActionDuplicateClaimAttempt   = "DUPLICATE_CLAIM_ATTEMPT"
	ActionUnauthorizedClaimAccess = "UNAUTHORIZED_CLAIM_ACCESS"
	ActionUnauthorizedClaimDelete = "UNAUTHORIZED_CLAIM_DELETE"
	ActionUnauthorizedFlagReview  = "UNAUTHORIZED_FLAG_REVIEW"
	ActionFraudFlagsGenerated     = "FRAUD_FLAGS_GENERATED"
	ActionFraudEvaluationError    = "FRAUD_EVALUATION_ERROR"
	ActionViewFraudFlags          = "VIEW_FRAUD_FLAGS"
	ActionReviewFraudFlag         = "REVIEW_FRAUD_FLAG"
	ActionSearchSimilarClaims     = "SEARCH_SIMILAR_CLAIMS"
	ActionViewAllClaims           = "VIEW_ALL_CLAIMS"
)

// Audit resource types.
const (
	ResourceClaim     = "claim"
	ResourceFraudFlag = "fraud_flag"
	ResourceSearch    = "search"
)
