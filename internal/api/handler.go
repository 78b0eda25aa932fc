package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/claimwatch/internal/claims"
	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/flags"
	"github.com/opensource-finance/claimwatch/internal/search"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	claims  *claims.Service
	flags   *flags.Service
	search  *search.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string) *Handler {
	return &Handler{
		repo:    deps.Repo,
		cache:   deps.Cache,
		claims:  deps.Claims,
		flags:   deps.Flags,
		search:  deps.Search,
		version: version,
	}
}

// ReviewRequest is the request body for PUT /fraud/flags/{id}/review.
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// Health handles GET /health requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			slog.Warn("repository ping failed", "error", err)
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			slog.Warn("cache ping failed", "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready requests.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListClaims handles GET /claims requests.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())
	list, err := h.claims.ListClaims(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Claim{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "claims": list})
}

// CreateClaim handles POST /claims requests.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var in domain.ClaimInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, _ := GetPrincipal(r.Context())
	res, err := h.claims.CreateClaim(r.Context(), p, &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"id":          res.ClaimID,
		"claimNumber": res.ClaimNumber,
		"fraudFlags":  res.Flags,
	})
}

// GetClaim handles GET /claims/{id} requests.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())
	claim, err := h.claims.GetClaim(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "claim": claim})
}

// UpdateClaim handles PUT /claims/{id} requests.
func (h *Handler) UpdateClaim(w http.ResponseWriter, r *http.Request) {
	var patch domain.ClaimPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	p, _ := GetPrincipal(r.Context())
	claim, err := h.claims.UpdateClaim(r.Context(), p, chi.URLParam(r, "id"), &patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "claim": claim})
}

// DeleteClaim handles DELETE /claims/{id} requests.
func (h *Handler) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())
	if err := h.claims.DeleteClaim(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// EvaluateClaim handles POST /claims/{id}/evaluate requests.
func (h *Handler) EvaluateClaim(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())
	created, err := h.claims.ReevaluateClaim(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created == nil {
		created = []*domain.FraudFlag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "fraudFlags": created})
}

// ListFlags handles GET /fraud/flags requests.
func (h *Handler) ListFlags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := flags.ParseFilter(q.Get("severity"), q.Get("status"), q.Get("claim_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, _ := GetPrincipal(r.Context())
	list, err := h.flags.List(r.Context(), p, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.FraudFlag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "flags": list})
}

// ReviewFlag handles PUT /fraud/flags/{id}/review requests.
func (h *Handler) ReviewFlag(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, _ := GetPrincipal(r.Context())
	flag, err := h.flags.Review(r.Context(), p, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "flag": flag})
}

// SearchSimilar handles GET /fraud/similar requests.
func (h *Handler) SearchSimilar(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())
	resp, err := h.search.SearchSimilarClaims(r.Context(), p, r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	results := resp.Results
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"searchTerm":    resp.SearchTerm,
		"similarClaims": results,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.ValidationError
	var duplicate *domain.DuplicateRejectedError

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": invalid.Error(),
			"field": invalid.Field,
		})
	case errors.As(err, &duplicate):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":       duplicate.Error(),
			"fraud_alert": true,
			"claimNumber": duplicate.ClaimNumber,
		})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrAlreadyReviewed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
