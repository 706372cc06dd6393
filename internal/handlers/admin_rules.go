package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lotwise/api/internal/domain"
	"github.com/lotwise/api/internal/platform/auth"
	"github.com/lotwise/api/internal/platform/httpx"
	"github.com/lotwise/api/internal/services"
)

const maxAdminRequestBody = 256 * 1024

// RuleAdministrator manages jurisdiction rules and dealer configuration.
type RuleAdministrator interface {
	ListRules(ctx context.Context, stateCode, countyName string) ([]domain.JurisdictionRule, error)
	UpsertRule(ctx context.Context, rule domain.JurisdictionRule) (domain.JurisdictionRule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	GetDealerConfig(ctx context.Context, dealerID string) (domain.DealerConfig, error)
	UpsertDealerConfig(ctx context.Context, config domain.DealerConfig) (domain.DealerConfig, error)
}

// AdminHandlers exposes the rule and dealer config management endpoints.
type AdminHandlers struct {
	authn *auth.Authenticator
	admin RuleAdministrator
}

// NewAdminHandlers constructs the admin handler set.
func NewAdminHandlers(authn *auth.Authenticator, admin RuleAdministrator) *AdminHandlers {
	return &AdminHandlers{
		authn: authn,
		admin: admin,
	}
}

// Routes registers the admin endpoints beneath /admin.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}

	route.Get("/rules", h.listRules)
	route.Put("/rules/{ruleId}", h.upsertRule)
	route.Delete("/rules/{ruleId}", h.deleteRule)
	route.Get("/dealers/{dealerId}/config", h.getDealerConfig)
	route.Put("/dealers/{dealerId}/config", h.upsertDealerConfig)
}

func (h *AdminHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rule admin service not available", http.StatusServiceUnavailable))
		return
	}

	state := strings.TrimSpace(r.URL.Query().Get("state"))
	county := strings.TrimSpace(r.URL.Query().Get("county"))
	if state == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "state query parameter is required", http.StatusBadRequest))
		return
	}

	rules, err := h.admin.ListRules(ctx, state, county)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}
	if rules == nil {
		rules = []domain.JurisdictionRule{}
	}

	writeJSONResponse(w, http.StatusOK, rulesResponse{Rules: rules})
}

func (h *AdminHandlers) upsertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rule admin service not available", http.StatusServiceUnavailable))
		return
	}

	ruleID := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	if ruleID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rule id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var rule domain.JurisdictionRule
	if err := json.Unmarshal(body, &rule); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	rule.ID = ruleID

	saved, err := h.admin.UpsertRule(ctx, rule)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, ruleResponse{Rule: saved})
}

func (h *AdminHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rule admin service not available", http.StatusServiceUnavailable))
		return
	}

	ruleID := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	if ruleID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rule id is required", http.StatusBadRequest))
		return
	}

	if err := h.admin.DeleteRule(ctx, ruleID); err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) getDealerConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rule admin service not available", http.StatusServiceUnavailable))
		return
	}

	dealerID := strings.TrimSpace(chi.URLParam(r, "dealerId"))
	if dealerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dealer id is required", http.StatusBadRequest))
		return
	}

	config, err := h.admin.GetDealerConfig(ctx, dealerID)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, dealerConfigResponse{Config: config})
}

func (h *AdminHandlers) upsertDealerConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rule admin service not available", http.StatusServiceUnavailable))
		return
	}

	dealerID := strings.TrimSpace(chi.URLParam(r, "dealerId"))
	if dealerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dealer id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var config domain.DealerConfig
	if err := json.Unmarshal(body, &config); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	config.DealerID = dealerID

	saved, err := h.admin.UpsertDealerConfig(ctx, config)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, dealerConfigResponse{Config: saved})
}

type rulesResponse struct {
	Rules []domain.JurisdictionRule `json:"rules"`
}

type ruleResponse struct {
	Rule domain.JurisdictionRule `json:"rule"`
}

type dealerConfigResponse struct {
	Config domain.DealerConfig `json:"config"`
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeAdminError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRuleInvalid), errors.Is(err, services.ErrDealerConfigInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRuleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "rule not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDealerConfigNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "dealer config not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("admin_error", "failed to process admin request", http.StatusInternalServerError))
	}
}
