package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lotwise/api/internal/domain"
	"github.com/lotwise/api/internal/services"
)

type stubRuleAdministrator struct {
	rules     []domain.JurisdictionRule
	listErr   error
	upserted  domain.JurisdictionRule
	upsertErr error
	deleteErr error
	config    domain.DealerConfig
	configErr error

	lastState  string
	lastCounty string
	lastRule   domain.JurisdictionRule
	lastRuleID string
	lastConfig domain.DealerConfig
}

func (s *stubRuleAdministrator) ListRules(ctx context.Context, stateCode, countyName string) ([]domain.JurisdictionRule, error) {
	s.lastState = stateCode
	s.lastCounty = countyName
	return s.rules, s.listErr
}

func (s *stubRuleAdministrator) UpsertRule(ctx context.Context, rule domain.JurisdictionRule) (domain.JurisdictionRule, error) {
	s.lastRule = rule
	if s.upsertErr != nil {
		return domain.JurisdictionRule{}, s.upsertErr
	}
	return s.upserted, nil
}

func (s *stubRuleAdministrator) DeleteRule(ctx context.Context, ruleID string) error {
	s.lastRuleID = ruleID
	return s.deleteErr
}

func (s *stubRuleAdministrator) GetDealerConfig(ctx context.Context, dealerID string) (domain.DealerConfig, error) {
	if s.configErr != nil {
		return domain.DealerConfig{}, s.configErr
	}
	return s.config, nil
}

func (s *stubRuleAdministrator) UpsertDealerConfig(ctx context.Context, config domain.DealerConfig) (domain.DealerConfig, error) {
	s.lastConfig = config
	if s.configErr != nil {
		return domain.DealerConfig{}, s.configErr
	}
	return config, nil
}

func newAdminRouter(stub *stubRuleAdministrator) http.Handler {
	// No authenticator wired; route gating is covered by the auth package tests.
	return NewRouter(WithAdminRoutes(NewAdminHandlers(nil, stub).Routes))
}

func TestAdminHandlers_ListRules(t *testing.T) {
	stub := &stubRuleAdministrator{
		rules: []domain.JurisdictionRule{
			{ID: "fl-title", StateCode: "FL", RuleType: domain.RuleTypeGovernmentFee},
		},
	}
	router := newAdminRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/rules?state=fl&county=Orange", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if stub.lastState != "fl" || stub.lastCounty != "Orange" {
		t.Fatalf("unexpected query passthrough: state=%s county=%s", stub.lastState, stub.lastCounty)
	}

	var body rulesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if len(body.Rules) != 1 || body.Rules[0].ID != "fl-title" {
		t.Fatalf("unexpected rules payload %+v", body.Rules)
	}
}

func TestAdminHandlers_ListRulesRequiresState(t *testing.T) {
	router := newAdminRouter(&stubRuleAdministrator{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/rules", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlers_UpsertRule(t *testing.T) {
	stub := &stubRuleAdministrator{
		upserted: domain.JurisdictionRule{
			ID:        "fl-title",
			StateCode: "FL",
			RuleType:  domain.RuleTypeGovernmentFee,
			Version:   2,
			UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	router := newAdminRouter(stub)

	payload := `{
		"stateCode": "FL",
		"ruleType": "government_fee",
		"governmentFee": {"feeCode": "TITLE", "amount": 7525, "autoApply": true}
	}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/rules/fl-title", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if stub.lastRule.ID != "fl-title" {
		t.Fatalf("expected path id to win, got %s", stub.lastRule.ID)
	}
	if stub.lastRule.GovernmentFee == nil || stub.lastRule.GovernmentFee.FeeCode != "TITLE" {
		t.Fatalf("unexpected decoded rule %+v", stub.lastRule)
	}

	var body ruleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body.Rule.Version != 2 {
		t.Fatalf("expected version 2, got %d", body.Rule.Version)
	}
}

func TestAdminHandlers_UpsertRuleInvalid(t *testing.T) {
	stub := &stubRuleAdministrator{upsertErr: services.ErrRuleInvalid}
	router := newAdminRouter(stub)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/rules/bad", strings.NewReader(`{"stateCode": ""}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlers_DeleteRule(t *testing.T) {
	stub := &stubRuleAdministrator{}
	router := newAdminRouter(stub)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/rules/fl-title", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if stub.lastRuleID != "fl-title" {
		t.Fatalf("expected delete of fl-title, got %s", stub.lastRuleID)
	}
}

func TestAdminHandlers_DeleteRuleNotFound(t *testing.T) {
	stub := &stubRuleAdministrator{deleteErr: services.ErrRuleNotFound}
	router := newAdminRouter(stub)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/rules/missing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminHandlers_DealerConfigRoundTrip(t *testing.T) {
	stub := &stubRuleAdministrator{
		config: domain.DealerConfig{
			DealerID:         "dealer-1",
			DefaultPackageID: "standard",
		},
	}
	router := newAdminRouter(stub)

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/dealers/dealer-1/config", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var body dealerConfigResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("expected JSON body: %v", err)
		}
		if body.Config.DefaultPackageID != "standard" {
			t.Fatalf("unexpected config %+v", body.Config)
		}
	})

	t.Run("put", func(t *testing.T) {
		payload := `{
			"defaultPackageId": "standard",
			"packages": [{"id": "standard", "items": [{"code": "DOC", "amount": 89900, "required": true}]}]
		}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/dealers/dealer-1/config", strings.NewReader(payload))
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if stub.lastConfig.DealerID != "dealer-1" {
			t.Fatalf("expected path dealer id to win, got %s", stub.lastConfig.DealerID)
		}
		if len(stub.lastConfig.Packages) != 1 || stub.lastConfig.Packages[0].Items[0].Code != "DOC" {
			t.Fatalf("unexpected decoded config %+v", stub.lastConfig)
		}
	})
}

func TestAdminHandlers_GetDealerConfigNotFound(t *testing.T) {
	stub := &stubRuleAdministrator{configErr: services.ErrDealerConfigNotFound}
	router := newAdminRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/dealers/unknown/config", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
