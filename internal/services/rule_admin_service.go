package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lotwise/api/internal/domain"
	"github.com/lotwise/api/internal/repositories"
)

var (
	// ErrRuleInvalid signals a jurisdiction rule that fails structural checks.
	ErrRuleInvalid = errors.New("rule admin: invalid rule")
	// ErrRuleNotFound is returned when a rule id cannot be resolved.
	ErrRuleNotFound = errors.New("rule admin: rule not found")
	// ErrDealerConfigInvalid signals a dealer configuration that fails
	// structural checks.
	ErrDealerConfigInvalid = errors.New("rule admin: invalid dealer config")
	// ErrDealerConfigNotFound is returned when a dealer has no stored config.
	ErrDealerConfigNotFound = errors.New("rule admin: dealer config not found")
)

// RuleAdminService manages jurisdiction rules and dealer fee configuration.
type RuleAdminService struct {
	rules   repositories.JurisdictionRuleRepository
	dealers repositories.DealerConfigRepository
	now     func() time.Time
}

// RuleAdminServiceDeps wires a RuleAdminService.
type RuleAdminServiceDeps struct {
	Rules   repositories.JurisdictionRuleRepository
	Dealers repositories.DealerConfigRepository
	Now     func() time.Time
}

// NewRuleAdminService constructs a RuleAdminService.
func NewRuleAdminService(deps RuleAdminServiceDeps) (*RuleAdminService, error) {
	if deps.Rules == nil {
		return nil, errors.New("rule admin: jurisdiction rule repository is required")
	}
	if deps.Dealers == nil {
		return nil, errors.New("rule admin: dealer config repository is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &RuleAdminService{
		rules:   deps.Rules,
		dealers: deps.Dealers,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

// ListRules returns the rules for a state, optionally narrowed to a county.
func (s *RuleAdminService) ListRules(ctx context.Context, stateCode, countyName string) ([]domain.JurisdictionRule, error) {
	state := strings.ToUpper(strings.TrimSpace(stateCode))
	if state == "" {
		return nil, fmt.Errorf("%w: state code is required", ErrRuleInvalid)
	}
	rules, err := s.rules.ListForJurisdiction(ctx, state, strings.TrimSpace(countyName))
	if err != nil {
		return nil, fmt.Errorf("rule admin: list rules: %w", err)
	}
	return rules, nil
}

// UpsertRule validates and stores a rule, bumping its version and update
// timestamp.
func (s *RuleAdminService) UpsertRule(ctx context.Context, rule domain.JurisdictionRule) (domain.JurisdictionRule, error) {
	if err := validateRule(rule); err != nil {
		return domain.JurisdictionRule{}, err
	}

	rule.StateCode = strings.ToUpper(strings.TrimSpace(rule.StateCode))
	rule.CountyName = strings.TrimSpace(rule.CountyName)
	rule.UpdatedAt = s.now()

	if existing, err := s.rules.FindByID(ctx, rule.ID); err == nil {
		rule.Version = existing.Version + 1
	} else if !isRepoNotFound(err) {
		return domain.JurisdictionRule{}, fmt.Errorf("rule admin: load rule %s: %w", rule.ID, err)
	} else if rule.Version <= 0 {
		rule.Version = 1
	}

	stored, err := s.rules.Upsert(ctx, rule)
	if err != nil {
		return domain.JurisdictionRule{}, fmt.Errorf("rule admin: store rule %s: %w", rule.ID, err)
	}
	return stored, nil
}

// DeleteRule removes a rule by id.
func (s *RuleAdminService) DeleteRule(ctx context.Context, ruleID string) error {
	id := strings.TrimSpace(ruleID)
	if id == "" {
		return fmt.Errorf("%w: rule id is required", ErrRuleInvalid)
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}
		return fmt.Errorf("rule admin: delete rule %s: %w", id, err)
	}
	return nil
}

// GetDealerConfig returns a dealer's fee configuration.
func (s *RuleAdminService) GetDealerConfig(ctx context.Context, dealerID string) (domain.DealerConfig, error) {
	id := strings.TrimSpace(dealerID)
	if id == "" {
		return domain.DealerConfig{}, fmt.Errorf("%w: dealer id is required", ErrDealerConfigInvalid)
	}
	config, err := s.dealers.Get(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.DealerConfig{}, fmt.Errorf("%w: %s", ErrDealerConfigNotFound, id)
		}
		return domain.DealerConfig{}, fmt.Errorf("rule admin: load dealer config %s: %w", id, err)
	}
	return config, nil
}

// UpsertDealerConfig validates and stores a dealer's fee configuration.
func (s *RuleAdminService) UpsertDealerConfig(ctx context.Context, config domain.DealerConfig) (domain.DealerConfig, error) {
	config.DealerID = strings.TrimSpace(config.DealerID)
	if config.DealerID == "" {
		return domain.DealerConfig{}, fmt.Errorf("%w: dealer id is required", ErrDealerConfigInvalid)
	}
	seen := make(map[string]bool, len(config.Packages))
	for _, pkg := range config.Packages {
		if strings.TrimSpace(pkg.ID) == "" {
			return domain.DealerConfig{}, fmt.Errorf("%w: package id is required", ErrDealerConfigInvalid)
		}
		if seen[pkg.ID] {
			return domain.DealerConfig{}, fmt.Errorf("%w: duplicate package id %q", ErrDealerConfigInvalid, pkg.ID)
		}
		seen[pkg.ID] = true
		for _, item := range pkg.Items {
			if strings.TrimSpace(item.Code) == "" {
				return domain.DealerConfig{}, fmt.Errorf("%w: fee code is required in package %q", ErrDealerConfigInvalid, pkg.ID)
			}
			if item.Amount < 0 {
				return domain.DealerConfig{}, fmt.Errorf("%w: fee %s amount cannot be negative", ErrDealerConfigInvalid, item.Code)
			}
		}
	}
	if defaultID := strings.TrimSpace(config.DefaultPackageID); defaultID != "" && !seen[defaultID] {
		return domain.DealerConfig{}, fmt.Errorf("%w: default package %q not defined", ErrDealerConfigInvalid, defaultID)
	}
	config.UpdatedAt = s.now()

	stored, err := s.dealers.Upsert(ctx, config)
	if err != nil {
		return domain.DealerConfig{}, fmt.Errorf("rule admin: store dealer config %s: %w", config.DealerID, err)
	}
	return stored, nil
}

func validateRule(rule domain.JurisdictionRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("%w: rule id is required", ErrRuleInvalid)
	}
	if strings.TrimSpace(rule.StateCode) == "" {
		return fmt.Errorf("%w: state code is required", ErrRuleInvalid)
	}
	switch rule.RuleType {
	case domain.RuleTypeGovernmentFee:
		if rule.GovernmentFee == nil {
			return fmt.Errorf("%w: government fee payload is required", ErrRuleInvalid)
		}
		if strings.TrimSpace(rule.GovernmentFee.FeeCode) == "" {
			return fmt.Errorf("%w: fee code is required", ErrRuleInvalid)
		}
		if rule.GovernmentFee.Amount < 0 {
			return fmt.Errorf("%w: fee amount cannot be negative", ErrRuleInvalid)
		}
	case domain.RuleTypeTaxCalculation:
		if rule.TaxRate == nil {
			return fmt.Errorf("%w: tax rate payload is required", ErrRuleInvalid)
		}
		if rule.TaxRate.Rate < 0 {
			return fmt.Errorf("%w: tax rate cannot be negative", ErrRuleInvalid)
		}
		if rule.TaxRate.CapAmount < 0 {
			return fmt.Errorf("%w: tax cap cannot be negative", ErrRuleInvalid)
		}
	case domain.RuleTypeExemption:
		if rule.Exemption == nil {
			return fmt.Errorf("%w: exemption payload is required", ErrRuleInvalid)
		}
		if strings.TrimSpace(rule.Exemption.ExemptionCode) == "" {
			return fmt.Errorf("%w: exemption code is required", ErrRuleInvalid)
		}
		if len(rule.Exemption.FeeCodes) == 0 {
			return fmt.Errorf("%w: exemption must name at least one fee code", ErrRuleInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrRuleInvalid, rule.RuleType)
	}
	return nil
}
