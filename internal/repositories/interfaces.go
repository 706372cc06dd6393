package repositories

import (
	"context"

	"github.com/lotwise/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for
// dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	JurisdictionRules() JurisdictionRuleRepository
	DealerConfigs() DealerConfigRepository
	Quotes() QuoteRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation
// used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// JurisdictionRuleRepository persists versioned fee, tax, and exemption rules
// scoped to a state and optional county.
type JurisdictionRuleRepository interface {
	// ListForJurisdiction returns every rule for the state, including
	// statewide rules and rules scoped to the given county. County may be
	// empty to fetch statewide rules only.
	ListForJurisdiction(ctx context.Context, stateCode, countyName string) ([]domain.JurisdictionRule, error)
	FindByID(ctx context.Context, ruleID string) (domain.JurisdictionRule, error)
	Upsert(ctx context.Context, rule domain.JurisdictionRule) (domain.JurisdictionRule, error)
	Delete(ctx context.Context, ruleID string) error
}

// DealerConfigRepository persists dealer fee package configuration.
type DealerConfigRepository interface {
	Get(ctx context.Context, dealerID string) (domain.DealerConfig, error)
	Upsert(ctx context.Context, config domain.DealerConfig) (domain.DealerConfig, error)
}

// QuoteRepository stores computed quotes for later retrieval and audit.
type QuoteRepository interface {
	Insert(ctx context.Context, result domain.ScenarioResult) error
	FindByID(ctx context.Context, quoteID string) (domain.ScenarioResult, error)
}

// HealthRepository reports backing store connectivity for readiness checks.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
