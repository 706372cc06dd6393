package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lotwise/api/internal/platform/config"
	"github.com/lotwise/api/internal/repositories"
	"github.com/lotwise/api/internal/services"
)

// Services bundles the service layer that handlers rely upon.
type Services struct {
	Quotes *services.QuoteService
	Admin  *services.RuleAdminService
}

// ContainerDeps carries the injectable parts of the container. The ID
// generator and logger are optional; the registry is not.
type ContainerDeps struct {
	Registry repositories.Registry
	NewID    func() string
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides a Firestore-backed registry; tests can supply fakes.
func NewContainer(cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.NewID == nil {
		return nil, errors.New("id generator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	conditions := services.NewConditionEvaluator()
	classifier := services.NewScenarioClassifier()

	taxEngine, err := services.NewTaxEngine(services.TaxEngineDeps{
		Conditions: conditions,
		Defaults:   services.SeedRateTable(),
		Now:        clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build tax engine: %w", err)
	}

	orchestrator, err := services.NewFeeOrchestrator(services.FeeOrchestratorDeps{
		Classifier: classifier,
		Conditions: conditions,
		Tax:        taxEngine,
		Derived:    services.SeedDerivedFeeRegistry(),
		Now:        clock,
		NewID:      deps.NewID,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build fee orchestrator: %w", err)
	}

	quoteSvc, err := services.NewQuoteService(services.QuoteServiceDeps{
		Rules:        deps.Registry.JurisdictionRules(),
		Dealers:      deps.Registry.DealerConfigs(),
		Quotes:       deps.Registry.Quotes(),
		Orchestrator: orchestrator,
		MaxTradeIns:  cfg.Quotes.MaxTradeIns,
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build quote service: %w", err)
	}

	adminSvc, err := services.NewRuleAdminService(services.RuleAdminServiceDeps{
		Rules:   deps.Registry.JurisdictionRules(),
		Dealers: deps.Registry.DealerConfigs(),
		Now:     clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build rule admin service: %w", err)
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services: Services{
			Quotes: quoteSvc,
			Admin:  adminSvc,
		},
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}
