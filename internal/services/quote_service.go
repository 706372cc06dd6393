package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lotwise/api/internal/domain"
	"github.com/lotwise/api/internal/repositories"
)

var (
	// ErrQuoteNotFound is returned when a stored quote id cannot be resolved.
	ErrQuoteNotFound = errors.New("quote service: quote not found")
)

// QuoteService loads rule and dealer data, runs the orchestrator, and
// persists the computed quote. The computation core itself stays pure; all
// I/O lives here.
type QuoteService struct {
	rules        repositories.JurisdictionRuleRepository
	dealers      repositories.DealerConfigRepository
	quotes       repositories.QuoteRepository
	orchestrator *FeeOrchestrator
	maxTradeIns  int
	logger       func(context.Context, string, map[string]any)
}

// QuoteServiceDeps wires a QuoteService. MaxTradeIns caps the trade-ins
// accepted on one scenario; zero means unlimited.
type QuoteServiceDeps struct {
	Rules        repositories.JurisdictionRuleRepository
	Dealers      repositories.DealerConfigRepository
	Quotes       repositories.QuoteRepository
	Orchestrator *FeeOrchestrator
	MaxTradeIns  int
	Logger       func(context.Context, string, map[string]any)
}

// NewQuoteService constructs a QuoteService.
func NewQuoteService(deps QuoteServiceDeps) (*QuoteService, error) {
	if deps.Rules == nil {
		return nil, errors.New("quote service: jurisdiction rule repository is required")
	}
	if deps.Dealers == nil {
		return nil, errors.New("quote service: dealer config repository is required")
	}
	if deps.Quotes == nil {
		return nil, errors.New("quote service: quote repository is required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("quote service: orchestrator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &QuoteService{
		rules:        deps.Rules,
		dealers:      deps.Dealers,
		quotes:       deps.Quotes,
		orchestrator: deps.Orchestrator,
		maxTradeIns:  deps.MaxTradeIns,
		logger:       logger,
	}, nil
}

// CreateQuote computes and stores a quote for the scenario. A dealer with no
// stored configuration quotes with an empty config; the orchestrator records
// the missing-package warning.
func (s *QuoteService) CreateQuote(ctx context.Context, input domain.ScenarioInput) (domain.ScenarioResult, error) {
	state := strings.TrimSpace(input.Jurisdiction.StateCode)
	if state == "" {
		return domain.ScenarioResult{}, fmt.Errorf("%w: jurisdiction state code is required", ErrQuoteInvalidInput)
	}
	if s.maxTradeIns > 0 && len(input.TradeIns) > s.maxTradeIns {
		return domain.ScenarioResult{}, fmt.Errorf("%w: a scenario accepts at most %d trade-ins", ErrQuoteInvalidInput, s.maxTradeIns)
	}

	rules, err := s.rules.ListForJurisdiction(ctx, state, input.Jurisdiction.CountyName)
	if err != nil {
		return domain.ScenarioResult{}, fmt.Errorf("quote service: load jurisdiction rules: %w", err)
	}

	var config domain.DealerConfig
	if dealerID := strings.TrimSpace(input.Dealer.DealerID); dealerID != "" {
		config, err = s.dealers.Get(ctx, dealerID)
		if err != nil && !isRepoNotFound(err) {
			return domain.ScenarioResult{}, fmt.Errorf("quote service: load dealer config: %w", err)
		}
	}

	result, err := s.orchestrator.Calculate(ctx, input, rules, config)
	if err != nil {
		return domain.ScenarioResult{}, err
	}

	if err := s.quotes.Insert(ctx, result); err != nil {
		return domain.ScenarioResult{}, fmt.Errorf("quote service: store quote %s: %w", result.ID, err)
	}

	s.logger(ctx, "quote_created", map[string]any{
		"quoteId":  result.ID,
		"state":    state,
		"scenario": string(result.Scenario.Type),
		"warnings": len(result.Warnings),
	})
	return result, nil
}

// GetQuote replays a stored quote by id.
func (s *QuoteService) GetQuote(ctx context.Context, quoteID string) (domain.ScenarioResult, error) {
	id := strings.TrimSpace(quoteID)
	if id == "" {
		return domain.ScenarioResult{}, fmt.Errorf("%w: quote id is required", ErrQuoteNotFound)
	}
	result, err := s.quotes.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.ScenarioResult{}, fmt.Errorf("%w: %s", ErrQuoteNotFound, id)
		}
		return domain.ScenarioResult{}, fmt.Errorf("quote service: load quote %s: %w", id, err)
	}
	return result, nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
