package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"

	pfirestore "github.com/lotwise/api/internal/platform/firestore"
	"github.com/lotwise/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider
	rules    *JurisdictionRuleRepository
	dealers  *DealerConfigRepository
	quotes   *QuoteRepository
}

// NewRegistry constructs the repository registry over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("repository registry requires firestore provider")
	}
	rules, err := NewJurisdictionRuleRepository(provider)
	if err != nil {
		return nil, err
	}
	dealers, err := NewDealerConfigRepository(provider)
	if err != nil {
		return nil, err
	}
	quotes, err := NewQuoteRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		rules:    rules,
		dealers:  dealers,
		quotes:   quotes,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// JurisdictionRules returns the rule repository.
func (r *Registry) JurisdictionRules() repositories.JurisdictionRuleRepository {
	return r.rules
}

// DealerConfigs returns the dealer config repository.
func (r *Registry) DealerConfigs() repositories.DealerConfigRepository {
	return r.dealers
}

// Quotes returns the quote repository.
func (r *Registry) Quotes() repositories.QuoteRepository {
	return r.quotes
}

// Health returns a readiness probe backed by the shared client.
func (r *Registry) Health() repositories.HealthRepository {
	return &healthRepository{provider: r.provider}
}

type healthRepository struct {
	provider *pfirestore.Provider
}

// Ping verifies the client can reach the backend by listing collections.
func (h *healthRepository) Ping(ctx context.Context) error {
	if h == nil || h.provider == nil {
		return errors.New("health repository not initialised")
	}
	client, err := h.provider.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collections(ctx)
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return pfirestore.WrapError("health.ping", err)
	}
	return nil
}

var _ repositories.Registry = (*Registry)(nil)
