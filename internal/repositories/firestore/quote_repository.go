package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lotwise/api/internal/domain"
	pfirestore "github.com/lotwise/api/internal/platform/firestore"
	"github.com/lotwise/api/internal/repositories"
)

const quoteCollection = "quotes"

// QuoteRepository stores computed quotes within Firestore, one document per
// quote keyed by the quote's ULID.
type QuoteRepository struct {
	base *pfirestore.BaseRepository[quoteDocument]
}

// NewQuoteRepository constructs a Firestore-backed quote repository.
func NewQuoteRepository(provider *pfirestore.Provider) (*QuoteRepository, error) {
	if provider == nil {
		return nil, errors.New("quote repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[quoteDocument](provider, quoteCollection, nil, nil)
	return &QuoteRepository{base: base}, nil
}

type quoteDocument struct {
	CreatedAt      time.Time               `firestore:"createdAt"`
	Input          domain.ScenarioInput    `firestore:"input"`
	Scenario       domain.DetectedScenario `firestore:"scenario"`
	LineItems      []domain.LineItem       `firestore:"lineItems"`
	Tax            domain.TaxBreakdown     `firestore:"tax"`
	Totals         domain.QuoteTotals      `firestore:"totals"`
	Explanations   []string                `firestore:"explanations,omitempty"`
	AppliedRuleIDs []string                `firestore:"appliedRuleIds,omitempty"`
	Warnings       []string                `firestore:"warnings,omitempty"`
}

// Insert writes the quote under its id. Quotes are immutable once stored.
func (r *QuoteRepository) Insert(ctx context.Context, result domain.ScenarioResult) error {
	if r == nil || r.base == nil {
		return errors.New("quote repository not initialised")
	}
	id := strings.TrimSpace(result.ID)
	if id == "" {
		return errors.New("quote repository: quote id is required")
	}
	doc := quoteDocument{
		CreatedAt:      result.CreatedAt.UTC(),
		Input:          result.Input,
		Scenario:       result.Scenario,
		LineItems:      result.LineItems,
		Tax:            result.Tax,
		Totals:         result.Totals,
		Explanations:   result.Explanations,
		AppliedRuleIDs: result.AppliedRuleIDs,
		Warnings:       result.Warnings,
	}
	_, err := r.base.Set(ctx, id, doc)
	return err
}

// FindByID fetches a stored quote by id.
func (r *QuoteRepository) FindByID(ctx context.Context, quoteID string) (domain.ScenarioResult, error) {
	if r == nil || r.base == nil {
		return domain.ScenarioResult{}, errors.New("quote repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(quoteID))
	if err != nil {
		return domain.ScenarioResult{}, err
	}
	return domain.ScenarioResult{
		ID:             doc.ID,
		CreatedAt:      doc.Data.CreatedAt,
		Input:          doc.Data.Input,
		Scenario:       doc.Data.Scenario,
		LineItems:      doc.Data.LineItems,
		Tax:            doc.Data.Tax,
		Totals:         doc.Data.Totals,
		Explanations:   doc.Data.Explanations,
		AppliedRuleIDs: doc.Data.AppliedRuleIDs,
		Warnings:       doc.Data.Warnings,
	}, nil
}

var _ repositories.QuoteRepository = (*QuoteRepository)(nil)
