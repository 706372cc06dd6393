package services

import "github.com/lotwise/api/internal/domain"

// ScenarioClassifier maps a deal to one discrete scenario type using a
// priority-ordered decision table. Stateless and safe for concurrent use.
type ScenarioClassifier struct{}

// NewScenarioClassifier constructs a ScenarioClassifier.
func NewScenarioClassifier() *ScenarioClassifier {
	return &ScenarioClassifier{}
}

// Classify collapses the deal into four flags and walks the decision table
// top to bottom, first match wins. The row order is a contract: a deal with
// both a trade-in tag transfer and a first registration is a trade-in tag
// transfer, never a new tag.
func (c *ScenarioClassifier) Classify(input domain.ScenarioInput) domain.DetectedScenario {
	scenario := domain.DetectedScenario{
		HasTradeIn:              input.HasTradeIn(),
		IsFinanced:              input.IsFinanced(),
		IsTagTransfer:           input.IsTagTransfer(),
		IsFirstTimeRegistration: input.IsFirstRegistration(),
	}

	switch {
	case scenario.HasTradeIn && scenario.IsTagTransfer && scenario.IsFinanced:
		scenario.Type = domain.ScenarioTradeInTagTransferFinanced
		scenario.Description = "Financed purchase with trade-in and tag transfer"
	case scenario.HasTradeIn && scenario.IsTagTransfer:
		scenario.Type = domain.ScenarioTradeInTagTransferCash
		scenario.Description = "Cash purchase with trade-in and tag transfer"
	case scenario.IsFirstTimeRegistration && scenario.IsFinanced:
		scenario.Type = domain.ScenarioNewTagFinanced
		scenario.Description = "Financed purchase with first-time registration"
	case scenario.IsFirstTimeRegistration:
		scenario.Type = domain.ScenarioNewTagCash
		scenario.Description = "Cash purchase with first-time registration"
	case scenario.IsFinanced:
		scenario.Type = domain.ScenarioStandardFinanced
		scenario.Description = "Standard financed purchase"
	default:
		scenario.Type = domain.ScenarioStandardCash
		scenario.Description = "Standard cash purchase"
	}

	return scenario
}
