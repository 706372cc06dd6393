package services

import (
	"strings"

	"github.com/lotwise/api/internal/domain"
)

// DerivedFeeGenerator synthesizes a government fee rule from scenario data
// for fee schedules not expressible as static rule records. A nil return
// means the fee does not apply to this deal.
type DerivedFeeGenerator func(input domain.ScenarioInput) *domain.GovernmentFeeRule

// DerivedFeeRegistry maps upper-case state codes to the generators that run
// for deals in that state.
type DerivedFeeRegistry map[string][]DerivedFeeGenerator

// Generators returns the generator list for a state code, or nil.
func (r DerivedFeeRegistry) Generators(stateCode string) []DerivedFeeGenerator {
	if r == nil {
		return nil
	}
	return r[strings.ToUpper(strings.TrimSpace(stateCode))]
}

// weightBand is one row of a weight-banded fee schedule. The first band whose
// MaxWeight is at or above the vehicle weight wins.
type weightBand struct {
	MaxWeight int
	Amount    int64
}

// SeedDerivedFeeRegistry returns the shipped generator set. Florida is the
// seed entry with its weight-banded annual registration schedule.
func SeedDerivedFeeRegistry() DerivedFeeRegistry {
	return DerivedFeeRegistry{
		"FL": {floridaRegistrationFee},
	}
}

// floridaRegistrationFee applies Florida's passenger vehicle registration
// schedule: $27.60 through 2,499 lbs, $35.60 through 3,499 lbs, $45.60 above.
// Plate scenario "none" means the dealer is not registering the vehicle, so
// no registration fee is due.
func floridaRegistrationFee(input domain.ScenarioInput) *domain.GovernmentFeeRule {
	if input.Registration.PlateScenario == domain.PlateScenarioNone {
		return nil
	}

	bands := []weightBand{
		{MaxWeight: 2499, Amount: 2_760},
		{MaxWeight: 3499, Amount: 3_560},
	}
	const heavyAmount = 4_560

	weight := input.Vehicle.WeightPounds
	amount := int64(heavyAmount)
	for _, band := range bands {
		if weight <= band.MaxWeight {
			amount = band.Amount
			break
		}
	}

	return &domain.GovernmentFeeRule{
		FeeCode:             "FL_REGISTRATION",
		Description:         "Florida vehicle registration",
		Amount:              amount,
		Taxable:             false,
		Priority:            50,
		AutoApply:           true,
		ExplanationTemplate: "Registration fee for a {{vehicle.weightPounds}} lb vehicle",
	}
}
