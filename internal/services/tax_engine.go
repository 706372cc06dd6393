package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lotwise/api/internal/domain"
)

// DefaultRates is the fail-open fallback for a jurisdiction with no matching
// tax rules. Rates are fractions; CountyCap is the cents portion of the base
// the county rate applies to, zero meaning uncapped.
type DefaultRates struct {
	StateRate  float64
	CountyRate float64
	CountyCap  int64
}

// DefaultRateTable maps upper-case state codes to their fallback rates.
type DefaultRateTable map[string]DefaultRates

// SeedRateTable returns the shipped fallback table. Florida is the seed
// entry: 6% state, 1% county surtax on the first $5,000 of the base.
func SeedRateTable() DefaultRateTable {
	return DefaultRateTable{
		"FL": {StateRate: 0.06, CountyRate: 0.01, CountyCap: 500_000},
	}
}

// TaxEngine computes the sales tax breakdown for a quoted deal. It holds only
// injected read-only configuration and is safe for concurrent use.
type TaxEngine struct {
	conditions *ConditionEvaluator
	defaults   DefaultRateTable
	now        func() time.Time
}

// TaxEngineDeps wires a TaxEngine.
type TaxEngineDeps struct {
	Conditions *ConditionEvaluator
	Defaults   DefaultRateTable
	Now        func() time.Time
}

// NewTaxEngine constructs a TaxEngine.
func NewTaxEngine(deps TaxEngineDeps) (*TaxEngine, error) {
	if deps.Conditions == nil {
		return nil, errors.New("tax engine: condition evaluator is required")
	}
	defaults := deps.Defaults
	if defaults == nil {
		defaults = SeedRateTable()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TaxEngine{
		conditions: deps.Conditions,
		defaults:   defaults,
		now:        func() time.Time { return now().UTC() },
	}, nil
}

// TaxComputation is the engine's verdict plus the recoverable problems it hit
// on the way; the orchestrator folds Warnings into the quote.
type TaxComputation struct {
	Breakdown        domain.TaxBreakdown
	UsedDefaultRates bool
	Warnings         []string
}

// ComputeTax assembles the taxable base and applies state and county rates.
// Only positive trade equity reduces the base; an upside-down trade
// contributes nothing. Missing rate rules fall open to the default table.
func (e *TaxEngine) ComputeTax(input domain.ScenarioInput, govItems, dealerItems []domain.LineItem, rules []domain.JurisdictionRule, values map[string]any) TaxComputation {
	var comp TaxComputation

	credit := TradeInCredit(input.TradeIns)

	var taxableFees int64
	for _, item := range govItems {
		if item.Taxable {
			taxableFees += item.Amount
		}
	}
	for _, item := range dealerItems {
		if item.Taxable {
			taxableFees += item.Amount
		}
	}

	base := input.Deal.SellingPrice - credit + taxableFees
	if base < 0 {
		base = 0
	}

	stateRule, countyRule := e.resolveRates(input, rules, values, &comp)

	state := strings.ToUpper(strings.TrimSpace(input.Jurisdiction.StateCode))

	var stateRate, countyRate float64
	var countyCap int64
	switch {
	case stateRule != nil || countyRule != nil:
		if stateRule != nil {
			stateRate = stateRule.Rate
		} else {
			comp.Warnings = append(comp.Warnings, fmt.Sprintf("no state tax rule matched for %s; state tax computed as zero", state))
		}
		if countyRule != nil {
			countyRate = countyRule.Rate
			countyCap = countyRule.CapAmount
		} else {
			comp.Warnings = append(comp.Warnings, fmt.Sprintf("no county tax rule matched for %s; county surtax computed as zero", state))
		}
	default:
		comp.UsedDefaultRates = true
		fallback, ok := e.defaults[state]
		if !ok {
			comp.Warnings = append(comp.Warnings, fmt.Sprintf("no tax rates or defaults for state %q; tax computed as zero", state))
			break
		}
		stateRate = fallback.StateRate
		countyRate = fallback.CountyRate
		countyCap = fallback.CountyCap
	}

	stateTax := roundRate(base, stateRate)

	countyBase := base
	countyCapped := false
	if countyCap > 0 && base > countyCap {
		countyBase = countyCap
		countyCapped = true
	}
	countyTax := roundRate(countyBase, countyRate)

	comp.Breakdown = domain.TaxBreakdown{
		TaxableBase:     base,
		TradeInCredit:   credit,
		StateRate:       stateRate,
		CountyRate:      countyRate,
		StateTax:        stateTax,
		CountyTax:       countyTax,
		TotalTax:        stateTax + countyTax,
		CountyTaxCapped: countyCapped,
		CountyTaxCap:    countyCap,
	}
	return comp
}

// TradeInCredit sums positive equity across trade-ins, in cents.
func TradeInCredit(trades []domain.TradeIn) int64 {
	var credit int64
	for _, trade := range trades {
		equity := trade.EstimatedValue - trade.PayoffAmount
		if equity > 0 {
			credit += equity
		}
	}
	return credit
}

// resolveRates picks the first matching state-level rule and the first
// county-level rule for the scenario's county, falling back to a
// jurisdiction-wide county rule when no exact county match exists. Rules
// whose condition fails to evaluate are skipped with a warning, never
// applied.
func (e *TaxEngine) resolveRates(input domain.ScenarioInput, rules []domain.JurisdictionRule, values map[string]any, comp *TaxComputation) (*domain.TaxRateRule, *domain.TaxRateRule) {
	county := strings.ToUpper(strings.TrimSpace(input.Jurisdiction.CountyName))
	now := e.now()

	var stateRule, countyExact, countyWide *domain.TaxRateRule
	for i := range rules {
		rule := &rules[i]
		if rule.RuleType != domain.RuleTypeTaxCalculation || rule.TaxRate == nil {
			continue
		}
		rate := rule.TaxRate
		if !rateEffective(rate, now) {
			continue
		}
		ok, err := e.conditions.Evaluate(rate.Condition, values)
		if err != nil {
			comp.Warnings = append(comp.Warnings, fmt.Sprintf("tax rule %s condition failed to evaluate: %v", rule.ID, err))
			continue
		}
		if !ok {
			continue
		}
		switch rate.RateType {
		case domain.TaxRateTypeState:
			if stateRule == nil {
				stateRule = rate
			}
		case domain.TaxRateTypeCounty:
			ruleCounty := strings.ToUpper(strings.TrimSpace(rule.CountyName))
			if ruleCounty != "" && ruleCounty == county && countyExact == nil {
				countyExact = rate
			}
			if ruleCounty == "" && countyWide == nil {
				countyWide = rate
			}
		}
	}

	countyRule := countyExact
	if countyRule == nil {
		countyRule = countyWide
	}
	return stateRule, countyRule
}

func rateEffective(rate *domain.TaxRateRule, now time.Time) bool {
	if rate.EffectiveAt != nil && now.Before(*rate.EffectiveAt) {
		return false
	}
	if rate.ExpiresAt != nil && !now.Before(*rate.ExpiresAt) {
		return false
	}
	return true
}

// roundRate applies a fractional rate to a cents amount, rounding half away
// from zero to whole cents.
func roundRate(amount int64, rate float64) int64 {
	if rate == 0 || amount == 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * rate))
}
