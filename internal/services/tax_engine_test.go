package services

import (
	"strings"
	"testing"
	"time"

	"github.com/lotwise/api/internal/domain"
)

func newTestTaxEngine(t *testing.T) *TaxEngine {
	t.Helper()
	engine, err := NewTaxEngine(TaxEngineDeps{
		Conditions: NewConditionEvaluator(),
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewTaxEngine: %v", err)
	}
	return engine
}

func taxRateRule(id string, rateType domain.TaxRateType, rate float64, cap int64, county string) domain.JurisdictionRule {
	return domain.JurisdictionRule{
		ID:         id,
		StateCode:  "FL",
		CountyName: county,
		RuleType:   domain.RuleTypeTaxCalculation,
		TaxRate:    &domain.TaxRateRule{RateType: rateType, Rate: rate, CapAmount: cap},
	}
}

func TestTradeInCredit(t *testing.T) {
	cases := []struct {
		name   string
		trades []domain.TradeIn
		want   int64
	}{
		{"no trades", nil, 0},
		{"positive equity", []domain.TradeIn{{EstimatedValue: 800_000, PayoffAmount: 500_000}}, 300_000},
		{"negative equity contributes zero", []domain.TradeIn{{EstimatedValue: 500_000, PayoffAmount: 800_000}}, 0},
		{
			"mixed equity never nets negative",
			[]domain.TradeIn{
				{EstimatedValue: 500_000, PayoffAmount: 800_000},
				{EstimatedValue: 600_000, PayoffAmount: 200_000},
			},
			400_000,
		},
		{"no payoff", []domain.TradeIn{{EstimatedValue: 250_000}}, 250_000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TradeInCredit(tc.trades); got != tc.want {
				t.Fatalf("TradeInCredit = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestComputeTaxWithConfiguredRates(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL", CountyName: "Orange"},
		Deal:         domain.DealTerms{SellingPrice: 2_000_000},
	}
	values := testScenarioValues(t, input)
	rules := []domain.JurisdictionRule{
		taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
		taxRateRule("tax-orange", domain.TaxRateTypeCounty, 0.005, 500_000, "Orange"),
	}
	govItems := []domain.LineItem{{Code: "TITLE", Amount: 7_525, Taxable: true}}
	dealerItems := []domain.LineItem{{Code: "DOC", Amount: 89_900, Taxable: true}}

	comp := engine.ComputeTax(input, govItems, dealerItems, rules, values)
	if comp.UsedDefaultRates {
		t.Fatal("configured rates must not fall back to defaults")
	}

	wantBase := int64(2_000_000 + 7_525 + 89_900)
	if comp.Breakdown.TaxableBase != wantBase {
		t.Fatalf("TaxableBase = %d, want %d", comp.Breakdown.TaxableBase, wantBase)
	}
	if comp.Breakdown.StateTax != 125_846 { // round(2097425 * 0.06)
		t.Fatalf("StateTax = %d, want 125846", comp.Breakdown.StateTax)
	}
	if !comp.Breakdown.CountyTaxCapped {
		t.Fatal("county tax should be capped: base exceeds cap")
	}
	if comp.Breakdown.CountyTax != 2_500 { // round(500000 * 0.005)
		t.Fatalf("CountyTax = %d, want 2500", comp.Breakdown.CountyTax)
	}
	if comp.Breakdown.TotalTax != comp.Breakdown.StateTax+comp.Breakdown.CountyTax {
		t.Fatalf("TotalTax = %d, want state+county", comp.Breakdown.TotalTax)
	}
	if comp.Breakdown.CountyTaxCap != 500_000 {
		t.Fatalf("CountyTaxCap = %d, want configured 500000", comp.Breakdown.CountyTaxCap)
	}
}

func TestComputeTaxOneSidedRuleWarns(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL", CountyName: "Orange"},
		Deal:         domain.DealTerms{SellingPrice: 1_000_000},
	}
	values := testScenarioValues(t, input)

	// State rule only: the county surtax is zero, but never silently.
	comp := engine.ComputeTax(input, nil, nil, []domain.JurisdictionRule{
		taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
	}, values)
	if comp.UsedDefaultRates {
		t.Fatal("a matching state rule must not fall back to defaults")
	}
	if comp.Breakdown.CountyTax != 0 {
		t.Fatalf("CountyTax = %d, want 0", comp.Breakdown.CountyTax)
	}
	if !containsWarning(comp.Warnings, "no county tax rule matched") {
		t.Fatalf("Warnings = %v, want missing county rule warning", comp.Warnings)
	}

	// County rule only: the state side warns instead.
	comp = engine.ComputeTax(input, nil, nil, []domain.JurisdictionRule{
		taxRateRule("tax-orange", domain.TaxRateTypeCounty, 0.01, 0, "Orange"),
	}, values)
	if comp.UsedDefaultRates {
		t.Fatal("a matching county rule must not fall back to defaults")
	}
	if comp.Breakdown.StateTax != 0 {
		t.Fatalf("StateTax = %d, want 0", comp.Breakdown.StateTax)
	}
	if !containsWarning(comp.Warnings, "no state tax rule matched") {
		t.Fatalf("Warnings = %v, want missing state rule warning", comp.Warnings)
	}
}

func containsWarning(warnings []string, fragment string) bool {
	for _, w := range warnings {
		if strings.Contains(w, fragment) {
			return true
		}
	}
	return false
}

func TestComputeTaxReportsConfiguredCap(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL", CountyName: "Orange"},
		Deal:         domain.DealTerms{SellingPrice: 1_000_000},
	}
	values := testScenarioValues(t, input)
	rules := []domain.JurisdictionRule{
		taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
		taxRateRule("tax-orange", domain.TaxRateTypeCounty, 0.07, 99_999, "Orange"),
	}

	comp := engine.ComputeTax(input, nil, nil, rules, values)
	if comp.Breakdown.CountyTax != 7_000 { // round(99999 * 0.07)
		t.Fatalf("CountyTax = %d, want 7000", comp.Breakdown.CountyTax)
	}
	// Dividing the rounded tax back by the rate would overstate the cap;
	// the breakdown must carry the configured figure instead.
	if comp.Breakdown.CountyTaxCap != 99_999 {
		t.Fatalf("CountyTaxCap = %d, want configured 99999", comp.Breakdown.CountyTaxCap)
	}
}

func TestComputeTaxCountyCapProperty(t *testing.T) {
	engine := newTestTaxEngine(t)

	cases := []struct {
		price      int64
		cap        int64
		wantCapped bool
	}{
		{100_000, 500_000, false},
		{500_000, 500_000, false},
		{500_001, 500_000, true},
		{5_000_000, 500_000, true},
		{5_000_000, 0, false}, // zero cap means uncapped
	}

	for _, tc := range cases {
		input := domain.ScenarioInput{
			Jurisdiction: domain.Jurisdiction{StateCode: "FL", CountyName: "Orange"},
			Deal:         domain.DealTerms{SellingPrice: tc.price},
		}
		values := testScenarioValues(t, input)
		rules := []domain.JurisdictionRule{
			taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
			taxRateRule("tax-county", domain.TaxRateTypeCounty, 0.01, tc.cap, "Orange"),
		}

		comp := engine.ComputeTax(input, nil, nil, rules, values)
		if comp.Breakdown.CountyTaxCapped != tc.wantCapped {
			t.Fatalf("price=%d cap=%d: CountyTaxCapped = %v, want %v", tc.price, tc.cap, comp.Breakdown.CountyTaxCapped, tc.wantCapped)
		}
		countyBase := tc.price
		if tc.cap > 0 && countyBase > tc.cap {
			countyBase = tc.cap
		}
		if want := roundRate(countyBase, 0.01); comp.Breakdown.CountyTax != want {
			t.Fatalf("price=%d cap=%d: CountyTax = %d, want %d", tc.price, tc.cap, comp.Breakdown.CountyTax, want)
		}
	}
}

func TestComputeTaxTradeInCreditReducesBase(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL"},
		Deal:         domain.DealTerms{SellingPrice: 2_500_000},
		TradeIns:     []domain.TradeIn{{EstimatedValue: 800_000, PayoffAmount: 500_000}},
	}
	values := testScenarioValues(t, input)
	rules := []domain.JurisdictionRule{taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, "")}

	comp := engine.ComputeTax(input, nil, nil, rules, values)
	if comp.Breakdown.TradeInCredit != 300_000 {
		t.Fatalf("TradeInCredit = %d, want 300000", comp.Breakdown.TradeInCredit)
	}
	if comp.Breakdown.TaxableBase != 2_200_000 {
		t.Fatalf("TaxableBase = %d, want 2200000", comp.Breakdown.TaxableBase)
	}
}

func TestComputeTaxBaseNeverNegative(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL"},
		Deal:         domain.DealTerms{SellingPrice: 100_000},
		TradeIns:     []domain.TradeIn{{EstimatedValue: 900_000}},
	}
	values := testScenarioValues(t, input)
	rules := []domain.JurisdictionRule{taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, "")}

	comp := engine.ComputeTax(input, nil, nil, rules, values)
	if comp.Breakdown.TaxableBase != 0 {
		t.Fatalf("TaxableBase = %d, want 0", comp.Breakdown.TaxableBase)
	}
	if comp.Breakdown.TotalTax != 0 {
		t.Fatalf("TotalTax = %d, want 0", comp.Breakdown.TotalTax)
	}
}

func TestComputeTaxDefaultRateFallback(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "fl", CountyName: "Orange"},
		Deal:         domain.DealTerms{SellingPrice: 2_000_000},
	}
	values := testScenarioValues(t, input)

	comp := engine.ComputeTax(input, nil, nil, nil, values)
	if !comp.UsedDefaultRates {
		t.Fatal("missing rules must fall open to jurisdiction defaults")
	}
	if comp.Breakdown.StateRate != 0.06 || comp.Breakdown.CountyRate != 0.01 {
		t.Fatalf("default rates = %v/%v, want 0.06/0.01", comp.Breakdown.StateRate, comp.Breakdown.CountyRate)
	}
	// County surtax on the first $5,000 of a $20,000 base.
	if comp.Breakdown.CountyTax != 5_000 {
		t.Fatalf("CountyTax = %d, want 5000", comp.Breakdown.CountyTax)
	}
	if !comp.Breakdown.CountyTaxCapped {
		t.Fatal("county tax should be capped under the default table")
	}
}

func TestComputeTaxUnknownStateDefaults(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "ZZ"},
		Deal:         domain.DealTerms{SellingPrice: 1_000_000},
	}
	values := testScenarioValues(t, input)

	comp := engine.ComputeTax(input, nil, nil, nil, values)
	if !comp.UsedDefaultRates {
		t.Fatal("unknown state must report default fallback")
	}
	if len(comp.Warnings) == 0 {
		t.Fatal("unknown state with no default entry must warn")
	}
	if comp.Breakdown.TotalTax != 0 {
		t.Fatalf("TotalTax = %d, want 0", comp.Breakdown.TotalTax)
	}
}

func TestComputeTaxCountyRuleSelection(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL", CountyName: "Orange"},
		Deal:         domain.DealTerms{SellingPrice: 1_000_000},
	}
	values := testScenarioValues(t, input)

	// Exact county match wins over the jurisdiction-wide fallback.
	rules := []domain.JurisdictionRule{
		taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
		taxRateRule("tax-wide", domain.TaxRateTypeCounty, 0.02, 0, ""),
		taxRateRule("tax-orange", domain.TaxRateTypeCounty, 0.005, 0, "Orange"),
	}
	comp := engine.ComputeTax(input, nil, nil, rules, values)
	if comp.Breakdown.CountyRate != 0.005 {
		t.Fatalf("CountyRate = %v, want exact county match 0.005", comp.Breakdown.CountyRate)
	}

	// Without an exact match the jurisdiction-wide rule applies.
	rules = []domain.JurisdictionRule{
		taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
		taxRateRule("tax-duval", domain.TaxRateTypeCounty, 0.015, 0, "Duval"),
		taxRateRule("tax-wide", domain.TaxRateTypeCounty, 0.02, 0, ""),
	}
	comp = engine.ComputeTax(input, nil, nil, rules, values)
	if comp.Breakdown.CountyRate != 0.02 {
		t.Fatalf("CountyRate = %v, want jurisdiction-wide 0.02", comp.Breakdown.CountyRate)
	}
}

func TestComputeTaxExpiredRuleSkipped(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL"},
		Deal:         domain.DealTerms{SellingPrice: 1_000_000},
	}
	values := testScenarioValues(t, input)

	expired := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := taxRateRule("tax-old", domain.TaxRateTypeState, 0.07, 0, "")
	rule.TaxRate.ExpiresAt = &expired

	comp := engine.ComputeTax(input, nil, nil, []domain.JurisdictionRule{rule}, values)
	if !comp.UsedDefaultRates {
		t.Fatal("expired rule must not apply; defaults expected")
	}
	if comp.Breakdown.StateRate != 0.06 {
		t.Fatalf("StateRate = %v, want default 0.06", comp.Breakdown.StateRate)
	}
}

func TestComputeTaxMalformedConditionSkipsRule(t *testing.T) {
	engine := newTestTaxEngine(t)
	input := domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL"},
		Deal:         domain.DealTerms{SellingPrice: 1_000_000},
	}
	values := testScenarioValues(t, input)

	rule := taxRateRule("tax-bad", domain.TaxRateTypeState, 0.09, 0, "")
	rule.TaxRate.Condition = &domain.Condition{Op: "matches"}

	comp := engine.ComputeTax(input, nil, nil, []domain.JurisdictionRule{rule}, values)
	if comp.Breakdown.StateRate == 0.09 {
		t.Fatal("rule with malformed condition must never apply")
	}
	if len(comp.Warnings) == 0 {
		t.Fatal("malformed condition must produce a warning")
	}
	if !comp.UsedDefaultRates {
		t.Fatal("with the only rule skipped, defaults apply")
	}
}
