package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lotwise/api/internal/domain"
)

func newTestOrchestrator(t *testing.T) *FeeOrchestrator {
	t.Helper()
	conditions := NewConditionEvaluator()
	fixedNow := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	tax, err := NewTaxEngine(TaxEngineDeps{Conditions: conditions, Now: fixedNow})
	if err != nil {
		t.Fatalf("NewTaxEngine: %v", err)
	}
	orchestrator, err := NewFeeOrchestrator(FeeOrchestratorDeps{
		Classifier: NewScenarioClassifier(),
		Conditions: conditions,
		Tax:        tax,
		Derived:    SeedDerivedFeeRegistry(),
		Now:        fixedNow,
		NewID:      func() string { return "quote-0001" },
	})
	if err != nil {
		t.Fatalf("NewFeeOrchestrator: %v", err)
	}
	return orchestrator
}

func govFeeRule(id, code string, amount int64, priority int) domain.JurisdictionRule {
	return domain.JurisdictionRule{
		ID:        id,
		StateCode: "FL",
		RuleType:  domain.RuleTypeGovernmentFee,
		GovernmentFee: &domain.GovernmentFeeRule{
			FeeCode:   code,
			Amount:    amount,
			Priority:  priority,
			AutoApply: true,
		},
	}
}

func workedExampleInput() domain.ScenarioInput {
	return domain.ScenarioInput{
		Jurisdiction: domain.Jurisdiction{StateCode: "FL", CountyName: "Orange"},
		Dealer:       domain.DealerContext{DealerID: "dealer-1"},
		Deal:         domain.DealTerms{SellingPrice: 2_500_000, CashDown: 500_000, TermMonths: 60},
		Vehicle:      domain.Vehicle{WeightPounds: 3_200},
		TradeIns:     []domain.TradeIn{{EstimatedValue: 800_000, PayoffAmount: 500_000}},
		Registration: domain.Registration{PlateScenario: domain.PlateScenarioNewPlate},
	}
}

func TestCalculateWorkedExample(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()

	result, err := orchestrator.Calculate(context.Background(), input, nil, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if result.Scenario.Type != domain.ScenarioStandardFinanced {
		t.Fatalf("scenario = %s, want %s", result.Scenario.Type, domain.ScenarioStandardFinanced)
	}
	if result.Tax.TradeInCredit != 300_000 {
		t.Fatalf("TradeInCredit = %d, want 300000", result.Tax.TradeInCredit)
	}
	if result.Tax.TaxableBase != 2_200_000 {
		t.Fatalf("TaxableBase = %d, want 2200000", result.Tax.TaxableBase)
	}
	if result.Tax.StateTax != 132_000 {
		t.Fatalf("StateTax = %d, want 132000", result.Tax.StateTax)
	}
	// County surtax at the default 1% applies to min(base, $5,000).
	if result.Tax.CountyTax != 5_000 || !result.Tax.CountyTaxCapped {
		t.Fatalf("CountyTax = %d capped=%v, want 5000 capped", result.Tax.CountyTax, result.Tax.CountyTaxCapped)
	}

	// The derived FL registration fee for a 3,200 lb vehicle.
	if len(result.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(result.LineItems))
	}
	registration := result.LineItems[0]
	if registration.Code != "FL_REGISTRATION" || registration.Amount != 3_560 {
		t.Fatalf("registration line = %s %d, want FL_REGISTRATION 3560", registration.Code, registration.Amount)
	}

	if result.Totals.GovernmentFees != 3_560 {
		t.Fatalf("GovernmentFees = %d, want 3560", result.Totals.GovernmentFees)
	}
	if result.Totals.DealerFees != 0 {
		t.Fatalf("DealerFees = %d, want 0", result.Totals.DealerFees)
	}
	if result.Totals.SalesTax != 137_000 {
		t.Fatalf("SalesTax = %d, want 137000", result.Totals.SalesTax)
	}
	wantFinanced := int64(2_500_000 - 500_000 + 3_560 + 137_000)
	if result.Totals.AmountFinanced != wantFinanced {
		t.Fatalf("AmountFinanced = %d, want %d", result.Totals.AmountFinanced, wantFinanced)
	}

	var sawDefaultRates, sawMissingPackage bool
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "default rates applied") {
			sawDefaultRates = true
		}
		if strings.Contains(warning, "not found; no dealer fees applied") {
			sawMissingPackage = true
		}
	}
	if !sawDefaultRates {
		t.Fatalf("warnings %v missing default-rate note", result.Warnings)
	}
	if !sawMissingPackage {
		t.Fatalf("warnings %v missing fee package note", result.Warnings)
	}
}

func TestCalculateAutoApplyAndOptionalNeverApplied(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone // suppress derived fee

	manual := govFeeRule("rule-manual", "MANUAL_FEE", 1_000, 10)
	manual.GovernmentFee.AutoApply = false
	optional := govFeeRule("rule-optional", "OPTIONAL_FEE", 2_000, 10)
	optional.GovernmentFee.Optional = true
	applied := govFeeRule("rule-title", "TITLE", 7_525, 10)

	result, err := orchestrator.Calculate(context.Background(), input, []domain.JurisdictionRule{manual, optional, applied}, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if len(result.AppliedRuleIDs) != 1 || result.AppliedRuleIDs[0] != "TITLE" {
		t.Fatalf("AppliedRuleIDs = %v, want [TITLE]", result.AppliedRuleIDs)
	}
	for _, item := range result.LineItems {
		if item.Code == "MANUAL_FEE" || item.Code == "OPTIONAL_FEE" {
			t.Fatalf("fee %s must not apply without explicit opt-in", item.Code)
		}
	}
}

func TestCalculateIdempotent(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	rules := []domain.JurisdictionRule{govFeeRule("rule-title", "TITLE", 7_525, 10)}
	config := domain.DealerConfig{
		DealerID:         "dealer-1",
		DefaultPackageID: "standard",
		Packages: []domain.FeePackage{
			{ID: "standard", Items: []domain.DealerFeeItem{{Code: "DOC", Amount: 89_900, Taxable: true}}},
		},
	}

	first, err := orchestrator.Calculate(context.Background(), input, rules, config)
	if err != nil {
		t.Fatalf("Calculate first: %v", err)
	}
	second, err := orchestrator.Calculate(context.Background(), input, rules, config)
	if err != nil {
		t.Fatalf("Calculate second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different results:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestCalculateMissingFeePackage(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Dealer.FeePackageID = "premium"

	config := domain.DealerConfig{
		DealerID:         "dealer-1",
		DefaultPackageID: "standard",
		Packages: []domain.FeePackage{
			{ID: "standard", Items: []domain.DealerFeeItem{{Code: "DOC", Amount: 89_900, Taxable: true}}},
		},
	}

	result, err := orchestrator.Calculate(context.Background(), input, nil, config)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.Totals.DealerFees != 0 {
		t.Fatalf("DealerFees = %d, want 0", result.Totals.DealerFees)
	}
	for _, item := range result.LineItems {
		if item.Category == domain.LineItemCategoryDealer {
			t.Fatalf("unexpected dealer line item %s", item.Code)
		}
	}
	var found bool
	for _, warning := range result.Warnings {
		if strings.Contains(warning, `"premium" not found`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings %v missing package warning", result.Warnings)
	}
}

func TestCalculateDealerPackageDefaultFallback(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()

	config := domain.DealerConfig{
		DealerID:         "dealer-1",
		DefaultPackageID: "standard",
		Packages: []domain.FeePackage{
			{ID: "standard", Items: []domain.DealerFeeItem{
				{Code: "DOC", Description: "Documentation fee", Amount: 89_900, Taxable: true},
				{Code: "ETCH", Description: "VIN etching", Amount: 19_900, Taxable: false},
			}},
		},
	}

	result, err := orchestrator.Calculate(context.Background(), input, nil, config)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.Totals.DealerFees != 109_800 {
		t.Fatalf("DealerFees = %d, want 109800", result.Totals.DealerFees)
	}
	// The taxable DOC fee joins the taxable base: 2.2M + 89900.
	if result.Tax.TaxableBase != 2_289_900 {
		t.Fatalf("TaxableBase = %d, want 2289900", result.Tax.TaxableBase)
	}
}

func TestCalculateFailClosedRulesFailOpenTax(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone

	// A fee rule with a broken condition must not apply (fail-closed) while
	// the missing tax rules fall open to jurisdiction defaults.
	broken := govFeeRule("rule-broken", "BROKEN_FEE", 10_000, 10)
	broken.GovernmentFee.Condition = &domain.Condition{Op: "matches"}

	result, err := orchestrator.Calculate(context.Background(), input, []domain.JurisdictionRule{broken}, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if result.Totals.GovernmentFees != 0 {
		t.Fatalf("GovernmentFees = %d, want 0: broken condition must fail closed", result.Totals.GovernmentFees)
	}
	if result.Tax.StateRate != 0.06 {
		t.Fatalf("StateRate = %v, want fail-open default 0.06", result.Tax.StateRate)
	}

	var sawRuleWarning, sawTaxWarning bool
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "condition failed to evaluate") {
			sawRuleWarning = true
		}
		if strings.Contains(warning, "default rates applied") {
			sawTaxWarning = true
		}
	}
	if !sawRuleWarning || !sawTaxWarning {
		t.Fatalf("warnings %v must note both the skipped rule and the default rates", result.Warnings)
	}
}

func TestCalculateFormulaFees(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone

	formula := govFeeRule("rule-lemon", "LEMON_LAW", 0, 10)
	formula.GovernmentFee.AmountFormula = "tradeInCount * 200"
	broken := govFeeRule("rule-bad", "BAD_FORMULA", 0, 5)
	broken.GovernmentFee.AmountFormula = "sellingPrice +"

	result, err := orchestrator.Calculate(context.Background(), input, []domain.JurisdictionRule{formula, broken}, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	byCode := map[string]domain.LineItem{}
	for _, item := range result.LineItems {
		byCode[item.Code] = item
	}
	if byCode["LEMON_LAW"].Amount != 200 {
		t.Fatalf("LEMON_LAW amount = %d, want 200", byCode["LEMON_LAW"].Amount)
	}
	if byCode["BAD_FORMULA"].Amount != 0 {
		t.Fatalf("BAD_FORMULA amount = %d, want 0", byCode["BAD_FORMULA"].Amount)
	}
	var found bool
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "BAD_FORMULA formula failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings %v missing formula warning", result.Warnings)
	}
}

func TestCalculatePriorityOrderingStable(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone

	rules := []domain.JurisdictionRule{
		govFeeRule("rule-a", "FEE_A", 100, 10),
		govFeeRule("rule-b", "FEE_B", 200, 90),
		govFeeRule("rule-c", "FEE_C", 300, 10),
	}

	result, err := orchestrator.Calculate(context.Background(), input, rules, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	want := []string{"FEE_B", "FEE_A", "FEE_C"}
	if !reflect.DeepEqual(result.AppliedRuleIDs, want) {
		t.Fatalf("AppliedRuleIDs = %v, want %v", result.AppliedRuleIDs, want)
	}
}

func TestCalculateOverrides(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone

	optional := govFeeRule("rule-optional", "TEMP_TAG", 1_500, 10)
	optional.GovernmentFee.Optional = true
	title := govFeeRule("rule-title", "TITLE", 7_525, 20)

	input.Overrides = &domain.Overrides{
		ExcludeFeeCodes:      []string{"TITLE"},
		ForceIncludeFeeCodes: []string{"TEMP_TAG"},
	}

	result, err := orchestrator.Calculate(context.Background(), input, []domain.JurisdictionRule{optional, title}, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if len(result.AppliedRuleIDs) != 1 || result.AppliedRuleIDs[0] != "TEMP_TAG" {
		t.Fatalf("AppliedRuleIDs = %v, want [TEMP_TAG]", result.AppliedRuleIDs)
	}
}

func TestCalculateExemptionWaiver(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone
	input.Customer.ExemptionCodes = []string{"DISABLED_VETERAN"}

	title := govFeeRule("rule-title", "TITLE", 7_525, 20)
	title.GovernmentFee.Taxable = true
	exemption := domain.JurisdictionRule{
		ID:        "rule-dv",
		StateCode: "FL",
		RuleType:  domain.RuleTypeExemption,
		Exemption: &domain.ExemptionRule{
			ExemptionCode: "DISABLED_VETERAN",
			FeeCodes:      []string{"TITLE"},
			DiscountKind:  domain.DiscountKindWaiver,
		},
	}

	result, err := orchestrator.Calculate(context.Background(), input, []domain.JurisdictionRule{title, exemption}, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if result.LineItems[0].Amount != 0 {
		t.Fatalf("TITLE amount = %d, want 0 after waiver", result.LineItems[0].Amount)
	}
	// The waiver runs before tax, so the waived fee adds nothing to the base.
	if result.Tax.TaxableBase != 2_200_000 {
		t.Fatalf("TaxableBase = %d, want 2200000", result.Tax.TaxableBase)
	}
	var found bool
	for _, explanation := range result.Explanations {
		if strings.Contains(explanation, "DISABLED_VETERAN") {
			found = true
		}
	}
	if !found {
		t.Fatalf("explanations %v missing exemption note", result.Explanations)
	}
}

func TestCalculateExplanationInterpolation(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioNone

	rule := govFeeRule("rule-title", "TITLE", 7_525, 10)
	rule.GovernmentFee.ExplanationTemplate = "Title work on a {{deal.termMonths}} month deal in {{jurisdiction.countyName}} ({{unknown.path}})"

	result, err := orchestrator.Calculate(context.Background(), input, []domain.JurisdictionRule{rule}, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	want := "Title work on a 60 month deal in Orange ({{unknown.path}})"
	if got := result.LineItems[0].Explanation; got != want {
		t.Fatalf("Explanation = %q, want %q", got, want)
	}
}

func TestCalculateExplanationOrdering(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()
	input.Registration.PlateScenario = domain.PlateScenarioTransferPlate
	input.TradeIns = append(input.TradeIns, domain.TradeIn{EstimatedValue: 100_000})

	result, err := orchestrator.Calculate(context.Background(), input, nil, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if len(result.Explanations) < 4 {
		t.Fatalf("explanations = %v, want scenario, trade-in, tag transfer, cap and count entries", result.Explanations)
	}
	if result.Explanations[0] != result.Scenario.Description {
		t.Fatalf("first explanation = %q, want scenario description", result.Explanations[0])
	}
	if !strings.Contains(result.Explanations[1], "Trade-in equity") {
		t.Fatalf("second explanation = %q, want trade-in note", result.Explanations[1])
	}
	if !strings.Contains(result.Explanations[2], "plate transferred") {
		t.Fatalf("third explanation = %q, want tag transfer note", result.Explanations[2])
	}
	last := result.Explanations[len(result.Explanations)-1]
	if !strings.Contains(last, "government fee(s) applied") {
		t.Fatalf("last explanation = %q, want applied fee count", last)
	}
}

func TestCalculateCountyCapExplanationUsesConfiguredCap(t *testing.T) {
	orchestrator := newTestOrchestrator(t)
	input := workedExampleInput()

	rules := []domain.JurisdictionRule{
		taxRateRule("tax-state", domain.TaxRateTypeState, 0.06, 0, ""),
		taxRateRule("tax-orange", domain.TaxRateTypeCounty, 0.07, 99_999, "Orange"),
	}
	result, err := orchestrator.Calculate(context.Background(), input, rules, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if !result.Tax.CountyTaxCapped {
		t.Fatal("county surtax should be capped: base exceeds cap")
	}
	if result.Tax.CountyTaxCap != 99_999 {
		t.Fatalf("CountyTaxCap = %d, want 99999", result.Tax.CountyTaxCap)
	}

	// $999.99, not the figure recovered by dividing the rounded tax by the rate.
	found := false
	for _, explanation := range result.Explanations {
		if strings.Contains(explanation, "first $999.99 of the taxable base") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Explanations = %v, want cap note quoting the configured cap", result.Explanations)
	}
}

func TestCalculateInvalidInput(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	cases := []struct {
		name   string
		mutate func(*domain.ScenarioInput)
	}{
		{"missing state", func(s *domain.ScenarioInput) { s.Jurisdiction.StateCode = " " }},
		{"negative price", func(s *domain.ScenarioInput) { s.Deal.SellingPrice = -1 }},
		{"negative cash down", func(s *domain.ScenarioInput) { s.Deal.CashDown = -1 }},
		{"negative trade value", func(s *domain.ScenarioInput) { s.TradeIns[0].EstimatedValue = -1 }},
		{"negative term", func(s *domain.ScenarioInput) { s.Deal.TermMonths = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := workedExampleInput()
			tc.mutate(&input)
			if _, err := orchestrator.Calculate(context.Background(), input, nil, domain.DealerConfig{}); !errors.Is(err, ErrQuoteInvalidInput) {
				t.Fatalf("Calculate error = %v, want ErrQuoteInvalidInput", err)
			}
		})
	}
}

func TestCalculateDeterministicIDAndClock(t *testing.T) {
	conditions := NewConditionEvaluator()
	fixedNow := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	tax, err := NewTaxEngine(TaxEngineDeps{Conditions: conditions, Now: fixedNow})
	if err != nil {
		t.Fatalf("NewTaxEngine: %v", err)
	}
	var sequence int
	orchestrator, err := NewFeeOrchestrator(FeeOrchestratorDeps{
		Classifier: NewScenarioClassifier(),
		Conditions: conditions,
		Tax:        tax,
		Now:        fixedNow,
		NewID: func() string {
			sequence++
			return fmt.Sprintf("quote-%04d", sequence)
		},
	})
	if err != nil {
		t.Fatalf("NewFeeOrchestrator: %v", err)
	}

	result, err := orchestrator.Calculate(context.Background(), workedExampleInput(), nil, domain.DealerConfig{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.ID != "quote-0001" {
		t.Fatalf("ID = %s, want quote-0001", result.ID)
	}
	if !result.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("CreatedAt = %v, want injected clock value", result.CreatedAt)
	}
}
