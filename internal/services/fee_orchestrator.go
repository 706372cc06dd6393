package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lotwise/api/internal/domain"
)

var (
	// ErrQuoteInvalidInput signals scenario data that fails semantic range
	// checks, such as negative money fields or a missing state code.
	ErrQuoteInvalidInput = errors.New("fee orchestrator: invalid input")
	// ErrQuoteCalculation wraps an unexpected internal fault; no partial
	// result accompanies it.
	ErrQuoteCalculation = errors.New("fee orchestrator: calculation failed")
)

// FeeOrchestrator is the quoting entry point: it classifies the deal, selects
// and prices government fee rules, builds dealer fees from the selected
// package, applies exemptions, invokes the tax engine, and assembles the
// result with its audit trail. A single pass, no I/O, safe for concurrent use.
type FeeOrchestrator struct {
	classifier *ScenarioClassifier
	conditions *ConditionEvaluator
	tax        *TaxEngine
	derived    DerivedFeeRegistry
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
	printer    *message.Printer
}

// FeeOrchestratorDeps wires a FeeOrchestrator. Now and NewID are injected so
// identical inputs produce identical results under test.
type FeeOrchestratorDeps struct {
	Classifier *ScenarioClassifier
	Conditions *ConditionEvaluator
	Tax        *TaxEngine
	Derived    DerivedFeeRegistry
	Now        func() time.Time
	NewID      func() string
	Logger     func(context.Context, string, map[string]any)
}

// NewFeeOrchestrator constructs a FeeOrchestrator.
func NewFeeOrchestrator(deps FeeOrchestratorDeps) (*FeeOrchestrator, error) {
	if deps.Classifier == nil {
		return nil, errors.New("fee orchestrator: classifier is required")
	}
	if deps.Conditions == nil {
		return nil, errors.New("fee orchestrator: condition evaluator is required")
	}
	if deps.Tax == nil {
		return nil, errors.New("fee orchestrator: tax engine is required")
	}
	if deps.NewID == nil {
		return nil, errors.New("fee orchestrator: id generator is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &FeeOrchestrator{
		classifier: deps.Classifier,
		conditions: deps.Conditions,
		tax:        deps.Tax,
		derived:    deps.Derived,
		now:        func() time.Time { return now().UTC() },
		newID:      deps.NewID,
		logger:     logger,
		printer:    message.NewPrinter(language.AmericanEnglish),
	}, nil
}

// Calculate computes the full quote for one scenario. Recoverable problems
// become warnings on the result; anything else is wrapped into
// ErrQuoteCalculation and no partial result is returned.
func (o *FeeOrchestrator) Calculate(ctx context.Context, input domain.ScenarioInput, rules []domain.JurisdictionRule, dealerConfig domain.DealerConfig) (result domain.ScenarioResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger(ctx, "quote_calculation_panic", map[string]any{"panic": fmt.Sprint(r)})
			result = domain.ScenarioResult{}
			err = fmt.Errorf("%w: %v", ErrQuoteCalculation, r)
		}
	}()

	if err := validateScenario(input); err != nil {
		return domain.ScenarioResult{}, err
	}

	scenario := o.classifier.Classify(input)

	values, err := ScenarioValues(input)
	if err != nil {
		return domain.ScenarioResult{}, fmt.Errorf("%w: %v", ErrQuoteCalculation, err)
	}

	var warnings []string

	govItems, appliedCodes := o.buildGovernmentItems(ctx, input, rules, values, &warnings)

	dealerItems := o.buildDealerItems(input, dealerConfig, &warnings)

	exemptionNotes := o.applyExemptions(input, rules, values, govItems, &warnings)

	taxComp := o.tax.ComputeTax(input, govItems, dealerItems, rules, values)
	if taxComp.UsedDefaultRates {
		warnings = append(warnings, fmt.Sprintf("no matching tax rule for %s; jurisdiction default rates applied", strings.ToUpper(strings.TrimSpace(input.Jurisdiction.StateCode))))
	}
	warnings = append(warnings, taxComp.Warnings...)

	var govTotal, dealerTotal int64
	for _, item := range govItems {
		govTotal += item.Amount
	}
	for _, item := range dealerItems {
		dealerTotal += item.Amount
	}
	totalFees := govTotal + dealerTotal
	salesTax := taxComp.Breakdown.TotalTax

	totals := domain.QuoteTotals{
		GovernmentFees: govTotal,
		DealerFees:     dealerTotal,
		CustomerAddons: 0,
		SalesTax:       salesTax,
		TotalFees:      totalFees,
		AmountFinanced: input.Deal.SellingPrice - input.Deal.CashDown + totalFees + salesTax,
	}

	explanations := o.buildExplanations(scenario, taxComp.Breakdown, len(govItems), exemptionNotes)

	lineItems := make([]domain.LineItem, 0, len(govItems)+len(dealerItems))
	lineItems = append(lineItems, govItems...)
	lineItems = append(lineItems, dealerItems...)

	return domain.ScenarioResult{
		ID:             o.newID(),
		CreatedAt:      o.now(),
		Input:          input,
		Scenario:       scenario,
		LineItems:      lineItems,
		Tax:            taxComp.Breakdown,
		Totals:         totals,
		Explanations:   explanations,
		AppliedRuleIDs: appliedCodes,
		Warnings:       warnings,
	}, nil
}

func validateScenario(input domain.ScenarioInput) error {
	if strings.TrimSpace(input.Jurisdiction.StateCode) == "" {
		return fmt.Errorf("%w: jurisdiction state code is required", ErrQuoteInvalidInput)
	}
	if input.Deal.SellingPrice < 0 {
		return fmt.Errorf("%w: selling price cannot be negative", ErrQuoteInvalidInput)
	}
	if input.Deal.CashDown < 0 {
		return fmt.Errorf("%w: cash down cannot be negative", ErrQuoteInvalidInput)
	}
	if input.Deal.TermMonths < 0 {
		return fmt.Errorf("%w: term months cannot be negative", ErrQuoteInvalidInput)
	}
	for i, trade := range input.TradeIns {
		if trade.EstimatedValue < 0 {
			return fmt.Errorf("%w: trade-in %d value cannot be negative", ErrQuoteInvalidInput, i)
		}
		if trade.PayoffAmount < 0 {
			return fmt.Errorf("%w: trade-in %d payoff cannot be negative", ErrQuoteInvalidInput, i)
		}
	}
	return nil
}

// appliedFee pairs a fee rule with the stored rule id it came from; derived
// fees carry an empty rule id.
type appliedFee struct {
	rule   *domain.GovernmentFeeRule
	ruleID string
}

// buildGovernmentItems selects the government fee rules that apply, merges in
// derived fees, sorts by priority descending (stable), and prices each line.
// Condition failures are fail-closed: the fee is skipped with a warning,
// never over-applied.
func (o *FeeOrchestrator) buildGovernmentItems(ctx context.Context, input domain.ScenarioInput, rules []domain.JurisdictionRule, values map[string]any, warnings *[]string) ([]domain.LineItem, []string) {
	var fees []appliedFee

	for i := range rules {
		rule := &rules[i]
		if rule.RuleType != domain.RuleTypeGovernmentFee || rule.GovernmentFee == nil {
			continue
		}
		fee := rule.GovernmentFee
		if excludedFee(input, fee.FeeCode) {
			continue
		}
		matched, evalErr := o.conditions.Evaluate(fee.Condition, values)
		if evalErr != nil {
			*warnings = append(*warnings, fmt.Sprintf("fee rule %s condition failed to evaluate: %v", rule.ID, evalErr))
			o.logger(ctx, "fee_rule_condition_failed", map[string]any{"ruleId": rule.ID, "error": evalErr.Error()})
			continue
		}
		if !matched {
			continue
		}
		if (!fee.AutoApply || fee.Optional) && !forceIncludedFee(input, fee.FeeCode) {
			continue
		}
		fees = append(fees, appliedFee{rule: fee, ruleID: rule.ID})
	}

	for _, generate := range o.derived.Generators(input.Jurisdiction.StateCode) {
		fee := generate(input)
		if fee == nil {
			continue
		}
		if excludedFee(input, fee.FeeCode) {
			continue
		}
		if !fee.AutoApply || fee.Optional {
			continue
		}
		fees = append(fees, appliedFee{rule: fee})
	}

	// Priority orders presentation and audit only; fees are additive.
	sort.SliceStable(fees, func(i, j int) bool {
		return fees[i].rule.Priority > fees[j].rule.Priority
	})

	items := make([]domain.LineItem, 0, len(fees))
	codes := make([]string, 0, len(fees))
	for _, fee := range fees {
		amount := fee.rule.Amount
		if formula := strings.TrimSpace(fee.rule.AmountFormula); formula != "" {
			computed, evalErr := evaluateFormula(formula, formulaVariables(input))
			if evalErr != nil {
				*warnings = append(*warnings, fmt.Sprintf("fee %s formula failed to evaluate: %v", fee.rule.FeeCode, evalErr))
				amount = 0
			} else {
				amount = computed
			}
		}

		items = append(items, domain.LineItem{
			Code:        fee.rule.FeeCode,
			Category:    domain.LineItemCategoryGovernment,
			Description: fee.rule.Description,
			Amount:      amount,
			Taxable:     fee.rule.Taxable,
			RuleID:      fee.ruleID,
			Explanation: interpolateTemplate(fee.rule.ExplanationTemplate, values),
		})
		codes = append(codes, fee.rule.FeeCode)
	}
	return items, codes
}

// buildDealerItems copies the selected fee package through as dealer line
// items. An unknown package id degrades to no dealer fees plus a warning.
func (o *FeeOrchestrator) buildDealerItems(input domain.ScenarioInput, config domain.DealerConfig, warnings *[]string) []domain.LineItem {
	packageID := strings.TrimSpace(input.Dealer.FeePackageID)
	if packageID == "" {
		packageID = strings.TrimSpace(config.DefaultPackageID)
	}

	pkg := config.PackageByID(packageID)
	if pkg == nil {
		*warnings = append(*warnings, fmt.Sprintf("dealer fee package %q not found; no dealer fees applied", packageID))
		return nil
	}

	items := make([]domain.LineItem, 0, len(pkg.Items))
	for _, item := range pkg.Items {
		if excludedFee(input, item.Code) && !item.Required {
			continue
		}
		items = append(items, domain.LineItem{
			Code:        item.Code,
			Category:    domain.LineItemCategoryDealer,
			Description: item.Description,
			Amount:      item.Amount,
			Taxable:     item.Taxable,
		})
	}
	return items
}

// applyExemptions discounts government line items named by matching exemption
// rules the customer qualifies for. Discounts clamp at zero and run before
// tax so the taxable fee sum reflects them.
func (o *FeeOrchestrator) applyExemptions(input domain.ScenarioInput, rules []domain.JurisdictionRule, values map[string]any, govItems []domain.LineItem, warnings *[]string) []string {
	if len(input.Customer.ExemptionCodes) == 0 || len(govItems) == 0 {
		return nil
	}

	held := make(map[string]bool, len(input.Customer.ExemptionCodes))
	for _, code := range input.Customer.ExemptionCodes {
		held[strings.ToUpper(strings.TrimSpace(code))] = true
	}

	var notes []string
	for i := range rules {
		rule := &rules[i]
		if rule.RuleType != domain.RuleTypeExemption || rule.Exemption == nil {
			continue
		}
		exemption := rule.Exemption
		if !held[strings.ToUpper(strings.TrimSpace(exemption.ExemptionCode))] {
			continue
		}
		matched, evalErr := o.conditions.Evaluate(exemption.Condition, values)
		if evalErr != nil {
			*warnings = append(*warnings, fmt.Sprintf("exemption rule %s condition failed to evaluate: %v", rule.ID, evalErr))
			continue
		}
		if !matched {
			continue
		}

		covered := make(map[string]bool, len(exemption.FeeCodes))
		for _, code := range exemption.FeeCodes {
			covered[code] = true
		}
		for j := range govItems {
			if !covered[govItems[j].Code] {
				continue
			}
			discount := exemptionDiscount(exemption, govItems[j].Amount)
			if discount <= 0 {
				continue
			}
			govItems[j].Amount -= discount
			notes = append(notes, o.printer.Sprintf("Exemption %s reduced %s by %s", exemption.ExemptionCode, govItems[j].Code, o.formatCents(discount)))
		}
	}
	return notes
}

// exemptionDiscount returns the cents reduction for one line item, clamped to
// the item amount.
func exemptionDiscount(exemption *domain.ExemptionRule, amount int64) int64 {
	var discount int64
	switch exemption.DiscountKind {
	case domain.DiscountKindWaiver:
		discount = amount
	case domain.DiscountKindAmount:
		discount = exemption.DiscountAmount
	case domain.DiscountKindPercent:
		discount = roundRate(amount, exemption.DiscountPercent)
	}
	if discount < 0 {
		discount = 0
	}
	if discount > amount {
		discount = amount
	}
	return discount
}

// buildExplanations assembles the ordered, human-readable audit trail.
func (o *FeeOrchestrator) buildExplanations(scenario domain.DetectedScenario, tax domain.TaxBreakdown, govFeeCount int, exemptionNotes []string) []string {
	explanations := []string{scenario.Description}
	if tax.TradeInCredit > 0 {
		explanations = append(explanations, o.printer.Sprintf("Trade-in equity of %s reduced the taxable base", o.formatCents(tax.TradeInCredit)))
	}
	if scenario.IsTagTransfer {
		explanations = append(explanations, "Existing plate transferred; no new plate fee charged")
	}
	if tax.CountyTaxCapped {
		explanations = append(explanations, o.printer.Sprintf("County surtax capped: applied to the first %s of the taxable base", o.formatCents(tax.CountyTaxCap)))
	}
	explanations = append(explanations, exemptionNotes...)
	explanations = append(explanations, fmt.Sprintf("%d government fee(s) applied", govFeeCount))
	return explanations
}

func (o *FeeOrchestrator) formatCents(amount int64) string {
	return o.printer.Sprintf("$%.2f", float64(amount)/100)
}

func excludedFee(input domain.ScenarioInput, code string) bool {
	if input.Overrides == nil {
		return false
	}
	for _, excluded := range input.Overrides.ExcludeFeeCodes {
		if strings.EqualFold(excluded, code) {
			return true
		}
	}
	return false
}

func forceIncludedFee(input domain.ScenarioInput, code string) bool {
	if input.Overrides == nil {
		return false
	}
	for _, included := range input.Overrides.ForceIncludeFeeCodes {
		if strings.EqualFold(included, code) {
			return true
		}
	}
	return false
}

// interpolateTemplate substitutes {{dot.path}} placeholders with scenario
// values; unresolved paths keep the literal placeholder.
func interpolateTemplate(template string, values map[string]any) string {
	if template == "" || !strings.Contains(template, "{{") {
		return template
	}

	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += start

		b.WriteString(rest[:start])
		placeholder := rest[start : end+2]
		path := strings.TrimSpace(rest[start+2 : end])
		if value, ok := lookupPath(values, path); ok {
			b.WriteString(formatTemplateValue(value))
		} else {
			b.WriteString(placeholder)
		}
		rest = rest[end+2:]
	}
}

func formatTemplateValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
