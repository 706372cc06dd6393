package domain

import "time"

// ScenarioType classifies the overall shape of a deal.
type ScenarioType string

const (
	ScenarioTradeInTagTransferFinanced ScenarioType = "trade_in_tag_transfer_financed"
	ScenarioTradeInTagTransferCash     ScenarioType = "trade_in_tag_transfer_cash"
	ScenarioNewTagFinanced             ScenarioType = "new_tag_financed"
	ScenarioNewTagCash                 ScenarioType = "new_tag_cash"
	ScenarioStandardFinanced           ScenarioType = "standard_financed"
	ScenarioStandardCash               ScenarioType = "standard_cash"
)

// LineItemCategory separates the charge types on a quote.
type LineItemCategory string

const (
	LineItemCategoryGovernment LineItemCategory = "government"
	LineItemCategoryDealer     LineItemCategory = "dealer"
	LineItemCategoryCustomer   LineItemCategory = "customer"
	LineItemCategoryTax        LineItemCategory = "tax"
)

// LineItem is one computed charge on the quote. Amount is cents.
type LineItem struct {
	Code        string           `json:"code" firestore:"code"`
	Category    LineItemCategory `json:"category" firestore:"category"`
	Description string           `json:"description,omitempty" firestore:"description,omitempty"`
	Amount      int64            `json:"amount" firestore:"amount"`
	Taxable     bool             `json:"taxable" firestore:"taxable"`
	RuleID      string           `json:"ruleId,omitempty" firestore:"ruleId,omitempty"`
	Explanation string           `json:"explanation,omitempty" firestore:"explanation,omitempty"`
}

// TaxBreakdown reports how the sales tax figure was assembled. Amounts are
// cents; rates are fractions (0.06 = 6%).
type TaxBreakdown struct {
	TaxableBase     int64   `json:"taxableBase" firestore:"taxableBase"`
	TradeInCredit   int64   `json:"tradeInCredit" firestore:"tradeInCredit"`
	StateRate       float64 `json:"stateRate" firestore:"stateRate"`
	CountyRate      float64 `json:"countyRate" firestore:"countyRate"`
	StateTax        int64   `json:"stateTax" firestore:"stateTax"`
	CountyTax       int64   `json:"countyTax" firestore:"countyTax"`
	TotalTax        int64   `json:"totalTax" firestore:"totalTax"`
	CountyTaxCapped bool    `json:"countyTaxCapped" firestore:"countyTaxCapped"`
	CountyTaxCap    int64   `json:"countyTaxCap" firestore:"countyTaxCap"`
}

// DetectedScenario is the classifier's verdict plus the flags it derived it from.
type DetectedScenario struct {
	Type                    ScenarioType `json:"type" firestore:"type"`
	Description             string       `json:"description,omitempty" firestore:"description,omitempty"`
	HasTradeIn              bool         `json:"hasTradeIn" firestore:"hasTradeIn"`
	IsFinanced              bool         `json:"isFinanced" firestore:"isFinanced"`
	IsTagTransfer           bool         `json:"isTagTransfer" firestore:"isTagTransfer"`
	IsFirstTimeRegistration bool         `json:"isFirstTimeRegistration" firestore:"isFirstTimeRegistration"`
}

// QuoteTotals aggregates the quote's money figures in cents. CustomerAddons
// is reserved and always zero today.
type QuoteTotals struct {
	GovernmentFees int64 `json:"governmentFees" firestore:"governmentFees"`
	DealerFees     int64 `json:"dealerFees" firestore:"dealerFees"`
	CustomerAddons int64 `json:"customerAddons" firestore:"customerAddons"`
	SalesTax       int64 `json:"salesTax" firestore:"salesTax"`
	TotalFees      int64 `json:"totalFees" firestore:"totalFees"`
	AmountFinanced int64 `json:"amountFinanced" firestore:"amountFinanced"`
}

// ScenarioResult is the complete computed quote for one scenario input.
type ScenarioResult struct {
	ID             string           `json:"id" firestore:"-"`
	CreatedAt      time.Time        `json:"createdAt" firestore:"createdAt"`
	Input          ScenarioInput    `json:"input" firestore:"input"`
	Scenario       DetectedScenario `json:"scenario" firestore:"scenario"`
	LineItems      []LineItem       `json:"lineItems" firestore:"lineItems"`
	Tax            TaxBreakdown     `json:"tax" firestore:"tax"`
	Totals         QuoteTotals      `json:"totals" firestore:"totals"`
	Explanations   []string         `json:"explanations,omitempty" firestore:"explanations,omitempty"`
	AppliedRuleIDs []string         `json:"appliedRuleIds,omitempty" firestore:"appliedRuleIds,omitempty"`
	Warnings       []string         `json:"warnings,omitempty" firestore:"warnings,omitempty"`
}
