package domain

import "time"

// ConditionOp enumerates the operators of the rule condition tree.
type ConditionOp string

const (
	ConditionOpEq     ConditionOp = "eq"
	ConditionOpNe     ConditionOp = "ne"
	ConditionOpGt     ConditionOp = "gt"
	ConditionOpGte    ConditionOp = "gte"
	ConditionOpLt     ConditionOp = "lt"
	ConditionOpLte    ConditionOp = "lte"
	ConditionOpAnd    ConditionOp = "and"
	ConditionOpOr     ConditionOp = "or"
	ConditionOpNot    ConditionOp = "not"
	ConditionOpLenGt  ConditionOp = "len_gt"
	ConditionOpLenGte ConditionOp = "len_gte"
	ConditionOpLenEq  ConditionOp = "len_eq"
)

// Operand is one side of a comparison: either a dotted-path reference into the
// scenario (Var) or a literal value.
type Operand struct {
	Var   string `json:"var,omitempty" firestore:"var,omitempty"`
	Value any    `json:"value,omitempty" firestore:"value,omitempty"`
}

// Condition is a node of the rule condition tree. Comparison operators use
// Left/Right; boolean operators use Args.
type Condition struct {
	Op    ConditionOp `json:"op" firestore:"op"`
	Args  []Condition `json:"args,omitempty" firestore:"args,omitempty"`
	Left  *Operand    `json:"left,omitempty" firestore:"left,omitempty"`
	Right *Operand    `json:"right,omitempty" firestore:"right,omitempty"`
}

// RuleType discriminates the payload a jurisdiction rule carries.
type RuleType string

const (
	RuleTypeGovernmentFee  RuleType = "government_fee"
	RuleTypeTaxCalculation RuleType = "tax_calculation"
	RuleTypeExemption      RuleType = "exemption"
)

// GovernmentFeeRule describes one government-imposed charge. Amount is cents;
// when AmountFormula is non-empty it takes precedence over Amount.
type GovernmentFeeRule struct {
	FeeCode             string     `json:"feeCode" firestore:"feeCode"`
	Description         string     `json:"description,omitempty" firestore:"description,omitempty"`
	Amount              int64      `json:"amount,omitempty" firestore:"amount,omitempty"`
	AmountFormula       string     `json:"amountFormula,omitempty" firestore:"amountFormula,omitempty"`
	Condition           *Condition `json:"condition,omitempty" firestore:"condition,omitempty"`
	Taxable             bool       `json:"taxable" firestore:"taxable"`
	Priority            int        `json:"priority" firestore:"priority"`
	ExplanationTemplate string     `json:"explanationTemplate,omitempty" firestore:"explanationTemplate,omitempty"`
	AutoApply           bool       `json:"autoApply" firestore:"autoApply"`
	Optional            bool       `json:"optional" firestore:"optional"`
}

// TaxRateType identifies the taxing level a rate applies at. The engine
// computes state and county figures; city and district rates are accepted in
// rule data for forward compatibility but do not contribute today.
type TaxRateType string

const (
	TaxRateTypeState    TaxRateType = "state"
	TaxRateTypeCounty   TaxRateType = "county"
	TaxRateTypeCity     TaxRateType = "city"
	TaxRateTypeDistrict TaxRateType = "district"
)

// TaxRateRule describes one sales tax rate. Rate is a fraction (0.06 = 6%).
// CapAmount caps the portion of the taxable base the rate applies to, in
// cents; zero means uncapped.
type TaxRateRule struct {
	RateType    TaxRateType `json:"rateType" firestore:"rateType"`
	Rate        float64     `json:"rate" firestore:"rate"`
	CapAmount   int64       `json:"capAmount,omitempty" firestore:"capAmount,omitempty"`
	Condition   *Condition  `json:"condition,omitempty" firestore:"condition,omitempty"`
	EffectiveAt *time.Time  `json:"effectiveAt,omitempty" firestore:"effectiveAt,omitempty"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty" firestore:"expiresAt,omitempty"`
}

// DiscountKind enumerates how an exemption reduces a fee.
type DiscountKind string

const (
	DiscountKindPercent DiscountKind = "percent"
	DiscountKindAmount  DiscountKind = "amount"
	DiscountKindWaiver  DiscountKind = "waiver"
)

// ExemptionRule waives or discounts named government fees for customers
// holding the exemption code.
type ExemptionRule struct {
	ExemptionCode   string       `json:"exemptionCode" firestore:"exemptionCode"`
	FeeCodes        []string     `json:"feeCodes" firestore:"feeCodes"`
	DiscountKind    DiscountKind `json:"discountKind" firestore:"discountKind"`
	DiscountPercent float64      `json:"discountPercent,omitempty" firestore:"discountPercent,omitempty"`
	DiscountAmount  int64        `json:"discountAmount,omitempty" firestore:"discountAmount,omitempty"`
	Condition       *Condition   `json:"condition,omitempty" firestore:"condition,omitempty"`
}

// JurisdictionRule is one versioned rule row scoped to a state and optionally
// a county. Exactly one of the payload pointers is set, per RuleType.
type JurisdictionRule struct {
	ID            string             `json:"id" firestore:"-"`
	StateCode     string             `json:"stateCode" firestore:"stateCode"`
	CountyName    string             `json:"countyName,omitempty" firestore:"countyName,omitempty"`
	RuleType      RuleType           `json:"ruleType" firestore:"ruleType"`
	Version       int                `json:"version" firestore:"version"`
	GovernmentFee *GovernmentFeeRule `json:"governmentFee,omitempty" firestore:"governmentFee,omitempty"`
	TaxRate       *TaxRateRule       `json:"taxRate,omitempty" firestore:"taxRate,omitempty"`
	Exemption     *ExemptionRule     `json:"exemption,omitempty" firestore:"exemption,omitempty"`
	UpdatedAt     time.Time          `json:"updatedAt" firestore:"updatedAt"`
}

// DealerFeeItem is one line of a dealer fee package. Amount is cents.
type DealerFeeItem struct {
	Code        string `json:"code" firestore:"code"`
	Description string `json:"description,omitempty" firestore:"description,omitempty"`
	Amount      int64  `json:"amount" firestore:"amount"`
	Taxable     bool   `json:"taxable" firestore:"taxable"`
	Required    bool   `json:"required" firestore:"required"`
}

// FeePackage is a named bundle of dealer fees.
type FeePackage struct {
	ID    string          `json:"id" firestore:"id"`
	Name  string          `json:"name,omitempty" firestore:"name,omitempty"`
	Items []DealerFeeItem `json:"items,omitempty" firestore:"items,omitempty"`
}

// DealerConfig holds a dealer's fee packages and the default selection.
type DealerConfig struct {
	DealerID         string       `json:"dealerId" firestore:"-"`
	DefaultPackageID string       `json:"defaultPackageId,omitempty" firestore:"defaultPackageId,omitempty"`
	Packages         []FeePackage `json:"packages,omitempty" firestore:"packages,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt" firestore:"updatedAt"`
}

// PackageByID returns the package with the given id, or nil.
func (c DealerConfig) PackageByID(id string) *FeePackage {
	for i := range c.Packages {
		if c.Packages[i].ID == id {
			return &c.Packages[i]
		}
	}
	return nil
}
