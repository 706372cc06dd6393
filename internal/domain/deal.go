package domain

// PlateScenario describes what happens to the license plate at delivery.
type PlateScenario string

const (
	PlateScenarioNewPlate      PlateScenario = "new_plate"
	PlateScenarioTransferPlate PlateScenario = "transfer_existing_plate"
	PlateScenarioTemporaryTag  PlateScenario = "temporary_tag"
	PlateScenarioNone          PlateScenario = "none"
)

// Jurisdiction pins a deal to the taxing authority it closes under.
type Jurisdiction struct {
	Country    string `json:"country,omitempty" firestore:"country,omitempty"`
	StateCode  string `json:"stateCode" firestore:"stateCode"`
	CountyName string `json:"countyName,omitempty" firestore:"countyName,omitempty"`
	City       string `json:"city,omitempty" firestore:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty" firestore:"postalCode,omitempty"`
}

// DealerContext carries the selling dealer's identity and fee package selection.
type DealerContext struct {
	DealerID      string `json:"dealerId" firestore:"dealerId"`
	ConfigVersion int    `json:"configVersion,omitempty" firestore:"configVersion,omitempty"`
	FeePackageID  string `json:"feePackageId,omitempty" firestore:"feePackageId,omitempty"`
}

// DealTerms captures the financial shape of the deal. Monetary amounts are
// minor units (cents). TermMonths of zero denotes a cash deal.
type DealTerms struct {
	SellingPrice int64   `json:"sellingPrice" firestore:"sellingPrice"`
	MSRP         int64   `json:"msrp,omitempty" firestore:"msrp,omitempty"`
	CashDown     int64   `json:"cashDown,omitempty" firestore:"cashDown,omitempty"`
	TermMonths   int     `json:"termMonths,omitempty" firestore:"termMonths,omitempty"`
	APR          float64 `json:"apr,omitempty" firestore:"apr,omitempty"`
	LenderName   string  `json:"lenderName,omitempty" firestore:"lenderName,omitempty"`
	LenderType   string  `json:"lenderType,omitempty" firestore:"lenderType,omitempty"`
}

// Vehicle identifies the unit being sold.
type Vehicle struct {
	VIN          string `json:"vin,omitempty" firestore:"vin,omitempty"`
	ModelYear    int    `json:"modelYear,omitempty" firestore:"modelYear,omitempty"`
	BodyType     string `json:"bodyType,omitempty" firestore:"bodyType,omitempty"`
	WeightPounds int    `json:"weightPounds,omitempty" firestore:"weightPounds,omitempty"`
	IsNew        bool   `json:"isNew" firestore:"isNew"`
}

// TradeIn is one traded vehicle. EstimatedValue and PayoffAmount are cents.
type TradeIn struct {
	VIN            string `json:"vin,omitempty" firestore:"vin,omitempty"`
	EstimatedValue int64  `json:"estimatedValue" firestore:"estimatedValue"`
	PayoffAmount   int64  `json:"payoffAmount,omitempty" firestore:"payoffAmount,omitempty"`
	LienHolder     string `json:"lienHolder,omitempty" firestore:"lienHolder,omitempty"`
}

// Registration describes titling and plate intent for the deal.
type Registration struct {
	PlateScenario              PlateScenario `json:"plateScenario" firestore:"plateScenario"`
	ExistingPlateNumber        string        `json:"existingPlateNumber,omitempty" firestore:"existingPlateNumber,omitempty"`
	FirstTimeRegisteredInState bool          `json:"firstTimeRegisteredInState" firestore:"firstTimeRegisteredInState"`
	RegistrationCounty         string        `json:"registrationCounty,omitempty" firestore:"registrationCounty,omitempty"`
}

// Customer carries the buyer attributes rule conditions may reference.
type Customer struct {
	ResidencyState string   `json:"residencyState,omitempty" firestore:"residencyState,omitempty"`
	IsBusiness     bool     `json:"isBusiness" firestore:"isBusiness"`
	ExemptionCodes []string `json:"exemptionCodes,omitempty" firestore:"exemptionCodes,omitempty"`
}

// Overrides lets a caller force fees in or out of the computed quote and
// override the first-registration flag the classifier derives from.
type Overrides struct {
	ExcludeFeeCodes      []string `json:"excludeFeeCodes,omitempty" firestore:"excludeFeeCodes,omitempty"`
	ForceIncludeFeeCodes []string `json:"forceIncludeFeeCodes,omitempty" firestore:"forceIncludeFeeCodes,omitempty"`
	InitialRegistration  *bool    `json:"initialRegistration,omitempty" firestore:"initialRegistration,omitempty"`
}

// ScenarioInput is the complete immutable description of one deal to quote.
type ScenarioInput struct {
	Jurisdiction Jurisdiction  `json:"jurisdiction" firestore:"jurisdiction"`
	Dealer       DealerContext `json:"dealer" firestore:"dealer"`
	Deal         DealTerms     `json:"deal" firestore:"deal"`
	Vehicle      Vehicle       `json:"vehicle" firestore:"vehicle"`
	TradeIns     []TradeIn     `json:"tradeIns,omitempty" firestore:"tradeIns,omitempty"`
	Registration Registration  `json:"registration" firestore:"registration"`
	Customer     Customer      `json:"customer" firestore:"customer"`
	Overrides    *Overrides    `json:"overrides,omitempty" firestore:"overrides,omitempty"`
}

// HasTradeIn reports whether at least one trade-in is present on the deal.
func (s ScenarioInput) HasTradeIn() bool {
	return len(s.TradeIns) > 0
}

// IsFinanced reports whether the deal carries a loan term.
func (s ScenarioInput) IsFinanced() bool {
	return s.Deal.TermMonths > 0
}

// IsTagTransfer reports whether the buyer keeps their existing plate.
func (s ScenarioInput) IsTagTransfer() bool {
	return s.Registration.PlateScenario == PlateScenarioTransferPlate
}

// IsFirstRegistration reports the first-time-in-state flag, honoring the
// caller's override when present.
func (s ScenarioInput) IsFirstRegistration() bool {
	if s.Overrides != nil && s.Overrides.InitialRegistration != nil {
		return *s.Overrides.InitialRegistration
	}
	return s.Registration.FirstTimeRegisteredInState
}
