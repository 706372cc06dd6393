package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/lotwise/api/internal/domain"
	pfirestore "github.com/lotwise/api/internal/platform/firestore"
	"github.com/lotwise/api/internal/repositories"
)

const jurisdictionRuleCollection = "jurisdictionRules"

// JurisdictionRuleRepository persists jurisdiction rules within Firestore,
// one document per rule keyed by rule id.
type JurisdictionRuleRepository struct {
	base *pfirestore.BaseRepository[jurisdictionRuleDocument]
}

// NewJurisdictionRuleRepository constructs a Firestore-backed rule repository.
func NewJurisdictionRuleRepository(provider *pfirestore.Provider) (*JurisdictionRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("jurisdiction rule repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[jurisdictionRuleDocument](provider, jurisdictionRuleCollection, nil, nil)
	return &JurisdictionRuleRepository{base: base}, nil
}

type jurisdictionRuleDocument struct {
	StateCode     string                    `firestore:"stateCode"`
	CountyName    string                    `firestore:"countyName,omitempty"`
	RuleType      string                    `firestore:"ruleType"`
	Version       int                       `firestore:"version"`
	GovernmentFee *domain.GovernmentFeeRule `firestore:"governmentFee,omitempty"`
	TaxRate       *domain.TaxRateRule       `firestore:"taxRate,omitempty"`
	Exemption     *domain.ExemptionRule     `firestore:"exemption,omitempty"`
	UpdatedAt     time.Time                 `firestore:"updatedAt"`
}

func toJurisdictionRuleDocument(rule domain.JurisdictionRule) jurisdictionRuleDocument {
	return jurisdictionRuleDocument{
		StateCode:     strings.ToUpper(strings.TrimSpace(rule.StateCode)),
		CountyName:    strings.TrimSpace(rule.CountyName),
		RuleType:      string(rule.RuleType),
		Version:       rule.Version,
		GovernmentFee: rule.GovernmentFee,
		TaxRate:       rule.TaxRate,
		Exemption:     rule.Exemption,
		UpdatedAt:     rule.UpdatedAt.UTC(),
	}
}

func toDomainJurisdictionRule(id string, doc jurisdictionRuleDocument) domain.JurisdictionRule {
	return domain.JurisdictionRule{
		ID:            id,
		StateCode:     doc.StateCode,
		CountyName:    doc.CountyName,
		RuleType:      domain.RuleType(doc.RuleType),
		Version:       doc.Version,
		GovernmentFee: doc.GovernmentFee,
		TaxRate:       doc.TaxRate,
		Exemption:     doc.Exemption,
		UpdatedAt:     doc.UpdatedAt,
	}
}

// ListForJurisdiction returns statewide rules plus rules scoped to the given
// county. The state filter runs server side; the county narrowing is applied
// client side so one query serves both scopes.
func (r *JurisdictionRuleRepository) ListForJurisdiction(ctx context.Context, stateCode, countyName string) ([]domain.JurisdictionRule, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("jurisdiction rule repository not initialised")
	}
	state := strings.ToUpper(strings.TrimSpace(stateCode))
	if state == "" {
		return nil, errors.New("jurisdiction rule repository: state code is required")
	}
	county := strings.TrimSpace(countyName)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("stateCode", "==", state)
	})
	if err != nil {
		return nil, err
	}

	rules := make([]domain.JurisdictionRule, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.CountyName != "" && !strings.EqualFold(doc.Data.CountyName, county) {
			continue
		}
		rules = append(rules, toDomainJurisdictionRule(doc.ID, doc.Data))
	}
	return rules, nil
}

// FindByID fetches a rule by its document id.
func (r *JurisdictionRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.JurisdictionRule, error) {
	if r == nil || r.base == nil {
		return domain.JurisdictionRule{}, errors.New("jurisdiction rule repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(ruleID))
	if err != nil {
		return domain.JurisdictionRule{}, err
	}
	return toDomainJurisdictionRule(doc.ID, doc.Data), nil
}

// Upsert writes the rule under its id.
func (r *JurisdictionRuleRepository) Upsert(ctx context.Context, rule domain.JurisdictionRule) (domain.JurisdictionRule, error) {
	if r == nil || r.base == nil {
		return domain.JurisdictionRule{}, errors.New("jurisdiction rule repository not initialised")
	}
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		return domain.JurisdictionRule{}, errors.New("jurisdiction rule repository: rule id is required")
	}
	doc := toJurisdictionRuleDocument(rule)
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.JurisdictionRule{}, err
	}
	return toDomainJurisdictionRule(id, doc), nil
}

// Delete removes the rule. Deleting an unknown id reports not found.
func (r *JurisdictionRuleRepository) Delete(ctx context.Context, ruleID string) error {
	if r == nil || r.base == nil {
		return errors.New("jurisdiction rule repository not initialised")
	}
	id := strings.TrimSpace(ruleID)
	exists, err := r.base.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return pfirestore.NotFoundError(jurisdictionRuleCollection+".delete", id)
	}
	return r.base.Delete(ctx, id)
}

var _ repositories.JurisdictionRuleRepository = (*JurisdictionRuleRepository)(nil)
