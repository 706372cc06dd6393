package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lotwise/api/internal/domain"
	pfirestore "github.com/lotwise/api/internal/platform/firestore"
	"github.com/lotwise/api/internal/repositories"
)

const dealerConfigCollection = "dealerConfigs"

// DealerConfigRepository persists dealer fee configuration within Firestore,
// one document per dealer keyed by dealer id.
type DealerConfigRepository struct {
	base *pfirestore.BaseRepository[dealerConfigDocument]
}

// NewDealerConfigRepository constructs a Firestore-backed dealer config repository.
func NewDealerConfigRepository(provider *pfirestore.Provider) (*DealerConfigRepository, error) {
	if provider == nil {
		return nil, errors.New("dealer config repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[dealerConfigDocument](provider, dealerConfigCollection, nil, nil)
	return &DealerConfigRepository{base: base}, nil
}

type dealerConfigDocument struct {
	DefaultPackageID string              `firestore:"defaultPackageId,omitempty"`
	Packages         []domain.FeePackage `firestore:"packages,omitempty"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
}

// Get fetches a dealer's configuration.
func (r *DealerConfigRepository) Get(ctx context.Context, dealerID string) (domain.DealerConfig, error) {
	if r == nil || r.base == nil {
		return domain.DealerConfig{}, errors.New("dealer config repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(dealerID))
	if err != nil {
		return domain.DealerConfig{}, err
	}
	return domain.DealerConfig{
		DealerID:         doc.ID,
		DefaultPackageID: doc.Data.DefaultPackageID,
		Packages:         doc.Data.Packages,
		UpdatedAt:        doc.Data.UpdatedAt,
	}, nil
}

// Upsert writes the dealer configuration under the dealer id.
func (r *DealerConfigRepository) Upsert(ctx context.Context, config domain.DealerConfig) (domain.DealerConfig, error) {
	if r == nil || r.base == nil {
		return domain.DealerConfig{}, errors.New("dealer config repository not initialised")
	}
	id := strings.TrimSpace(config.DealerID)
	if id == "" {
		return domain.DealerConfig{}, errors.New("dealer config repository: dealer id is required")
	}
	doc := dealerConfigDocument{
		DefaultPackageID: strings.TrimSpace(config.DefaultPackageID),
		Packages:         config.Packages,
		UpdatedAt:        config.UpdatedAt.UTC(),
	}
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.DealerConfig{}, err
	}
	config.DealerID = id
	return config, nil
}

var _ repositories.DealerConfigRepository = (*DealerConfigRepository)(nil)
