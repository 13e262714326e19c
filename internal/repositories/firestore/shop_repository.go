package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/shoplane/api/internal/domain"
	pfirestore "github.com/shoplane/api/internal/platform/firestore"
	"github.com/shoplane/api/internal/repositories"
)

const shopCollection = "shops"

type shopDocument struct {
	Name                string    `firestore:"name"`
	Slug                string    `firestore:"slug"`
	Description         string    `firestore:"description,omitempty"`
	ImageURL            string    `firestore:"imageUrl,omitempty"`
	DeliveryEnabled     bool      `firestore:"deliveryEnabled"`
	PickupEnabled       bool      `firestore:"pickupEnabled"`
	ReservationEnabled  bool      `firestore:"reservationEnabled"`
	DeliveryFee         string    `firestore:"deliveryFee"`
	MinimumOrder        string    `firestore:"minimumOrder"`
	CashDiscountPercent string    `firestore:"cashDiscountPercent"`
	CreatedAt           time.Time `firestore:"createdAt"`
	UpdatedAt           time.Time `firestore:"updatedAt"`
}

// ShopRepository reads shop records from Firestore.
type ShopRepository struct {
	base *pfirestore.BaseRepository[shopDocument]
}

var _ repositories.ShopRepository = (*ShopRepository)(nil)

// NewShopRepository constructs a Firestore-backed shop repository.
func NewShopRepository(provider *pfirestore.Provider) (*ShopRepository, error) {
	if provider == nil {
		return nil, errors.New("shop repository requires firestore provider")
	}
	return &ShopRepository{
		base: pfirestore.NewBaseRepository[shopDocument](provider, shopCollection),
	}, nil
}

// FindByID loads a single shop.
func (r *ShopRepository) FindByID(ctx context.Context, shopID string) (domain.Shop, error) {
	if r == nil || r.base == nil {
		return domain.Shop{}, errors.New("shop repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(shopID))
	if err != nil {
		return domain.Shop{}, err
	}
	return shopFromDocument(doc.ID, doc.Data)
}

// FindByIDs loads the named shops, keyed by id. Missing shops are omitted
// rather than reported as errors.
func (r *ShopRepository) FindByIDs(ctx context.Context, shopIDs []string) (map[string]domain.Shop, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("shop repository not initialised")
	}

	shops := make(map[string]domain.Shop, len(shopIDs))
	for _, shopID := range shopIDs {
		shopID = strings.TrimSpace(shopID)
		if shopID == "" {
			continue
		}
		if _, ok := shops[shopID]; ok {
			continue
		}
		shop, err := r.FindByID(ctx, shopID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		shops[shopID] = shop
	}
	return shops, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func shopFromDocument(id string, doc shopDocument) (domain.Shop, error) {
	fee, err := parseDecimal("shops", doc.DeliveryFee)
	if err != nil {
		return domain.Shop{}, err
	}
	minimum, err := parseDecimal("shops", doc.MinimumOrder)
	if err != nil {
		return domain.Shop{}, err
	}
	discount, err := parseDecimal("shops", doc.CashDiscountPercent)
	if err != nil {
		return domain.Shop{}, err
	}

	return domain.Shop{
		ID:                  id,
		Name:                doc.Name,
		Slug:                doc.Slug,
		Description:         doc.Description,
		ImageURL:            doc.ImageURL,
		DeliveryEnabled:     doc.DeliveryEnabled,
		PickupEnabled:       doc.PickupEnabled,
		ReservationEnabled:  doc.ReservationEnabled,
		DeliveryFee:         fee,
		MinimumOrder:        minimum,
		CashDiscountPercent: discount,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}, nil
}
