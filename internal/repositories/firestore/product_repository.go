package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/shoplane/api/internal/domain"
	pfirestore "github.com/shoplane/api/internal/platform/firestore"
	"github.com/shoplane/api/internal/repositories"
)

const productCollection = "products"

type productVariantDocument struct {
	ID         string `firestore:"id"`
	Name       string `firestore:"name"`
	ExtraPrice string `firestore:"extraPrice"`
}

type productAddonDocument struct {
	ID       string `firestore:"id"`
	Name     string `firestore:"name"`
	Price    string `firestore:"price"`
	IsActive bool   `firestore:"isActive"`
}

type modifierOptionDocument struct {
	ID              string `firestore:"id"`
	Name            string `firestore:"name"`
	PriceAdjustment string `firestore:"priceAdjustment"`
	IsDefault       bool   `firestore:"isDefault"`
	IsActive        bool   `firestore:"isActive"`
}

type modifierGroupDocument struct {
	ID           string                   `firestore:"id"`
	Name         string                   `firestore:"name"`
	MinSelection int                      `firestore:"minSelection"`
	MaxSelection int                      `firestore:"maxSelection"`
	IsActive     bool                     `firestore:"isActive"`
	Options      []modifierOptionDocument `firestore:"options,omitempty"`
}

type productDocument struct {
	ShopID         string                   `firestore:"shopId"`
	CategoryID     string                   `firestore:"categoryId,omitempty"`
	Name           string                   `firestore:"name"`
	Description    string                   `firestore:"description,omitempty"`
	Price          string                   `firestore:"price"`
	Stock          int                      `firestore:"stock"`
	IsActive       bool                     `firestore:"isActive"`
	IsFeatured     bool                     `firestore:"isFeatured"`
	Tags           []string                 `firestore:"tags,omitempty"`
	Images         []string                 `firestore:"images,omitempty"`
	SortOrder      int                      `firestore:"sortOrder"`
	Variants       []productVariantDocument `firestore:"variants,omitempty"`
	Addons         []productAddonDocument   `firestore:"addons,omitempty"`
	ModifierGroups []modifierGroupDocument  `firestore:"modifierGroups,omitempty"`
	CreatedAt      time.Time                `firestore:"createdAt"`
	UpdatedAt      time.Time                `firestore:"updatedAt"`
}

// ProductRepository reads catalog products from Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productCollection),
	}, nil
}

// FindByID loads a single product with its variants, addons, and modifier groups.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc.ID, doc.Data)
}

// ListActive returns products matching the structural filters. Text matching
// happens in the service layer over the returned set.
func (r *ProductRepository) ListActive(ctx context.Context, query repositories.ProductQuery) ([]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if query.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		if shopID := strings.TrimSpace(query.ShopID); shopID != "" {
			q = q.Where("shopId", "==", shopID)
		}
		if categoryID := strings.TrimSpace(query.CategoryID); categoryID != "" {
			q = q.Where("categoryId", "==", categoryID)
		}
		if query.IsFeatured != nil {
			q = q.Where("isFeatured", "==", *query.IsFeatured)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := productFromDocument(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func productFromDocument(id string, doc productDocument) (domain.Product, error) {
	price, err := parseDecimal("products", doc.Price)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:          id,
		ShopID:      doc.ShopID,
		CategoryID:  doc.CategoryID,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       price,
		Stock:       doc.Stock,
		IsActive:    doc.IsActive,
		IsFeatured:  doc.IsFeatured,
		Tags:        append([]string(nil), doc.Tags...),
		Images:      append([]string(nil), doc.Images...),
		SortOrder:   doc.SortOrder,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, variantDoc := range doc.Variants {
		extra, err := parseDecimal("products.variant", variantDoc.ExtraPrice)
		if err != nil {
			return domain.Product{}, err
		}
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:         variantDoc.ID,
			Name:       variantDoc.Name,
			ExtraPrice: extra,
		})
	}
	for _, addonDoc := range doc.Addons {
		addonPrice, err := parseDecimal("products.addon", addonDoc.Price)
		if err != nil {
			return domain.Product{}, err
		}
		product.Addons = append(product.Addons, domain.ProductAddon{
			ID:       addonDoc.ID,
			Name:     addonDoc.Name,
			Price:    addonPrice,
			IsActive: addonDoc.IsActive,
		})
	}
	for _, groupDoc := range doc.ModifierGroups {
		group := domain.ModifierGroup{
			ID:           groupDoc.ID,
			Name:         groupDoc.Name,
			MinSelection: groupDoc.MinSelection,
			MaxSelection: groupDoc.MaxSelection,
			IsActive:     groupDoc.IsActive,
		}
		for _, optionDoc := range groupDoc.Options {
			adjustment, err := parseDecimal("products.modifierOption", optionDoc.PriceAdjustment)
			if err != nil {
				return domain.Product{}, err
			}
			group.Options = append(group.Options, domain.ModifierOption{
				ID:              optionDoc.ID,
				Name:            optionDoc.Name,
				PriceAdjustment: adjustment,
				IsDefault:       optionDoc.IsDefault,
				IsActive:        optionDoc.IsActive,
			})
		}
		product.ModifierGroups = append(product.ModifierGroups, group)
	}
	return product, nil
}
