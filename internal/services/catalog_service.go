package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/repositories"
)

const (
	defaultSearchLimit     = 20
	maxSearchLimit         = 100
	minSuggestionPrefixLen = 2
	defaultSuggestionLimit = 10
)

// ErrCatalogInvalidInput indicates the caller supplied an invalid query.
var ErrCatalogInvalidInput = errors.New("catalog: invalid input")

// ErrCatalogNotFound indicates the requested catalog entity does not exist.
var ErrCatalogNotFound = errors.New("catalog: not found")

// ErrCatalogUnavailable indicates the catalog backend cannot serve the request.
var ErrCatalogUnavailable = errors.New("catalog: unavailable")

// CatalogServiceDeps wires the read-side repositories for catalog queries.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Shops    repositories.ShopRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	shops    repositories.ShopRepository
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("catalog service: shop repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		shops:    deps.Shops,
		logger:   logger,
	}, nil
}

// SearchProducts matches the query as a case-insensitive substring of product
// name, description, or tags. Only active products are searchable. Structural
// filters are pushed down to the store; text matching, price refinement,
// sorting, and pagination happen here.
func (s *catalogService) SearchProducts(ctx context.Context, query SearchProductsQuery) (domain.OffsetPage[Product], error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := query.Offset
	if offset < 0 {
		return domain.OffsetPage[Product]{}, fmt.Errorf("%w: offset must not be negative", ErrCatalogInvalidInput)
	}

	sortBy := query.SortBy
	if sortBy == "" {
		sortBy = ProductSortRelevance
	}
	switch sortBy {
	case ProductSortRelevance, ProductSortPriceAsc, ProductSortPriceDesc, ProductSortName, ProductSortNewest:
	default:
		return domain.OffsetPage[Product]{}, fmt.Errorf("%w: unknown sort %q", ErrCatalogInvalidInput, sortBy)
	}

	minPrice, err := parsePriceBound(query.MinPrice, "min_price")
	if err != nil {
		return domain.OffsetPage[Product]{}, err
	}
	maxPrice, err := parsePriceBound(query.MaxPrice, "max_price")
	if err != nil {
		return domain.OffsetPage[Product]{}, err
	}
	if minPrice != nil && maxPrice != nil && minPrice.GreaterThan(*maxPrice) {
		return domain.OffsetPage[Product]{}, fmt.Errorf("%w: min_price exceeds max_price", ErrCatalogInvalidInput)
	}

	products, err := s.products.ListActive(ctx, repositories.ProductQuery{
		ShopID:     strings.TrimSpace(query.ShopID),
		CategoryID: strings.TrimSpace(query.CategoryID),
		IsFeatured: query.IsFeatured,
		ActiveOnly: true,
	})
	if err != nil {
		return domain.OffsetPage[Product]{}, s.translateRepoError(err)
	}

	needle := foldText(query.Query)
	matched := make([]Product, 0, len(products))
	for _, product := range products {
		if needle != "" && !productMatches(product, needle) {
			continue
		}
		if minPrice != nil && product.Price.LessThan(*minPrice) {
			continue
		}
		if maxPrice != nil && product.Price.GreaterThan(*maxPrice) {
			continue
		}
		matched = append(matched, product)
	}

	sortProducts(matched, sortBy)

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return domain.OffsetPage[Product]{
		Items:   matched[offset:end],
		Total:   total,
		Offset:  offset,
		HasMore: end < total,
	}, nil
}

// SearchSuggestions returns distinct active product names whose folded form
// starts with the prefix. Prefixes shorter than two characters yield nothing.
func (s *catalogService) SearchSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	folded := foldText(prefix)
	if len([]rune(folded)) < minSuggestionPrefixLen {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}

	products, err := s.products.ListActive(ctx, repositories.ProductQuery{ActiveOnly: true})
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	seen := make(map[string]struct{}, len(products))
	suggestions := make([]string, 0, limit)
	for _, product := range products {
		name := strings.TrimSpace(product.Name)
		if name == "" {
			continue
		}
		key := foldText(name)
		if !strings.HasPrefix(key, folded) {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		suggestions = append(suggestions, name)
	}

	sort.Strings(suggestions)
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) GetShop(ctx context.Context, shopID string) (Shop, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return Shop{}, fmt.Errorf("%w: shop id is required", ErrCatalogInvalidInput)
	}
	shop, err := s.shops.FindByID(ctx, shopID)
	if err != nil {
		return Shop{}, s.translateRepoError(err)
	}
	return shop, nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}

var searchFolder = cases.Fold()

// foldText normalises and case-folds free text so matching is insensitive to
// case and to compatibility variants of the same characters.
func foldText(value string) string {
	return searchFolder.String(norm.NFKC.String(strings.TrimSpace(value)))
}

func productMatches(product Product, needle string) bool {
	if strings.Contains(foldText(product.Name), needle) {
		return true
	}
	if strings.Contains(foldText(product.Description), needle) {
		return true
	}
	for _, tag := range product.Tags {
		if strings.Contains(foldText(tag), needle) {
			return true
		}
	}
	return false
}

func sortProducts(products []Product, sortBy ProductSort) {
	switch sortBy {
	case ProductSortPriceAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Price.LessThan(products[j].Price)
		})
	case ProductSortPriceDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Price.GreaterThan(products[j].Price)
		})
	case ProductSortName:
		sort.SliceStable(products, func(i, j int) bool {
			return foldText(products[i].Name) < foldText(products[j].Name)
		})
	case ProductSortNewest:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		})
	default:
		// Relevance: featured products first, ties broken alphabetically.
		sort.SliceStable(products, func(i, j int) bool {
			if products[i].IsFeatured != products[j].IsFeatured {
				return products[i].IsFeatured
			}
			return foldText(products[i].Name) < foldText(products[j].Name)
		})
	}
}

func parsePriceBound(raw *string, field string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil || value.IsNegative() {
		return nil, fmt.Errorf("%w: %s must be a non-negative amount", ErrCatalogInvalidInput, field)
	}
	return &value, nil
}
