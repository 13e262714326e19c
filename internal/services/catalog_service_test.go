package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/repositories"
)

func searchFixture(t *testing.T) []domain.Product {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Product{
		{ID: "p1", Name: "Margherita Pizza", Description: "Tomato and mozzarella", Price: d(t, "9.00"), IsActive: true, CreatedAt: base},
		{ID: "p2", Name: "Diavola Pizza", Description: "Spicy salami", Price: d(t, "11.00"), IsActive: true, IsFeatured: true, CreatedAt: base.AddDate(0, 1, 0)},
		{ID: "p3", Name: "Caesar Salad", Description: "With PIZZA croutons", Price: d(t, "7.50"), IsActive: true, CreatedAt: base.AddDate(0, 2, 0)},
		{ID: "p4", Name: "Tiramisu", Description: "Dessert", Tags: []string{"sweet", "pizza-night"}, Price: d(t, "5.00"), IsActive: true, CreatedAt: base.AddDate(0, 3, 0)},
		{ID: "p5", Name: "Lemonade", Description: "Fresh", Price: d(t, "3.00"), IsActive: true, CreatedAt: base.AddDate(0, 4, 0)},
	}
}

func newTestCatalogService(t *testing.T, products []domain.Product) CatalogService {
	t.Helper()
	repo := &stubProductRepo{
		listFn: func(_ context.Context, query repositories.ProductQuery) ([]domain.Product, error) {
			if !query.ActiveOnly {
				t.Fatal("search must only consider active products")
			}
			return products, nil
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Products: repo, Shops: &stubShopRepo{}})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestCatalogSearchMatchesNameDescriptionAndTags(t *testing.T) {
	svc := newTestCatalogService(t, searchFixture(t))

	page, err := svc.SearchProducts(context.Background(), SearchProductsQuery{Query: "pizza"})
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if page.Total != 4 {
		t.Fatalf("total = %d, want 4 (name, description, tag matches)", page.Total)
	}

	ids := make(map[string]bool, len(page.Items))
	for _, product := range page.Items {
		ids[product.ID] = true
	}
	for _, want := range []string{"p1", "p2", "p3", "p4"} {
		if !ids[want] {
			t.Fatalf("expected %s in results, got %v", want, ids)
		}
	}
	if ids["p5"] {
		t.Fatal("lemonade must not match")
	}
}

func TestCatalogSearchSorts(t *testing.T) {
	svc := newTestCatalogService(t, searchFixture(t))
	ctx := context.Background()

	page, err := svc.SearchProducts(ctx, SearchProductsQuery{SortBy: ProductSortPriceAsc})
	if err != nil {
		t.Fatalf("price_asc: %v", err)
	}
	if page.Items[0].ID != "p5" || page.Items[len(page.Items)-1].ID != "p2" {
		t.Fatalf("price_asc order wrong: first=%s last=%s", page.Items[0].ID, page.Items[len(page.Items)-1].ID)
	}

	page, err = svc.SearchProducts(ctx, SearchProductsQuery{SortBy: ProductSortPriceDesc})
	if err != nil {
		t.Fatalf("price_desc: %v", err)
	}
	if page.Items[0].ID != "p2" {
		t.Fatalf("price_desc first = %s, want p2", page.Items[0].ID)
	}

	page, err = svc.SearchProducts(ctx, SearchProductsQuery{SortBy: ProductSortNewest})
	if err != nil {
		t.Fatalf("newest: %v", err)
	}
	if page.Items[0].ID != "p5" {
		t.Fatalf("newest first = %s, want p5", page.Items[0].ID)
	}

	page, err = svc.SearchProducts(ctx, SearchProductsQuery{SortBy: ProductSortRelevance})
	if err != nil {
		t.Fatalf("relevance: %v", err)
	}
	if page.Items[0].ID != "p2" {
		t.Fatalf("relevance must rank featured first, got %s", page.Items[0].ID)
	}

	if _, err := svc.SearchProducts(ctx, SearchProductsQuery{SortBy: "price"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for unknown sort, got %v", err)
	}
}

func TestCatalogSearchPagination(t *testing.T) {
	svc := newTestCatalogService(t, searchFixture(t))
	ctx := context.Background()

	page, err := svc.SearchProducts(ctx, SearchProductsQuery{SortBy: ProductSortName, Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore || page.Total != 5 {
		t.Fatalf("page 1 = %d items, hasMore=%v, total=%d", len(page.Items), page.HasMore, page.Total)
	}

	page, err = svc.SearchProducts(ctx, SearchProductsQuery{SortBy: ProductSortName, Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Fatalf("last page = %d items, hasMore=%v", len(page.Items), page.HasMore)
	}

	page, err = svc.SearchProducts(ctx, SearchProductsQuery{Limit: 2, Offset: 50})
	if err != nil {
		t.Fatalf("beyond end: %v", err)
	}
	if len(page.Items) != 0 || page.HasMore {
		t.Fatalf("beyond end = %d items, hasMore=%v", len(page.Items), page.HasMore)
	}

	if _, err := svc.SearchProducts(ctx, SearchProductsQuery{Offset: -1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for negative offset, got %v", err)
	}
}

func TestCatalogSearchPriceRange(t *testing.T) {
	svc := newTestCatalogService(t, searchFixture(t))

	min := "5.00"
	max := "9.00"
	page, err := svc.SearchProducts(context.Background(), SearchProductsQuery{MinPrice: &min, MaxPrice: &max})
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3 in [5.00, 9.00]", page.Total)
	}

	bad := "abc"
	if _, err := svc.SearchProducts(context.Background(), SearchProductsQuery{MinPrice: &bad}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for bad bound, got %v", err)
	}
}

func TestCatalogSearchSuggestions(t *testing.T) {
	products := searchFixture(t)
	products = append(products, domain.Product{ID: "p6", Name: "Margherita Pizza", Price: d(t, "9.50"), IsActive: true})
	svc := newTestCatalogService(t, products)
	ctx := context.Background()

	suggestions, err := svc.SearchSuggestions(ctx, "MAR", 10)
	if err != nil {
		t.Fatalf("SearchSuggestions: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0] != "Margherita Pizza" {
		t.Fatalf("suggestions = %v, want deduplicated [Margherita Pizza]", suggestions)
	}

	suggestions, err = svc.SearchSuggestions(ctx, "m", 10)
	if err != nil {
		t.Fatalf("short prefix: %v", err)
	}
	if len(suggestions) != 0 {
		t.Fatalf("prefixes under two characters must yield nothing, got %v", suggestions)
	}
}
