package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/api/internal/platform/httpx"
	"github.com/shoplane/api/internal/platform/pagination"
	"github.com/shoplane/api/internal/services"
)

const (
	minSuggestionPrefixLen = 2
	defaultSuggestionLimit = 10
	maxSuggestionLimit     = 25
)

var productSortNames = []string{
	string(services.ProductSortRelevance),
	string(services.ProductSortPriceAsc),
	string(services.ProductSortPriceDesc),
	string(services.ProductSortName),
	string(services.ProductSortNewest),
}

// SearchHandlers exposes the public catalog search endpoints. These routes
// are anonymous; no owner resolution runs in front of them.
type SearchHandlers struct {
	catalog services.CatalogService
}

// NewSearchHandlers constructs handlers backed by the catalog service.
func NewSearchHandlers(catalog services.CatalogService) *SearchHandlers {
	return &SearchHandlers{catalog: catalog}
}

// Routes wires the search endpoints onto the provided router.
func (h *SearchHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.searchProducts)
	r.Get("/suggestions", h.suggestions)
}

// ShopRoutes wires the shop and product detail endpoints.
func (h *SearchHandlers) ShopRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/shops/{shopID}", h.getShop)
	r.Get("/products/{productID}", h.getProduct)
}

func (h *SearchHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultLimit: 20,
		MaxLimit:     100,
		AllowedSorts: productSortNames,
		DefaultSort:  string(services.ProductSortRelevance),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
		return
	}

	values := r.URL.Query()
	query := services.SearchProductsQuery{
		Query:      strings.TrimSpace(values.Get("q")),
		ShopID:     strings.TrimSpace(values.Get("shopId")),
		CategoryID: strings.TrimSpace(values.Get("categoryId")),
		SortBy:     services.ProductSort(params.Sort),
		Limit:      params.Limit,
		Offset:     params.Offset,
	}
	if raw := strings.TrimSpace(values.Get("minPrice")); raw != "" {
		query.MinPrice = &raw
	}
	if raw := strings.TrimSpace(values.Get("maxPrice")); raw != "" {
		query.MaxPrice = &raw
	}
	if raw := strings.TrimSpace(values.Get("featured")); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "featured must be a boolean", http.StatusBadRequest))
			return
		}
		query.IsFeatured = &featured
	}

	page, err := h.catalog.SearchProducts(ctx, query)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	products := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		products = append(products, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"products": products,
		"total":    page.Total,
		"offset":   page.Offset,
		"hasMore":  page.HasMore,
	})
}

func (h *SearchHandlers) suggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(prefix)) < minSuggestionPrefixLen {
		writeJSONResponse(w, http.StatusOK, map[string]any{"suggestions": []string{}})
		return
	}

	limit := defaultSuggestionLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}
	if limit > maxSuggestionLimit {
		limit = maxSuggestionLimit
	}

	suggestions, err := h.catalog.SearchSuggestions(ctx, prefix, limit)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *SearchHandlers) getShop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	shop, err := h.catalog.GetShop(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"shop": buildShopPayload(shop)})
}

func (h *SearchHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *SearchHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("NOT_FOUND", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "catalog is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("INTERNAL", "catalog lookup failed", http.StatusInternalServerError))
	}
}
