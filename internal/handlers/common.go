package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/shoplane/api/internal/domain"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 64 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func isJSONNull(value json.RawMessage) bool {
	return strings.EqualFold(strings.TrimSpace(string(value)), "null")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return formatTime(*t)
}

// money renders decimal amounts with exactly two fraction digits for the wire.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type cartItemPayload struct {
	ID          string                `json:"id"`
	ProductID   string                `json:"productId"`
	ProductName string                `json:"productName"`
	VariantID   string                `json:"variantId,omitempty"`
	VariantName string                `json:"variantName,omitempty"`
	Quantity    int                   `json:"quantity"`
	Notes       string                `json:"notes,omitempty"`
	Addons      []cartAddonPayload    `json:"addons,omitempty"`
	Modifiers   []cartModifierPayload `json:"modifiers,omitempty"`
	UnitPrice   string                `json:"unitPrice"`
	LineTotal   string                `json:"lineTotal"`
}

type cartAddonPayload struct {
	AddonID  string `json:"addonId"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type cartModifierPayload struct {
	GroupID         string `json:"groupId"`
	OptionID        string `json:"optionId"`
	Name            string `json:"name"`
	PriceAdjustment string `json:"priceAdjustment"`
	Quantity        int    `json:"quantity"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	ShopID    string            `json:"shopId"`
	Subtotal  string            `json:"subtotal"`
	Items     []cartItemPayload `json:"items"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		ID:       strings.TrimSpace(cart.ID),
		ShopID:   strings.TrimSpace(cart.ShopID),
		Subtotal: money(cart.Subtotal()),
		Items:    buildCartItems(cart.Items),
	}
	if !cart.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(cart.ExpiresAt)
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartItems(items []domain.CartItem) []cartItemPayload {
	out := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			UnitPrice:   money(item.UnitPrice),
			LineTotal:   money(item.LineTotal),
		}
		for _, addon := range item.Addons {
			entry.Addons = append(entry.Addons, cartAddonPayload{
				AddonID:  addon.AddonID,
				Name:     addon.Name,
				Price:    money(addon.Price),
				Quantity: addon.Quantity,
			})
		}
		for _, modifier := range item.Modifiers {
			entry.Modifiers = append(entry.Modifiers, cartModifierPayload{
				GroupID:         modifier.GroupID,
				OptionID:        modifier.OptionID,
				Name:            modifier.Name,
				PriceAdjustment: money(modifier.PriceAdjustment),
				Quantity:        modifier.Quantity,
			})
		}
		out = append(out, entry)
	}
	return out
}

type orderItemPayload struct {
	ID          string                 `json:"id"`
	ProductID   string                 `json:"productId"`
	ProductName string                 `json:"productName"`
	VariantName string                 `json:"variantName,omitempty"`
	Quantity    int                    `json:"quantity"`
	Notes       string                 `json:"notes,omitempty"`
	UnitPrice   string                 `json:"unitPrice"`
	LineTotal   string                 `json:"lineTotal"`
	Addons      []orderAddonPayload    `json:"addons,omitempty"`
	Modifiers   []orderModifierPayload `json:"modifiers,omitempty"`
}

type orderAddonPayload struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type orderModifierPayload struct {
	GroupName       string `json:"groupName,omitempty"`
	Name            string `json:"name"`
	PriceAdjustment string `json:"priceAdjustment"`
	Quantity        int    `json:"quantity"`
}

type orderCustomerPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type orderAddressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	Number          string               `json:"number"`
	ShopID          string               `json:"shopId"`
	Type            string               `json:"type"`
	PaymentMethod   string               `json:"paymentMethod"`
	Status          string               `json:"status"`
	Subtotal        string               `json:"subtotal"`
	DeliveryFee     string               `json:"deliveryFee"`
	DiscountAmount  string               `json:"discountAmount"`
	Total           string               `json:"total"`
	Customer        orderCustomerPayload `json:"customer"`
	DeliveryAddress *orderAddressPayload `json:"deliveryAddress,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Items           []orderItemPayload   `json:"items"`
	PaidAt          string               `json:"paidAt,omitempty"`
	ReadyAt         string               `json:"readyAt,omitempty"`
	DeliveredAt     string               `json:"deliveredAt,omitempty"`
	CancelledAt     string               `json:"cancelledAt,omitempty"`
	CreatedAt       string               `json:"createdAt"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		Number:         order.Number,
		ShopID:         order.ShopID,
		Type:           string(order.Type),
		PaymentMethod:  string(order.PaymentMethod),
		Status:         string(order.Status),
		Subtotal:       money(order.Subtotal),
		DeliveryFee:    money(order.DeliveryFee),
		DiscountAmount: money(order.DiscountAmount),
		Total:          money(order.Total),
		Customer: orderCustomerPayload{
			Name:  order.Customer.Name,
			Phone: order.Customer.Phone,
			Email: order.Customer.Email,
		},
		Notes:       order.Notes,
		Items:       buildOrderItems(order.Items),
		PaidAt:      formatTimePtr(order.PaidAt),
		ReadyAt:     formatTimePtr(order.ReadyAt),
		DeliveredAt: formatTimePtr(order.DeliveredAt),
		CancelledAt: formatTimePtr(order.CancelledAt),
		CreatedAt:   formatTime(order.CreatedAt),
	}
	if order.DeliveryAddress != nil {
		payload.DeliveryAddress = &orderAddressPayload{
			Line1:      order.DeliveryAddress.Line1,
			Line2:      order.DeliveryAddress.Line2,
			City:       order.DeliveryAddress.City,
			PostalCode: order.DeliveryAddress.PostalCode,
			Notes:      order.DeliveryAddress.Notes,
		}
	}
	return payload
}

func buildOrderItems(items []domain.OrderItem) []orderItemPayload {
	out := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		entry := orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			UnitPrice:   money(item.UnitPrice),
			LineTotal:   money(item.LineTotal),
		}
		for _, addon := range item.Addons {
			entry.Addons = append(entry.Addons, orderAddonPayload{
				Name:     addon.Name,
				Price:    money(addon.Price),
				Quantity: addon.Quantity,
			})
		}
		for _, modifier := range item.Modifiers {
			entry.Modifiers = append(entry.Modifiers, orderModifierPayload{
				GroupName:       modifier.GroupName,
				Name:            modifier.Name,
				PriceAdjustment: money(modifier.PriceAdjustment),
				Quantity:        modifier.Quantity,
			})
		}
		out = append(out, entry)
	}
	return out
}

type productVariantPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExtraPrice string `json:"extraPrice"`
}

type productAddonPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

type modifierOptionPayload struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PriceAdjustment string `json:"priceAdjustment"`
	IsDefault       bool   `json:"isDefault,omitempty"`
}

type modifierGroupPayload struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	MinSelection int                     `json:"minSelection"`
	MaxSelection int                     `json:"maxSelection"`
	Options      []modifierOptionPayload `json:"options"`
}

type productPayload struct {
	ID             string                  `json:"id"`
	ShopID         string                  `json:"shopId"`
	CategoryID     string                  `json:"categoryId,omitempty"`
	Name           string                  `json:"name"`
	Description    string                  `json:"description,omitempty"`
	Price          string                  `json:"price"`
	Stock          int                     `json:"stock"`
	IsFeatured     bool                    `json:"isFeatured,omitempty"`
	Tags           []string                `json:"tags,omitempty"`
	Images         []string                `json:"images,omitempty"`
	Variants       []productVariantPayload `json:"variants,omitempty"`
	Addons         []productAddonPayload   `json:"addons,omitempty"`
	ModifierGroups []modifierGroupPayload  `json:"modifierGroups,omitempty"`
}

type shopPayload struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Slug                string `json:"slug"`
	Description         string `json:"description,omitempty"`
	ImageURL            string `json:"imageUrl,omitempty"`
	DeliveryEnabled     bool   `json:"deliveryEnabled"`
	PickupEnabled       bool   `json:"pickupEnabled"`
	DeliveryFee         string `json:"deliveryFee"`
	MinimumOrder        string `json:"minimumOrder"`
	CashDiscountPercent string `json:"cashDiscountPercent"`
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		ID:          product.ID,
		ShopID:      product.ShopID,
		CategoryID:  product.CategoryID,
		Name:        product.Name,
		Description: product.Description,
		Price:       money(product.Price),
		Stock:       product.Stock,
		IsFeatured:  product.IsFeatured,
		Tags:        product.Tags,
		Images:      product.Images,
	}
	for _, variant := range product.Variants {
		payload.Variants = append(payload.Variants, productVariantPayload{
			ID:         variant.ID,
			Name:       variant.Name,
			ExtraPrice: money(variant.ExtraPrice),
		})
	}
	for _, addon := range product.Addons {
		if !addon.IsActive {
			continue
		}
		payload.Addons = append(payload.Addons, productAddonPayload{
			ID:    addon.ID,
			Name:  addon.Name,
			Price: money(addon.Price),
		})
	}
	for _, group := range product.ModifierGroups {
		if !group.IsActive {
			continue
		}
		entry := modifierGroupPayload{
			ID:           group.ID,
			Name:         group.Name,
			MinSelection: group.MinSelection,
			MaxSelection: group.MaxSelection,
			Options:      make([]modifierOptionPayload, 0, len(group.Options)),
		}
		for _, option := range group.Options {
			if !option.IsActive {
				continue
			}
			entry.Options = append(entry.Options, modifierOptionPayload{
				ID:              option.ID,
				Name:            option.Name,
				PriceAdjustment: money(option.PriceAdjustment),
				IsDefault:       option.IsDefault,
			})
		}
		payload.ModifierGroups = append(payload.ModifierGroups, entry)
	}
	return payload
}

func buildShopPayload(shop domain.Shop) shopPayload {
	return shopPayload{
		ID:                  shop.ID,
		Name:                shop.Name,
		Slug:                shop.Slug,
		Description:         shop.Description,
		ImageURL:            shop.ImageURL,
		DeliveryEnabled:     shop.DeliveryEnabled,
		PickupEnabled:       shop.PickupEnabled,
		DeliveryFee:         money(shop.DeliveryFee),
		MinimumOrder:        money(shop.MinimumOrder),
		CashDiscountPercent: money(shop.CashDiscountPercent),
	}
}

func decodeRequiredString(raw json.RawMessage, field string) (string, error) {
	if isJSONNull(raw) {
		return "", fmt.Errorf("%s must be a string", field)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%s must be a string", field)
	}
	return strings.TrimSpace(value), nil
}
