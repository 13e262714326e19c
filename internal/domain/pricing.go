package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrModifierSelection indicates a modifier selection violates its group bounds.
	ErrModifierSelection = errors.New("domain: modifier selection out of bounds")
	// ErrPricingInput indicates the pricing inputs reference unknown catalog data.
	ErrPricingInput = errors.New("domain: invalid pricing input")
)

// SelectedAddon names a legacy addon choice by id and quantity.
type SelectedAddon struct {
	AddonID  string
	Quantity int
}

// SelectedModifier names a modifier option choice by group, option, and quantity.
type SelectedModifier struct {
	GroupID  string
	OptionID string
	Quantity int
}

// PricedLine is the output of pricing one cart line against the catalog.
type PricedLine struct {
	ProductName string
	VariantName string
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Addons      []CartItemAddon
	Modifiers   []CartItemModifier
}

// PriceLine resolves the selections against the product and computes
// unit price and line total. Pure: no I/O, no clock.
//
// unitPrice = base + variant extra + Σ addon.price×qty + Σ option.adjustment×qty
func PriceLine(product Product, variantID string, addons []SelectedAddon, modifiers []SelectedModifier, quantity int) (PricedLine, error) {
	if quantity < 1 {
		return PricedLine{}, fmt.Errorf("%w: quantity must be at least 1", ErrPricingInput)
	}

	unit := product.Price
	line := PricedLine{ProductName: product.Name}

	if variantID != "" {
		variant, ok := findVariant(product, variantID)
		if !ok {
			return PricedLine{}, fmt.Errorf("%w: variant %q does not belong to product %q", ErrPricingInput, variantID, product.ID)
		}
		unit = unit.Add(variant.ExtraPrice)
		line.VariantName = variant.Name
	}

	for _, sel := range addons {
		addon, ok := findAddon(product, sel.AddonID)
		if !ok || !addon.IsActive {
			return PricedLine{}, fmt.Errorf("%w: addon %q is not available on product %q", ErrPricingInput, sel.AddonID, product.ID)
		}
		qty := sel.Quantity
		if qty < 1 {
			qty = 1
		}
		unit = unit.Add(addon.Price.Mul(decimal.NewFromInt(int64(qty))))
		line.Addons = append(line.Addons, CartItemAddon{
			AddonID:  addon.ID,
			Name:     addon.Name,
			Price:    addon.Price,
			Quantity: qty,
		})
	}

	if err := ValidateModifierSelections(product, modifiers); err != nil {
		return PricedLine{}, err
	}
	for _, sel := range modifiers {
		group, option, ok := findModifierOption(product, sel.GroupID, sel.OptionID)
		if !ok {
			return PricedLine{}, fmt.Errorf("%w: modifier option %q/%q is not available on product %q", ErrPricingInput, sel.GroupID, sel.OptionID, product.ID)
		}
		qty := sel.Quantity
		if qty < 1 {
			qty = 1
		}
		unit = unit.Add(option.PriceAdjustment.Mul(decimal.NewFromInt(int64(qty))))
		line.Modifiers = append(line.Modifiers, CartItemModifier{
			GroupID:         group.ID,
			OptionID:        option.ID,
			Name:            option.Name,
			PriceAdjustment: option.PriceAdjustment,
			Quantity:        qty,
		})
	}

	line.UnitPrice = unit.Round(2)
	line.LineTotal = unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	return line, nil
}

// ValidateModifierSelections enforces the min/max selection bounds of every
// active modifier group on the product. A group with MaxSelection == 1 admits
// at most one selected option. Selections naming an inactive group or an
// inactive option are rejected; inactive groups only stop imposing their
// bounds.
func ValidateModifierSelections(product Product, modifiers []SelectedModifier) error {
	counts := make(map[string]int)
	for _, sel := range modifiers {
		counts[sel.GroupID]++
		if _, _, ok := findModifierOption(product, sel.GroupID, sel.OptionID); !ok {
			return fmt.Errorf("%w: option %q is not part of group %q", ErrPricingInput, sel.OptionID, sel.GroupID)
		}
	}
	for _, group := range product.ModifierGroups {
		if !group.IsActive {
			continue
		}
		count := counts[group.ID]
		if count < group.MinSelection {
			return fmt.Errorf("%w: group %q requires at least %d selection(s), got %d", ErrModifierSelection, group.Name, group.MinSelection, count)
		}
		if group.MaxSelection > 0 && count > group.MaxSelection {
			return fmt.Errorf("%w: group %q allows at most %d selection(s), got %d", ErrModifierSelection, group.Name, group.MaxSelection, count)
		}
		delete(counts, group.ID)
	}
	for groupID := range counts {
		if _, ok := findGroup(product, groupID); !ok {
			return fmt.Errorf("%w: group %q does not belong to product %q", ErrPricingInput, groupID, product.ID)
		}
	}
	return nil
}

// OrderTotals aggregates the monetary summary of an order before creation.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	DeliveryFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// ComputeOrderTotals derives the order summary from priced lines and shop
// policy. The delivery fee applies only to delivery orders; the shop's cash
// discount percentage applies only to cash payment and is taken on the
// subtotal, not on the fee.
func ComputeOrderTotals(lines []PricedLine, shop Shop, orderType OrderType, payment PaymentMethod) OrderTotals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	subtotal = subtotal.Round(2)

	fee := decimal.Zero
	if orderType == OrderTypeDelivery {
		fee = shop.DeliveryFee.Round(2)
	}

	discount := decimal.Zero
	if payment == PaymentMethodCash && shop.CashDiscountPercent.IsPositive() {
		discount = subtotal.Mul(shop.CashDiscountPercent).Div(decimal.NewFromInt(100)).Round(2)
	}

	return OrderTotals{
		Subtotal:       subtotal,
		DeliveryFee:    fee,
		DiscountAmount: discount,
		Total:          subtotal.Add(fee).Sub(discount).Round(2),
	}
}

func findVariant(product Product, variantID string) (ProductVariant, bool) {
	for _, v := range product.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return ProductVariant{}, false
}

func findAddon(product Product, addonID string) (ProductAddon, bool) {
	for _, a := range product.Addons {
		if a.ID == addonID {
			return a, true
		}
	}
	return ProductAddon{}, false
}

func findGroup(product Product, groupID string) (ModifierGroup, bool) {
	for _, g := range product.ModifierGroups {
		if g.ID == groupID {
			return g, true
		}
	}
	return ModifierGroup{}, false
}

func findModifierOption(product Product, groupID, optionID string) (ModifierGroup, ModifierOption, bool) {
	group, ok := findGroup(product, groupID)
	if !ok || !group.IsActive {
		return ModifierGroup{}, ModifierOption{}, false
	}
	for _, opt := range group.Options {
		if opt.ID == optionID && opt.IsActive {
			return group, opt, true
		}
	}
	return ModifierGroup{}, ModifierOption{}, false
}
