package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func sizeProduct(t *testing.T) Product {
	t.Helper()
	return Product{
		ID:    "prod-a",
		Name:  "Product A",
		Price: dec(t, "10.00"),
		ModifierGroups: []ModifierGroup{
			{
				ID:           "grp-size",
				Name:         "Size",
				MinSelection: 1,
				MaxSelection: 1,
				IsActive:     true,
				Options: []ModifierOption{
					{ID: "opt-large", Name: "Large", PriceAdjustment: dec(t, "2.00"), IsActive: true},
					{ID: "opt-regular", Name: "Regular", PriceAdjustment: decimal.Zero, IsActive: true},
				},
			},
		},
	}
}

func TestPriceLineWithVariantAddonsAndModifiers(t *testing.T) {
	product := Product{
		ID:    "prod-1",
		Name:  "Burger",
		Price: dec(t, "8.50"),
		Variants: []ProductVariant{
			{ID: "var-double", Name: "Double", ExtraPrice: dec(t, "3.00")},
		},
		Addons: []ProductAddon{
			{ID: "add-bacon", Name: "Bacon", Price: dec(t, "1.25"), IsActive: true},
		},
		ModifierGroups: []ModifierGroup{
			{
				ID:       "grp-sauce",
				Name:     "Sauce",
				IsActive: true,
				Options: []ModifierOption{
					{ID: "opt-bbq", Name: "BBQ", PriceAdjustment: dec(t, "0.50"), IsActive: true},
				},
			},
		},
	}

	line, err := PriceLine(product, "var-double",
		[]SelectedAddon{{AddonID: "add-bacon", Quantity: 2}},
		[]SelectedModifier{{GroupID: "grp-sauce", OptionID: "opt-bbq", Quantity: 1}},
		3)
	if err != nil {
		t.Fatalf("PriceLine returned error: %v", err)
	}
	// 8.50 + 3.00 + 2×1.25 + 0.50 = 14.50
	if got := line.UnitPrice; !got.Equal(dec(t, "14.50")) {
		t.Fatalf("unit price = %s, want 14.50", got)
	}
	if got := line.LineTotal; !got.Equal(dec(t, "43.50")) {
		t.Fatalf("line total = %s, want 43.50", got)
	}
	if line.VariantName != "Double" {
		t.Fatalf("variant name = %q, want Double", line.VariantName)
	}
	if len(line.Addons) != 1 || line.Addons[0].Name != "Bacon" {
		t.Fatalf("unexpected addon snapshot: %+v", line.Addons)
	}
}

func TestPriceLineRejectsForeignVariant(t *testing.T) {
	product := sizeProduct(t)
	_, err := PriceLine(product, "var-unknown", nil,
		[]SelectedModifier{{GroupID: "grp-size", OptionID: "opt-regular"}}, 1)
	if !errors.Is(err, ErrPricingInput) {
		t.Fatalf("expected ErrPricingInput, got %v", err)
	}
}

func TestValidateModifierSelectionsSingleSelectBounds(t *testing.T) {
	product := sizeProduct(t)

	if err := ValidateModifierSelections(product, nil); !errors.Is(err, ErrModifierSelection) {
		t.Fatalf("zero selections: expected ErrModifierSelection, got %v", err)
	}
	two := []SelectedModifier{
		{GroupID: "grp-size", OptionID: "opt-large"},
		{GroupID: "grp-size", OptionID: "opt-regular"},
	}
	if err := ValidateModifierSelections(product, two); !errors.Is(err, ErrModifierSelection) {
		t.Fatalf("two selections: expected ErrModifierSelection, got %v", err)
	}
	one := []SelectedModifier{{GroupID: "grp-size", OptionID: "opt-large"}}
	if err := ValidateModifierSelections(product, one); err != nil {
		t.Fatalf("one selection: unexpected error %v", err)
	}
}

func TestValidateModifierSelectionsIgnoresInactiveGroups(t *testing.T) {
	product := sizeProduct(t)
	product.ModifierGroups[0].IsActive = false

	if err := ValidateModifierSelections(product, nil); err != nil {
		t.Fatalf("inactive group should not require selections: %v", err)
	}
}

func TestValidateModifierSelectionsRejectsInactiveGroupSelections(t *testing.T) {
	product := sizeProduct(t)
	product.ModifierGroups[0].IsActive = false

	// Retired groups stop imposing bounds, but their options are no longer
	// orderable either.
	sel := []SelectedModifier{{GroupID: "grp-size", OptionID: "opt-large"}}
	if err := ValidateModifierSelections(product, sel); !errors.Is(err, ErrPricingInput) {
		t.Fatalf("expected ErrPricingInput, got %v", err)
	}
}

func TestPriceLineRejectsInactiveGroupOption(t *testing.T) {
	product := sizeProduct(t)
	product.ModifierGroups[0].IsActive = false

	_, err := PriceLine(product, "", nil,
		[]SelectedModifier{{GroupID: "grp-size", OptionID: "opt-large", Quantity: 1}}, 1)
	if err == nil {
		t.Fatal("expected pricing to reject an option of an inactive group")
	}
}

func TestComputeOrderTotalsDeliveryCard(t *testing.T) {
	shop := Shop{
		DeliveryFee:         dec(t, "5.00"),
		CashDiscountPercent: decimal.Zero,
	}
	line, err := PriceLine(sizeProduct(t), "", nil,
		[]SelectedModifier{{GroupID: "grp-size", OptionID: "opt-large"}}, 2)
	if err != nil {
		t.Fatalf("PriceLine returned error: %v", err)
	}

	totals := ComputeOrderTotals([]PricedLine{line}, shop, OrderTypeDelivery, PaymentMethodCard)
	if !totals.Subtotal.Equal(dec(t, "24.00")) {
		t.Fatalf("subtotal = %s, want 24.00", totals.Subtotal)
	}
	if !totals.DeliveryFee.Equal(dec(t, "5.00")) {
		t.Fatalf("delivery fee = %s, want 5.00", totals.DeliveryFee)
	}
	if !totals.DiscountAmount.IsZero() {
		t.Fatalf("discount = %s, want 0", totals.DiscountAmount)
	}
	if !totals.Total.Equal(dec(t, "29.00")) {
		t.Fatalf("total = %s, want 29.00", totals.Total)
	}
}

func TestComputeOrderTotalsPickupCashDiscount(t *testing.T) {
	shop := Shop{
		DeliveryFee:         dec(t, "5.00"),
		CashDiscountPercent: dec(t, "10"),
	}
	line, err := PriceLine(sizeProduct(t), "", nil,
		[]SelectedModifier{{GroupID: "grp-size", OptionID: "opt-large"}}, 2)
	if err != nil {
		t.Fatalf("PriceLine returned error: %v", err)
	}

	totals := ComputeOrderTotals([]PricedLine{line}, shop, OrderTypePickup, PaymentMethodCash)
	if !totals.DeliveryFee.IsZero() {
		t.Fatalf("pickup order should have no delivery fee, got %s", totals.DeliveryFee)
	}
	if !totals.DiscountAmount.Equal(dec(t, "2.40")) {
		t.Fatalf("discount = %s, want 2.40", totals.DiscountAmount)
	}
	if !totals.Total.Equal(dec(t, "21.60")) {
		t.Fatalf("total = %s, want 21.60", totals.Total)
	}
}

func TestOwnerRefKeyRoundTrip(t *testing.T) {
	refs := []OwnerRef{UserOwner("u_123"), GuestOwner("9f2e3a")}
	for _, ref := range refs {
		parsed, err := ParseOwnerKey(ref.Key())
		if err != nil {
			t.Fatalf("ParseOwnerKey(%q): %v", ref.Key(), err)
		}
		if parsed != ref {
			t.Fatalf("round trip mismatch: %+v != %+v", parsed, ref)
		}
	}
	if _, err := ParseOwnerKey("nonsense"); !errors.Is(err, ErrInvalidOwnerRef) {
		t.Fatalf("expected ErrInvalidOwnerRef, got %v", err)
	}
}
