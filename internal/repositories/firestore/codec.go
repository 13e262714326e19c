package firestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/shoplane/api/internal/domain"
)

// decimalString renders a decimal with two fractional digits for storage.
func decimalString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseDecimal(op string, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: parse decimal %q: %w", op, raw, err)
	}
	return d, nil
}

// cartDocID derives the cart document id from the owner key and shop id. The
// derivation is deterministic, so the one-cart-per-(owner, shop) constraint is
// structural: concurrent creators collide on the same document.
func cartDocID(owner domain.OwnerRef, shopID string) string {
	sum := sha256.Sum256([]byte(owner.Key() + "/" + shopID))
	return hex.EncodeToString(sum[:16])
}
