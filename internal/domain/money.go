package domain

import (
	"fmt"

	"github.com/shopspring/decimal" // Exact decimal arithmetic
)

var hundred = decimal.NewFromInt(100)

// ToCents converts an amount in pesos to centavos. Fractions of a centavo are rejected.
func ToCents(pesos decimal.Decimal) (int64, error) {
	cents := pesos.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, E(KindValidation, "domain.ToCents", "amount %s has fractional centavos", pesos.String())
	}
	if cents.Abs().GreaterThan(decimal.NewFromInt(1 << 53)) {
		return 0, E(KindValidation, "domain.ToCents", "amount %s is out of range", pesos.String())
	}
	return cents.IntPart(), nil
}

// FormatCents renders centavos as pesos, e.g. 51000 -> "$510.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s", sign, decimal.New(cents, -2).StringFixed(2))
}
