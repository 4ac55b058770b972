package payment

import "github.com/shopspring/decimal"

// CurrencyINR is the only currency the storefront sells in.
const CurrencyINR = "INR"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts rupees to paise, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts paise to rupees.
func FromMinorUnits(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}
