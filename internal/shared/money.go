package shared

import "github.com/shopspring/decimal"

// MinorUnitPlaces is the number of decimal places for currency minor units.
const MinorUnitPlaces = 2

// RoundMoney rounds half-up to the currency minor unit. Only percentage-derived
// values (tax, discount) ever need it; balance comparisons stay exact.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MinorUnitPlaces)
}
