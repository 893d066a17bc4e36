package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// minorScale is the number of decimal places kept for stored amounts. It
// matches MinorUnits and the orders.total_amount column.
const minorScale = 2

// Money is an amount in major units (e.g. rupees, dollars) with its ISO currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds Money from a float, mostly for tests and fixtures.
func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// MarshalJSON writes the amount as a JSON number rather than a string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency"`
	}{
		Amount:   json.Number(m.Amount.String()),
		Currency: m.Currency,
	})
}

// Mul returns m multiplied by qty, rounded half away from zero to minor
// units so that stored line totals always sum to the stored order total.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))).Round(minorScale), Currency: m.Currency}
}

// Add sums two amounts; the receiver's currency wins.
func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

// MinorUnits converts to integer minor units (x100), rounding half away from zero.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(minorScale).Round(0).IntPart()
}

// MajorFromMinor converts integer minor units back into a major-unit decimal.
func MajorFromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-minorScale)
}
