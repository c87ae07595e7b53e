package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency-tagged decimal quantity
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyZAR Currency = "ZAR"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

func NewMoney(value float64, currency Currency) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewMoneyFromInt(value int64, currency Currency) Money {
	return Money{Value: decimal.NewFromInt(value), Currency: currency}
}

func ZeroMoney(currency Currency) Money {
	return Money{Value: decimal.Zero, Currency: currency}
}

func MustParseMoney(s string, currency Currency) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney(currency)
	}
	return Money{Value: d, Currency: currency}
}

func (m Money) Zero() Money { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(b Money) Money { return Money{Value: m.Value.Add(b.Value), Currency: m.Currency} }
func (m Money) Sub(b Money) Money { return Money{Value: m.Value.Sub(b.Value), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s), Currency: m.Currency} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s), Currency: m.Currency} }
func (m Money) Neg() Money { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) Abs() Money { return Money{Value: m.Value.Abs(), Currency: m.Currency} }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }
func (m Money) IsZero() bool { return m.Value.IsZero() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool { return m.Value.LessThan(b.Value) }
func (m Money) GreaterOrEqual(b Money) bool { return !m.Value.LessThan(b.Value) }
func (m Money) Min(b Money) Money {
	if m.LessThan(b) {
		return m
	}
	return b
}

func (m Money) Max(b Money) Money {
	if m.GreaterThan(b) {
		return m
	}
	return b
}

// ClampNonNegative floors the amount at zero. Allocation steps use it so a
// rounding residual can never drive a balance negative.
func (m Money) ClampNonNegative() Money {
	if m.IsNegative() {
		return m.Zero()
	}
	return m
}

// IsNegligible reports whether the amount is within Tolerance of zero.
func (m Money) IsNegligible() bool {
	return m.Value.Abs().LessThanOrEqual(Tolerance)
}

// WithinTolerance reports whether two amounts differ by at most Tolerance.
func (m Money) WithinTolerance(b Money) bool {
	return m.Value.Sub(b.Value).Abs().LessThanOrEqual(Tolerance)
}

// Float64 returns the amount as a float64 for display/export only. The
// engine itself never computes on floats.
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}
