package utils

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimals kept for monetary values.
	MoneyScale = 2
	// LedgerScale is the scale of decimal(20,4) ledger columns.
	LedgerScale = 4
	// ledgerIntegerDigits is precision minus scale of decimal(20,4).
	ledgerIntegerDigits = 16
)

var (
	errDivisionByZero   = errors.New("division by zero")
	errOutOfRange       = errors.New("value does not fit decimal(20,4)")
	errIntOverflow      = errors.New("integer overflow")
	errNegativeQuantity = errors.New("negative quantity")

	ledgerLimit = decimal.New(1, ledgerIntegerDigits)
)

// RoundMoney rounds half to even at 2 decimals.
// This is the only rounding rule used for money.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyScale)
}

// DivideMoney returns round(numerator / denominator, scale) with banker's rounding.
func DivideMoney(numerator decimal.Decimal, denominator decimal.Decimal, scale int32) (decimal.Decimal, error) {
	if denominator.IsZero() {
		return decimal.Zero, errDivisionByZero
	}
	// keep enough digits so the .5 boundary is decided on the exact quotient
	q := numerator.DivRound(denominator, scale+16)
	return CheckLedgerRange(q.RoundBank(scale))
}

// CheckLedgerRange fails when d would overflow a decimal(20,4) column.
func CheckLedgerRange(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Abs().GreaterThanOrEqual(ledgerLimit) {
		return decimal.Zero, errOutOfRange
	}
	return d, nil
}

// LineValue is round(quantity * unitPrice, 2).
func LineValue(quantity int64, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	return CheckLedgerRange(RoundMoney(decimal.NewFromInt(quantity).Mul(unitPrice)))
}

// MulQuantity multiplies two whole-number quantities, failing on overflow.
func MulQuantity(a int64, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errNegativeQuantity
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, errIntOverflow
	}
	return a * b, nil
}

