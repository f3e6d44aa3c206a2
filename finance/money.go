package finance

import (
	"fmt"
	"math"
)

// AccountID identifies a row in the accounts table.
type AccountID uint32

// UserID identifies a row in the users table.
type UserID uint32

// Money is an amount in minor units (cents).
type Money int64

// NewMoney converts a decimal amount such as 1000.00 to Money, rounding to
// the nearest cent.
func NewMoney(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// Float64 returns the amount in major units.
func (m Money) Float64() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := uint64(m)
	if m < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
