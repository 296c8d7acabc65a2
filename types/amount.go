package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrAmountOverflow is returned when an addition exceeds MaxSupply.
	ErrAmountOverflow = errors.New("amount overflow")
	// ErrAmountUnderflow is returned when a subtraction drops below zero.
	ErrAmountUnderflow = errors.New("amount underflow")
)

// MaxSupply is the largest representable balance (2^128 - 1).
var MaxSupply = func() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), 128)
	a.v.SubUint64(&a.v, 1)
	return a
}()

// Amount is an unsigned balance or voting weight in the 128-bit range. The
// zero value is zero. Amounts are values; arithmetic never mutates the
// receiver.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding x.
func NewAmount(x uint64) Amount {
	var a Amount
	a.v.SetUint64(x)
	return a
}

// ParseAmount parses a base-10 amount.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if a.v.Gt(&MaxSupply.v) {
		return Amount{}, ErrAmountOverflow
	}
	return a, nil
}

// Add returns a+b or ErrAmountOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.AddOverflow(&a.v, &b.v); overflow || r.v.Gt(&MaxSupply.v) {
		return Amount{}, ErrAmountOverflow
	}
	return r, nil
}

// Sub returns a-b or ErrAmountUnderflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	var r Amount
	if _, underflow := r.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrAmountUnderflow
	}
	return r, nil
}

// MulDiv returns a*num/den rounded down. den must be non-zero.
func (a Amount) MulDiv(num, den uint64) Amount {
	var r Amount
	r.v.Mul(&a.v, uint256.NewInt(num))
	r.v.Div(&r.v, uint256.NewInt(den))
	if r.v.Gt(&MaxSupply.v) {
		return MaxSupply
	}
	return r
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }
func (a Amount) LT(b Amount) bool    { return a.v.Lt(&b.v) }
func (a Amount) GT(b Amount) bool    { return a.v.Gt(&b.v) }
func (a Amount) IsZero() bool        { return a.v.IsZero() }

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if a.GT(b) {
		return a
	}
	return b
}

// Uint64 returns the low 64 bits.
func (a Amount) Uint64() uint64 { return a.v.Uint64() }

// Float64 approximates the amount, for metrics.
func (a Amount) Float64() float64 { return a.v.Float64() }

func (a Amount) String() string { return a.v.Dec() }

// MarshalBinary encodes the amount as 16 big-endian bytes.
func (a Amount) MarshalBinary() ([]byte, error) {
	b := a.v.Bytes32()
	return b[16:], nil
}

// UnmarshalBinary decodes at most 16 big-endian bytes.
func (a *Amount) UnmarshalBinary(data []byte) error {
	if len(data) > 16 {
		return ErrAmountOverflow
	}
	a.v.SetBytes(data)
	return nil
}

// MarshalText encodes the amount in base 10.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a base-10 amount.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
