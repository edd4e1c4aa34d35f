package decimal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Decimal is an unsigned fixed-point number with 18 fractional decimal
// digits ("Wad" scaling), backed by a 256-bit integer. Every operation
// that can overflow the underlying width, or divide by zero, reports an
// explicit error instead of wrapping; callers must treat those errors as
// fatal for the transaction in progress.
type Decimal struct {
	v uint256.Int
}

// Digits is the number of fractional decimal digits carried by a Decimal.
const Digits = 18

var (
	ErrOverflow     = errors.New("decimal: overflow")
	ErrDivideByZero = errors.New("decimal: divide by zero")
	ErrOutOfRange   = errors.New("decimal: value out of uint64 range")
)

var (
	wad     = uint256.NewInt(1_000_000_000_000_000_000)
	halfWad = uint256.NewInt(500_000_000_000_000_000)
	// one percent in wad scale
	percentScaler = uint256.NewInt(10_000_000_000_000_000)
	ten           = uint256.NewInt(10)
)

// Zero returns the zero value.
func Zero() Decimal { return Decimal{} }

// One returns 1.0 in wad scale.
func One() Decimal {
	var d Decimal
	d.v.Set(wad)
	return d
}

// New converts a raw integer amount into a Decimal.
func New(amount uint64) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(amount), wad)
	return d
}

// FromPercent converts a whole percentage (e.g. 75 for 75%) into a Decimal.
func FromPercent(percent uint8) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(uint64(percent)), percentScaler)
	return d
}

// FromScaled wraps an already wad-scaled raw value.
func FromScaled(raw *uint256.Int) Decimal {
	var d Decimal
	if raw != nil {
		d.v.Set(raw)
	}
	return d
}

// Raw returns a copy of the underlying wad-scaled integer.
func (d Decimal) Raw() *uint256.Int {
	return new(uint256.Int).Set(&d.v)
}

// Add returns d + o.
func (d Decimal) Add(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.AddOverflow(&d.v, &o.v); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Sub returns d - o. Decimals are unsigned, so subtracting past zero is an
// overflow.
func (d Decimal) Sub(o Decimal) (Decimal, error) {
	var out Decimal
	if _, underflow := out.v.SubOverflow(&d.v, &o.v); underflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Mul returns d * o rounded down to wad precision.
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	var product uint256.Int
	if _, overflow := product.MulOverflow(&d.v, &o.v); overflow {
		return Decimal{}, ErrOverflow
	}
	var out Decimal
	out.v.Div(&product, wad)
	return out, nil
}

// MulInt returns d * n.
func (d Decimal) MulInt(n uint64) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.MulOverflow(&d.v, uint256.NewInt(n)); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Div returns d / o rounded down to wad precision.
func (d Decimal) Div(o Decimal) (Decimal, error) {
	if o.v.IsZero() {
		return Decimal{}, ErrDivideByZero
	}
	var numerator uint256.Int
	if _, overflow := numerator.MulOverflow(&d.v, wad); overflow {
		return Decimal{}, ErrOverflow
	}
	var out Decimal
	out.v.Div(&numerator, &o.v)
	return out, nil
}

// DivInt returns d / n rounded down.
func (d Decimal) DivInt(n uint64) (Decimal, error) {
	if n == 0 {
		return Decimal{}, ErrDivideByZero
	}
	var out Decimal
	out.v.Div(&d.v, uint256.NewInt(n))
	return out, nil
}

// Pow returns d^exp via binary exponentiation with checked wad
// multiplications. The result is deterministic and monotonic in exp for
// bases >= 1, which the accrual path relies on.
func (d Decimal) Pow(exp uint64) (Decimal, error) {
	result := One()
	base := d
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return Decimal{}, err
			}
		}
		exp >>= 1
		if exp == 0 {
			break
		}
		if base, err = base.Mul(base); err != nil {
			return Decimal{}, err
		}
	}
	return result, nil
}

// Floor truncates to a raw integer amount.
func (d Decimal) Floor() (uint64, error) {
	var q uint256.Int
	q.Div(&d.v, wad)
	out, overflow := q.Uint64WithOverflow()
	if overflow {
		return 0, ErrOutOfRange
	}
	return out, nil
}

// Ceil rounds up to a raw integer amount. Used when computing an amount the
// payer owes: overcharging by one unit beats undercharging.
func (d Decimal) Ceil() (uint64, error) {
	var bump uint256.Int
	bump.Sub(wad, uint256.NewInt(1))
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&d.v, &bump); overflow {
		return 0, ErrOverflow
	}
	var q uint256.Int
	q.Div(&sum, wad)
	out, overflow := q.Uint64WithOverflow()
	if overflow {
		return 0, ErrOutOfRange
	}
	return out, nil
}

// Round rounds half-up to a raw integer amount.
func (d Decimal) Round() (uint64, error) {
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&d.v, halfWad); overflow {
		return 0, ErrOverflow
	}
	var q uint256.Int
	q.Div(&sum, wad)
	out, overflow := q.Uint64WithOverflow()
	if overflow {
		return 0, ErrOutOfRange
	}
	return out, nil
}

// Cmp compares d and o, returning -1, 0 or 1.
func (d Decimal) Cmp(o Decimal) int { return d.v.Cmp(&o.v) }

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return d.v.IsZero() }

// Equal reports whether d and o carry the same scaled value.
func (d Decimal) Equal(o Decimal) bool { return d.v.Eq(&o.v) }

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Parse reads a non-negative decimal literal such as "0.85" or "12". At
// most 18 fractional digits are accepted; excess precision is rejected
// rather than silently truncated.
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("decimal: empty literal")
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Digits {
		return Decimal{}, fmt.Errorf("decimal: %q exceeds %d fractional digits", s, Digits)
	}
	var v uint256.Int
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Decimal{}, fmt.Errorf("decimal: invalid literal %q", s)
		}
		if _, overflow := v.MulOverflow(&v, ten); overflow {
			return Decimal{}, ErrOverflow
		}
		if _, overflow := v.AddOverflow(&v, uint256.NewInt(uint64(r-'0'))); overflow {
			return Decimal{}, ErrOverflow
		}
	}
	for i := len(fracPart); i < Digits; i++ {
		if _, overflow := v.MulOverflow(&v, ten); overflow {
			return Decimal{}, ErrOverflow
		}
	}
	return Decimal{v: v}, nil
}

// String renders the value as a decimal literal with trailing fractional
// zeroes trimmed.
func (d Decimal) String() string {
	var q, r uint256.Int
	q.DivMod(&d.v, wad, &r)
	if r.IsZero() {
		return q.Dec()
	}
	frac := fmt.Sprintf("%018s", r.Dec())
	frac = strings.TrimRight(frac, "0")
	return q.Dec() + "." + frac
}
