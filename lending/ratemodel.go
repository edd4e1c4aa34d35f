package lending

import (
	"lendledger/decimal"
)

// slotsPerYear converts annualized rates into per-slot rates, assuming one
// logical slot per second.
const slotsPerYear = 31_536_000

// RateModel maps pool utilization onto an annualized borrow rate via a
// piecewise-linear ("kinked") curve: the rate climbs from MinRate to
// OptimalRate while utilization stays at or below OptimalUtilization, then
// climbs from OptimalRate to MaxRate as utilization approaches one. The
// convexity penalizes over-utilized pools, nudging borrowers to repay.
type RateModel struct {
	OptimalUtilization decimal.Decimal
	MinRate            decimal.Decimal
	OptimalRate        decimal.Decimal
	MaxRate            decimal.Decimal
}

// Validate checks the curve invariants: min <= optimal <= max and
// 0 < optimal utilization <= 1.
func (m RateModel) Validate() error {
	if m.OptimalUtilization.IsZero() || m.OptimalUtilization.Cmp(decimal.One()) > 0 {
		return ErrInvalidConfig
	}
	if m.MinRate.Cmp(m.OptimalRate) > 0 || m.OptimalRate.Cmp(m.MaxRate) > 0 {
		return ErrInvalidConfig
	}
	return nil
}

// BorrowRate returns the annualized borrow rate at the given utilization.
// Utilization at exactly zero yields MinRate; exactly one yields MaxRate.
func (m RateModel) BorrowRate(utilization decimal.Decimal) (decimal.Decimal, error) {
	one := decimal.One()
	if utilization.Cmp(one) >= 0 {
		return m.MaxRate, nil
	}
	if utilization.Cmp(m.OptimalUtilization) <= 0 {
		// min + (optimal - min) * u / optimalU
		span, err := m.OptimalRate.Sub(m.MinRate)
		if err != nil {
			return decimal.Zero(), err
		}
		scaled, err := span.Mul(utilization)
		if err != nil {
			return decimal.Zero(), err
		}
		scaled, err = scaled.Div(m.OptimalUtilization)
		if err != nil {
			return decimal.Zero(), err
		}
		return m.MinRate.Add(scaled)
	}
	// optimal + (max - optimal) * (u - optimalU) / (1 - optimalU)
	span, err := m.MaxRate.Sub(m.OptimalRate)
	if err != nil {
		return decimal.Zero(), err
	}
	excess, err := utilization.Sub(m.OptimalUtilization)
	if err != nil {
		return decimal.Zero(), err
	}
	headroom, err := one.Sub(m.OptimalUtilization)
	if err != nil {
		return decimal.Zero(), err
	}
	scaled, err := span.Mul(excess)
	if err != nil {
		return decimal.Zero(), err
	}
	scaled, err = scaled.Div(headroom)
	if err != nil {
		return decimal.Zero(), err
	}
	return m.OptimalRate.Add(scaled)
}

// slotRate converts the annualized rate at the given utilization into a
// per-slot rate.
func (m RateModel) slotRate(utilization decimal.Decimal) (decimal.Decimal, error) {
	annual, err := m.BorrowRate(utilization)
	if err != nil {
		return decimal.Zero(), err
	}
	return annual.DivInt(slotsPerYear)
}
