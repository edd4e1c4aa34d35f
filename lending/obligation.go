package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"lendledger/decimal"
)

// MaxObligationReserves bounds the number of distinct reserve entries,
// collateral and loans combined, one obligation may reference.
const MaxObligationReserves = 8

// Collateral is one pledged position: deposit receipts of a reserve plus a
// snapshot of the reserve's risk ratios taken when the entry was created.
type Collateral struct {
	Reserve string
	// Amount is the pledged receipt amount in raw units.
	Amount uint64
	// BorrowValueRatio is the LTV applied to this entry, whole percent.
	BorrowValueRatio uint8
	// LiquidationValueRatio is the liquidation threshold, whole percent.
	LiquidationValueRatio uint8
}

// BorrowEffectiveValue is the entry's contribution to the borrow limit:
// underlying value discounted by the LTV ratio.
func (c *Collateral) BorrowEffectiveValue(reserve *MarketReserve) (decimal.Decimal, error) {
	value, err := c.underlyingValue(reserve)
	if err != nil {
		return decimal.Zero(), err
	}
	return value.Mul(decimal.FromPercent(c.BorrowValueRatio))
}

// LiquidationEffectiveValue is the entry's contribution to the liquidation
// threshold value.
func (c *Collateral) LiquidationEffectiveValue(reserve *MarketReserve) (decimal.Decimal, error) {
	value, err := c.underlyingValue(reserve)
	if err != nil {
		return decimal.Zero(), err
	}
	return value.Mul(decimal.FromPercent(c.LiquidationValueRatio))
}

func (c *Collateral) underlyingValue(reserve *MarketReserve) (decimal.Decimal, error) {
	liquidity, err := reserve.ExchangeCollateralToLiquidity(c.Amount)
	if err != nil {
		return decimal.Zero(), err
	}
	return tokenValue(reserve.Price, liquidity, reserve.Token.Decimals)
}

// Loan is one borrow position: the wad-scaled outstanding amount and the
// reserve's cumulative borrow index snapshotted at the last accrual.
type Loan struct {
	Reserve string
	// CumulativeBorrowRate is the index snapshot from the last accrual.
	CumulativeBorrowRate decimal.Decimal
	// BorrowedWads is liquidity borrowed plus accrued interest.
	BorrowedWads decimal.Decimal
	// CloseFactor snapshots the reserve's per-call liquidation cap.
	CloseFactor uint8
}

// AccrueInterest scales the outstanding amount by the growth of the
// reserve's index since the stored snapshot.
func (l *Loan) AccrueInterest(reserve *MarketReserve) error {
	switch reserve.Liquidity.CumulativeBorrowRate.Cmp(l.CumulativeBorrowRate) {
	case -1:
		return ErrNegativeInterest
	case 0:
		return nil
	}
	factor, err := reserve.Liquidity.CumulativeBorrowRate.Div(l.CumulativeBorrowRate)
	if err != nil {
		return err
	}
	borrowed, err := l.BorrowedWads.Mul(factor)
	if err != nil {
		return err
	}
	l.BorrowedWads = borrowed
	l.CumulativeBorrowRate = reserve.Liquidity.CumulativeBorrowRate
	return nil
}

// Value prices the outstanding amount in quote units.
func (l *Loan) Value(reserve *MarketReserve) (decimal.Decimal, error) {
	amount, err := l.BorrowedWads.Round()
	if err != nil {
		return decimal.Zero(), err
	}
	return tokenValue(reserve.Price, amount, reserve.Token.Decimals)
}

// Obligation is a user's aggregate position across reserves: an ordered set
// of collateral entries, an ordered set of loan entries (at most one entry
// per reserve per side) and a cached valuation refreshed from accrued
// reserves.
type Obligation struct {
	Owner       common.Address
	LastUpdate  LastUpdate
	Collaterals []Collateral
	Loans       []Loan
	// CollateralsBorrowValue is the borrow limit.
	CollateralsBorrowValue decimal.Decimal
	// CollateralsLiquidationValue is the liquidation threshold value.
	CollateralsLiquidationValue decimal.Decimal
	// LoansValue is the aggregate outstanding loan value.
	LoansValue decimal.Decimal
}

// NewObligation creates an empty position for the owner.
func NewObligation(owner common.Address, slot uint64) *Obligation {
	return &Obligation{Owner: owner, LastUpdate: NewLastUpdate(slot)}
}

// Clone returns a deep copy for transactional mutation.
func (o *Obligation) Clone() *Obligation {
	clone := *o
	clone.Collaterals = append([]Collateral(nil), o.Collaterals...)
	clone.Loans = append([]Loan(nil), o.Loans...)
	return &clone
}

// IsEmpty reports whether the obligation holds no entries and may be
// closed.
func (o *Obligation) IsEmpty() bool {
	return len(o.Collaterals) == 0 && len(o.Loans) == 0
}

// IsHealthy reports whether the cached loan value sits at or below the
// liquidation threshold value. Requires a prior Refresh.
func (o *Obligation) IsHealthy() bool {
	return o.LoansValue.Cmp(o.CollateralsLiquidationValue) <= 0
}

func (o *Obligation) findCollateral(reserve string) (int, error) {
	for i := range o.Collaterals {
		if o.Collaterals[i].Reserve == reserve {
			return i, nil
		}
	}
	return 0, ErrCollateralNotFound
}

func (o *Obligation) findLoan(reserve string) (int, error) {
	for i := range o.Loans {
		if o.Loans[i].Reserve == reserve {
			return i, nil
		}
	}
	return 0, ErrLoanNotFound
}

// Refresh recomputes the cached valuation from the supplied reserves. Every
// referenced reserve must already be accrued at the given slot; otherwise
// the refresh is rejected and the caller has to accrue first.
func (o *Obligation) Refresh(slot uint64, reserves map[string]*MarketReserve) error {
	borrowValue := decimal.Zero()
	liquidationValue := decimal.Zero()
	for i := range o.Collaterals {
		reserve, ok := reserves[o.Collaterals[i].Reserve]
		if !ok {
			return ErrReserveNotFound
		}
		if !reserve.LastUpdate.CurrentAt(slot) {
			return ErrReserveStale
		}
		bv, err := o.Collaterals[i].BorrowEffectiveValue(reserve)
		if err != nil {
			return err
		}
		if borrowValue, err = borrowValue.Add(bv); err != nil {
			return err
		}
		lv, err := o.Collaterals[i].LiquidationEffectiveValue(reserve)
		if err != nil {
			return err
		}
		if liquidationValue, err = liquidationValue.Add(lv); err != nil {
			return err
		}
	}
	loansValue := decimal.Zero()
	for i := range o.Loans {
		reserve, ok := reserves[o.Loans[i].Reserve]
		if !ok {
			return ErrReserveNotFound
		}
		if !reserve.LastUpdate.CurrentAt(slot) {
			return ErrReserveStale
		}
		if err := o.Loans[i].AccrueInterest(reserve); err != nil {
			return err
		}
		value, err := o.Loans[i].Value(reserve)
		if err != nil {
			return err
		}
		if loansValue, err = loansValue.Add(value); err != nil {
			return err
		}
	}
	o.CollateralsBorrowValue = borrowValue
	o.CollateralsLiquidationValue = liquidationValue
	o.LoansValue = loansValue
	o.LastUpdate.UpdateSlot(slot)
	return nil
}

// DepositCollateral inserts or increments the entry for the reserve. New
// entries snapshot the reserve's current risk ratios.
func (o *Obligation) DepositCollateral(reserve *MarketReserve, receipts uint64) error {
	if receipts == 0 {
		return ErrInvalidAmount
	}
	if index, err := o.findCollateral(reserve.ID); err == nil {
		next := o.Collaterals[index].Amount + receipts
		if next < o.Collaterals[index].Amount {
			return decimal.ErrOverflow
		}
		o.Collaterals[index].Amount = next
		return nil
	}
	if len(o.Collaterals)+len(o.Loans) >= MaxObligationReserves {
		return ErrTooManyReserves
	}
	o.Collaterals = append(o.Collaterals, Collateral{
		Reserve:               reserve.ID,
		Amount:                receipts,
		BorrowValueRatio:      reserve.CollateralConfig.BorrowValueRatio,
		LiquidationValueRatio: reserve.CollateralConfig.LiquidationValueRatio,
	})
	return nil
}

// Borrow adds to the loan entry for the reserve and validates the post-
// borrow position against the borrow limit. Requires a prior Refresh at
// the current valuation; the cached values are updated in place.
func (o *Obligation) Borrow(reserve *MarketReserve, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if index, err := o.findLoan(reserve.ID); err == nil {
		borrowed, err := o.Loans[index].BorrowedWads.Add(decimal.New(amount))
		if err != nil {
			return err
		}
		o.Loans[index].BorrowedWads = borrowed
	} else {
		if len(o.Collaterals)+len(o.Loans) >= MaxObligationReserves {
			return ErrTooManyReserves
		}
		o.Loans = append(o.Loans, Loan{
			Reserve:              reserve.ID,
			CumulativeBorrowRate: reserve.Liquidity.CumulativeBorrowRate,
			BorrowedWads:         decimal.New(amount),
			CloseFactor:          reserve.Liquidity.Config.CloseFactor,
		})
	}
	value, err := tokenValue(reserve.Price, amount, reserve.Token.Decimals)
	if err != nil {
		return err
	}
	loansValue, err := o.LoansValue.Add(value)
	if err != nil {
		return err
	}
	o.LoansValue = loansValue
	if o.LoansValue.Cmp(o.CollateralsBorrowValue) > 0 {
		return ErrBorrowLimitExceeded
	}
	return nil
}

// Repay reduces the loan entry. Exact amounts beyond the outstanding debt
// are rejected; All settles the whole debt, charging the ceiling of the
// wad-scaled outstanding amount and removing the entry.
func (o *Obligation) Repay(reserve string, amount Amount) (RepaySettle, error) {
	if !amount.valid() {
		return RepaySettle{}, ErrInvalidAmount
	}
	index, err := o.findLoan(reserve)
	if err != nil {
		return RepaySettle{}, err
	}
	outstanding := o.Loans[index].BorrowedWads
	debtCeil, err := outstanding.Ceil()
	if err != nil {
		return RepaySettle{}, err
	}
	requested := amount.resolve(debtCeil)
	if requested > debtCeil {
		return RepaySettle{}, ErrRepayTooMuch
	}
	if requested == debtCeil {
		o.Loans = append(o.Loans[:index], o.Loans[index+1:]...)
		return RepaySettle{Amount: debtCeil, AmountWads: outstanding}, nil
	}
	settleWads := decimal.New(requested)
	remaining, err := outstanding.Sub(settleWads)
	if err != nil {
		return RepaySettle{}, err
	}
	o.Loans[index].BorrowedWads = remaining
	return RepaySettle{Amount: requested, AmountWads: settleWads}, nil
}

// WithdrawCollateral releases pledged receipts. With outstanding loans the
// hypothetical post-withdrawal borrow limit must still cover the loan
// value; with zero loans no solvency constraint applies. Requires a prior
// Refresh when loans exist. Returns the receipt amount released.
func (o *Obligation) WithdrawCollateral(reserve *MarketReserve, amount Amount) (uint64, error) {
	if !amount.valid() {
		return 0, ErrInvalidAmount
	}
	index, err := o.findCollateral(reserve.ID)
	if err != nil {
		return 0, err
	}
	pledged := o.Collaterals[index].Amount
	requested := amount.resolve(pledged)
	if requested > pledged {
		requested = pledged
	}
	if len(o.Loans) > 0 {
		removed := o.Collaterals[index]
		removed.Amount = requested
		value, err := removed.BorrowEffectiveValue(reserve)
		if err != nil {
			return 0, err
		}
		borrowValue, err := o.CollateralsBorrowValue.Sub(value)
		if err != nil {
			borrowValue = decimal.Zero()
		}
		if o.LoansValue.Cmp(borrowValue) > 0 {
			return 0, ErrWithdrawTooMuch
		}
		o.CollateralsBorrowValue = borrowValue
	}
	if requested == pledged {
		o.Collaterals = append(o.Collaterals[:index], o.Collaterals[index+1:]...)
	} else {
		o.Collaterals[index].Amount -= requested
	}
	return requested, nil
}

// Liquidate repays part of an unhealthy obligation's loan in exchange for
// pledged collateral plus the liquidation bonus. The repayable amount is
// bounded by maxRepay, the outstanding loan and the loan's close factor;
// the equivalent collateral is seized at the two reserves' prices. Fails
// when the seizure would exceed what is pledged. Requires a prior Refresh.
func (o *Obligation) Liquidate(loanReserve, collateralReserve *MarketReserve, maxRepay Amount) (uint64, RepaySettle, error) {
	if !maxRepay.valid() {
		return 0, RepaySettle{}, ErrInvalidAmount
	}
	if o.IsHealthy() {
		return 0, RepaySettle{}, ErrNotLiquidatable
	}
	loanIndex, err := o.findLoan(loanReserve.ID)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	collateralIndex, err := o.findCollateral(collateralReserve.ID)
	if err != nil {
		return 0, RepaySettle{}, err
	}

	closeBound, err := o.Loans[loanIndex].BorrowedWads.Mul(decimal.FromPercent(o.Loans[loanIndex].CloseFactor))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	repayWads := closeBound
	if !maxRepay.IsAll() {
		repayWads = decimal.Min(closeBound, decimal.New(maxRepay.Value()))
	}
	if repayWads.IsZero() {
		return 0, RepaySettle{}, ErrLiquidationTooSmall
	}
	repayAmount, err := repayWads.Ceil()
	if err != nil {
		return 0, RepaySettle{}, err
	}

	// seized liquidity = repay value converted at the collateral price,
	// grossed up by the liquidation bonus
	repayValue, err := tokenValue(loanReserve.Price, repayAmount, loanReserve.Token.Decimals)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	scaled, err := repayValue.MulInt(pow10(collateralReserve.Token.Decimals))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeLiquidityDec, err := scaled.Div(collateralReserve.Price)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	bonus, err := decimal.One().Add(decimal.FromPercent(collateralReserve.CollateralConfig.LiquidationBonusRatio))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeLiquidityDec, err = seizeLiquidityDec.Mul(bonus)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeLiquidity, err := seizeLiquidityDec.Round()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seized, err := collateralReserve.ExchangeLiquidityToCollateral(seizeLiquidity)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if seized == 0 {
		return 0, RepaySettle{}, ErrLiquidationTooSmall
	}
	if seized > o.Collaterals[collateralIndex].Amount {
		return 0, RepaySettle{}, ErrInsufficientCollateral
	}

	remaining, err := o.Loans[loanIndex].BorrowedWads.Sub(repayWads)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if remaining.IsZero() {
		o.Loans = append(o.Loans[:loanIndex], o.Loans[loanIndex+1:]...)
	} else {
		o.Loans[loanIndex].BorrowedWads = remaining
	}
	if o.Collaterals[collateralIndex].Amount == seized {
		o.Collaterals = append(o.Collaterals[:collateralIndex], o.Collaterals[collateralIndex+1:]...)
	} else {
		o.Collaterals[collateralIndex].Amount -= seized
	}
	// keep the cached loan value consistent so eligibility strictly decays
	if loansValue, err := o.LoansValue.Sub(repayValue); err == nil {
		o.LoansValue = loansValue
	} else {
		o.LoansValue = decimal.Zero()
	}
	return seized, RepaySettle{Amount: repayAmount, AmountWads: repayWads}, nil
}
