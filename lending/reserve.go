package lending

import (
	"lendledger/decimal"
)

// MaxTokenDecimals bounds a token's fractional precision. Raw-amount
// scaling multiplies by 10^Decimals in uint64 space, which wraps past 19.
const MaxTokenDecimals = 18

// TokenInfo identifies the asset held by a reserve.
type TokenInfo struct {
	// Mint is the token identifier in the host token service.
	Mint string
	// ReceiptMint is the identifier of the deposit-receipt token.
	ReceiptMint string
	// Decimals is the token's native fractional precision. Raw amounts are
	// integers in the smallest unit.
	Decimals uint8
}

// Validate bounds Decimals so valuation scaling never wraps.
func (t TokenInfo) Validate() error {
	if t.Decimals > MaxTokenDecimals {
		return ErrInvalidConfig
	}
	return nil
}

// CollateralConfig carries the risk parameters applied when receipts of
// this reserve are pledged as obligation collateral. Ratios are whole
// percentages.
type CollateralConfig struct {
	// BorrowValueRatio is the loan-to-value ceiling.
	BorrowValueRatio uint8
	// LiquidationValueRatio is the threshold above which the position
	// becomes liquidatable.
	LiquidationValueRatio uint8
	// LiquidationBonusRatio is the premium a liquidator receives on seized
	// collateral.
	LiquidationBonusRatio uint8
}

// Validate enforces LTV < liquidation threshold < 100%.
func (c CollateralConfig) Validate() error {
	if c.BorrowValueRatio < c.LiquidationValueRatio && c.LiquidationValueRatio < 100 {
		return nil
	}
	return ErrInvalidConfig
}

// LiquidityConfig bounds borrowing and deposits on a reserve.
type LiquidityConfig struct {
	// CloseFactor caps, as a whole percentage, the share of a loan that one
	// liquidation call may repay.
	CloseFactor uint8
	// BorrowTaxRate routes a whole-percentage share of accrued interest into
	// the reserve's insurance balance.
	BorrowTaxRate uint8
	// FlashLoanFeeRate is the fee charged on flash loans.
	FlashLoanFeeRate decimal.Decimal
	// MaxDeposit caps a single deposit.
	MaxDeposit uint64
	// MaxTotalDeposit caps the pool's available balance.
	MaxTotalDeposit uint64
}

// Validate enforces the configured fractions stay below one.
func (c LiquidityConfig) Validate() error {
	if c.CloseFactor >= 100 || c.BorrowTaxRate >= 100 {
		return ErrInvalidConfig
	}
	if c.FlashLoanFeeRate.Cmp(decimal.One()) >= 0 {
		return ErrInvalidConfig
	}
	if c.MaxDeposit > c.MaxTotalDeposit {
		return ErrInvalidConfig
	}
	return nil
}

// ReserveLiquidity tracks a single asset pool: the raw amount sitting idle,
// the wad-scaled amount out on loan, and the cumulative borrow index that
// compounds with every accrual.
type ReserveLiquidity struct {
	Enabled bool
	// Available is the idle balance in raw token units.
	Available uint64
	// FlashLoanFees accumulates collected flash loan fees in raw units.
	FlashLoanFees uint64
	// CumulativeBorrowRate starts at 1.0 and only grows.
	CumulativeBorrowRate decimal.Decimal
	// BorrowedWads is the outstanding debt including accrued interest.
	BorrowedWads decimal.Decimal
	// InsuranceWads is the interest share diverted by the borrow tax.
	InsuranceWads decimal.Decimal
	Config        LiquidityConfig
}

// TotalSupply is available + borrowed in wad units.
func (l *ReserveLiquidity) TotalSupply() (decimal.Decimal, error) {
	return decimal.New(l.Available).Add(l.BorrowedWads)
}

// UtilizationRate is borrowed / (borrowed + available), zero on an empty
// pool.
func (l *ReserveLiquidity) UtilizationRate() (decimal.Decimal, error) {
	total, err := l.TotalSupply()
	if err != nil {
		return decimal.Zero(), err
	}
	if total.IsZero() {
		return decimal.Zero(), nil
	}
	return l.BorrowedWads.Div(total)
}

// Deposit adds idle liquidity. Deposits never fail for lack of liquidity,
// only on configured caps, a disabled market, or arithmetic overflow.
func (l *ReserveLiquidity) Deposit(amount uint64) error {
	if !l.Enabled {
		return ErrMarketDisabled
	}
	if l.Config.MaxDeposit > 0 && amount > l.Config.MaxDeposit {
		return ErrDepositTooMuch
	}
	next := l.Available + amount
	if next < l.Available {
		return decimal.ErrOverflow
	}
	if l.Config.MaxTotalDeposit > 0 && next > l.Config.MaxTotalDeposit {
		return ErrDepositTooMuch
	}
	l.Available = next
	return nil
}

// Withdraw removes idle liquidity.
func (l *ReserveLiquidity) Withdraw(amount uint64) error {
	if !l.Enabled {
		return ErrMarketDisabled
	}
	if amount > l.Available {
		return ErrInsufficientLiquidity
	}
	l.Available -= amount
	return nil
}

// BorrowOut moves liquidity from available to borrowed.
func (l *ReserveLiquidity) BorrowOut(amount uint64) error {
	if !l.Enabled {
		return ErrMarketDisabled
	}
	if amount > l.Available {
		return ErrInsufficientLiquidity
	}
	l.Available -= amount
	borrowed, err := l.BorrowedWads.Add(decimal.New(amount))
	if err != nil {
		return err
	}
	l.BorrowedWads = borrowed
	return nil
}

// Repay restores liquidity. settle.Amount is the raw amount actually
// received; settle.AmountWads is the debt retired. The caller is
// responsible for never settling more than the outstanding debt.
func (l *ReserveLiquidity) Repay(settle RepaySettle) error {
	if !l.Enabled {
		return ErrMarketDisabled
	}
	next := l.Available + settle.Amount
	if next < l.Available {
		return decimal.ErrOverflow
	}
	remaining, err := l.BorrowedWads.Sub(settle.AmountWads)
	if err != nil {
		// clamp: settlement past zero leaves no debt, never negative
		remaining = decimal.Zero()
	}
	l.Available = next
	l.BorrowedWads = remaining
	return nil
}

// FlashLoanBorrow lends amount within a single transaction and returns the
// total owed back plus the fee component. The fee rounds up: the borrower
// pays, so overcharging by one unit beats undercharging.
func (l *ReserveLiquidity) FlashLoanBorrow(amount uint64) (totalRepay, fee uint64, err error) {
	if err := l.BorrowOut(amount); err != nil {
		return 0, 0, err
	}
	feeDec, err := decimal.New(amount).Mul(l.Config.FlashLoanFeeRate)
	if err != nil {
		return 0, 0, err
	}
	fee, err = feeDec.Ceil()
	if err != nil {
		return 0, 0, err
	}
	totalRepay = amount + fee
	if totalRepay < amount {
		return 0, 0, decimal.ErrOverflow
	}
	return totalRepay, fee, nil
}

// FlashLoanRepay restores the lent amount and books the fee.
func (l *ReserveLiquidity) FlashLoanRepay(amount, fee uint64) error {
	if err := l.Repay(RepaySettle{Amount: amount, AmountWads: decimal.New(amount)}); err != nil {
		return err
	}
	next := l.FlashLoanFees + fee
	if next < l.FlashLoanFees {
		return decimal.ErrOverflow
	}
	l.FlashLoanFees = next
	return nil
}

// ReduceInsurance withdraws accrued fees, consuming flash loan fees first
// and the interest-tax insurance balance after.
func (l *ReserveLiquidity) ReduceInsurance(amount uint64) error {
	if amount <= l.FlashLoanFees {
		l.FlashLoanFees -= amount
		return nil
	}
	rest := amount - l.FlashLoanFees
	remaining, err := l.InsuranceWads.Sub(decimal.New(rest))
	if err != nil {
		return ErrInsufficientLiquidity
	}
	l.FlashLoanFees = 0
	l.InsuranceWads = remaining
	return nil
}

// ReserveCollateral tracks the deposit-receipt supply backing a reserve.
type ReserveCollateral struct {
	// TotalReceipts is the receipt token supply in raw units.
	TotalReceipts uint64
}

// Mint adds to the receipt supply.
func (c *ReserveCollateral) Mint(amount uint64) error {
	next := c.TotalReceipts + amount
	if next < c.TotalReceipts {
		return decimal.ErrOverflow
	}
	c.TotalReceipts = next
	return nil
}

// Burn removes from the receipt supply.
func (c *ReserveCollateral) Burn(amount uint64) error {
	if amount > c.TotalReceipts {
		return decimal.ErrOverflow
	}
	c.TotalReceipts -= amount
	return nil
}

// RepaySettle pairs the raw token amount a payer hands over with the
// wad-scaled debt it retires.
type RepaySettle struct {
	Amount     uint64
	AmountWads decimal.Decimal
}

// MarketReserve aggregates one asset pool: its liquidity ledger, receipt
// supply, risk configuration, rate model and oracle price, with time-based
// interest accrual.
type MarketReserve struct {
	ID               string
	LastUpdate       LastUpdate
	Price            decimal.Decimal
	Token            TokenInfo
	Collateral       ReserveCollateral
	CollateralConfig CollateralConfig
	Liquidity        ReserveLiquidity
	RateModel        RateModel
}

// NewMarketReserve initializes a reserve at the given slot with an index of
// one and no balances.
func NewMarketReserve(id string, token TokenInfo, collateral CollateralConfig, liquidity LiquidityConfig, model RateModel, slot uint64) (*MarketReserve, error) {
	if err := token.Validate(); err != nil {
		return nil, err
	}
	if err := collateral.Validate(); err != nil {
		return nil, err
	}
	if err := liquidity.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &MarketReserve{
		ID:               id,
		LastUpdate:       NewLastUpdate(slot),
		Token:            token,
		CollateralConfig: collateral,
		Liquidity: ReserveLiquidity{
			Enabled:              true,
			CumulativeBorrowRate: decimal.One(),
			Config:               liquidity,
		},
		RateModel: model,
	}, nil
}

// Clone returns a deep copy; the engine mutates clones and persists them
// only when the whole action succeeds.
func (r *MarketReserve) Clone() *MarketReserve {
	clone := *r
	return &clone
}

// ExchangeLiquidityToCollateral converts a raw liquidity amount into the
// receipts it mints at the current exchange rate, rounding down. A fresh
// pool exchanges 1:1.
func (r *MarketReserve) ExchangeLiquidityToCollateral(amount uint64) (uint64, error) {
	total, err := r.Liquidity.TotalSupply()
	if err != nil {
		return 0, err
	}
	if total.IsZero() {
		return amount, nil
	}
	rate, err := decimal.New(r.Collateral.TotalReceipts).Div(total)
	if err != nil {
		return 0, err
	}
	out, err := decimal.New(amount).Mul(rate)
	if err != nil {
		return 0, err
	}
	return out.Floor()
}

// ExchangeCollateralToLiquidity converts receipts back into the underlying
// liquidity, rounding down. The insurance balance is excluded so receipt
// holders do not earn the borrow tax.
func (r *MarketReserve) ExchangeCollateralToLiquidity(amount uint64) (uint64, error) {
	total, err := r.Liquidity.TotalSupply()
	if err != nil {
		return 0, err
	}
	distributable, err := total.Sub(r.Liquidity.InsuranceWads)
	if err != nil {
		return 0, err
	}
	rate, err := distributable.Div(decimal.New(r.Collateral.TotalReceipts))
	if err != nil {
		return 0, err
	}
	out, err := decimal.New(amount).Mul(rate)
	if err != nil {
		return 0, err
	}
	return out.Floor()
}

// Accrue advances the reserve to the given slot: it takes the oracle price,
// derives the per-slot borrow rate from current utilization, compounds the
// cumulative borrow index over the elapsed interval and diverts the
// configured interest share into insurance. The price moves even when no
// time has passed, so a freshly provisioned reserve never values anything
// at zero; a regressing slot fails.
func (r *MarketReserve) Accrue(slot uint64, price decimal.Decimal) error {
	elapsed, err := r.LastUpdate.SlotsElapsed(slot)
	if err != nil {
		return err
	}
	if price.IsZero() {
		return ErrMissingPrice
	}
	r.Price = price
	if elapsed == 0 {
		return nil
	}
	utilization, err := r.Liquidity.UtilizationRate()
	if err != nil {
		return err
	}
	rate, err := r.RateModel.slotRate(utilization)
	if err != nil {
		return err
	}
	base, err := decimal.One().Add(rate)
	if err != nil {
		return err
	}
	factor, err := base.Pow(elapsed)
	if err != nil {
		return err
	}
	interestFactor, err := factor.Sub(decimal.One())
	if err != nil {
		return err
	}
	taxFactor, err := interestFactor.Mul(decimal.FromPercent(r.Liquidity.Config.BorrowTaxRate))
	if err != nil {
		return err
	}
	tax, err := r.Liquidity.BorrowedWads.Mul(taxFactor)
	if err != nil {
		return err
	}
	insurance, err := r.Liquidity.InsuranceWads.Add(tax)
	if err != nil {
		return err
	}
	index, err := r.Liquidity.CumulativeBorrowRate.Mul(factor)
	if err != nil {
		return err
	}
	borrowed, err := r.Liquidity.BorrowedWads.Mul(factor)
	if err != nil {
		return err
	}
	r.Liquidity.InsuranceWads = insurance
	r.Liquidity.CumulativeBorrowRate = index
	r.Liquidity.BorrowedWads = borrowed
	r.LastUpdate.UpdateSlot(slot)
	return nil
}

// Deposit mints receipts for deposited liquidity at the current exchange
// rate.
func (r *MarketReserve) Deposit(amount uint64) (uint64, error) {
	receipts, err := r.ExchangeLiquidityToCollateral(amount)
	if err != nil {
		return 0, err
	}
	if err := r.Collateral.Mint(receipts); err != nil {
		return 0, err
	}
	if err := r.Liquidity.Deposit(amount); err != nil {
		return 0, err
	}
	return receipts, nil
}

// Redeem burns receipts and releases the underlying liquidity.
func (r *MarketReserve) Redeem(receipts uint64) (uint64, error) {
	amount, err := r.ExchangeCollateralToLiquidity(receipts)
	if err != nil {
		return 0, err
	}
	if err := r.Collateral.Burn(receipts); err != nil {
		return 0, err
	}
	if err := r.Liquidity.Withdraw(amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// tokenValue prices a raw token amount into quote units.
func tokenValue(price decimal.Decimal, amount uint64, decimals uint8) (decimal.Decimal, error) {
	value, err := price.MulInt(amount)
	if err != nil {
		return decimal.Zero(), err
	}
	return value.DivInt(pow10(decimals))
}

func pow10(decimals uint8) uint64 {
	out := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		out *= 10
	}
	return out
}
