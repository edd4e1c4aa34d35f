package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"lendledger/decimal"
)

// UniqueCredit is a collateral-free, fixed-limit debt line against a single
// reserve, granted to one privileged borrower. Solvency is enforced purely
// against the integer borrow limit; accrual mechanics match an obligation
// loan entry.
type UniqueCredit struct {
	Owner   common.Address
	Reserve string
	// BorrowLimit is the hard debt ceiling in raw token units.
	BorrowLimit uint64
	// CumulativeBorrowRate is the index snapshot from the last accrual.
	CumulativeBorrowRate decimal.Decimal
	// BorrowedWads is the outstanding debt including interest.
	BorrowedWads decimal.Decimal
}

// NewUniqueCredit opens a credit line against the reserve's current index.
func NewUniqueCredit(owner common.Address, reserve *MarketReserve, borrowLimit uint64) *UniqueCredit {
	return &UniqueCredit{
		Owner:                owner,
		Reserve:              reserve.ID,
		BorrowLimit:          borrowLimit,
		CumulativeBorrowRate: reserve.Liquidity.CumulativeBorrowRate,
	}
}

// Clone returns a copy for transactional mutation.
func (c *UniqueCredit) Clone() *UniqueCredit {
	clone := *c
	return &clone
}

// AccrueInterest scales the debt by the growth of the reserve's index since
// the stored snapshot.
func (c *UniqueCredit) AccrueInterest(reserve *MarketReserve) error {
	switch reserve.Liquidity.CumulativeBorrowRate.Cmp(c.CumulativeBorrowRate) {
	case -1:
		return ErrNegativeInterest
	case 0:
		return nil
	}
	factor, err := reserve.Liquidity.CumulativeBorrowRate.Div(c.CumulativeBorrowRate)
	if err != nil {
		return err
	}
	borrowed, err := c.BorrowedWads.Mul(factor)
	if err != nil {
		return err
	}
	c.BorrowedWads = borrowed
	c.CumulativeBorrowRate = reserve.Liquidity.CumulativeBorrowRate
	return nil
}

// Headroom returns the raw amount still borrowable under the limit.
// Requires a prior AccrueInterest.
func (c *UniqueCredit) Headroom() (uint64, error) {
	used, err := c.BorrowedWads.Ceil()
	if err != nil {
		return 0, err
	}
	if used >= c.BorrowLimit {
		return 0, nil
	}
	return c.BorrowLimit - used, nil
}

// Borrow draws on the line. All resolves to the remaining headroom, further
// bounded by the reserve's available liquidity. Returns the raw amount
// drawn. Requires a prior AccrueInterest.
func (c *UniqueCredit) Borrow(reserve *MarketReserve, amount Amount) (uint64, error) {
	if !amount.valid() {
		return 0, ErrInvalidAmount
	}
	headroom, err := c.Headroom()
	if err != nil {
		return 0, err
	}
	if headroom > reserve.Liquidity.Available {
		headroom = reserve.Liquidity.Available
	}
	requested := amount.resolve(headroom)
	if requested == 0 {
		return 0, ErrCreditLimitExceeded
	}
	borrowed, err := c.BorrowedWads.Add(decimal.New(requested))
	if err != nil {
		return 0, err
	}
	if borrowed.Cmp(decimal.New(c.BorrowLimit)) > 0 {
		return 0, ErrCreditLimitExceeded
	}
	c.BorrowedWads = borrowed
	return requested, nil
}

// Repay settles debt. All resolves to the full outstanding amount, charging
// its ceiling; exact amounts beyond the outstanding debt are rejected.
// Requires a prior AccrueInterest.
func (c *UniqueCredit) Repay(amount Amount) (RepaySettle, error) {
	if !amount.valid() {
		return RepaySettle{}, ErrInvalidAmount
	}
	debtCeil, err := c.BorrowedWads.Ceil()
	if err != nil {
		return RepaySettle{}, err
	}
	requested := amount.resolve(debtCeil)
	if requested > debtCeil {
		return RepaySettle{}, ErrRepayTooMuch
	}
	if requested == debtCeil {
		settle := RepaySettle{Amount: debtCeil, AmountWads: c.BorrowedWads}
		c.BorrowedWads = decimal.Zero()
		return settle, nil
	}
	settleWads := decimal.New(requested)
	remaining, err := c.BorrowedWads.Sub(settleWads)
	if err != nil {
		return RepaySettle{}, err
	}
	c.BorrowedWads = remaining
	return RepaySettle{Amount: requested, AmountWads: settleWads}, nil
}
