package lending

import "errors"

// Error taxonomy surfaced to callers. Every failure is terminal for the
// action in progress; the engine never retries and never downgrades a
// failure to a default value. Arithmetic failures (overflow, division by
// zero) surface as the decimal package's errors.
var (
	ErrInsufficientLiquidity  = errors.New("lending engine: insufficient liquidity")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	ErrBorrowLimitExceeded    = errors.New("lending engine: borrow limit exceeded")
	ErrWithdrawTooMuch        = errors.New("lending engine: withdrawal would leave position unhealthy")
	ErrReserveStale           = errors.New("lending engine: reserve accrual required")
	ErrObligationStale        = errors.New("lending engine: obligation refresh required")
	ErrInvalidTimestamp       = errors.New("lending engine: timestamp regression")
	ErrTooManyReserves        = errors.New("lending engine: obligation reserve limit exceeded")
	ErrMissingPrice           = errors.New("lending engine: price unavailable for reserve")
	ErrNotLiquidatable        = errors.New("lending engine: position not eligible for liquidation")
	ErrRepayTooMuch           = errors.New("lending engine: repay exceeds outstanding debt")
	ErrCreditLimitExceeded    = errors.New("lending engine: credit line limit exceeded")
	ErrLiquidationTooSmall    = errors.New("lending engine: liquidation amount too small")
	ErrNegativeInterest       = errors.New("lending engine: cumulative borrow index regressed")
	ErrMarketDisabled         = errors.New("lending engine: market reserve disabled")
	ErrDepositTooMuch         = errors.New("lending engine: deposit exceeds market cap")
	ErrInvalidAmount          = errors.New("lending engine: amount must be positive")
	ErrLoanNotFound           = errors.New("lending engine: obligation loan not found")
	ErrCollateralNotFound     = errors.New("lending engine: obligation collateral not found")
	ErrReserveNotFound        = errors.New("lending engine: market reserve not found")
	ErrObligationNotFound     = errors.New("lending engine: obligation not found")
	ErrCreditNotFound         = errors.New("lending engine: credit line not found")
	ErrReserveExists          = errors.New("lending engine: market reserve already provisioned")
	ErrCreditExists           = errors.New("lending engine: credit line already open")
	ErrInvalidConfig          = errors.New("lending engine: invalid configuration")
)

var (
	errNilState  = errors.New("lending engine: state not configured")
	errNilTokens = errors.New("lending engine: token ledger not configured")
	errNilPrices = errors.New("lending engine: price feed not configured")
)
