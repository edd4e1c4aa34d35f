package lending

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendledger/decimal"
	"lendledger/observability"
)

// State persists the engine's ledger objects. Lookups return (nil, nil) when
// the object does not exist; the engine maps that onto the matching
// not-found error.
type State interface {
	GetReserve(id string) (*MarketReserve, error)
	PutReserve(reserve *MarketReserve) error
	GetObligation(owner common.Address) (*Obligation, error)
	PutObligation(obligation *Obligation) error
	GetCredit(owner common.Address) (*UniqueCredit, error)
	PutCredit(credit *UniqueCredit) error
}

// PriceFeed supplies quote-denominated oracle prices per reserve.
type PriceFeed interface {
	Price(reserveID string) (decimal.Decimal, bool)
}

// TokenLedger moves token balances on the engine's behalf. The ledger is
// expected to commit or discard together with the engine's state, so a
// failed action leaves no partial transfers behind.
type TokenLedger interface {
	Transfer(from, to common.Address, mint string, amount uint64) error
	Mint(to common.Address, mint string, amount uint64) error
	Burn(from common.Address, mint string, amount uint64) error
}

// Engine orchestrates the lending ledger. Every external action accrues the
// touched reserves at the engine's current slot, refreshes the obligation
// where solvency matters, applies the mutation on working copies and
// persists only when every step succeeded.
type Engine struct {
	state  State
	prices PriceFeed
	tokens TokenLedger

	// vault custodies pooled liquidity; collateralVault custodies pledged
	// deposit receipts.
	vault           common.Address
	collateralVault common.Address

	slot    uint64
	log     *slog.Logger
	metrics *observability.LendingMetrics
}

// NewEngine constructs an engine around the two custody addresses. State,
// price feed and token ledger are attached with the Set methods before use.
func NewEngine(vault, collateralVault common.Address) *Engine {
	return &Engine{
		vault:           vault,
		collateralVault: collateralVault,
		log:             slog.Default(),
		metrics:         observability.Lending(),
	}
}

// SetState attaches the persistence backend.
func (e *Engine) SetState(state State) { e.state = state }

// SetPriceFeed attaches the oracle.
func (e *Engine) SetPriceFeed(prices PriceFeed) { e.prices = prices }

// SetTokenLedger attaches the token mover.
func (e *Engine) SetTokenLedger(tokens TokenLedger) { e.tokens = tokens }

// SetSlot advances the engine's logical clock. Subsequent accruals compound
// up to this slot.
func (e *Engine) SetSlot(slot uint64) { e.slot = slot }

// Slot returns the engine's current logical slot.
func (e *Engine) Slot() uint64 { return e.slot }

// SetLogger overrides the default structured logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if log != nil {
		e.log = log
	}
}

func (e *Engine) requireDeps() error {
	if e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	if e.prices == nil {
		return errNilPrices
	}
	return nil
}

func (e *Engine) finish(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		e.log.Error("lending operation failed", "operation", operation, "error", err)
	}
	e.metrics.ObserveOperation(operation, outcome, time.Since(start).Seconds())
}

// loadReserve fetches a working copy of the reserve.
func (e *Engine) loadReserve(id string) (*MarketReserve, error) {
	reserve, err := e.state.GetReserve(id)
	if err != nil {
		return nil, err
	}
	if reserve == nil {
		return nil, ErrReserveNotFound
	}
	return reserve.Clone(), nil
}

// accrueReserve compounds the working copy up to the engine's slot using the
// oracle price.
func (e *Engine) accrueReserve(reserve *MarketReserve) error {
	price, ok := e.prices.Price(reserve.ID)
	if !ok {
		return ErrMissingPrice
	}
	if err := reserve.Accrue(e.slot, price); err != nil {
		return err
	}
	e.metrics.ObserveAccrual()
	return nil
}

// reserveSet holds accrued working copies keyed by reserve, preserving load
// order for deterministic persistence.
type reserveSet struct {
	order []string
	byID  map[string]*MarketReserve
}

func (s *reserveSet) get(id string) (*MarketReserve, error) {
	reserve, ok := s.byID[id]
	if !ok {
		return nil, ErrReserveNotFound
	}
	return reserve, nil
}

// collectReserves loads and accrues every reserve the obligation references
// plus the extras named by the action.
func (e *Engine) collectReserves(obligation *Obligation, extra ...string) (*reserveSet, error) {
	set := &reserveSet{byID: make(map[string]*MarketReserve)}
	add := func(id string) error {
		if _, ok := set.byID[id]; ok {
			return nil
		}
		reserve, err := e.loadReserve(id)
		if err != nil {
			return err
		}
		if err := e.accrueReserve(reserve); err != nil {
			return err
		}
		set.order = append(set.order, id)
		set.byID[id] = reserve
		return nil
	}
	if obligation != nil {
		for i := range obligation.Collaterals {
			if err := add(obligation.Collaterals[i].Reserve); err != nil {
				return nil, err
			}
		}
		for i := range obligation.Loans {
			if err := add(obligation.Loans[i].Reserve); err != nil {
				return nil, err
			}
		}
	}
	for _, id := range extra {
		if err := add(id); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (e *Engine) persistReserves(set *reserveSet) error {
	for _, id := range set.order {
		if err := e.state.PutReserve(set.byID[id]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadObligation(owner common.Address) (*Obligation, error) {
	obligation, err := e.state.GetObligation(owner)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, ErrObligationNotFound
	}
	return obligation.Clone(), nil
}

// ProvisionReserve creates and persists a new market reserve at the current
// slot.
func (e *Engine) ProvisionReserve(id string, token TokenInfo, collateral CollateralConfig, liquidity LiquidityConfig, model RateModel) (*MarketReserve, error) {
	if e.state == nil {
		return nil, errNilState
	}
	existing, err := e.state.GetReserve(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReserveExists
	}
	reserve, err := NewMarketReserve(id, token, collateral, liquidity, model, e.slot)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}
	e.log.Info("reserve provisioned", "reserve", id, "mint", token.Mint)
	return reserve, nil
}

// OpenCreditLine grants the owner a collateral-free debt line against the
// reserve, snapshotting the reserve's freshly accrued index.
func (e *Engine) OpenCreditLine(owner common.Address, reserveID string, borrowLimit uint64) (err error) {
	start := time.Now()
	defer func() { e.finish("open_credit_line", start, err) }()
	if err = e.requireDeps(); err != nil {
		return err
	}
	if borrowLimit == 0 {
		return ErrInvalidAmount
	}
	existing, err := e.state.GetCredit(owner)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrCreditExists
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return err
	}
	credit := NewUniqueCredit(owner, reserve, borrowLimit)
	if err = e.state.PutReserve(reserve); err != nil {
		return err
	}
	if err = e.state.PutCredit(credit); err != nil {
		return err
	}
	e.log.Info("credit line opened", "owner", owner.Hex(), "reserve", reserveID, "limit", borrowLimit)
	return nil
}

// Deposit supplies liquidity to the reserve and mints deposit receipts for
// the supplier at the current exchange rate. Returns the receipts minted.
func (e *Engine) Deposit(supplier common.Address, reserveID string, amount uint64) (receipts uint64, err error) {
	start := time.Now()
	defer func() { e.finish("deposit", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return 0, err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return 0, err
	}
	receipts, err = reserve.Deposit(amount)
	if err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(supplier, e.vault, reserve.Token.Mint, amount); err != nil {
		return 0, err
	}
	if err = e.tokens.Mint(supplier, reserve.Token.ReceiptMint, receipts); err != nil {
		return 0, err
	}
	if err = e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	e.log.Info("liquidity deposited", "reserve", reserveID, "supplier", supplier.Hex(), "amount", amount, "receipts", receipts)
	return receipts, nil
}

// Redeem burns the supplier's deposit receipts and pays out the underlying
// liquidity at the current exchange rate. Returns the amount released.
func (e *Engine) Redeem(supplier common.Address, reserveID string, receipts uint64) (amount uint64, err error) {
	start := time.Now()
	defer func() { e.finish("redeem", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, err
	}
	if receipts == 0 {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return 0, err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return 0, err
	}
	amount, err = reserve.Redeem(receipts)
	if err != nil {
		return 0, err
	}
	if err = e.tokens.Burn(supplier, reserve.Token.ReceiptMint, receipts); err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(e.vault, supplier, reserve.Token.Mint, amount); err != nil {
		return 0, err
	}
	if err = e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	e.log.Info("liquidity redeemed", "reserve", reserveID, "supplier", supplier.Hex(), "receipts", receipts, "amount", amount)
	return amount, nil
}

// DepositCollateral pledges the owner's deposit receipts into their
// obligation, creating the obligation on first use.
func (e *Engine) DepositCollateral(owner common.Address, reserveID string, receipts uint64) (err error) {
	start := time.Now()
	defer func() { e.finish("deposit_collateral", start, err) }()
	if err = e.requireDeps(); err != nil {
		return err
	}
	if receipts == 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return err
	}
	obligation, err := e.state.GetObligation(owner)
	if err != nil {
		return err
	}
	if obligation == nil {
		obligation = NewObligation(owner, e.slot)
	} else {
		obligation = obligation.Clone()
	}
	if err = obligation.DepositCollateral(reserve, receipts); err != nil {
		return err
	}
	if err = e.tokens.Transfer(owner, e.collateralVault, reserve.Token.ReceiptMint, receipts); err != nil {
		return err
	}
	obligation.LastUpdate.MarkStale()
	if err = e.state.PutReserve(reserve); err != nil {
		return err
	}
	if err = e.state.PutObligation(obligation); err != nil {
		return err
	}
	e.log.Info("collateral pledged", "reserve", reserveID, "owner", owner.Hex(), "receipts", receipts)
	return nil
}

// WithdrawCollateral releases pledged receipts back to the owner, subject to
// the post-withdrawal borrow limit when loans are outstanding. Returns the
// receipt amount released.
func (e *Engine) WithdrawCollateral(owner common.Address, reserveID string, amount Amount) (released uint64, err error) {
	start := time.Now()
	defer func() { e.finish("withdraw_collateral", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return 0, err
	}
	set, err := e.collectReserves(obligation, reserveID)
	if err != nil {
		return 0, err
	}
	if err = obligation.Refresh(e.slot, set.byID); err != nil {
		return 0, err
	}
	target, err := set.get(reserveID)
	if err != nil {
		return 0, err
	}
	released, err = obligation.WithdrawCollateral(target, amount)
	if err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(e.collateralVault, owner, target.Token.ReceiptMint, released); err != nil {
		return 0, err
	}
	obligation.LastUpdate.MarkStale()
	if err = e.persistReserves(set); err != nil {
		return 0, err
	}
	if err = e.state.PutObligation(obligation); err != nil {
		return 0, err
	}
	e.log.Info("collateral withdrawn", "reserve", reserveID, "owner", owner.Hex(), "receipts", released)
	return released, nil
}

// Borrow draws liquidity against the owner's obligation. All resolves to the
// remaining borrow margin, further bounded by the reserve's available
// liquidity. Returns the raw amount borrowed.
func (e *Engine) Borrow(owner common.Address, reserveID string, amount Amount) (borrowed uint64, err error) {
	start := time.Now()
	defer func() { e.finish("borrow", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, err
	}
	if !amount.valid() {
		return 0, ErrInvalidAmount
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return 0, err
	}
	set, err := e.collectReserves(obligation, reserveID)
	if err != nil {
		return 0, err
	}
	if err = obligation.Refresh(e.slot, set.byID); err != nil {
		return 0, err
	}
	target, err := set.get(reserveID)
	if err != nil {
		return 0, err
	}
	borrowed = amount.Value()
	if amount.IsAll() {
		if borrowed, err = e.borrowHeadroom(obligation, target); err != nil {
			return 0, err
		}
	}
	if borrowed == 0 {
		return 0, ErrBorrowLimitExceeded
	}
	if err = obligation.Borrow(target, borrowed); err != nil {
		return 0, err
	}
	if err = target.Liquidity.BorrowOut(borrowed); err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(e.vault, owner, target.Token.Mint, borrowed); err != nil {
		return 0, err
	}
	obligation.LastUpdate.MarkStale()
	if err = e.persistReserves(set); err != nil {
		return 0, err
	}
	if err = e.state.PutObligation(obligation); err != nil {
		return 0, err
	}
	e.log.Info("loan drawn", "reserve", reserveID, "owner", owner.Hex(), "amount", borrowed)
	return borrowed, nil
}

// borrowHeadroom converts the refreshed obligation's remaining borrow margin
// into raw tokens of the target reserve, capped by available liquidity.
func (e *Engine) borrowHeadroom(obligation *Obligation, reserve *MarketReserve) (uint64, error) {
	margin, err := obligation.CollateralsBorrowValue.Sub(obligation.LoansValue)
	if err != nil {
		return 0, ErrBorrowLimitExceeded
	}
	scaled, err := margin.MulInt(pow10(reserve.Token.Decimals))
	if err != nil {
		return 0, err
	}
	tokens, err := scaled.Div(reserve.Price)
	if err != nil {
		return 0, err
	}
	headroom, err := tokens.Floor()
	if err != nil {
		return 0, err
	}
	if headroom > reserve.Liquidity.Available {
		headroom = reserve.Liquidity.Available
	}
	return headroom, nil
}

// Repay settles the owner's loan on the reserve. All settles the full
// outstanding debt; exact amounts beyond it are rejected.
func (e *Engine) Repay(owner common.Address, reserveID string, amount Amount) (settle RepaySettle, err error) {
	start := time.Now()
	defer func() { e.finish("repay", start, err) }()
	if err = e.requireDeps(); err != nil {
		return RepaySettle{}, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return RepaySettle{}, err
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return RepaySettle{}, err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return RepaySettle{}, err
	}
	index, err := obligation.findLoan(reserveID)
	if err != nil {
		return RepaySettle{}, err
	}
	if err = obligation.Loans[index].AccrueInterest(reserve); err != nil {
		return RepaySettle{}, err
	}
	settle, err = obligation.Repay(reserveID, amount)
	if err != nil {
		return RepaySettle{}, err
	}
	if err = reserve.Liquidity.Repay(settle); err != nil {
		return RepaySettle{}, err
	}
	if err = e.tokens.Transfer(owner, e.vault, reserve.Token.Mint, settle.Amount); err != nil {
		return RepaySettle{}, err
	}
	obligation.LastUpdate.MarkStale()
	if err = e.state.PutReserve(reserve); err != nil {
		return RepaySettle{}, err
	}
	if err = e.state.PutObligation(obligation); err != nil {
		return RepaySettle{}, err
	}
	e.log.Info("loan repaid", "reserve", reserveID, "owner", owner.Hex(), "amount", settle.Amount)
	return settle, nil
}

// Liquidate lets the liquidator repay part of an unhealthy obligation's loan
// in exchange for pledged collateral plus the liquidation bonus. Returns the
// seized receipts and the repayment settled.
func (e *Engine) Liquidate(liquidator, owner common.Address, loanReserveID, collateralReserveID string, maxRepay Amount) (seized uint64, settle RepaySettle, err error) {
	start := time.Now()
	defer func() { e.finish("liquidate", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, RepaySettle{}, err
	}
	obligation, err := e.loadObligation(owner)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	set, err := e.collectReserves(obligation, loanReserveID, collateralReserveID)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if err = obligation.Refresh(e.slot, set.byID); err != nil {
		return 0, RepaySettle{}, err
	}
	loanReserve, err := set.get(loanReserveID)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	collateralReserve, err := set.get(collateralReserveID)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seized, settle, err = obligation.Liquidate(loanReserve, collateralReserve, maxRepay)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if err = loanReserve.Liquidity.Repay(settle); err != nil {
		return 0, RepaySettle{}, err
	}
	if err = e.tokens.Transfer(liquidator, e.vault, loanReserve.Token.Mint, settle.Amount); err != nil {
		return 0, RepaySettle{}, err
	}
	if err = e.tokens.Transfer(e.collateralVault, liquidator, collateralReserve.Token.ReceiptMint, seized); err != nil {
		return 0, RepaySettle{}, err
	}
	obligation.LastUpdate.MarkStale()
	if err = e.persistReserves(set); err != nil {
		return 0, RepaySettle{}, err
	}
	if err = e.state.PutObligation(obligation); err != nil {
		return 0, RepaySettle{}, err
	}
	e.log.Info("position liquidated",
		"owner", owner.Hex(), "liquidator", liquidator.Hex(),
		"loan_reserve", loanReserveID, "collateral_reserve", collateralReserveID,
		"repaid", settle.Amount, "seized", seized)
	return seized, settle, nil
}

// CreditBorrow draws on the owner's unique credit line. All resolves to the
// remaining headroom bounded by available liquidity.
func (e *Engine) CreditBorrow(owner common.Address, amount Amount) (borrowed uint64, err error) {
	start := time.Now()
	defer func() { e.finish("credit_borrow", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, err
	}
	credit, reserve, err := e.loadCredit(owner)
	if err != nil {
		return 0, err
	}
	borrowed, err = credit.Borrow(reserve, amount)
	if err != nil {
		return 0, err
	}
	if err = reserve.Liquidity.BorrowOut(borrowed); err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(e.vault, owner, reserve.Token.Mint, borrowed); err != nil {
		return 0, err
	}
	if err = e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	if err = e.state.PutCredit(credit); err != nil {
		return 0, err
	}
	e.log.Info("credit drawn", "reserve", reserve.ID, "owner", owner.Hex(), "amount", borrowed)
	return borrowed, nil
}

// CreditRepay settles debt on the owner's unique credit line.
func (e *Engine) CreditRepay(owner common.Address, amount Amount) (settle RepaySettle, err error) {
	start := time.Now()
	defer func() { e.finish("credit_repay", start, err) }()
	if err = e.requireDeps(); err != nil {
		return RepaySettle{}, err
	}
	credit, reserve, err := e.loadCredit(owner)
	if err != nil {
		return RepaySettle{}, err
	}
	settle, err = credit.Repay(amount)
	if err != nil {
		return RepaySettle{}, err
	}
	if err = reserve.Liquidity.Repay(settle); err != nil {
		return RepaySettle{}, err
	}
	if err = e.tokens.Transfer(owner, e.vault, reserve.Token.Mint, settle.Amount); err != nil {
		return RepaySettle{}, err
	}
	if err = e.state.PutReserve(reserve); err != nil {
		return RepaySettle{}, err
	}
	if err = e.state.PutCredit(credit); err != nil {
		return RepaySettle{}, err
	}
	e.log.Info("credit repaid", "reserve", reserve.ID, "owner", owner.Hex(), "amount", settle.Amount)
	return settle, nil
}

// loadCredit fetches working copies of the credit line and its reserve, both
// accrued to the current slot.
func (e *Engine) loadCredit(owner common.Address) (*UniqueCredit, *MarketReserve, error) {
	stored, err := e.state.GetCredit(owner)
	if err != nil {
		return nil, nil, err
	}
	if stored == nil {
		return nil, nil, ErrCreditNotFound
	}
	credit := stored.Clone()
	reserve, err := e.loadReserve(credit.Reserve)
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrueReserve(reserve); err != nil {
		return nil, nil, err
	}
	if err := credit.AccrueInterest(reserve); err != nil {
		return nil, nil, err
	}
	return credit, reserve, nil
}

// FlashLoan lends amount to the borrower for the duration of the callback
// and collects it back plus the configured fee. Returns the fee charged.
func (e *Engine) FlashLoan(borrower common.Address, reserveID string, amount uint64, callback func() error) (fee uint64, err error) {
	start := time.Now()
	defer func() { e.finish("flash_loan", start, err) }()
	if err = e.requireDeps(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if callback == nil {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return 0, err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return 0, err
	}
	totalRepay, fee, err := reserve.Liquidity.FlashLoanBorrow(amount)
	if err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(e.vault, borrower, reserve.Token.Mint, amount); err != nil {
		return 0, err
	}
	if err = callback(); err != nil {
		return 0, err
	}
	if err = e.tokens.Transfer(borrower, e.vault, reserve.Token.Mint, totalRepay); err != nil {
		return 0, err
	}
	if err = reserve.Liquidity.FlashLoanRepay(amount, fee); err != nil {
		return 0, err
	}
	if err = e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	e.log.Info("flash loan settled", "reserve", reserveID, "borrower", borrower.Hex(), "amount", amount, "fee", fee)
	return fee, nil
}

// ReduceInsurance pays accrued protocol fees out of the reserve to the
// recipient, consuming flash loan fees before the interest-tax balance.
func (e *Engine) ReduceInsurance(recipient common.Address, reserveID string, amount uint64) (err error) {
	start := time.Now()
	defer func() { e.finish("reduce_insurance", start, err) }()
	if err = e.requireDeps(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return err
	}
	if err = reserve.Liquidity.ReduceInsurance(amount); err != nil {
		return err
	}
	if err = e.tokens.Transfer(e.vault, recipient, reserve.Token.Mint, amount); err != nil {
		return err
	}
	if err = e.state.PutReserve(reserve); err != nil {
		return err
	}
	e.log.Info("insurance reduced", "reserve", reserveID, "recipient", recipient.Hex(), "amount", amount)
	return nil
}

// AccrueReserve advances a single reserve to the current slot and persists
// it. Background tickers use this to keep indexes fresh between user
// actions.
func (e *Engine) AccrueReserve(reserveID string) (err error) {
	start := time.Now()
	defer func() { e.finish("accrue_reserve", start, err) }()
	if e.state == nil {
		return errNilState
	}
	if e.prices == nil {
		return errNilPrices
	}
	reserve, err := e.loadReserve(reserveID)
	if err != nil {
		return err
	}
	if err = e.accrueReserve(reserve); err != nil {
		return err
	}
	return e.state.PutReserve(reserve)
}
