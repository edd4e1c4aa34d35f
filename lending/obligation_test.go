package lending

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendledger/decimal"
)

var testOwner = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// twoMarketFixture builds a loan reserve ("usd") and a collateral reserve
// ("gold"), both priced at one with 1000 units deposited, plus an obligation
// pledging 100 gold receipts. At 75% LTV the borrow limit is 75.
func twoMarketFixture(t *testing.T) (*Obligation, map[string]*MarketReserve) {
	t.Helper()
	usd := newTestReserve(t, 0)
	gold := newTestReserve(t, 0)
	gold.ID = "gold"
	gold.Token = TokenInfo{Mint: "gold", ReceiptMint: "gold-receipt", Decimals: 0}
	for _, reserve := range []*MarketReserve{usd, gold} {
		if _, err := reserve.Deposit(1000); err != nil {
			t.Fatalf("seed %s: %v", reserve.ID, err)
		}
	}
	reserves := map[string]*MarketReserve{usd.ID: usd, gold.ID: gold}

	obligation := NewObligation(testOwner, 0)
	if err := obligation.DepositCollateral(gold, 100); err != nil {
		t.Fatalf("pledge: %v", err)
	}
	if err := obligation.Refresh(0, reserves); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return obligation, reserves
}

func TestRefreshComputesValues(t *testing.T) {
	obligation, _ := twoMarketFixture(t)
	if !obligation.CollateralsBorrowValue.Equal(decimal.New(75)) {
		t.Fatalf("borrow value = %s, want 75", obligation.CollateralsBorrowValue)
	}
	if !obligation.CollateralsLiquidationValue.Equal(decimal.New(80)) {
		t.Fatalf("liquidation value = %s, want 80", obligation.CollateralsLiquidationValue)
	}
	if !obligation.LoansValue.IsZero() {
		t.Fatalf("loans value = %s, want 0", obligation.LoansValue)
	}
	if !obligation.IsHealthy() {
		t.Fatalf("empty loan book should be healthy")
	}
}

func TestBorrowWithinLimit(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 74); err != nil {
		t.Fatalf("borrow 74: %v", err)
	}
	if len(obligation.Loans) != 1 {
		t.Fatalf("loan entries = %d, want 1", len(obligation.Loans))
	}
	if !obligation.LoansValue.Equal(decimal.New(74)) {
		t.Fatalf("loans value = %s, want 74", obligation.LoansValue)
	}
	// a second draw merges into the same entry, up to the exact limit
	if err := obligation.Borrow(reserves["usd"], 1); err != nil {
		t.Fatalf("borrow to limit: %v", err)
	}
	if len(obligation.Loans) != 1 {
		t.Fatalf("loan entries = %d, want 1 after merge", len(obligation.Loans))
	}
	if !obligation.Loans[0].BorrowedWads.Equal(decimal.New(75)) {
		t.Fatalf("loan = %s, want 75", obligation.Loans[0].BorrowedWads)
	}
}

func TestBorrowBeyondLimit(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 76); !errors.Is(err, ErrBorrowLimitExceeded) {
		t.Fatalf("borrow 76: got %v", err)
	}
}

func TestBorrowZeroAmount(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("borrow 0: got %v", err)
	}
}

func TestRepayExactAndAll(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 50); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	settle, err := obligation.Repay("usd", Exact(20))
	if err != nil {
		t.Fatalf("repay 20: %v", err)
	}
	if settle.Amount != 20 {
		t.Fatalf("settled = %d, want 20", settle.Amount)
	}
	if !obligation.Loans[0].BorrowedWads.Equal(decimal.New(30)) {
		t.Fatalf("remaining = %s, want 30", obligation.Loans[0].BorrowedWads)
	}

	if _, err := obligation.Repay("usd", Exact(31)); !errors.Is(err, ErrRepayTooMuch) {
		t.Fatalf("overpay: got %v", err)
	}

	settle, err = obligation.Repay("usd", All())
	if err != nil {
		t.Fatalf("repay all: %v", err)
	}
	if settle.Amount != 30 {
		t.Fatalf("settled = %d, want 30", settle.Amount)
	}
	if len(obligation.Loans) != 0 {
		t.Fatalf("loan entry not removed")
	}
	if _, err := obligation.Repay("usd", All()); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("repay empty: got %v", err)
	}
}

func TestWithdrawCollateralGated(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 75); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// the borrow limit is fully used; nothing can leave
	if _, err := obligation.WithdrawCollateral(reserves["gold"], Exact(1)); !errors.Is(err, ErrWithdrawTooMuch) {
		t.Fatalf("withdraw at limit: got %v", err)
	}
}

func TestWithdrawCollateralPartial(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 30); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// loans 30 need 40 receipts of borrow power at 75%; withdrawing 60
	// leaves exactly enough, 61 leaves too little
	if _, err := obligation.WithdrawCollateral(reserves["gold"], Exact(61)); !errors.Is(err, ErrWithdrawTooMuch) {
		t.Fatalf("withdraw 61: got %v", err)
	}
	released, err := obligation.WithdrawCollateral(reserves["gold"], Exact(40))
	if err != nil {
		t.Fatalf("withdraw 40: %v", err)
	}
	if released != 40 {
		t.Fatalf("released = %d, want 40", released)
	}
	if obligation.Collaterals[0].Amount != 60 {
		t.Fatalf("pledged = %d, want 60", obligation.Collaterals[0].Amount)
	}
}

func TestWithdrawCollateralAllWithNoLoans(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	released, err := obligation.WithdrawCollateral(reserves["gold"], All())
	if err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if released != 100 {
		t.Fatalf("released = %d, want 100", released)
	}
	if !obligation.IsEmpty() {
		t.Fatalf("obligation should be empty")
	}
}

func TestDepositCollateralMergesEntries(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.DepositCollateral(reserves["gold"], 50); err != nil {
		t.Fatalf("second pledge: %v", err)
	}
	if len(obligation.Collaterals) != 1 {
		t.Fatalf("collateral entries = %d, want 1", len(obligation.Collaterals))
	}
	if obligation.Collaterals[0].Amount != 150 {
		t.Fatalf("pledged = %d, want 150", obligation.Collaterals[0].Amount)
	}
}

func TestObligationReserveBound(t *testing.T) {
	obligation := NewObligation(testOwner, 0)
	for i := 0; i < MaxObligationReserves; i++ {
		reserve := newTestReserve(t, 0)
		reserve.ID = fmt.Sprintf("reserve-%d", i)
		if err := obligation.DepositCollateral(reserve, 10); err != nil {
			t.Fatalf("pledge %d: %v", i, err)
		}
	}
	extra := newTestReserve(t, 0)
	extra.ID = "one-too-many"
	if err := obligation.DepositCollateral(extra, 10); !errors.Is(err, ErrTooManyReserves) {
		t.Fatalf("expected reserve bound, got %v", err)
	}
}

func TestRefreshRejectsStaleReserve(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	// the collateral reserve lags behind the refresh slot
	if err := obligation.Refresh(10, reserves); !errors.Is(err, ErrReserveStale) {
		t.Fatalf("expected stale reserve, got %v", err)
	}
}

func TestRefreshRejectsMissingReserve(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	delete(reserves, "gold")
	if err := obligation.Refresh(0, reserves); !errors.Is(err, ErrReserveNotFound) {
		t.Fatalf("expected missing reserve, got %v", err)
	}
}

// unhealthyFixture borrows to the limit and then drops the collateral price
// so the position breaches its liquidation threshold.
func unhealthyFixture(t *testing.T) (*Obligation, map[string]*MarketReserve) {
	t.Helper()
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 75); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// gold drops 10%: liquidation value 72 < loans 75
	reserves["gold"].Price = parseDec(t, "0.9")
	if err := obligation.Refresh(0, reserves); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if obligation.IsHealthy() {
		t.Fatalf("fixture should be unhealthy")
	}
	return obligation, reserves
}

func TestLiquidateHealthyPosition(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 50); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, _, err := obligation.Liquidate(reserves["usd"], reserves["gold"], All()); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected not liquidatable, got %v", err)
	}
}

func TestLiquidateSeizesCollateral(t *testing.T) {
	obligation, reserves := unhealthyFixture(t)

	seized, settle, err := obligation.Liquidate(reserves["usd"], reserves["gold"], All())
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// close factor 50% of 75 = 37.5, charged as 38 raw
	if settle.Amount != 38 {
		t.Fatalf("repaid = %d, want 38", settle.Amount)
	}
	if !settle.AmountWads.Equal(parseDec(t, "37.5")) {
		t.Fatalf("repaid wads = %s, want 37.5", settle.AmountWads)
	}
	// 38 of value seizes 38/0.9*1.05 = 44.33 of gold, 44 receipts at par
	if seized != 44 {
		t.Fatalf("seized = %d, want 44", seized)
	}
	if !obligation.Loans[0].BorrowedWads.Equal(parseDec(t, "37.5")) {
		t.Fatalf("remaining loan = %s, want 37.5", obligation.Loans[0].BorrowedWads)
	}
	if obligation.Collaterals[0].Amount != 56 {
		t.Fatalf("remaining collateral = %d, want 56", obligation.Collaterals[0].Amount)
	}
}

func TestLiquidationEligibilityDecays(t *testing.T) {
	obligation, reserves := unhealthyFixture(t)
	before := obligation.LoansValue
	if _, _, err := obligation.Liquidate(reserves["usd"], reserves["gold"], All()); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if obligation.LoansValue.Cmp(before) >= 0 {
		t.Fatalf("loan value did not decay: %s -> %s", before, obligation.LoansValue)
	}
}

func TestLiquidateCappedByMaxRepay(t *testing.T) {
	obligation, reserves := unhealthyFixture(t)
	_, settle, err := obligation.Liquidate(reserves["usd"], reserves["gold"], Exact(10))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if settle.Amount != 10 {
		t.Fatalf("repaid = %d, want 10", settle.Amount)
	}
}

func TestLiquidateInsufficientCollateral(t *testing.T) {
	obligation, reserves := unhealthyFixture(t)
	// crash the collateral so the seizure exceeds the pledge
	reserves["gold"].Price = parseDec(t, "0.1")
	if err := obligation.Refresh(0, reserves); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, _, err := obligation.Liquidate(reserves["usd"], reserves["gold"], All()); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
}

func TestLoanInterestAccrual(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 50); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	usd := reserves["usd"]
	if err := usd.Liquidity.BorrowOut(50); err != nil {
		t.Fatalf("borrow out: %v", err)
	}
	if err := usd.Accrue(86400, decimal.One()); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := reserves["gold"].Accrue(86400, decimal.One()); err != nil {
		t.Fatalf("accrue gold: %v", err)
	}
	if err := obligation.Refresh(86400, reserves); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if obligation.Loans[0].BorrowedWads.Cmp(decimal.New(50)) <= 0 {
		t.Fatalf("loan did not accrue interest: %s", obligation.Loans[0].BorrowedWads)
	}
	if !obligation.Loans[0].CumulativeBorrowRate.Equal(usd.Liquidity.CumulativeBorrowRate) {
		t.Fatalf("loan index snapshot not advanced")
	}
}

func TestLoanIndexRegressionRejected(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 50); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	obligation.Loans[0].CumulativeBorrowRate = decimal.New(2)
	if err := obligation.Loans[0].AccrueInterest(reserves["usd"]); !errors.Is(err, ErrNegativeInterest) {
		t.Fatalf("expected negative interest, got %v", err)
	}
}

func TestObligationCloneIsDeep(t *testing.T) {
	obligation, reserves := twoMarketFixture(t)
	if err := obligation.Borrow(reserves["usd"], 10); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clone := obligation.Clone()
	clone.Collaterals[0].Amount = 1
	clone.Loans[0].BorrowedWads = decimal.New(999)
	if obligation.Collaterals[0].Amount != 100 {
		t.Fatalf("clone mutation leaked into collaterals")
	}
	if !obligation.Loans[0].BorrowedWads.Equal(decimal.New(10)) {
		t.Fatalf("clone mutation leaked into loans")
	}
}
