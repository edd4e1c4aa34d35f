package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendledger/decimal"
	"lendledger/lending"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.Parse(s)
	require.NoError(t, err)
	return d
}

func sampleReserve(t *testing.T) *lending.MarketReserve {
	t.Helper()
	reserve, err := lending.NewMarketReserve(
		"usd",
		lending.TokenInfo{Mint: "usd", ReceiptMint: "usd-receipt", Decimals: 6},
		lending.CollateralConfig{BorrowValueRatio: 75, LiquidationValueRatio: 80, LiquidationBonusRatio: 5},
		lending.LiquidityConfig{CloseFactor: 50, BorrowTaxRate: 10, FlashLoanFeeRate: mustDecimal(t, "0.003")},
		lending.RateModel{
			OptimalUtilization: mustDecimal(t, "0.8"),
			MinRate:            mustDecimal(t, "0.02"),
			OptimalRate:        mustDecimal(t, "0.1"),
			MaxRate:            mustDecimal(t, "0.6"),
		},
		42,
	)
	require.NoError(t, err)
	reserve.Price = mustDecimal(t, "1.25")
	reserve.Liquidity.Available = 1000
	reserve.Liquidity.BorrowedWads = mustDecimal(t, "800.5")
	reserve.Liquidity.InsuranceWads = mustDecimal(t, "3.25")
	reserve.Liquidity.FlashLoanFees = 7
	reserve.Collateral.TotalReceipts = 1800
	return reserve
}

func TestStoreReserveRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	reserve := sampleReserve(t)

	require.NoError(t, store.PutReserve(reserve))
	loaded, err := store.GetReserve("usd")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Equal(t, reserve.ID, loaded.ID)
	require.Equal(t, reserve.LastUpdate, loaded.LastUpdate)
	require.Equal(t, reserve.Token, loaded.Token)
	require.Equal(t, reserve.CollateralConfig, loaded.CollateralConfig)
	require.Equal(t, reserve.Collateral, loaded.Collateral)
	require.Equal(t, reserve.Liquidity.Available, loaded.Liquidity.Available)
	require.Equal(t, reserve.Liquidity.FlashLoanFees, loaded.Liquidity.FlashLoanFees)
	require.True(t, reserve.Price.Equal(loaded.Price))
	require.True(t, reserve.Liquidity.BorrowedWads.Equal(loaded.Liquidity.BorrowedWads))
	require.True(t, reserve.Liquidity.InsuranceWads.Equal(loaded.Liquidity.InsuranceWads))
	require.True(t, reserve.Liquidity.CumulativeBorrowRate.Equal(loaded.Liquidity.CumulativeBorrowRate))
	require.True(t, reserve.Liquidity.Config.FlashLoanFeeRate.Equal(loaded.Liquidity.Config.FlashLoanFeeRate))
	require.True(t, reserve.RateModel.OptimalUtilization.Equal(loaded.RateModel.OptimalUtilization))
	require.True(t, reserve.RateModel.MaxRate.Equal(loaded.RateModel.MaxRate))
}

func TestStoreReserveMiss(t *testing.T) {
	store := NewStore(NewMemDB())
	reserve, err := store.GetReserve("missing")
	require.NoError(t, err)
	require.Nil(t, reserve)
}

func TestStoreObligationRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	obligation := lending.NewObligation(owner, 42)
	obligation.Collaterals = []lending.Collateral{{
		Reserve:               "gold",
		Amount:                100,
		BorrowValueRatio:      75,
		LiquidationValueRatio: 80,
	}}
	obligation.Loans = []lending.Loan{{
		Reserve:              "usd",
		CumulativeBorrowRate: mustDecimal(t, "1.05"),
		BorrowedWads:         mustDecimal(t, "74.5"),
		CloseFactor:          50,
	}}
	obligation.CollateralsBorrowValue = mustDecimal(t, "75")
	obligation.CollateralsLiquidationValue = mustDecimal(t, "80")
	obligation.LoansValue = mustDecimal(t, "74.5")
	obligation.LastUpdate.MarkStale()

	require.NoError(t, store.PutObligation(obligation))
	loaded, err := store.GetObligation(owner)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Equal(t, obligation.Owner, loaded.Owner)
	require.Equal(t, obligation.LastUpdate, loaded.LastUpdate)
	require.Equal(t, obligation.Collaterals, loaded.Collaterals)
	require.Len(t, loaded.Loans, 1)
	require.Equal(t, "usd", loaded.Loans[0].Reserve)
	require.True(t, obligation.Loans[0].BorrowedWads.Equal(loaded.Loans[0].BorrowedWads))
	require.True(t, obligation.Loans[0].CumulativeBorrowRate.Equal(loaded.Loans[0].CumulativeBorrowRate))
	require.True(t, obligation.LoansValue.Equal(loaded.LoansValue))
	require.True(t, obligation.CollateralsBorrowValue.Equal(loaded.CollateralsBorrowValue))
}

func TestStoreObligationMiss(t *testing.T) {
	store := NewStore(NewMemDB())
	obligation, err := store.GetObligation(common.Address{})
	require.NoError(t, err)
	require.Nil(t, obligation)
}

func TestStoreCreditRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	owner := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	credit := &lending.UniqueCredit{
		Owner:                owner,
		Reserve:              "usd",
		BorrowLimit:          5000,
		CumulativeBorrowRate: mustDecimal(t, "1.1"),
		BorrowedWads:         mustDecimal(t, "1234.75"),
	}
	require.NoError(t, store.PutCredit(credit))
	loaded, err := store.GetCredit(owner)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Equal(t, credit.Owner, loaded.Owner)
	require.Equal(t, credit.Reserve, loaded.Reserve)
	require.Equal(t, credit.BorrowLimit, loaded.BorrowLimit)
	require.True(t, credit.CumulativeBorrowRate.Equal(loaded.CumulativeBorrowRate))
	require.True(t, credit.BorrowedWads.Equal(loaded.BorrowedWads))
}

func TestStoreAsEngineState(t *testing.T) {
	var _ lending.State = (*Store)(nil)
}
