package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"lendledger/decimal"
	"lendledger/lending"
)

const (
	reservePrefix    = "reserve/"
	obligationPrefix = "obligation/"
	creditPrefix     = "credit/"
)

// Store persists the lending ledger in a key-value Database using RLP
// encoding. It satisfies lending.State: lookups return (nil, nil) on a miss.
type Store struct {
	db Database
}

func NewStore(db Database) *Store {
	return &Store{db: db}
}

func reserveKey(id string) []byte {
	return []byte(reservePrefix + id)
}

func obligationKey(owner common.Address) []byte {
	return append([]byte(obligationPrefix), owner.Bytes()...)
}

func creditKey(owner common.Address) []byte {
	return append([]byte(creditPrefix), owner.Bytes()...)
}

// reserveRecord is the wire form of a market reserve. Wad quantities travel
// as raw 256-bit integers.
type reserveRecord struct {
	ID                    string
	Slot                  uint64
	Stale                 bool
	Price                 *uint256.Int
	Mint                  string
	ReceiptMint           string
	Decimals              uint8
	TotalReceipts         uint64
	BorrowValueRatio      uint8
	LiquidationValueRatio uint8
	LiquidationBonusRatio uint8
	Enabled               bool
	Available             uint64
	FlashLoanFees         uint64
	CumulativeBorrowRate  *uint256.Int
	BorrowedWads          *uint256.Int
	InsuranceWads         *uint256.Int
	CloseFactor           uint8
	BorrowTaxRate         uint8
	FlashLoanFeeRate      *uint256.Int
	MaxDeposit            uint64
	MaxTotalDeposit       uint64
	OptimalUtilization    *uint256.Int
	MinRate               *uint256.Int
	OptimalRate           *uint256.Int
	MaxRate               *uint256.Int
}

type collateralRecord struct {
	Reserve               string
	Amount                uint64
	BorrowValueRatio      uint8
	LiquidationValueRatio uint8
}

type loanRecord struct {
	Reserve              string
	CumulativeBorrowRate *uint256.Int
	BorrowedWads         *uint256.Int
	CloseFactor          uint8
}

type obligationRecord struct {
	Owner            common.Address
	Slot             uint64
	Stale            bool
	Collaterals      []collateralRecord
	Loans            []loanRecord
	BorrowValue      *uint256.Int
	LiquidationValue *uint256.Int
	LoansValue       *uint256.Int
}

type creditRecord struct {
	Owner                common.Address
	Reserve              string
	BorrowLimit          uint64
	CumulativeBorrowRate *uint256.Int
	BorrowedWads         *uint256.Int
}

// GetReserve loads a market reserve by id.
func (s *Store) GetReserve(id string) (*lending.MarketReserve, error) {
	raw, err := s.db.Get(reserveKey(id))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record reserveRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("storage: decode reserve %q: %w", id, err)
	}
	reserve := &lending.MarketReserve{
		ID:         record.ID,
		LastUpdate: lending.LastUpdate{Slot: record.Slot, Stale: record.Stale},
		Price:      decimal.FromScaled(record.Price),
		Token: lending.TokenInfo{
			Mint:        record.Mint,
			ReceiptMint: record.ReceiptMint,
			Decimals:    record.Decimals,
		},
		Collateral: lending.ReserveCollateral{TotalReceipts: record.TotalReceipts},
		CollateralConfig: lending.CollateralConfig{
			BorrowValueRatio:      record.BorrowValueRatio,
			LiquidationValueRatio: record.LiquidationValueRatio,
			LiquidationBonusRatio: record.LiquidationBonusRatio,
		},
		Liquidity: lending.ReserveLiquidity{
			Enabled:              record.Enabled,
			Available:            record.Available,
			FlashLoanFees:        record.FlashLoanFees,
			CumulativeBorrowRate: decimal.FromScaled(record.CumulativeBorrowRate),
			BorrowedWads:         decimal.FromScaled(record.BorrowedWads),
			InsuranceWads:        decimal.FromScaled(record.InsuranceWads),
			Config: lending.LiquidityConfig{
				CloseFactor:      record.CloseFactor,
				BorrowTaxRate:    record.BorrowTaxRate,
				FlashLoanFeeRate: decimal.FromScaled(record.FlashLoanFeeRate),
				MaxDeposit:       record.MaxDeposit,
				MaxTotalDeposit:  record.MaxTotalDeposit,
			},
		},
		RateModel: lending.RateModel{
			OptimalUtilization: decimal.FromScaled(record.OptimalUtilization),
			MinRate:            decimal.FromScaled(record.MinRate),
			OptimalRate:        decimal.FromScaled(record.OptimalRate),
			MaxRate:            decimal.FromScaled(record.MaxRate),
		},
	}
	return reserve, nil
}

// PutReserve stores a market reserve.
func (s *Store) PutReserve(reserve *lending.MarketReserve) error {
	record := reserveRecord{
		ID:                    reserve.ID,
		Slot:                  reserve.LastUpdate.Slot,
		Stale:                 reserve.LastUpdate.Stale,
		Price:                 reserve.Price.Raw(),
		Mint:                  reserve.Token.Mint,
		ReceiptMint:           reserve.Token.ReceiptMint,
		Decimals:              reserve.Token.Decimals,
		TotalReceipts:         reserve.Collateral.TotalReceipts,
		BorrowValueRatio:      reserve.CollateralConfig.BorrowValueRatio,
		LiquidationValueRatio: reserve.CollateralConfig.LiquidationValueRatio,
		LiquidationBonusRatio: reserve.CollateralConfig.LiquidationBonusRatio,
		Enabled:               reserve.Liquidity.Enabled,
		Available:             reserve.Liquidity.Available,
		FlashLoanFees:         reserve.Liquidity.FlashLoanFees,
		CumulativeBorrowRate:  reserve.Liquidity.CumulativeBorrowRate.Raw(),
		BorrowedWads:          reserve.Liquidity.BorrowedWads.Raw(),
		InsuranceWads:         reserve.Liquidity.InsuranceWads.Raw(),
		CloseFactor:           reserve.Liquidity.Config.CloseFactor,
		BorrowTaxRate:         reserve.Liquidity.Config.BorrowTaxRate,
		FlashLoanFeeRate:      reserve.Liquidity.Config.FlashLoanFeeRate.Raw(),
		MaxDeposit:            reserve.Liquidity.Config.MaxDeposit,
		MaxTotalDeposit:       reserve.Liquidity.Config.MaxTotalDeposit,
		OptimalUtilization:    reserve.RateModel.OptimalUtilization.Raw(),
		MinRate:               reserve.RateModel.MinRate.Raw(),
		OptimalRate:           reserve.RateModel.OptimalRate.Raw(),
		MaxRate:               reserve.RateModel.MaxRate.Raw(),
	}
	raw, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("storage: encode reserve %q: %w", reserve.ID, err)
	}
	return s.db.Put(reserveKey(reserve.ID), raw)
}

// GetObligation loads the owner's obligation.
func (s *Store) GetObligation(owner common.Address) (*lending.Obligation, error) {
	raw, err := s.db.Get(obligationKey(owner))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record obligationRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("storage: decode obligation %s: %w", owner.Hex(), err)
	}
	obligation := &lending.Obligation{
		Owner:                       record.Owner,
		LastUpdate:                  lending.LastUpdate{Slot: record.Slot, Stale: record.Stale},
		CollateralsBorrowValue:      decimal.FromScaled(record.BorrowValue),
		CollateralsLiquidationValue: decimal.FromScaled(record.LiquidationValue),
		LoansValue:                  decimal.FromScaled(record.LoansValue),
	}
	for _, c := range record.Collaterals {
		obligation.Collaterals = append(obligation.Collaterals, lending.Collateral{
			Reserve:               c.Reserve,
			Amount:                c.Amount,
			BorrowValueRatio:      c.BorrowValueRatio,
			LiquidationValueRatio: c.LiquidationValueRatio,
		})
	}
	for _, l := range record.Loans {
		obligation.Loans = append(obligation.Loans, lending.Loan{
			Reserve:              l.Reserve,
			CumulativeBorrowRate: decimal.FromScaled(l.CumulativeBorrowRate),
			BorrowedWads:         decimal.FromScaled(l.BorrowedWads),
			CloseFactor:          l.CloseFactor,
		})
	}
	return obligation, nil
}

// PutObligation stores the obligation keyed by owner.
func (s *Store) PutObligation(obligation *lending.Obligation) error {
	record := obligationRecord{
		Owner:            obligation.Owner,
		Slot:             obligation.LastUpdate.Slot,
		Stale:            obligation.LastUpdate.Stale,
		BorrowValue:      obligation.CollateralsBorrowValue.Raw(),
		LiquidationValue: obligation.CollateralsLiquidationValue.Raw(),
		LoansValue:       obligation.LoansValue.Raw(),
	}
	for _, c := range obligation.Collaterals {
		record.Collaterals = append(record.Collaterals, collateralRecord{
			Reserve:               c.Reserve,
			Amount:                c.Amount,
			BorrowValueRatio:      c.BorrowValueRatio,
			LiquidationValueRatio: c.LiquidationValueRatio,
		})
	}
	for _, l := range obligation.Loans {
		record.Loans = append(record.Loans, loanRecord{
			Reserve:              l.Reserve,
			CumulativeBorrowRate: l.CumulativeBorrowRate.Raw(),
			BorrowedWads:         l.BorrowedWads.Raw(),
			CloseFactor:          l.CloseFactor,
		})
	}
	raw, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("storage: encode obligation %s: %w", obligation.Owner.Hex(), err)
	}
	return s.db.Put(obligationKey(obligation.Owner), raw)
}

// GetCredit loads the owner's unique credit line.
func (s *Store) GetCredit(owner common.Address) (*lending.UniqueCredit, error) {
	raw, err := s.db.Get(creditKey(owner))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record creditRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("storage: decode credit %s: %w", owner.Hex(), err)
	}
	return &lending.UniqueCredit{
		Owner:                record.Owner,
		Reserve:              record.Reserve,
		BorrowLimit:          record.BorrowLimit,
		CumulativeBorrowRate: decimal.FromScaled(record.CumulativeBorrowRate),
		BorrowedWads:         decimal.FromScaled(record.BorrowedWads),
	}, nil
}

// PutCredit stores the credit line keyed by owner.
func (s *Store) PutCredit(credit *lending.UniqueCredit) error {
	record := creditRecord{
		Owner:                credit.Owner,
		Reserve:              credit.Reserve,
		BorrowLimit:          credit.BorrowLimit,
		CumulativeBorrowRate: credit.CumulativeBorrowRate.Raw(),
		BorrowedWads:         credit.BorrowedWads.Raw(),
	}
	raw, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("storage: encode credit %s: %w", credit.Owner.Hex(), err)
	}
	return s.db.Put(creditKey(credit.Owner), raw)
}
