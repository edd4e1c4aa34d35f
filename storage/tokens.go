package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lendledger/lending"
)

// ErrInsufficientFunds is returned when a transfer or burn exceeds the
// holder's balance.
var ErrInsufficientFunds = errors.New("storage: insufficient token balance")

const balancePrefix = "balance/"

// TokenBook is a book-entry token ledger over the key-value Database. It
// satisfies lending.TokenLedger for deployments where the engine custodies
// balances itself rather than calling out to an external token service.
type TokenBook struct {
	db Database
}

func NewTokenBook(db Database) *TokenBook {
	return &TokenBook{db: db}
}

var _ lending.TokenLedger = (*TokenBook)(nil)

func balanceKey(mint string, holder common.Address) []byte {
	key := append([]byte(balancePrefix), mint...)
	key = append(key, '/')
	return append(key, holder.Bytes()...)
}

// Balance returns the holder's balance for the mint.
func (b *TokenBook) Balance(holder common.Address, mint string) (uint64, error) {
	raw, err := b.db.Get(balanceKey(mint, holder))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("storage: malformed balance for mint %q", mint)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (b *TokenBook) setBalance(holder common.Address, mint string, amount uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, amount)
	return b.db.Put(balanceKey(mint, holder), raw)
}

// Transfer moves amount of mint from one holder to another.
func (b *TokenBook) Transfer(from, to common.Address, mint string, amount uint64) error {
	if err := b.Burn(from, mint, amount); err != nil {
		return err
	}
	return b.Mint(to, mint, amount)
}

// Mint credits the holder.
func (b *TokenBook) Mint(to common.Address, mint string, amount uint64) error {
	balance, err := b.Balance(to, mint)
	if err != nil {
		return err
	}
	next := balance + amount
	if next < balance {
		return fmt.Errorf("storage: balance overflow for mint %q", mint)
	}
	return b.setBalance(to, mint, next)
}

// Burn debits the holder.
func (b *TokenBook) Burn(from common.Address, mint string, amount uint64) error {
	balance, err := b.Balance(from, mint)
	if err != nil {
		return err
	}
	if amount > balance {
		return ErrInsufficientFunds
	}
	return b.setBalance(from, mint, balance-amount)
}
