package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendledger/config"
	"lendledger/decimal"
	"lendledger/lending"
	"lendledger/observability/logging"
	"lendledger/storage"
)

const defaultVault = "0x0000000000000000000000000000000000001001"
const defaultCollateralVault = "0x0000000000000000000000000000000000001002"

// staticFeed serves the prices configured per market until a real oracle is
// wired in.
type staticFeed map[string]decimal.Decimal

func (f staticFeed) Price(reserveID string) (decimal.Decimal, bool) {
	price, ok := f[reserveID]
	return price, ok
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Service, cfg.Env, cfg.LogLevel)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewStore(db)
	tokens := storage.NewTokenBook(db)

	feed := make(staticFeed, len(cfg.Markets))
	for i := range cfg.Markets {
		price, err := cfg.Markets[i].StaticPrice()
		if err != nil {
			logger.Error("invalid market price", "market", cfg.Markets[i].ID, "error", err)
			os.Exit(1)
		}
		feed[cfg.Markets[i].ID] = price
	}

	engine := lending.NewEngine(parseAddress(cfg.VaultAddress, defaultVault), parseAddress(cfg.CollateralVaultAddress, defaultCollateralVault))
	engine.SetState(store)
	engine.SetTokenLedger(tokens)
	engine.SetPriceFeed(feed)
	engine.SetLogger(logger)
	engine.SetSlot(uint64(time.Now().Unix()))

	if err := provisionMarkets(engine, store, cfg); err != nil {
		logger.Error("failed to provision markets", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddress,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("metrics listener started", "address", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	// One logical slot per second: advance the clock and keep every
	// configured reserve's index fresh.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	logger.Info("lending ledger started", "markets", len(cfg.Markets), "data_dir", cfg.DataDir)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics shutdown failed", "error", err)
			}
			return
		case now := <-ticker.C:
			engine.SetSlot(uint64(now.Unix()))
			for i := range cfg.Markets {
				if err := engine.AccrueReserve(cfg.Markets[i].ID); err != nil {
					logger.Error("reserve accrual failed", "market", cfg.Markets[i].ID, "error", err)
				}
			}
		}
	}
}

func provisionMarkets(engine *lending.Engine, store *storage.Store, cfg *config.Config) error {
	for i := range cfg.Markets {
		market := &cfg.Markets[i]
		existing, err := store.GetReserve(market.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		collateral, err := market.CollateralConfig()
		if err != nil {
			return err
		}
		liquidity, err := market.LiquidityConfig()
		if err != nil {
			return err
		}
		model, err := market.RateModel()
		if err != nil {
			return err
		}
		if _, err := engine.ProvisionReserve(market.ID, market.TokenInfo(), collateral, liquidity, model); err != nil {
			return err
		}
	}
	return nil
}

func parseAddress(value, fallback string) common.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	return common.HexToAddress(value)
}
