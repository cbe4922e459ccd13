package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"towerledger/config"
	"towerledger/gateway"
	"towerledger/ledger"
	"towerledger/native/mintgate"
	"towerledger/native/redemption"
	"towerledger/native/staking"
	"towerledger/observability/logging"
	"towerledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TOWERLEDGER_ENV"))
	logger := logging.Setup("towerledgerd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	admin, err := config.DecodeAccount(cfg.AdminAddress)
	if err != nil {
		logger.Error("invalid admin address", slog.Any("error", err))
		os.Exit(1)
	}
	pool, _ := config.DecodeAccount(cfg.StakingPool)
	rewardToken, _ := config.DecodeAccount(cfg.RewardToken)
	proxyAddr, _ := config.DecodeAccount(cfg.ProxyAddress)
	serviceSigner, _ := config.DecodeAccount(cfg.ServiceSigner)
	payee := admin
	if strings.TrimSpace(cfg.PayeeAddress) != "" {
		payee, _ = config.DecodeAccount(cfg.PayeeAddress)
	}
	fee := payee
	if strings.TrimSpace(cfg.FeeAddress) != "" {
		fee, _ = config.DecodeAccount(cfg.FeeAddress)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "vouchers"))
	if err != nil {
		logger.Error("failed to open voucher store", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	gate := mintgate.NewEngine(admin, payee, cfg.ChainID)
	stk, err := staking.NewEngine(admin, pool, rewardToken, serviceSigner, gate, cfg.ChainID, cfg.MaxTokensInStake)
	if err != nil {
		logger.Error("failed to build staking ledger", slog.Any("error", err))
		os.Exit(1)
	}
	stk.SetNonceStore(staking.NewNonceLedger(db))
	rdm, err := redemption.NewEngine(admin, proxyAddr, serviceSigner, fee, gate, cfg.ChainID)
	if err != nil {
		logger.Error("failed to build redemption proxy", slog.Any("error", err))
		os.Exit(1)
	}
	if err := gate.GrantRole(admin, mintgate.RoleAdmin, proxyAddr); err != nil {
		logger.Error("failed to authorize proxy on gate", slog.Any("error", err))
		os.Exit(1)
	}

	svc := ledger.NewService(gate, stk, rdm, ledger.NewState(), logger)
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           gateway.NewServer(svc, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", slog.String("address", cfg.ListenAddress), slog.String("network", cfg.NetworkName))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("gateway shutdown failed", slog.Any("error", err))
	}
	logger.Info("towerledgerd stopped")
}
