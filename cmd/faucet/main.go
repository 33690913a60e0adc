// Command faucet runs the faucet HTTP service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/faucetd/faucet"
	"github.com/faucetd/faucet/auth"
	"github.com/faucetd/faucet/auth/nativeauth"
	"github.com/faucetd/faucet/captcha"
	"github.com/faucetd/faucet/config"
	fhttp "github.com/faucetd/faucet/http"
	"github.com/faucetd/faucet/ledger"
	"github.com/faucetd/faucet/metrics"
	"github.com/faucetd/faucet/signers/wallet"
	"github.com/faucetd/faucet/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "faucet: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "faucet: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("faucet stopped", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	opts := []faucet.ServiceOption{
		faucet.WithStore(st),
		faucet.WithLogger(logger.Named("service")),
		faucet.WithLedger(ledger.NewGateway(ledger.GatewayConfig{
			URL:     cfg.Faucet.GatewayURL,
			Timeout: cfg.CallTimeout(),
		})),
	}
	opts = append(opts, m.ServiceOptions()...)

	if cfg.FaucetEnabled() {
		signer, err := loadSigner(cfg.Faucet)
		if err != nil {
			return err
		}
		logger.Info("faucet enabled", zap.String("operator", signer.Address()))
		opts = append(opts, faucet.WithSigner(signer))
		if !cfg.Faucet.RecaptchaBypass {
			opts = append(opts, faucet.WithCaptchaVerifier(captcha.NewVerifier(captcha.Config{
				Secret:    cfg.Faucet.RecaptchaSecret,
				VerifyURL: cfg.Faucet.RecaptchaVerifyURL,
				Timeout:   cfg.CallTimeout(),
			})))
		}
	} else {
		logger.Warn("no operator key configured, faucet is disabled")
	}

	service, err := faucet.NewService(faucet.Config{
		Amount:          cfg.Faucet.Amount,
		Token:           cfg.Faucet.Token,
		TokenAmount:     cfg.Faucet.TokenAmount,
		Cooldown:        cfg.Cooldown(),
		RecaptchaBypass: cfg.Faucet.RecaptchaBypass,
		ReplayMode:      faucet.ReplayMode(cfg.Faucet.ReplayMode),
		CallTimeout:     cfg.CallTimeout(),
	}, opts...)
	if err != nil {
		return err
	}

	chain, err := newAuthChain(cfg, st, logger)
	if err != nil {
		return err
	}

	server := fhttp.NewServer(fhttp.Config{
		Service: service,
		Chain:   chain,
		Admins:  auth.NewAdmins(cfg.Security.Admins),
		Policy:  auth.ImpersonationPolicy{},
		Metrics: m,
		Logger:  logger.Named("http"),
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	logger.Info("listening", zap.String("addr", addr))
	return server.ListenAndServe(ctx, addr)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Warn("redis disabled, using the in-memory store; counters and grant records do not survive restarts or span replicas")
		mem := store.NewMemoryStore()
		return mem, func() { _ = mem.Close() }, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rs, err := store.NewRedisStore(connectCtx, store.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { _ = rs.Close() }, nil
}

func loadSigner(cfg config.FaucetConfig) (*wallet.Signer, error) {
	if cfg.PrivateKeyMode == config.KeyModePEM {
		return wallet.NewSignerFromPEMFile(cfg.PemPath, cfg.PemIndex)
	}
	return wallet.NewSignerFromMnemonic(cfg.Mnemonic, cfg.MnemonicAddressIndex)
}

func newAuthChain(cfg *config.Config, st store.Store, logger *zap.Logger) (*auth.Chain, error) {
	var strategies []auth.Strategy

	if cfg.Security.JWTSecret != "" {
		jwtStrategy, err := auth.NewJWTStrategy(cfg.Security.JWTSecret)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, jwtStrategy)
	} else {
		logger.Warn("security.jwtSecret is empty, JWT authentication is off")
	}

	validator, err := nativeauth.NewValidator(nativeauth.Config{
		MaxExpirySeconds: cfg.NativeAuth.MaxExpirySeconds,
		AcceptedOrigins:  cfg.NativeAuth.AcceptedOrigins,
		AcceptAnyOrigin:  cfg.NativeAuth.AcceptAnyOrigin,
		Cache:            auth.NewStoreCache(st),
		Blocks:           nativeauth.NewAPIClient(cfg.API.URL, cfg.CallTimeout()),
		Impersonate:      auth.ImpersonationPolicy{}.Callback(),
		Logger:           logger.Named("nativeauth"),
	})
	if err != nil {
		return nil, err
	}
	strategies = append(strategies, auth.NewNativeAuthStrategy(validator))

	return auth.NewChain(strategies, auth.WithChainLogger(logger.Named("auth"))), nil
}
