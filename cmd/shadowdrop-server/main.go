package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/shadowdrop/shadowdrop-go/pkg/config"
	"github.com/shadowdrop/shadowdrop-go/pkg/ledger"
	ledgermem "github.com/shadowdrop/shadowdrop-go/pkg/ledger/memory"
	"github.com/shadowdrop/shadowdrop-go/pkg/logger"
	"github.com/shadowdrop/shadowdrop-go/pkg/prover"
	"github.com/shadowdrop/shadowdrop-go/pkg/service"
	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	badgerstore "github.com/shadowdrop/shadowdrop-go/pkg/store/badger"
	storemem "github.com/shadowdrop/shadowdrop-go/pkg/store/memory"
	redisstore "github.com/shadowdrop/shadowdrop-go/pkg/store/redis"
)

func main() {
	app := &cli.App{
		Name:  "shadowdrop-server",
		Usage: "Privacy-preserving airdrop campaign server",
		Description: `Serves the campaign commitment-and-claim protocol over HTTP.

The server:
- Builds merkle commitments over per-recipient secrets at campaign creation
- Answers eligibility queries without revealing the recipient set
- Requests membership proofs and settles anonymous claims by nullifier
- Enforces linear vesting schedules at settlement time`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPort},
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   string(config.StoreTypeMemory),
				Usage:   "Campaign store backend: memory, badger or redis",
				EnvVars: []string{config.EnvStoreType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for the badger store",
				EnvVars: []string{config.EnvBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Address of the redis store (host:port)",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Password for the redis store",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.StringFlag{
				Name:    "sealer-key",
				Usage:   "Hex-encoded 32-byte key sealing campaign artifacts at rest (empty disables sealing)",
				EnvVars: []string{config.EnvSealerKey},
			},
			&cli.StringFlag{
				Name:    "prover",
				Value:   string(config.ProverTypeStub),
				Usage:   "Proof backend: stub or http",
				EnvVars: []string{config.EnvProverType},
			},
			&cli.StringFlag{
				Name:    "prover-url",
				Usage:   "Base URL of the http proof service",
				EnvVars: []string{config.EnvProverURL},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvDebug},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runServer(c *cli.Context) error {
	cfg := &config.ServerConfig{
		Port:          c.Int("port"),
		StoreType:     config.StoreType(c.String("store")),
		BadgerPath:    c.String("badger-path"),
		RedisAddress:  c.String("redis-address"),
		RedisPassword: c.String("redis-password"),
		RedisDB:       c.Int("redis-db"),
		SealerKey:     c.String("sealer-key"),
		Prover: config.ProverConfig{
			Type: config.ProverType(c.String("prover")),
			Url:  c.String("prover-url"),
		},
		Debug: c.Bool("debug"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer l.Sync() //nolint:errcheck

	st, err := buildStore(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close() //nolint:errcheck

	pr, err := buildProver(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to build prover: %w", err)
	}

	var lg ledger.ILedger = ledgermem.NewMemoryLedger()

	srv := service.NewServer(st, lg, pr, l, cfg.Port)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Server started",
		"port", cfg.Port, "store", cfg.StoreType.String(), "prover", cfg.Prover.Type.String())

	// Block until asked to stop, then drain.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	l.Sugar().Infow("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func buildStore(cfg *config.ServerConfig, l *zap.Logger) (store.ICampaignStore, error) {
	var sealer *store.Sealer
	if key, err := cfg.SealerKeyBytes(); err != nil {
		return nil, err
	} else if key != nil {
		if sealer, err = store.NewSealer(key); err != nil {
			return nil, err
		}
	}

	switch cfg.StoreType {
	case config.StoreTypeMemory:
		return storemem.NewMemoryStore(), nil
	case config.StoreTypeBadger:
		return badgerstore.NewBadgerStore(cfg.BadgerPath, sealer, l)
	case config.StoreTypeRedis:
		return redisstore.NewRedisStore(&redisstore.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, sealer, l)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}

func buildProver(cfg *config.ServerConfig, l *zap.Logger) (prover.IProver, error) {
	switch cfg.Prover.Type {
	case config.ProverTypeStub:
		return prover.NewStubProver(), nil
	case config.ProverTypeHTTP:
		return prover.NewHTTPProver(&prover.HTTPProverConfig{BaseURL: cfg.Prover.Url}, l)
	default:
		return nil, fmt.Errorf("unsupported prover type: %s", cfg.Prover.Type)
	}
}
