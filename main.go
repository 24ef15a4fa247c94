package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-co-op/gocron"

	"github.com/speedrun-hq/speedrun-settler/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settler/pkg/config"
	"github.com/speedrun-hq/speedrun-settler/pkg/custody"
	"github.com/speedrun-hq/speedrun-settler/pkg/engine"
	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
	"github.com/speedrun-hq/speedrun-settler/pkg/events"
	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
	"github.com/speedrun-hq/speedrun-settler/pkg/registry"
	"github.com/speedrun-hq/speedrun-settler/pkg/server"
	"github.com/speedrun-hq/speedrun-settler/pkg/store"
	"github.com/speedrun-hq/speedrun-settler/pkg/transfer"
	"github.com/speedrun-hq/speedrun-settler/pkg/verification"
	evmverifier "github.com/speedrun-hq/speedrun-settler/pkg/verification/evm"
	utxoverifier "github.com/speedrun-hq/speedrun-settler/pkg/verification/utxo"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	eng, err := buildEngine(cfg, db, appLogger)
	if err != nil {
		log.Fatalf("Failed to build settlement engine: %v", err)
	}

	// Load the persisted snapshot, if any
	state, err := db.LoadState()
	if err != nil {
		log.Fatalf("Failed to load persisted state: %v", err)
	}
	if err := eng.Restore(state); err != nil {
		log.Fatalf("Failed to restore persisted state: %v", err)
	}

	scheduler := startScheduler(ctx, cfg, eng, db, appLogger)
	defer scheduler.Stop()

	srv := server.NewServer(eng, cfg.ListenPort, appLogger)

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		appLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP shutdown: %v", err)
		}
	}()

	appLogger.Info("Starting the settler service...")
	if err := srv.Start(); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}

	// Persist a final snapshot before exiting
	if err := db.SaveState(eng.Snapshot()); err != nil {
		appLogger.Error("Final snapshot failed: %v", err)
	} else {
		appLogger.Info("Final snapshot persisted")
	}
}

// buildEngine wires the registry, verification backends, custody and
// transfer collaborators from the configuration.
func buildEngine(cfg *config.Config, db *store.Store, appLogger logger.Logger) (*engine.Engine, error) {
	chains := make([]registry.ChainInfo, 0, len(cfg.Chains))
	verifiers := make(map[string]verification.Verifier)
	depositAddresses := make(map[string]string)

	for _, chain := range cfg.Chains {
		info := registry.ChainInfo{
			Name:                  chain.Name,
			ChainID:               chain.ChainID,
			Kind:                  registry.ChainKind(chain.Kind),
			Network:               chain.Network,
			RequiredConfirmations: chain.RequiredConfirmations,
			RPCURL:                chain.RPCURL,
		}
		chains = append(chains, info)
		if chain.DepositAddress != "" {
			depositAddresses[chain.Name] = chain.DepositAddress
		}

		breaker := circuitbreaker.New(
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
			appLogger,
		)

		switch info.Kind {
		case registry.KindEVM:
			client, err := ethclient.Dial(chain.RPCURL)
			if err != nil {
				appLogger.ErrorWithChain(chain.Name, "RPC connection failed, verification disabled: %v", err)
				continue
			}
			verifiers[chain.Name] = evmverifier.NewVerifier(chain.Name, client, breaker, appLogger)
		case registry.KindUTXO:
			v, err := utxoverifier.NewVerifier(chain.Name, chain.RPCURL, chain.Network, breaker, appLogger)
			if err != nil {
				return nil, err
			}
			verifiers[chain.Name] = v
		}
	}

	reg, err := registry.New(chains)
	if err != nil {
		return nil, err
	}
	// Without configured deposit addresses intents are created without
	// one and the verification path is unavailable until configured.
	var deriver engine.AddressDeriver
	if len(depositAddresses) > 0 {
		d, err := custody.NewDeriver(depositAddresses)
		if err != nil {
			return nil, err
		}
		deriver = d
	}
	journal, err := transfer.NewJournal(db, appLogger)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Config{
		ProtocolFeeBps:  cfg.ProtocolFeeBps,
		MaxDeadline:     cfg.MaxDeadline,
		SolverAllowlist: cfg.SolverAllowlist,
		Capacity: engine.CapacityConfig{
			MaxIntentsPerUser: cfg.Capacity.MaxIntentsPerUser,
			MaxActivePerUser:  cfg.Capacity.MaxActivePerUser,
			MaxTotalIntents:   cfg.Capacity.MaxTotalIntents,
			MaxActiveIntents:  cfg.Capacity.MaxActiveIntents,
		},
	}, engine.Deps{
		Registry:  reg,
		Ledger:    escrow.NewLedger(),
		Verifiers: verifiers,
		Deriver:   deriver,
		Transfers: journal,
		Events:    events.NewLogSink(appLogger),
		Logger:    appLogger,
	})
}

// startScheduler runs the periodic maintenance jobs: deadline expiry,
// terminal-intent retention, snapshot persistence and the escrow
// invariant check.
func startScheduler(ctx context.Context, cfg *config.Config, eng *engine.Engine, db *store.Store, appLogger logger.Logger) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(cfg.SweepInterval).Do(func() {
		if expired := eng.ExpireDue(ctx, cfg.SweepLimit); expired > 0 {
			appLogger.Info("Expiry sweep: %d intents expired", expired)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule expiry sweep: %v", err)
	}

	_, err = scheduler.Every(1 * time.Hour).Do(func() {
		eng.SweepTerminal(cfg.RetentionWindow, cfg.SweepLimit)
	})
	if err != nil {
		log.Fatalf("Failed to schedule retention sweep: %v", err)
	}

	_, err = scheduler.Every(cfg.SweepInterval).Do(func() {
		if err := db.SaveState(eng.Snapshot()); err != nil {
			appLogger.Error("Snapshot persistence failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule snapshot persistence: %v", err)
	}

	_, err = scheduler.Every(5 * time.Minute).Do(func() {
		if err := eng.VerifyEscrowInvariants(); err != nil {
			appLogger.Error("CRITICAL: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule invariant check: %v", err)
	}

	scheduler.StartAsync()
	return scheduler
}
