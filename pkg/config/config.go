package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
)

// Config holds the configuration for the settler service
type Config struct {
	ListenPort      string
	DBPath          string
	ProtocolFeeBps  uint32
	MaxDeadline     time.Duration
	SolverAllowlist []string
	Capacity        CapacityConfig
	SweepInterval   time.Duration
	RetentionWindow time.Duration
	SweepLimit      int
	Chains          []ChainConfig
	CircuitBreaker  CircuitBreakerConfig
	LoggerConfig    LoggerConfig
}

// CapacityConfig holds the intent creation ceilings
type CapacityConfig struct {
	MaxIntentsPerUser int
	MaxActivePerUser  int
	MaxTotalIntents   int
	MaxActiveIntents  int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// ChainConfig holds the configuration for a supported chain
type ChainConfig struct {
	Name                  string
	ChainID               int
	Kind                  string // "evm", "utxo" or "ledger"
	Network               string
	RequiredConfirmations uint64
	RPCURL                string
	DepositAddress        string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	listenPort, err := GetEnvListenPort()
	if err != nil {
		return nil, err
	}
	protocolFeeBps, err := GetEnvProtocolFeeBps()
	if err != nil {
		return nil, err
	}
	maxDeadline, err := GetEnvMaxDeadline()
	if err != nil {
		return nil, err
	}
	capacity, err := GetEnvCapacity()
	if err != nil {
		return nil, err
	}
	sweepInterval, err := GetEnvSweepInterval()
	if err != nil {
		return nil, err
	}
	retentionWindow, err := GetEnvRetentionWindow()
	if err != nil {
		return nil, err
	}
	sweepLimit, err := GetEnvSweepLimit()
	if err != nil {
		return nil, err
	}
	chains, err := GetEnvChains()
	if err != nil {
		return nil, err
	}
	breaker, err := GetEnvCircuitBreaker()
	if err != nil {
		return nil, err
	}
	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	return &Config{
		ListenPort:      listenPort,
		DBPath:          GetEnvDBPath(),
		ProtocolFeeBps:  protocolFeeBps,
		MaxDeadline:     maxDeadline,
		SolverAllowlist: GetEnvSolverAllowlist(),
		Capacity:        capacity,
		SweepInterval:   sweepInterval,
		RetentionWindow: retentionWindow,
		SweepLimit:      sweepLimit,
		Chains:          chains,
		CircuitBreaker:  breaker,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: GetEnvLogColoring(),
		},
	}, nil
}
