package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
)

const (
	// DefaultListenPort defines the default port for the HTTP API
	DefaultListenPort = "8080"

	// DefaultDBPath defines the default SQLite database path
	DefaultDBPath = "settler.db"

	// DefaultProtocolFeeBps defines the default protocol fee rate in
	// basis points
	DefaultProtocolFeeBps = 30

	// DefaultMaxDeadlineHours defines the furthest out an intent
	// deadline may be, in hours
	DefaultMaxDeadlineHours = 168

	// DefaultMaxIntentsPerUser defines the lifetime intent limit per owner
	DefaultMaxIntentsPerUser = 1000

	// DefaultMaxActivePerUser defines the concurrent intent limit per owner
	DefaultMaxActivePerUser = 20

	// DefaultMaxTotalIntents defines the lifetime intent limit overall
	DefaultMaxTotalIntents = 1000000

	// DefaultMaxActiveIntents defines the concurrent intent limit overall
	DefaultMaxActiveIntents = 10000

	// DefaultSweepIntervalSeconds defines how often the expiry sweep runs
	DefaultSweepIntervalSeconds = 30

	// DefaultRetentionHours defines how long terminal intents are kept
	DefaultRetentionHours = 168

	// DefaultSweepLimit defines the maximum records handled per sweep
	DefaultSweepLimit = 100

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in seconds
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in seconds
	DefaultCircuitBreakerReset = 15

	// Chain defaults. RPC endpoints and deposit addresses can be
	// overridden per chain for debugging purposes.

	EthereumMainnetChainID = 1
	DefaultEthereumRPCURL  = "https://eth.llamarpc.com"
	DefaultEthereumConfs   = 12

	BaseMainnetChainID = 8453
	DefaultBaseRPCURL  = "https://mainnet.base.org"
	DefaultBaseConfs   = 12

	DefaultBitcoinEsploraURL = "https://blockstream.info/api"
	DefaultBitcoinConfs      = 3
)

// GetEnvListenPort returns the HTTP API port from environment variables
func GetEnvListenPort() (string, error) {
	port := os.Getenv("LISTEN_PORT")
	if port == "" {
		return DefaultListenPort, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid LISTEN_PORT value: %s, must be a valid integer", port)
	}
	return port, nil
}

// GetEnvDBPath returns the SQLite database path from environment variables
func GetEnvDBPath() string {
	path := os.Getenv("DB_PATH")
	if path == "" {
		return DefaultDBPath
	}
	return path
}

// GetEnvProtocolFeeBps returns the protocol fee rate from environment variables
func GetEnvProtocolFeeBps() (uint32, error) {
	raw := os.Getenv("PROTOCOL_FEE_BPS")
	if raw == "" {
		return DefaultProtocolFeeBps, nil
	}
	bps, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid PROTOCOL_FEE_BPS value: %s, must be an integer", raw)
	}
	if bps > 10_000 {
		return 0, fmt.Errorf("PROTOCOL_FEE_BPS must not exceed 10000")
	}
	return uint32(bps), nil
}

// GetEnvMaxDeadline returns the deadline ceiling from environment variables
func GetEnvMaxDeadline() (time.Duration, error) {
	raw := os.Getenv("MAX_DEADLINE_HOURS")
	if raw == "" {
		return DefaultMaxDeadlineHours * time.Hour, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_DEADLINE_HOURS value: %s, must be an integer", raw)
	}
	if hours <= 0 {
		return 0, fmt.Errorf("MAX_DEADLINE_HOURS must be greater than 0")
	}
	return time.Duration(hours) * time.Hour, nil
}

// GetEnvSolverAllowlist returns the solver allowlist from environment
// variables. An empty list means quoting is open.
func GetEnvSolverAllowlist() []string {
	raw := os.Getenv("SOLVER_ALLOWLIST")
	if raw == "" {
		return nil
	}
	var solvers []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			solvers = append(solvers, s)
		}
	}
	return solvers
}

// GetEnvCapacity returns the intent capacity ceilings from environment variables
func GetEnvCapacity() (CapacityConfig, error) {
	cfg := CapacityConfig{}
	var err error
	if cfg.MaxIntentsPerUser, err = getEnvInt("MAX_INTENTS_PER_USER", DefaultMaxIntentsPerUser); err != nil {
		return cfg, err
	}
	if cfg.MaxActivePerUser, err = getEnvInt("MAX_ACTIVE_PER_USER", DefaultMaxActivePerUser); err != nil {
		return cfg, err
	}
	if cfg.MaxTotalIntents, err = getEnvInt("MAX_TOTAL_INTENTS", DefaultMaxTotalIntents); err != nil {
		return cfg, err
	}
	if cfg.MaxActiveIntents, err = getEnvInt("MAX_ACTIVE_INTENTS", DefaultMaxActiveIntents); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GetEnvSweepInterval returns how often the sweeps run from environment variables
func GetEnvSweepInterval() (time.Duration, error) {
	seconds, err := getEnvInt("SWEEP_INTERVAL", DefaultSweepIntervalSeconds)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("SWEEP_INTERVAL must be greater than 0")
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvRetentionWindow returns how long terminal intents are kept
func GetEnvRetentionWindow() (time.Duration, error) {
	hours, err := getEnvInt("RETENTION_HOURS", DefaultRetentionHours)
	if err != nil {
		return 0, err
	}
	if hours <= 0 {
		return 0, fmt.Errorf("RETENTION_HOURS must be greater than 0")
	}
	return time.Duration(hours) * time.Hour, nil
}

// GetEnvSweepLimit returns the per-sweep record limit
func GetEnvSweepLimit() (int, error) {
	limit, err := getEnvInt("SWEEP_LIMIT", DefaultSweepLimit)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, fmt.Errorf("SWEEP_LIMIT must be greater than 0")
	}
	return limit, nil
}

// GetEnvCircuitBreaker returns the circuit breaker configuration
func GetEnvCircuitBreaker() (CircuitBreakerConfig, error) {
	cfg := CircuitBreakerConfig{Enabled: DefaultCircuitBreakerEnabled}

	if raw := os.Getenv("CIRCUIT_BREAKER_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be a boolean", raw)
		}
		cfg.Enabled = enabled
	}

	threshold, err := getEnvInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
	if err != nil {
		return cfg, err
	}
	cfg.Threshold = threshold

	window, err := getEnvInt("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
	if err != nil {
		return cfg, err
	}
	cfg.WindowDuration = time.Duration(window) * time.Second

	reset, err := getEnvInt("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
	if err != nil {
		return cfg, err
	}
	cfg.ResetTimeout = time.Duration(reset) * time.Second

	return cfg, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "", "info":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be debug, info, notice or error", os.Getenv("LOG_LEVEL"))
	}
}

// GetEnvLogColoring returns whether log coloring is enabled
func GetEnvLogColoring() bool {
	raw := os.Getenv("LOG_COLORING")
	if raw == "" {
		return true
	}
	coloring, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return coloring
}

// GetEnvChains returns the supported chain table. The built-in chains
// are always present; endpoints, confirmation depths and deposit
// addresses can be overridden per chain.
func GetEnvChains() ([]ChainConfig, error) {
	ethConfs, err := getEnvUint("ETHEREUM_CONFIRMATIONS", DefaultEthereumConfs)
	if err != nil {
		return nil, err
	}
	baseConfs, err := getEnvUint("BASE_CONFIRMATIONS", DefaultBaseConfs)
	if err != nil {
		return nil, err
	}
	btcConfs, err := getEnvUint("BITCOIN_CONFIRMATIONS", DefaultBitcoinConfs)
	if err != nil {
		return nil, err
	}

	return []ChainConfig{
		{
			Name:                  "ethereum",
			ChainID:               EthereumMainnetChainID,
			Kind:                  "evm",
			Network:               "mainnet",
			RequiredConfirmations: ethConfs,
			RPCURL:                getEnvString("ETHEREUM_RPC_URL", DefaultEthereumRPCURL),
			DepositAddress:        os.Getenv("ETHEREUM_DEPOSIT_ADDRESS"),
		},
		{
			Name:                  "base",
			ChainID:               BaseMainnetChainID,
			Kind:                  "evm",
			Network:               "mainnet",
			RequiredConfirmations: baseConfs,
			RPCURL:                getEnvString("BASE_RPC_URL", DefaultBaseRPCURL),
			DepositAddress:        os.Getenv("BASE_DEPOSIT_ADDRESS"),
		},
		{
			Name:                  "bitcoin",
			Kind:                  "utxo",
			Network:               getEnvString("BITCOIN_NETWORK", "mainnet"),
			RequiredConfirmations: btcConfs,
			RPCURL:                getEnvString("BITCOIN_ESPLORA_URL", DefaultBitcoinEsploraURL),
			DepositAddress:        os.Getenv("BITCOIN_DEPOSIT_ADDRESS"),
		},
		{
			Name:                  "icp",
			Kind:                  "ledger",
			RequiredConfirmations: 1,
		},
	}, nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}

func getEnvUint(key string, fallback uint64) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a non-negative integer", key, raw)
	}
	return v, nil
}
