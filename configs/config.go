// Package configs loads the driver's config.yml, the same
// read-file-then-yaml.Unmarshal-then-To*Config() pattern an earlier
// configs package used for its strategy/contract-client settings,
// generalized to this driver's scheduler/viability/solver/oracle blocks.
// Secrets (the signing private key, RPC auth) are never read from YAML;
// they come from the environment, loaded via godotenv in cmd/driver the
// same way blackhole_test.go loaded its own .env.test.local.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/scheduler"
)

// Config is the entire config.yml structure.
type Config struct {
	RPC        string           `yaml:"rpc"`
	Contract   ContractYAML     `yaml:"contract"`
	Scheduler  SchedulerYAML    `yaml:"scheduler"`
	Solver     SolverYAML       `yaml:"solver"`
	Viability  ViabilityYAML    `yaml:"viability"`
	PriceYAML  PriceOracleYAML  `yaml:"price_oracle"`
	Database   DatabaseYAML     `yaml:"database"`
}

// ContractYAML locates the exchange contract this driver talks to.
type ContractYAML struct {
	Address string `yaml:"address"`
	ABIPath string `yaml:"abi_path"` // not read; the gateway always uses its embedded ABI
}

// SchedulerYAML mirrors scheduler.Config plus the circuit breaker and
// chain-vs-wall-clock selector.
type SchedulerYAML struct {
	TargetStartSolveSec       int    `yaml:"targetStartSolveSec"`
	LatestSolutionSubmitSec   int    `yaml:"latestSolutionSubmitSec"`
	EarliestSolutionSubmitSec int    `yaml:"earliestSolutionSubmitSec"`
	UseChainClock             bool   `yaml:"useChainClock"`
	CircuitBreakerWindowMin   int    `yaml:"circuitBreakerWindowMin"`
	CircuitBreakerThreshold   int    `yaml:"circuitBreakerThreshold"`
}

// SolverYAML configures the external solver process.
type SolverYAML struct {
	BinaryPath string `yaml:"binaryPath"`
	WorkDir    string `yaml:"workDir"`
}

// ViabilityYAML configures the fee-ratio and native-token inputs to the
// viability strategy's formulas.
type ViabilityYAML struct {
	FeeRatioNumerator   int64 `yaml:"feeRatioNumerator"`
	FeeRatioDenominator int64 `yaml:"feeRatioDenominator"`
	NativeToken         int   `yaml:"nativeToken"`
}

// PriceOracleYAML configures the hardcoded fallback price source and how
// often a threaded refresher re-polls its wrapped source.
type PriceOracleYAML struct {
	HardcodedPrices      map[int]string `yaml:"hardcodedPrices"` // token id -> decimal wei string
	UpdateIntervalSec    int            `yaml:"priceSourceUpdateIntervalSec"`
}

// DatabaseYAML configures the submission-history recorder. DSN carries
// no secret beyond what a MySQL connection string always does; the
// convention in this repo is still to prefer an env var override (see
// LoadConfig) for deployments that keep credentials out of YAML entirely.
type DatabaseYAML struct {
	DSN string `yaml:"dsn"`
}

// LoadConfig reads and parses path into a Config. DATABASE_DSN, if set,
// overrides Database.DSN, the same env-override-wins convention the
// teacher applied to its own private key.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configs: parse %s: %w", path, err)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	return &cfg, nil
}

// ToSchedulerConfig converts the YAML scheduler block into scheduler.Config.
func (c *Config) ToSchedulerConfig() scheduler.Config {
	return scheduler.Config{
		TargetStartSolveTime:       time.Duration(c.Scheduler.TargetStartSolveSec) * time.Second,
		LatestSolutionSubmitTime:   time.Duration(c.Scheduler.LatestSolutionSubmitSec) * time.Second,
		EarliestSolutionSubmitTime: time.Duration(c.Scheduler.EarliestSolutionSubmitSec) * time.Second,
	}
}

// ToCircuitBreaker builds the scheduler's circuit breaker from config,
// nil if no threshold was configured (i.e. the scheduler runs without one).
func (c *Config) ToCircuitBreaker() *scheduler.CircuitBreaker {
	if c.Scheduler.CircuitBreakerThreshold <= 0 {
		return nil
	}
	window := time.Duration(c.Scheduler.CircuitBreakerWindowMin) * time.Minute
	return scheduler.NewCircuitBreaker(window, c.Scheduler.CircuitBreakerThreshold)
}

// FeeRatio builds the *big.Rat the solver and viability package require
// from the configured numerator/denominator.
func (c *Config) FeeRatio() *big.Rat {
	num := c.Viability.FeeRatioNumerator
	den := c.Viability.FeeRatioDenominator
	if den == 0 {
		den = 1
	}
	return big.NewRat(num, den)
}

// NativeToken is the token id gas cost is converted through.
func (c *Config) NativeToken() dextypes.TokenId {
	return dextypes.TokenId(c.Viability.NativeToken)
}

// HardcodedPrices converts the YAML price map into the decimal-wei map
// priceoracle.Hardcoded expects, skipping any entry that doesn't parse.
func (c *Config) HardcodedPrices() map[dextypes.TokenId]*big.Int {
	out := make(map[dextypes.TokenId]*big.Int, len(c.PriceYAML.HardcodedPrices))
	for tok, amountStr := range c.PriceYAML.HardcodedPrices {
		v, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			continue
		}
		out[dextypes.TokenId(tok)] = v
	}
	return out
}

// PriceSourceUpdateInterval is how often a threaded price refresher
// re-polls its wrapped source. Zero/unset falls back to
// priceoracle.UpdateInterval.
func (c *Config) PriceSourceUpdateInterval() time.Duration {
	if c.PriceYAML.UpdateIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.PriceYAML.UpdateIntervalSec) * time.Second
}
