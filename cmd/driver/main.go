// Command driver is the long-running process that ties every package in
// this module together: an ingestor keeps the event registry caught up
// with the chain, and a scheduler repeatedly asks the driver package to
// solve and submit the currently-closing batch. Wiring follows the
// teacher's own cmd/main.go shape: load env secrets, load config.yml,
// dial the node, build the dependent pieces bottom-up, then run.
package main

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"

	"github.com/ChoSanghyuk/dexdriver/chaingateway/ethgateway"
	"github.com/ChoSanghyuk/dexdriver/configs"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/driver"
	"github.com/ChoSanghyuk/dexdriver/eventregistry"
	"github.com/ChoSanghyuk/dexdriver/internal/db"
	"github.com/ChoSanghyuk/dexdriver/pkg/types"
	"github.com/ChoSanghyuk/dexdriver/priceoracle"
	"github.com/ChoSanghyuk/dexdriver/scheduler"
	"github.com/ChoSanghyuk/dexdriver/solver"
	"github.com/ChoSanghyuk/dexdriver/submitter"
	"github.com/ChoSanghyuk/dexdriver/viability"
)

// snapshotPath is where the event registry's periodic snapshot lives
// between restarts, so a process crash doesn't force a full resync from
// block 0.
const snapshotPath = "registry.snapshot"

func main() {
	_ = godotenv.Load() // optional; missing .env is fine in real deployments

	privateKey := loadPrivateKey()

	cfg, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		log.Crit("load config", "err", err)
	}

	client, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		log.Crit("dial rpc", "err", err)
	}

	gw, err := ethgateway.New(client, common.HexToAddress(cfg.Contract.Address), privateKey, types.Standard)
	if err != nil {
		log.Crit("build chain gateway", "err", err)
	}

	registry := eventregistry.LoadFrom(snapshotPath)
	ingestor := eventregistry.NewIngestor(registry, gw, eventregistry.IngestorConfig{
		ConfirmationDepth: ethgateway.ConfirmationDepth,
	})

	recorder, err := db.NewMySQLRecorder(cfg.Database.DSN)
	if err != nil {
		log.Crit("connect submission history store", "err", err)
	}
	defer recorder.Close()

	// The whitelist of tokens worth pricing is whatever this deployment
	// configured hardcoded fallback prices for; a richer live price feed
	// would widen this, but no HTTP price-feed client is wired into this
	// driver (see DESIGN.md).
	pricedTokens := tokenList(cfg.HardcodedPrices())
	priceRefresher := priceoracle.NewThreadedRefresher(
		priceoracle.Hardcoded{Prices: cfg.HardcodedPrices()},
		func() []dextypes.TokenId { return pricedTokens },
		cfg.PriceSourceUpdateInterval(),
	)
	defer priceRefresher.Stop(context.Background())
	oracle := priceoracle.New(priceRefresher)

	gasStream := submitter.NewTickerGasPriceStream(gw, 15*time.Second, 5*time.Second)
	defer gasStream.Stop()

	solverRunner := &solver.Runner{BinaryPath: cfg.Solver.BinaryPath, WorkDir: cfg.Solver.WorkDir}

	strategy := viability.Combined{
		Fixed: viability.Fixed{MinFee: big.NewInt(0), MaxGasPrice: big.NewInt(0).SetUint64(500_000_000_000)},
		Dynamic: viability.Dynamic{
			SubsidyFactor: 1,
			SafetyFactor:  1,
		},
	}

	d := driver.New(
		registry,
		oracle,
		gw,
		cfg.NativeToken(),
		strategy,
		solverRunner,
		gw,
		cfg.FeeRatio(),
		gasStream,
		cfg.ToSchedulerConfig().LatestSolutionSubmitTime,
	)
	d.History = recorder

	breaker := cfg.ToCircuitBreaker()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go ingestor.Run(ctx, 15*time.Second, func(err error) {
		log.Warn("event ingestion cycle failed", "err", err)
	})
	go snapshotPeriodically(ctx, registry, 5*time.Minute)

	var runErr error
	if cfg.Scheduler.UseChainClock {
		s := scheduler.NewChainScheduler(cfg.ToSchedulerConfig(), gw, d, breaker)
		runErr = s.Run(ctx)
	} else {
		s := scheduler.NewSystemScheduler(cfg.ToSchedulerConfig(), d, breaker)
		runErr = s.Run(ctx)
	}

	if err := registry.SnapshotTo(snapshotPath); err != nil {
		log.Error("final snapshot failed", "err", err)
	}

	if runErr != nil {
		log.Crit("scheduler halted", "err", runErr)
	}
}

// loadPrivateKey reads a hex-encoded secp256k1 key from PRIVATE_KEY. No
// implementation of an encrypted-key convention
// (ENC_PK/KEY + a Decrypt helper) shipped anywhere in the retrieval
// pack to ground one on, so this driver takes the key directly the way
// go-ethereum's own crypto.HexToECDSA expects it, leaving encryption-
// at-rest to whatever secrets manager injects the environment variable.
func loadPrivateKey() *ecdsa.PrivateKey {
	hexKey := os.Getenv("PRIVATE_KEY")
	if hexKey == "" {
		log.Crit("PRIVATE_KEY not set")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		log.Crit("parse PRIVATE_KEY", "err", err)
	}
	return key
}

func tokenList(prices map[dextypes.TokenId]*big.Int) []dextypes.TokenId {
	out := make([]dextypes.TokenId, 0, len(prices))
	for tok := range prices {
		out = append(out, tok)
	}
	return out
}

func snapshotPeriodically(ctx context.Context, registry *eventregistry.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.SnapshotTo(snapshotPath); err != nil {
				log.Warn("periodic snapshot failed", "err", err)
			}
		}
	}
}
