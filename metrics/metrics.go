// Package metrics exposes per-batch lifecycle counters (started,
// orders_fetched, solved, verified, submitted, skipped) and stage-elapsed
// gauges for how long the current batch has spent in each stage. It
// follows the package-level promauto-var convention the retrieval pack's
// chain-indexer examples use (e.g. the polymarket indexer's syncer
// metrics), registering against prometheus.DefaultRegisterer so a
// standard /metrics handler picks them up without extra wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dexdriver"

// Stage names a point in one batch's lifecycle.
type Stage string

const (
	StageStarted       Stage = "started"
	StageOrdersFetched Stage = "orders_fetched"
	StageSolved        Stage = "solved"
	StageVerified      Stage = "verified"
	StageSubmitted     Stage = "submitted"
	StageSkipped       Stage = "skipped"
)

var allStages = []Stage{StageStarted, StageOrdersFetched, StageSolved, StageVerified, StageSubmitted, StageSkipped}

var (
	batchStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_stage_total",
		Help:      "Number of batches that reached each pipeline stage.",
	}, []string{"stage"})

	batchStageElapsedSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "batch_stage_elapsed_seconds",
		Help:      "Seconds elapsed since batch solving began, as of reaching each stage.",
	}, []string{"stage"})
)

// RecordStage increments the counter for a pipeline stage and records how
// long it took to reach it relative to solveStart.
func RecordStage(stage Stage, solveStart time.Time) {
	batchStageTotal.WithLabelValues(string(stage)).Inc()
	batchStageElapsedSeconds.WithLabelValues(string(stage)).Set(time.Since(solveStart).Seconds())
}

// Reset zeroes every stage's elapsed-time gauge, called at the start of a
// new batch so a skipped stage from the previous batch doesn't linger.
func Reset() {
	for _, s := range allStages {
		batchStageElapsedSeconds.WithLabelValues(string(s)).Set(0)
	}
}
