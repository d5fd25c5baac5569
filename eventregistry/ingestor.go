package eventregistry

import (
	"context"
	"fmt"
	"time"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// ChainReader is the subset of chaingateway.ChainGateway Ingestor needs,
// kept narrow so this package doesn't import chaingateway (which would
// otherwise be its only dependent outside the driver wiring).
type ChainReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
	PastEvents(ctx context.Context, fromBlock, toBlock uint64, pageSize int) ([]dextypes.LoggedEvent, error)
}

// IngestorConfig names the two fixed parameters the reorg update protocol
// below takes.
type IngestorConfig struct {
	// ConfirmationDepth blocks are re-deleted and replayed on every
	// refresh, so a reorg within that depth is always corrected.
	ConfirmationDepth uint64
	// PageSize bounds a single PastEvents call.
	PageSize int
}

// Ingestor drives Registry from a ChainReader, implementing the
// caller-driven reorg update protocol: truncate the last
// ConfirmationDepth blocks, refetch from there to the new head, and
// replay.
type Ingestor struct {
	Registry *Registry
	Chain    ChainReader
	Config   IngestorConfig
}

// NewIngestor wires an Ingestor with conservative defaults (confirmation
// depth 25, page size 2000) unless overridden by cfg.
func NewIngestor(registry *Registry, chain ChainReader, cfg IngestorConfig) *Ingestor {
	if cfg.ConfirmationDepth == 0 {
		cfg.ConfirmationDepth = 25
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 2000
	}
	return &Ingestor{Registry: registry, Chain: chain, Config: cfg}
}

// RefreshOnce runs one cycle of the reorg update protocol: delete from
// max(0, last_handled-ConfirmationDepth), fetch past_events up to the
// current chain head, append each, and advance last_handled.
func (ing *Ingestor) RefreshOnce(ctx context.Context) error {
	head, err := ing.Chain.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("eventregistry: ingestor latest block: %w", err)
	}

	lastHandled := ing.Registry.LastHandled()
	fromBlock := uint64(0)
	if lastHandled > ing.Config.ConfirmationDepth {
		fromBlock = lastHandled - ing.Config.ConfirmationDepth
	}
	if head < fromBlock {
		// Node reports a head behind our own bookkeeping (a stale RPC
		// endpoint, or a deep reorg); nothing safe to do this cycle.
		return nil
	}

	ing.Registry.DeleteFromBlock(fromBlock)

	events, err := ing.Chain.PastEvents(ctx, fromBlock, head, ing.Config.PageSize)
	if err != nil {
		return fmt.Errorf("eventregistry: ingestor past events [%d,%d]: %w", fromBlock, head, err)
	}

	for _, e := range events {
		// Append derives batch id from the timestamp it's given via
		// blockTimestampToBatch; the start of the batch PastEvents
		// already resolved reconstructs the identical id.
		ing.Registry.Append(e.Key, e.BatchID.StartTime().Unix(), e.Event)
	}

	ing.Registry.SetLastHandled(head)
	return nil
}

// Run calls RefreshOnce every interval until ctx is cancelled, logging
// (via the caller-supplied onError) rather than halting on a single
// failed refresh cycle — a transient RPC error should not stop the
// registry from catching up next tick.
func (ing *Ingestor) Run(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ing.RefreshOnce(ctx); err != nil && onError != nil {
			onError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
