package eventregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

type fakeChainReader struct {
	head    uint64
	events  []dextypes.LoggedEvent
	pastErr error
	calls   [][2]uint64
}

func (f *fakeChainReader) LatestBlock(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeChainReader) PastEvents(ctx context.Context, fromBlock, toBlock uint64, pageSize int) ([]dextypes.LoggedEvent, error) {
	f.calls = append(f.calls, [2]uint64{fromBlock, toBlock})
	if f.pastErr != nil {
		return nil, f.pastErr
	}
	var out []dextypes.LoggedEvent
	for _, e := range f.events {
		if e.Key.BlockNumber >= fromBlock && e.Key.BlockNumber <= toBlock {
			out = append(out, e)
		}
	}
	return out, nil
}

func loggedPlaceOrder(block uint64, batch dextypes.BatchId, user common.Address, orderID uint16) dextypes.LoggedEvent {
	return dextypes.LoggedEvent{
		Key:     key(block, 0),
		BatchID: batch,
		Event:   placeOrder(user, orderID, 1, 0, batch, batch+10, 1, 100),
	}
}

func TestIngestorRefreshOnceAppendsEventsUpToHead(t *testing.T) {
	r := New()
	chain := &fakeChainReader{
		head:   100,
		events: []dextypes.LoggedEvent{loggedPlaceOrder(50, 1, common.HexToAddress("0x1"), 1)},
	}
	ing := NewIngestor(r, chain, IngestorConfig{})

	require.NoError(t, ing.RefreshOnce(context.Background()))

	assert.EqualValues(t, 100, r.LastHandled())
	require.Len(t, chain.calls, 1)
	assert.EqualValues(t, 0, chain.calls[0][0])
	assert.EqualValues(t, 100, chain.calls[0][1])
}

func TestIngestorRefreshOnceDeletesWithinConfirmationDepthBeforeRefetch(t *testing.T) {
	r := New()
	r.Append(key(40, 0), dextypes.BatchId(0).StartTime().Unix(), placeOrder(common.HexToAddress("0x1"), 1, 1, 0, 0, 10, 1, 100))
	r.Append(key(90, 0), dextypes.BatchId(0).StartTime().Unix(), placeOrder(common.HexToAddress("0x1"), 2, 1, 0, 0, 10, 1, 100))
	require.EqualValues(t, 90, r.LastHandled())

	chain := &fakeChainReader{head: 120}
	ing := NewIngestor(r, chain, IngestorConfig{ConfirmationDepth: 25})

	require.NoError(t, ing.RefreshOnce(context.Background()))

	// block 90 is within 25 of lastHandled(90), so from_block = 65: the
	// entry at block 40 survives, the entry at block 90 is truncated
	// (and absent from the fake's replay since it returns nothing).
	assert.EqualValues(t, 65, chain.calls[0][0])
	events := r.EventsForBatch(1000)
	assert.Len(t, events, 1)
	assert.EqualValues(t, 40, events[0].Key.BlockNumber)
}

func TestIngestorRefreshOnceAdvancesLastHandledEvenWithNoEvents(t *testing.T) {
	r := New()
	chain := &fakeChainReader{head: 200}
	ing := NewIngestor(r, chain, IngestorConfig{})

	require.NoError(t, ing.RefreshOnce(context.Background()))
	assert.EqualValues(t, 200, r.LastHandled())
}

func TestIngestorRefreshOnceReturnsErrorOnFetchFailure(t *testing.T) {
	r := New()
	chain := &fakeChainReader{head: 10, pastErr: errors.New("rpc down")}
	ing := NewIngestor(r, chain, IngestorConfig{})

	err := ing.RefreshOnce(context.Background())
	assert.Error(t, err)
}

func TestIngestorRefreshOnceSkipsWhenHeadBehindLastHandled(t *testing.T) {
	r := New()
	r.Append(key(500, 0), dextypes.BatchId(0).StartTime().Unix(), placeOrder(common.HexToAddress("0x1"), 1, 1, 0, 0, 10, 1, 100))
	require.EqualValues(t, 500, r.LastHandled())

	chain := &fakeChainReader{head: 10}
	ing := NewIngestor(r, chain, IngestorConfig{ConfirmationDepth: 25})

	require.NoError(t, ing.RefreshOnce(context.Background()))
	assert.Empty(t, chain.calls)
	assert.EqualValues(t, 500, r.LastHandled())
}
