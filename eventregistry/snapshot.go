package eventregistry

import (
	"encoding/gob"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// gobEvent is the wire shape persisted to disk. dextypes.Event's *big.Int
// fields gob-encode fine directly, but we flatten through a plain struct so
// the on-disk format doesn't depend on unexported fields ever appearing in
// dextypes.Event, and so a future field addition there can't silently break
// decoding of older snapshots.
type gobEvent struct {
	Kind EventKindWire

	Token     uint16
	TokenAddr common.Address

	User          common.Address
	Amount        *big.Int
	CreditBatch   uint64
	EarliestBatch uint64

	OrderID     uint16
	BuyToken    uint16
	SellToken   uint16
	ValidFrom   uint64
	ValidUntil  uint64
	Numerator   *big.Int
	Denominator *big.Int

	ExecutedSell *big.Int
	ExecutedBuy  *big.Int

	Submitter common.Address
	Utility   *big.Int
	Fee       *big.Int
}

// EventKindWire mirrors dextypes.EventKind as a distinct named int so the
// gob stream is self-describing independent of the in-memory iota values.
type EventKindWire int

type gobEntry struct {
	BlockNumber uint64
	BlockHash   common.Hash
	LogIndex    uint
	BatchID     uint64
	Event       gobEvent
}

type gobRegistry struct {
	LastHandled uint64
	Entries     []gobEntry
}

func toWire(e entry) gobEntry {
	ev := e.event
	return gobEntry{
		BlockNumber: e.key.BlockNumber,
		BlockHash:   e.key.BlockHash,
		LogIndex:    e.key.LogIndex,
		BatchID:     uint64(e.batchID),
		Event: gobEvent{
			Kind:          EventKindWire(ev.Kind),
			Token:         uint16(ev.Token),
			TokenAddr:     ev.TokenAddr,
			User:          ev.User,
			Amount:        ev.Amount,
			CreditBatch:   uint64(ev.CreditBatch),
			EarliestBatch: uint64(ev.EarliestBatch),
			OrderID:       ev.OrderID,
			BuyToken:      uint16(ev.BuyToken),
			SellToken:     uint16(ev.SellToken),
			ValidFrom:     uint64(ev.ValidFrom),
			ValidUntil:    uint64(ev.ValidUntil),
			Numerator:     ev.Numerator,
			Denominator:   ev.Denominator,
			ExecutedSell:  ev.ExecutedSell,
			ExecutedBuy:   ev.ExecutedBuy,
			Submitter:     ev.Submitter,
			Utility:       ev.Utility,
			Fee:           ev.Fee,
		},
	}
}

func fromWire(g gobEntry) entry {
	return entry{
		key: dextypes.EventKey{
			BlockNumber: g.BlockNumber,
			BlockHash:   g.BlockHash,
			LogIndex:    g.LogIndex,
		},
		batchID: dextypes.BatchId(g.BatchID),
		event: dextypes.Event{
			Kind:          dextypes.EventKind(g.Event.Kind),
			Token:         dextypes.TokenId(g.Event.Token),
			TokenAddr:     g.Event.TokenAddr,
			User:          g.Event.User,
			Amount:        g.Event.Amount,
			CreditBatch:   dextypes.BatchId(g.Event.CreditBatch),
			EarliestBatch: dextypes.BatchId(g.Event.EarliestBatch),
			OrderID:       g.Event.OrderID,
			BuyToken:      dextypes.TokenId(g.Event.BuyToken),
			SellToken:     dextypes.TokenId(g.Event.SellToken),
			ValidFrom:     dextypes.BatchId(g.Event.ValidFrom),
			ValidUntil:    dextypes.BatchId(g.Event.ValidUntil),
			Numerator:     g.Event.Numerator,
			Denominator:   g.Event.Denominator,
			ExecutedSell:  g.Event.ExecutedSell,
			ExecutedBuy:   g.Event.ExecutedBuy,
			Submitter:     g.Event.Submitter,
			Utility:       g.Event.Utility,
			Fee:           g.Event.Fee,
		},
	}
}

// SnapshotTo writes the registry to path via temp-file + rename, so a
// crash mid-write never leaves a truncated snapshot in place.
func (r *Registry) SnapshotTo(path string) error {
	r.mu.RLock()
	snap := gobRegistry{LastHandled: r.lastHandled, Entries: make([]gobEntry, len(r.entries))}
	for i, e := range r.entries {
		snap.Entries[i] = toWire(e)
	}
	r.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("eventregistry: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("eventregistry: encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("eventregistry: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("eventregistry: close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("eventregistry: rename snapshot into place: %w", err)
	}
	return nil
}

// LoadFrom deserializes path into a new Registry. A missing or
// corrupt file is treated as an empty registry, logged rather than
// returned as an error, since the caller's only recourse is to resync
// from genesis anyway.
func LoadFrom(path string) *Registry {
	r := New()

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("eventregistry: snapshot unreadable, starting empty", "path", path, "err", err)
		}
		return r
	}
	defer f.Close()

	var snap gobRegistry
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		log.Warn("eventregistry: snapshot corrupt, starting empty", "path", path, "err", err)
		return r
	}

	r.entries = make([]entry, len(snap.Entries))
	r.index = make(map[dextypes.EventKey]int, len(snap.Entries))
	for i, g := range snap.Entries {
		e := fromWire(g)
		r.entries[i] = e
		r.index[e.key] = i
	}
	r.lastHandled = snap.LastHandled
	return r
}
