// Package scheduler implements the per-session block scheduler (C5): a
// periodic interrogation cycle, spontaneous ingest, and a filtered
// last-value cache, one instance per (Session, CommonAddress, InterrogationGroup).
package scheduler

import (
	"sync"
	"time"

	"github.com/scada-io/iec104"
)

// Qualifier-of-interrogation group codes: station plus the sixteen groups.
const InterrogationStation = 20

// InterrogationGroup maps group N (1..16) to its QOI code (21..36).
func InterrogationGroup(n int) uint8 {
	return uint8(InterrogationStation + n)
}

// DefaultResponseTimeout is applied when Config.ResponseTimeout is zero.
const DefaultResponseTimeout = 5 * time.Second

// Config describes one block: which common address it interrogates, with
// which qualifier, on what period, and which objects it retains.
type Config struct {
	CA              uint16
	QOI             uint8           // InterrogationStation or InterrogationGroup(n)
	Period          time.Duration
	ResponseTimeout time.Duration           // default 5s, per §4.5
	IOAFilter       map[uint32]bool         // nil = accept all IOAs
	TypeIDFilter    map[iec104.TypeID]bool  // nil = accept all types
	Enabled         bool
}

// Block maintains its own filtered last-value cache and interrogation
// schedule; it never touches the network directly except through the
// Session passed at construction. Feed is the only entry point by which
// ASDUs reach it — the owning Scheduler performs the one session-wide
// dequeue and fans results out to every block (§4.5: "one session-wide
// dequeue must feed all blocks on that session").
type Block struct {
	cfg     Config
	session *iec104.Session

	cacheMu sync.RWMutex
	cache   map[uint32]iec104.InformationObject

	lastSuccessful time.Time
	awaiting       bool
	awaitDeadline  time.Time
}

// NewBlock constructs a Block bound to session.
func NewBlock(session *iec104.Session, cfg Config) *Block {
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	return &Block{
		cfg:     cfg,
		session: session,
		cache:   make(map[uint32]iec104.InformationObject),
	}
}

// Get returns the cached value for ioa, if any.
func (b *Block) Get(ioa uint32) (iec104.InformationObject, bool) {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	obj, ok := b.cache[ioa]
	return obj, ok
}

// Iter calls fn for every cached object. The cache stores only the decoded
// value keyed by IOA, not its originating TypeID, so callers that need to
// discriminate by type must branch on obj.Value.Kind inside fn (the
// TypeIDFilter on Config already bounds what gets cached in the first
// place).
func (b *Block) Iter(fn func(ioa uint32, obj iec104.InformationObject)) {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	for ioa, obj := range b.cache {
		fn(ioa, obj)
	}
}

// Clear empties the cache.
func (b *Block) Clear() {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	b.cache = make(map[uint32]iec104.InformationObject)
}

func (b *Block) accept(ioa uint32, t iec104.TypeID) bool {
	if b.cfg.IOAFilter != nil && !b.cfg.IOAFilter[ioa] {
		return false
	}
	if b.cfg.TypeIDFilter != nil && !b.cfg.TypeIDFilter[t] {
		return false
	}
	return true
}

// Feed hands one just-dequeued ASDU to the block. Objects whose CA matches
// and pass the IOA/TypeID filters are written into the cache; Invalid
// quality still updates the cache since the flag is part of the value.
// Unmatched CAs are ignored by this block (but still consumed by the
// Scheduler's single session-wide dequeue).
func (b *Block) Feed(a *iec104.ASDU) {
	if a.CA != b.cfg.CA {
		return
	}
	b.cacheMu.Lock()
	for _, obj := range a.Objects {
		if b.accept(obj.IOA, a.TypeID) {
			b.cache[obj.IOA] = obj
		}
	}
	b.cacheMu.Unlock()

	if b.awaiting && a.TypeID == iec104.CInterrogation && a.Cause == iec104.CauseActivationTermination {
		b.awaiting = false
		b.lastSuccessful = time.Now()
	}
}

// tick is called once per Scheduler cycle after Feed has run for every ASDU
// in that cycle's batch; it starts a new interrogation if due, and expires
// one in progress that timed out without activation termination.
func (b *Block) tick(now time.Time) {
	if !b.cfg.Enabled {
		return
	}
	if b.awaiting {
		if now.After(b.awaitDeadline) {
			b.awaiting = false // timed out; §5 Cancellation: no wire unwind, data is simply ingested or dropped
		}
		return
	}
	if now.Sub(b.lastSuccessful) < b.cfg.Period {
		return
	}
	if b.session.State() != iec104.StateActive {
		return
	}
	if err := b.session.SendInterrogation(b.cfg.CA, b.cfg.QOI); err != nil {
		return
	}
	b.awaiting = true
	b.awaitDeadline = now.Add(b.cfg.ResponseTimeout)
}
