package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

const (
	// WatchdogInterval is the fraud check period.
	WatchdogInterval = 60 * time.Second

	// spikeThreshold flags any single-cycle balance jump at or above
	// this for review.
	spikeThreshold = 200

	// staleHold flags withdrawal holds older than this; a transfer
	// should never take minutes.
	staleHold = 5 * time.Minute

	// conservationSlack tolerates one chip of rounding in the books.
	conservationSlack = 1
)

// Seating reports which ranked tables each account is seated at, and the
// chips currently on ranked tables. Implemented by the server's table
// registry.
type Seating interface {
	RankedSeatings() map[string][]string
	RankedChips() int
}

// Watchdog runs periodic fraud and conservation checks over the ledger.
// Alerts go to the audit trail; a conservation violation freezes ranked
// play outright.
type Watchdog struct {
	logger  zerolog.Logger
	clock   quartz.Clock
	ledger  *Ledger
	seating Seating

	mu   sync.Mutex
	prev map[string]int
}

// NewWatchdog creates a watchdog over the ledger and table seatings.
func NewWatchdog(logger zerolog.Logger, clock quartz.Clock, l *Ledger, seating Seating) *Watchdog {
	return &Watchdog{
		logger:  logger.With().Str("component", "watchdog").Logger(),
		clock:   clock,
		ledger:  l,
		seating: seating,
	}
}

// Check runs one watchdog cycle.
func (w *Watchdog) Check() {
	snap := w.ledger.Snapshot()
	seatings := w.seating.RankedSeatings()
	inGame := w.seating.RankedChips()

	// Conservation: chips in balances plus chips on ranked tables can
	// never exceed what was deposited minus what was withdrawn.
	budget := snap.TotalDeposited - snap.TotalWithdrawn + conservationSlack
	if snap.TotalBalance+inGame > budget {
		w.logger.Error().
			Int("balances", snap.TotalBalance).
			Int("in_game", inGame).
			Int("deposited", snap.TotalDeposited).
			Int("withdrawn", snap.TotalWithdrawn).
			Msg("chip conservation violated, freezing ranked play")
		w.ledger.Freeze(fmt.Sprintf("conservation: %d+%d > %d", snap.TotalBalance, inGame, budget))
	}

	// Sudden balance jumps are legal (a big pot) but worth an alert.
	w.mu.Lock()
	for acct, bal := range snap.Balances {
		if prev, ok := w.prev[acct]; ok && bal-prev >= spikeThreshold {
			w.ledger.audit.Record(EntryAlert, acct, bal-prev, "balance spike")
			w.logger.Warn().Str("account", acct).Int("jump", bal-prev).Msg("balance spike")
		}
	}
	w.prev = snap.Balances
	w.mu.Unlock()

	// One account on several ranked tables at once is the classic
	// chip-dumping setup.
	for acct, tables := range seatings {
		if len(tables) > 1 {
			w.ledger.audit.Record(EntryAlert, acct, 0, fmt.Sprintf("seated at %d ranked tables", len(tables)))
			w.logger.Warn().Str("account", acct).Strs("tables", tables).Msg("multi-table ranked seating")
		}
	}

	// A withdrawal hold should clear within seconds.
	now := w.clock.Now()
	for acct, since := range snap.Withdrawing {
		if now.Sub(since) > staleHold {
			w.ledger.audit.Record(EntryAlert, acct, 0, "stale withdrawal hold")
			w.logger.Warn().Str("account", acct).Dur("held", now.Sub(since)).Msg("stale withdrawal hold")
		}
	}
}

// Run checks on the watchdog interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}
