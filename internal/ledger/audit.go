package ledger

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// Entry kinds in the audit trail.
const (
	EntryCredit   = "credit"
	EntryDebit    = "debit"
	EntryDeposit  = "deposit"
	EntryWithdraw = "withdraw"
	EntryFreeze   = "freeze"
	EntryUnfreeze = "unfreeze"
	EntryAlert    = "alert"
)

const (
	auditCap  = 10000
	auditTrim = 5000
)

// Entry is one audited ledger movement. Balance-affecting entries carry
// the account balance before and after the movement.
type Entry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Account string    `json:"account,omitempty"`
	Amount  int       `json:"amount,omitempty"`
	Before  int       `json:"before"`
	After   int       `json:"after"`
	Detail  string    `json:"detail,omitempty"`
}

// Audit keeps a bounded in-memory trail of ledger movements and mirrors
// each entry to a structured JSON log for offline reconciliation.
type Audit struct {
	logger zerolog.Logger
	clock  quartz.Clock

	mu      sync.Mutex
	entries []Entry
}

// NewAudit creates an audit trail logging through logger.
func NewAudit(logger zerolog.Logger, clock quartz.Clock) *Audit {
	return &Audit{logger: logger, clock: clock}
}

// Record appends an entry with no balance movement, trimming the oldest
// half when the trail overflows its cap.
func (a *Audit) Record(kind, account string, amount int, detail string) {
	a.record(Entry{
		Time:    a.clock.Now(),
		Type:    kind,
		Account: account,
		Amount:  amount,
		Detail:  detail,
	})
}

// RecordBalance appends a balance-affecting entry. before and after are
// the account balance around the movement, captured by the caller
// inside the ledger's critical section.
func (a *Audit) RecordBalance(kind, account string, amount, before, after int, detail string) {
	a.record(Entry{
		Time:    a.clock.Now(),
		Type:    kind,
		Account: account,
		Amount:  amount,
		Before:  before,
		After:   after,
		Detail:  detail,
	})
}

func (a *Audit) record(entry Entry) {
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > auditCap {
		a.entries = append([]Entry(nil), a.entries[len(a.entries)-auditTrim:]...)
	}
	a.mu.Unlock()

	a.logger.Info().
		Str("entry", entry.Type).
		Str("account", entry.Account).
		Int("amount", entry.Amount).
		Int("before", entry.Before).
		Int("after", entry.After).
		Str("detail", entry.Detail).
		Msg("ledger")
}

// Recent returns up to n newest entries, newest last.
func (a *Audit) Recent(n int) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}
	out := make([]Entry, n)
	copy(out, a.entries[len(a.entries)-n:])
	return out
}
