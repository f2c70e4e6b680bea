// Package ledger tracks ranked-play chip balances against an external
// bank feed: deposits reconciled from feed transfers, proof-of-work
// gated withdrawals, and a watchdog that freezes ranked play when the
// books stop balancing.
package ledger

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrFrozen              = errors.New("ledger: ranked play frozen")
	ErrWithdrawInFlight    = errors.New("ledger: withdrawal already in flight")
)

// Ledger is the authoritative chip balance book. One mutex guards all
// state; it is never held across a network call. Network work (feed
// polls, transfers) happens outside the lock and re-enters through the
// conditional mutators.
type Ledger struct {
	clock quartz.Clock
	audit *Audit

	mu             sync.Mutex
	balances       map[string]int
	withdrawing    map[string]time.Time // account -> hold start
	totalDeposited int
	totalWithdrawn int

	frozen atomic.Bool
}

// New creates an empty ledger writing to the given audit trail.
func New(clock quartz.Clock, audit *Audit) *Ledger {
	return &Ledger{
		clock:       clock,
		audit:       audit,
		balances:    make(map[string]int),
		withdrawing: make(map[string]time.Time),
	}
}

// Balance returns the account's available chips.
func (l *Ledger) Balance(account string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Credit adds chips to an account, creating it if needed.
func (l *Ledger) Credit(account string, amount int, reason string) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	before := l.balances[account]
	l.balances[account] = before + amount
	l.mu.Unlock()
	l.audit.RecordBalance(EntryCredit, account, amount, before, before+amount, reason)
}

// Debit removes chips only when the balance covers the amount and no
// withdrawal holds the account. The check and the mutation happen under
// one lock acquisition, so two concurrent spends cannot both pass.
func (l *Ledger) Debit(account string, amount int, reason string) error {
	l.mu.Lock()
	if _, held := l.withdrawing[account]; held {
		l.mu.Unlock()
		return ErrWithdrawInFlight
	}
	before := l.balances[account]
	if before < amount {
		l.mu.Unlock()
		return ErrInsufficientBalance
	}
	l.balances[account] = before - amount
	l.mu.Unlock()
	l.audit.RecordBalance(EntryDebit, account, amount, before, before-amount, reason)
	return nil
}

// recordDeposit credits a reconciled deposit and grows the deposit total.
func (l *Ledger) recordDeposit(account string, amount int) {
	l.mu.Lock()
	before := l.balances[account]
	l.balances[account] = before + amount
	l.totalDeposited += amount
	l.mu.Unlock()
	l.audit.RecordBalance(EntryDeposit, account, amount, before, before+amount, "reconciled")
}

// beginWithdraw places a hold on the account after checking funds. The
// hold blocks debits (ranked joins) while the external transfer runs.
func (l *Ledger) beginWithdraw(account string, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.withdrawing[account]; held {
		return ErrWithdrawInFlight
	}
	if l.balances[account] < amount {
		return ErrInsufficientBalance
	}
	l.withdrawing[account] = l.clock.Now()
	return nil
}

// finishWithdraw releases the hold; when transferred is true the amount
// is debited and counted as withdrawn. The transfer already succeeded by
// then, so the debit cannot fail short of a conservation bug, which the
// watchdog exists to catch.
func (l *Ledger) finishWithdraw(account string, amount int, transferred bool) {
	l.mu.Lock()
	delete(l.withdrawing, account)
	before := l.balances[account]
	if transferred {
		l.balances[account] = before - amount
		l.totalWithdrawn += amount
	}
	l.mu.Unlock()
	if transferred {
		l.audit.RecordBalance(EntryWithdraw, account, amount, before, before-amount, "transferred")
	}
}

// Snapshot is a consistent copy of the books for the watchdog and the
// status endpoints.
type Snapshot struct {
	Balances       map[string]int
	TotalBalance   int
	TotalDeposited int
	TotalWithdrawn int
	Withdrawing    map[string]time.Time
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := Snapshot{
		Balances:       make(map[string]int, len(l.balances)),
		TotalDeposited: l.totalDeposited,
		TotalWithdrawn: l.totalWithdrawn,
		Withdrawing:    make(map[string]time.Time, len(l.withdrawing)),
	}
	for acct, since := range l.withdrawing {
		snap.Withdrawing[acct] = since
	}
	for acct, bal := range l.balances {
		snap.Balances[acct] = bal
		snap.TotalBalance += bal
	}
	return snap
}

// Frozen reports whether ranked play is frozen.
func (l *Ledger) Frozen() bool { return l.frozen.Load() }

// Freeze stops ranked joins and withdrawals until operator intervention.
func (l *Ledger) Freeze(reason string) {
	if l.frozen.CompareAndSwap(false, true) {
		l.audit.Record(EntryFreeze, "", 0, reason)
	}
}

// Unfreeze re-enables ranked play.
func (l *Ledger) Unfreeze() {
	if l.frozen.CompareAndSwap(true, false) {
		l.audit.Record(EntryUnfreeze, "", 0, "operator")
	}
}
