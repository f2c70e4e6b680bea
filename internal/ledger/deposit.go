package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

const (
	// depositMatchWindow is how long a pending deposit stays matchable.
	depositMatchWindow = 10 * time.Minute

	// depositRetention is how long an expired pending is kept for status
	// queries before it is deleted outright.
	depositRetention = 24 * time.Hour

	// ReconcileInterval is the bank feed polling period.
	ReconcileInterval = 60 * time.Second
)

var ErrDepositPending = errors.New("ledger: deposit already pending")

// DepositStatus is the lifecycle of a pending deposit.
type DepositStatus string

const (
	DepositWaiting  DepositStatus = "waiting"
	DepositCredited DepositStatus = "credited"
	DepositExpired  DepositStatus = "expired"
)

// Deposit is one requested top-up awaiting reconciliation.
type Deposit struct {
	Account   string        `json:"account"`
	Amount    int           `json:"amount"`
	Code      string        `json:"code"`
	Status    DepositStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Reconciler matches incoming bank transfers to pending deposits. The
// feed is only consulted outside the ledger lock; matching and crediting
// happen inside one critical section so a transfer can never be credited
// twice even when reconcile cycles overlap.
type Reconciler struct {
	logger zerolog.Logger
	clock  quartz.Clock
	ledger *Ledger
	feed   BankFeed

	mu          sync.Mutex
	pending     map[string]*Deposit // keyed by account
	baseline    int
	baselineSet bool
}

// NewReconciler creates a reconciler over the given feed.
func NewReconciler(logger zerolog.Logger, clock quartz.Clock, l *Ledger, feed BankFeed) *Reconciler {
	return &Reconciler{
		logger:  logger.With().Str("component", "reconciler").Logger(),
		clock:   clock,
		ledger:  l,
		feed:    feed,
		pending: make(map[string]*Deposit),
	}
}

// Request registers a deposit intent and returns the match code the
// player must attach to their transfer. An account can only have one
// live pending; a request while one is waiting is rejected.
func (r *Reconciler) Request(account string, amount int) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()
	if d, ok := r.pending[account]; ok && d.Status == DepositWaiting {
		return nil, ErrDepositPending
	}

	code := make([]byte, 3)
	if _, err := rand.Read(code); err != nil {
		return nil, err
	}
	d := &Deposit{
		Account:   account,
		Amount:    amount,
		Code:      hex.EncodeToString(code),
		Status:    DepositWaiting,
		CreatedAt: r.clock.Now(),
	}
	r.pending[account] = d
	out := *d
	return &out, nil
}

// Status returns the account's most recent deposit, if still retained.
func (r *Reconciler) Status(account string) (*Deposit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireLocked()
	d, ok := r.pending[account]
	if !ok {
		return nil, false
	}
	out := *d
	return &out, true
}

// expireLocked ages out pendings past the match window and deletes those
// past retention.
func (r *Reconciler) expireLocked() {
	now := r.clock.Now()
	for acct, d := range r.pending {
		age := now.Sub(d.CreatedAt)
		switch {
		case age > depositRetention:
			delete(r.pending, acct)
		case d.Status == DepositWaiting && age > depositMatchWindow:
			d.Status = DepositExpired
		}
	}
}

// Reconcile runs one cycle: read the house balance off the feed, then
// attribute any growth to pending deposits. Exact amount matches win
// first; the rest is matched oldest-first. Growth that matches nothing
// is absorbed into the new baseline and flagged.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	// Network call strictly before any lock.
	balance, err := r.feed.Balance(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireLocked()

	if !r.baselineSet {
		r.baseline = balance
		r.baselineSet = true
		return nil
	}
	delta := balance - r.baseline
	if delta <= 0 {
		// Withdrawals shrink the house balance; just move the baseline.
		r.baseline = balance
		return nil
	}

	waiting := make([]*Deposit, 0, len(r.pending))
	for _, d := range r.pending {
		if d.Status == DepositWaiting {
			waiting = append(waiting, d)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})

	credit := func(d *Deposit) {
		d.Status = DepositCredited
		delta -= d.Amount
		r.ledger.recordDeposit(d.Account, d.Amount)
		r.logger.Info().Str("account", d.Account).Int("amount", d.Amount).Str("code", d.Code).Msg("deposit credited")
	}

	// Exact matches first, so one transfer of exactly the requested
	// amount always lands on its requester.
	for _, d := range waiting {
		if d.Status == DepositWaiting && d.Amount == delta {
			credit(d)
			break
		}
	}
	// Then oldest-first for whatever growth remains.
	for _, d := range waiting {
		if d.Status == DepositWaiting && d.Amount <= delta {
			credit(d)
		}
	}

	if delta > 0 {
		r.logger.Warn().Int("unattributed", delta).Msg("balance growth matched no pending deposit")
		r.ledger.audit.Record(EntryAlert, "", delta, "unattributed deposit growth")
	}
	r.baseline = balance
	return nil
}

// Run polls the feed until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("reconcile cycle failed")
			}
		}
	}
}
