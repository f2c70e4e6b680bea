package ledger

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const (
	// powDifficulty is the required number of leading zero hex digits in
	// sha256(seed + nonce).
	powDifficulty = 5

	// MaxNonce bounds the solver's search; a conforming challenge is
	// expected to be solvable well within it.
	MaxNonce = 10_000_000

	challengeTTL = 5 * time.Minute
)

var (
	ErrBadProof         = errors.New("ledger: proof of work invalid")
	ErrNoSuchChallenge  = errors.New("ledger: no such challenge")
	ErrChallengeExpired = errors.New("ledger: challenge expired")
)

// Challenge is a withdrawal proof-of-work puzzle. The client must find a
// nonce such that sha256(seed + nonce) starts with Difficulty zero hex
// digits. The cost rate-limits withdrawals without trusting the client.
type Challenge struct {
	Seed       string    `json:"seed"`
	Difficulty int       `json:"difficulty"`
	IssuedAt   time.Time `json:"-"`
}

// Withdrawer runs the withdraw flow: challenge, proof check, hold,
// external transfer, then debit. The ledger is only debited after the
// bank confirms the transfer, so a failed transfer leaves the balance
// untouched.
type Withdrawer struct {
	clock  quartz.Clock
	ledger *Ledger
	feed   BankFeed

	mu         sync.Mutex
	challenges map[string]Challenge // keyed by account
}

// NewWithdrawer creates the withdraw flow over the given feed.
func NewWithdrawer(clock quartz.Clock, l *Ledger, feed BankFeed) *Withdrawer {
	return &Withdrawer{
		clock:      clock,
		ledger:     l,
		feed:       feed,
		challenges: make(map[string]Challenge),
	}
}

// NewChallenge issues a fresh challenge for the account, replacing any
// outstanding one.
func (w *Withdrawer) NewChallenge(account string) (Challenge, error) {
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return Challenge{}, err
	}
	ch := Challenge{
		Seed:       hex.EncodeToString(seed),
		Difficulty: powDifficulty,
		IssuedAt:   w.clock.Now(),
	}
	w.mu.Lock()
	w.challenges[account] = ch
	w.mu.Unlock()
	return ch, nil
}

// Withdraw verifies the proof and transfers amount to the account's bank
// address. The account is held for the duration of the transfer so it
// cannot also buy into a ranked table with the same chips.
func (w *Withdrawer) Withdraw(ctx context.Context, account string, amount int, nonce uint64) error {
	if w.ledger.Frozen() {
		return ErrFrozen
	}
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive amount", ErrInsufficientBalance)
	}

	w.mu.Lock()
	ch, ok := w.challenges[account]
	w.mu.Unlock()
	if !ok {
		return ErrNoSuchChallenge
	}
	if w.clock.Now().Sub(ch.IssuedAt) > challengeTTL {
		return ErrChallengeExpired
	}
	if !VerifyProof(ch.Seed, ch.Difficulty, nonce) {
		return ErrBadProof
	}

	// A solved challenge is single-use regardless of outcome.
	w.mu.Lock()
	delete(w.challenges, account)
	w.mu.Unlock()

	if err := w.ledger.beginWithdraw(account, amount); err != nil {
		return err
	}

	// Network transfer runs with the hold in place but no lock held.
	err := w.feed.Transfer(ctx, account, amount, "withdraw:"+account)
	w.ledger.finishWithdraw(account, amount, err == nil)
	return err
}

// VerifyProof checks a proof-of-work solution.
func VerifyProof(seed string, difficulty int, nonce uint64) bool {
	sum := sha256.Sum256([]byte(seed + strconv.FormatUint(nonce, 10)))
	digest := hex.EncodeToString(sum[:])
	return strings.HasPrefix(digest, strings.Repeat("0", difficulty))
}

// SolveChallenge searches for a valid nonce. Used by tests and example
// clients; a real agent will run its own solver.
func SolveChallenge(seed string, difficulty int) (uint64, bool) {
	for nonce := uint64(0); nonce < MaxNonce; nonce++ {
		if VerifyProof(seed, difficulty, nonce) {
			return nonce, true
		}
	}
	return 0, false
}
