package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed is an in-memory bank.
type fakeFeed struct {
	mu          sync.Mutex
	balance     int
	transferErr error
	transfers   []transferRequest
}

func (f *fakeFeed) Balance(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeFeed) Transfer(ctx context.Context, to string, amount int, memo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	f.balance -= amount
	f.transfers = append(f.transfers, transferRequest{To: to, Amount: amount, Memo: memo})
	return nil
}

func (f *fakeFeed) deposit(amount int) {
	f.mu.Lock()
	f.balance += amount
	f.mu.Unlock()
}

func newTestReconciler(t *testing.T) (*Reconciler, *Ledger, *fakeFeed, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	audit := NewAudit(zerolog.Nop(), clock)
	l := New(clock, audit)
	feed := &fakeFeed{balance: 10_000}
	r := NewReconciler(zerolog.Nop(), clock, l, feed)
	return r, l, feed, clock
}

func TestDepositRequestIssuesCode(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestReconciler(t)
	d, err := r.Request("alice", 300)
	require.NoError(t, err)
	assert.Len(t, d.Code, 6)
	assert.Equal(t, DepositWaiting, d.Status)

	// Only one live pending per account.
	_, err = r.Request("alice", 100)
	assert.ErrorIs(t, err, ErrDepositPending)
}

func TestReconcileCreditsExactMatch(t *testing.T) {
	t.Parallel()

	r, l, feed, _ := newTestReconciler(t)
	ctx := context.Background()
	require.NoError(t, r.Reconcile(ctx)) // establish baseline

	_, err := r.Request("alice", 300)
	require.NoError(t, err)

	feed.deposit(300)
	require.NoError(t, r.Reconcile(ctx))

	assert.Equal(t, 300, l.Balance("alice"))
	status, ok := r.Status("alice")
	require.True(t, ok)
	assert.Equal(t, DepositCredited, status.Status)
}

func TestReconcileExactMatchBeatsOlderFIFO(t *testing.T) {
	t.Parallel()

	r, l, feed, clock := newTestReconciler(t)
	ctx := context.Background()
	require.NoError(t, r.Reconcile(ctx))

	_, err := r.Request("alice", 500) // older, bigger
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = r.Request("bob", 300) // newer, exact
	require.NoError(t, err)

	feed.deposit(300)
	require.NoError(t, r.Reconcile(ctx))

	// The exact 300 goes to bob even though alice asked first.
	assert.Equal(t, 0, l.Balance("alice"))
	assert.Equal(t, 300, l.Balance("bob"))
}

func TestReconcileFIFOWhenNoExactMatch(t *testing.T) {
	t.Parallel()

	r, l, feed, clock := newTestReconciler(t)
	ctx := context.Background()
	require.NoError(t, r.Reconcile(ctx))

	_, err := r.Request("alice", 200)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = r.Request("bob", 300)
	require.NoError(t, err)

	feed.deposit(500)
	require.NoError(t, r.Reconcile(ctx))

	assert.Equal(t, 200, l.Balance("alice"))
	assert.Equal(t, 300, l.Balance("bob"))
}

func TestReconcileNeverCreditsTwice(t *testing.T) {
	t.Parallel()

	r, l, feed, _ := newTestReconciler(t)
	ctx := context.Background()
	require.NoError(t, r.Reconcile(ctx))

	_, err := r.Request("alice", 300)
	require.NoError(t, err)
	feed.deposit(300)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Reconcile(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 300, l.Balance("alice"))
	assert.Equal(t, 300, l.Snapshot().TotalDeposited)
}

func TestDepositExpiresAfterMatchWindow(t *testing.T) {
	t.Parallel()

	r, l, feed, clock := newTestReconciler(t)
	ctx := context.Background()
	require.NoError(t, r.Reconcile(ctx))

	_, err := r.Request("alice", 300)
	require.NoError(t, err)

	clock.Advance(depositMatchWindow + time.Minute)
	feed.deposit(300)
	require.NoError(t, r.Reconcile(ctx))

	// Too late: the transfer is unattributed, not credited.
	assert.Equal(t, 0, l.Balance("alice"))
	status, ok := r.Status("alice")
	require.True(t, ok)
	assert.Equal(t, DepositExpired, status.Status)

	// And the record itself ages out after the retention window.
	clock.Advance(depositRetention + time.Hour)
	_, ok = r.Status("alice")
	assert.False(t, ok)
}

func TestWithdrawShrinkageMovesBaseline(t *testing.T) {
	t.Parallel()

	r, l, feed, _ := newTestReconciler(t)
	ctx := context.Background()
	require.NoError(t, r.Reconcile(ctx))

	// House balance drops (a withdrawal paid out); nothing credited.
	feed.mu.Lock()
	feed.balance -= 400
	feed.mu.Unlock()
	require.NoError(t, r.Reconcile(ctx))

	_, err := r.Request("alice", 300)
	require.NoError(t, err)
	feed.deposit(300)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 300, l.Balance("alice"))
}
