// Package server ties the cardroom together: the TCP listener speaking
// the wire protocol, the table registry, the auth and rate-limit layer,
// and the ranked ledger plumbing.
package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openfelt/cardroom/internal/auth"
	"github.com/openfelt/cardroom/internal/broadcast"
	"github.com/openfelt/cardroom/internal/ledger"
	"github.com/openfelt/cardroom/internal/table"
)

var tableIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,24}$`)

var (
	ErrTableNotFound  = errors.New("server: table not found")
	ErrTableExists    = errors.New("server: table already exists")
	ErrTableLimit     = errors.New("server: table limit reached")
	ErrBadTableID     = errors.New("server: invalid table id")
	ErrBadBuyIn       = errors.New("server: buy-in out of range")
	ErrRankedDisabled = errors.New("server: ranked play not configured")
	ErrUnauthorized   = errors.New("server: invalid or missing token")
)

type tableEntry struct {
	tbl      *table.Table
	fanout   *broadcast.Fanout
	maxSeats int
	starting int
	buyMin   int
	buyMax   int
}

// Service owns all long-lived server state apart from the listener.
type Service struct {
	logger *log.Logger
	clock  quartz.Clock
	cfg    *Config

	tokens  *auth.TokenStore
	limiter *auth.RateLimiter
	creds   *auth.CredentialCache

	ledger     *ledger.Ledger
	reconciler *ledger.Reconciler
	withdrawer *ledger.Withdrawer
	watchdog   *ledger.Watchdog

	mu     sync.RWMutex
	tables map[string]*tableEntry

	group    *errgroup.Group
	groupCtx context.Context
}

// NewService builds the service from configuration. auditLog receives
// the ledger's JSON audit trail.
func NewService(cfg *Config, logger *log.Logger, auditLog zerolog.Logger, clock quartz.Clock) *Service {
	s := &Service{
		logger:  logger.WithPrefix("service"),
		clock:   clock,
		cfg:     cfg,
		tokens:  auth.NewTokenStore(clock),
		limiter: auth.NewRateLimiter(clock, nil),
		tables:  make(map[string]*tableEntry),
	}

	if cfg.Feed != nil {
		audit := ledger.NewAudit(auditLog, clock)
		s.ledger = ledger.New(clock, audit)
		feed := ledger.NewHTTPFeed(cfg.Feed.URL, cfg.Feed.Secret)
		s.reconciler = ledger.NewReconciler(auditLog, clock, s.ledger, feed)
		s.withdrawer = ledger.NewWithdrawer(clock, s.ledger, feed)
		s.watchdog = ledger.NewWatchdog(auditLog, clock, s.ledger, s)
		s.creds = auth.NewCredentialCache(clock, feed.VerifyAccount)
	}
	return s
}

// Start creates the configured tables and launches all background loops.
func (s *Service) Start(ctx context.Context) error {
	s.group, s.groupCtx = errgroup.WithContext(ctx)

	for _, tc := range s.cfg.Tables {
		if _, err := s.createTable(tc); err != nil {
			return err
		}
	}

	if s.reconciler != nil {
		s.group.Go(func() error {
			s.reconciler.Run(s.groupCtx)
			return nil
		})
		s.group.Go(func() error {
			s.watchdog.Run(s.groupCtx)
			return nil
		})
	}
	return nil
}

// Wait blocks until all background loops have stopped.
func (s *Service) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// CreateTable adds a free table at runtime.
func (s *Service) CreateTable(tc TableConfig) (*table.Table, error) {
	if tc.Ranked {
		return nil, fmt.Errorf("%w: ranked tables are configured at startup", ErrBadTableID)
	}
	if tc.MaxPlayers == 0 {
		tc.MaxPlayers = 6
	}
	if tc.StartingChips == 0 {
		tc.StartingChips = 500
	}
	if tc.TurnTimeoutSec == 0 {
		tc.TurnTimeoutSec = 45
	}
	return s.createTable(tc)
}

func (s *Service) createTable(tc TableConfig) (*table.Table, error) {
	if !tableIDPattern.MatchString(tc.Name) {
		return nil, ErrBadTableID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[tc.Name]; ok {
		return nil, ErrTableExists
	}
	if len(s.tables) >= s.cfg.Server.MaxTables {
		return nil, ErrTableLimit
	}

	fanout := broadcast.New(s.logger, s.clock)
	var settler table.Settler
	if tc.Ranked {
		settler = &ledgerSettler{ledger: s.ledger}
	}
	tbl := table.New(table.Options{
		ID:            tc.Name,
		MaxSeats:      tc.MaxPlayers,
		Ranked:        tc.Ranked,
		SmallBlind:    tc.SmallBlind,
		BigBlind:      tc.BigBlind,
		StartingChips: tc.StartingChips,
		TurnTimeout:   tc.TurnTimeout(),
	}, s.logger, s.clock, fanout, settler)

	entry := &tableEntry{
		tbl:      tbl,
		fanout:   fanout,
		maxSeats: tc.MaxPlayers,
		starting: tc.StartingChips,
		buyMin:   tc.BuyInMin,
		buyMax:   tc.BuyInMax,
	}
	s.tables[tc.Name] = entry

	if s.group != nil {
		s.group.Go(func() error {
			tbl.Run(s.groupCtx)
			return nil
		})
		s.group.Go(func() error {
			fanout.Run(s.groupCtx)
			return nil
		})
	}
	s.logger.Info("table created", "table", tc.Name, "ranked", tc.Ranked)
	return tbl, nil
}

func (s *Service) entry(id string) (*tableEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tables[id]
	if !ok {
		return nil, ErrTableNotFound
	}
	return e, nil
}

// TableSummary is one row in the table listing.
type TableSummary struct {
	ID         string `json:"id"`
	Ranked     bool   `json:"ranked"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Round      string `json:"round"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
	BuyInMin   int    `json:"buy_in_min,omitempty"`
	BuyInMax   int    `json:"buy_in_max,omitempty"`
}

// Tables lists every table.
func (s *Service) Tables() []TableSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TableSummary, 0, len(s.tables))
	for _, e := range s.tables {
		st := e.tbl.StateFor("")
		out = append(out, TableSummary{
			ID:         st.TableID,
			Ranked:     st.Ranked,
			Players:    len(st.Seats),
			MaxPlayers: e.maxSeats,
			Round:      st.Round,
			SmallBlind: st.SmallBlind,
			BigBlind:   st.BigBlind,
			BuyInMin:   e.buyMin,
			BuyInMax:   e.buyMax,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Join seats a player at a table and returns their seat and session
// token. Ranked joins debit the ledger first and refund on failure.
func (s *Service) Join(tableID, name, glyph string, buyIn int) (seat int, token string, err error) {
	e, err := s.entry(tableID)
	if err != nil {
		return 0, "", err
	}

	chips := buyIn
	if e.tbl.Ranked() {
		if s.ledger == nil {
			return 0, "", ErrRankedDisabled
		}
		if s.ledger.Frozen() {
			return 0, "", ledger.ErrFrozen
		}
		if buyIn < e.buyMin || buyIn > e.buyMax {
			return 0, "", fmt.Errorf("%w: %d not in [%d, %d]", ErrBadBuyIn, buyIn, e.buyMin, e.buyMax)
		}
		if err := s.ledger.Debit(name, buyIn, "buy-in:"+tableID); err != nil {
			return 0, "", err
		}
	} else {
		chips = e.starting // free tables ignore the requested buy-in
	}

	seat, err = e.tbl.Join(name, glyph, chips)
	if err != nil {
		if e.tbl.Ranked() {
			s.ledger.Credit(name, buyIn, "buy-in refund:"+tableID)
		}
		return 0, "", err
	}

	token, err = s.tokens.Issue(name)
	if err != nil {
		_ = e.tbl.Leave(name)
		return 0, "", err
	}
	return seat, token, nil
}

// Verify checks a session token for a player name.
func (s *Service) Verify(name, token string) bool {
	return s.tokens.Verify(name, token)
}

// VerifyRanked checks an account id + secret against the external bank,
// caching successes. Ranked identities belong to the bank; session
// tokens are never accepted here.
func (s *Service) VerifyRanked(ctx context.Context, account, secret string) error {
	if s.creds == nil {
		return ErrRankedDisabled
	}
	ok, err := s.creds.Verify(ctx, account, secret)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Leave removes a player from a table; their token stays valid for
// joining elsewhere.
func (s *Service) Leave(tableID, name string) error {
	e, err := s.entry(tableID)
	if err != nil {
		return err
	}
	return e.tbl.Leave(name)
}

// Action submits a game action.
func (s *Service) Action(tableID, name string, turnSeq uint64, action table.ActionType, amount int, note string) error {
	e, err := s.entry(tableID)
	if err != nil {
		return err
	}
	return e.tbl.SubmitAction(name, turnSeq, action, amount, note)
}

// Chat posts a chat line to a table. Senders without a seat are marked
// so they cannot pass as a seated player.
func (s *Service) Chat(tableID, name, message string) error {
	e, err := s.entry(tableID)
	if err != nil {
		return err
	}
	if !e.tbl.Seated(name) {
		name = "[spec] " + name
	}
	e.tbl.Chat(name, message)
	return nil
}

// State returns a viewer-specific table snapshot.
func (s *Service) State(tableID, viewer string) (table.State, error) {
	e, err := s.entry(tableID)
	if err != nil {
		return table.State{}, err
	}
	return e.tbl.StateFor(viewer), nil
}

// History returns a table's recent hand records.
func (s *Service) History(tableID string) ([]table.HandRecord, error) {
	e, err := s.entry(tableID)
	if err != nil {
		return nil, err
	}
	return e.tbl.History(), nil
}

// Stats returns a table's per-player statistics.
func (s *Service) Stats(tableID string) (map[string]table.SeatStats, error) {
	e, err := s.entry(tableID)
	if err != nil {
		return nil, err
	}
	return e.tbl.Stats(), nil
}

// Fanout returns the broadcast fanout for a table, for WS subscriptions.
func (s *Service) Fanout(tableID string) (*broadcast.Fanout, *table.Table, error) {
	e, err := s.entry(tableID)
	if err != nil {
		return nil, nil, err
	}
	return e.fanout, e.tbl, nil
}

// Allow applies the per-endpoint rate limit for a remote address.
func (s *Service) Allow(addr, endpoint string) (bool, int64) {
	ok, retry := s.limiter.Allow(addr, endpoint)
	return ok, retry.Milliseconds()
}

// ledgerSettler credits ranked cashouts back to the ledger.
type ledgerSettler struct {
	ledger *ledger.Ledger
}

func (ls *ledgerSettler) Settle(account string, chips int) {
	ls.ledger.Credit(account, chips, "cashout")
}

// RankedSeatings implements ledger.Seating over the table registry.
func (s *Service) RankedSeatings() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string)
	for id, e := range s.tables {
		if !e.tbl.Ranked() {
			continue
		}
		for _, seat := range e.tbl.StateFor("").Seats {
			out[seat.Player] = append(out[seat.Player], id)
		}
	}
	return out
}

// RankedChips implements ledger.Seating: chips currently on ranked
// tables, counting stacks and live bets.
func (s *Service) RankedChips() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.tables {
		if !e.tbl.Ranked() {
			continue
		}
		st := e.tbl.StateFor("")
		total += st.Pot
		for _, seat := range st.Seats {
			total += seat.Chips
		}
	}
	return total
}

// Ranked ledger operations, all gated on the feed being configured.

func (s *Service) RankedBalance(account string) (int, bool, error) {
	if s.ledger == nil {
		return 0, false, ErrRankedDisabled
	}
	return s.ledger.Balance(account), s.ledger.Frozen(), nil
}

func (s *Service) RequestDeposit(account string, amount int) (*ledger.Deposit, error) {
	if s.reconciler == nil {
		return nil, ErrRankedDisabled
	}
	return s.reconciler.Request(account, amount)
}

func (s *Service) DepositStatus(account string) (*ledger.Deposit, bool, error) {
	if s.reconciler == nil {
		return nil, false, ErrRankedDisabled
	}
	d, ok := s.reconciler.Status(account)
	return d, ok, nil
}

func (s *Service) WithdrawChallenge(account string) (ledger.Challenge, error) {
	if s.withdrawer == nil {
		return ledger.Challenge{}, ErrRankedDisabled
	}
	return s.withdrawer.NewChallenge(account)
}

func (s *Service) Withdraw(ctx context.Context, account string, amount int, nonce uint64) error {
	if s.withdrawer == nil {
		return ErrRankedDisabled
	}
	return s.withdrawer.Withdraw(ctx, account, amount, nonce)
}
