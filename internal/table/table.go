package table

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/openfelt/cardroom/poker"
)

// Publisher receives table events for fan-out. Implementations must not
// block; the table calls it while holding its lock. PublishTo carries
// private payloads (hole cards) and must never reach spectators.
type Publisher interface {
	Publish(ev Event)
	PublishTo(player string, ev Event)
}

// Settler is credited when a ranked player leaves the table with chips.
// Free tables use NoSettler.
type Settler interface {
	Settle(account string, chips int)
}

// NoSettler discards cashouts, for free tables.
type NoSettler struct{}

func (NoSettler) Settle(string, int) {}

// blindSchedule escalates free-table blinds every escalateEvery hands.
// Ranked tables pin the configured blinds instead.
var blindSchedule = [][2]int{{5, 10}, {10, 20}, {25, 50}, {50, 100}, {100, 200}, {200, 400}}

const (
	escalateEvery = 10

	// maxTimeouts consecutive expired turns ejects the seat.
	maxTimeouts = 3

	// chipResetAt triggers a free-table reset: when any stack reaches
	// this, every seat goes back to the starting stack.
	chipResetAt = 1000

	handInterval = 2 * time.Second
)

// Options configures one table.
type Options struct {
	ID            string
	MaxSeats      int
	Ranked        bool
	SmallBlind    int // pinned for ranked, schedule start for free
	BigBlind      int
	StartingChips int // free-table buy-in
	TurnTimeout   time.Duration
	HandInterval  time.Duration // pause between hands
}

func (o *Options) fill() {
	if o.MaxSeats == 0 {
		o.MaxSeats = 6
	}
	if o.SmallBlind == 0 {
		o.SmallBlind = blindSchedule[0][0]
	}
	if o.BigBlind == 0 {
		o.BigBlind = blindSchedule[0][1]
	}
	if o.StartingChips == 0 {
		o.StartingChips = 500
	}
	if o.TurnTimeout == 0 {
		o.TurnTimeout = 45 * time.Second
	}
	if o.HandInterval == 0 {
		o.HandInterval = handInterval
	}
}

// seat is one occupied position.
type seat struct {
	name           string
	glyph          string
	index          int
	chips          int
	consecTimeouts int
	stats          SeatStats
}

// SeatStats accumulates per-player table statistics.
type SeatStats struct {
	HandsPlayed int `json:"hands_played"`
	HandsWon    int `json:"hands_won"`
	ChipsWon    int `json:"chips_won"`
	BiggestPot  int `json:"biggest_pot"`
	Folds       int `json:"folds"`
	Checks      int `json:"checks"`
	Calls       int `json:"calls"`
	Raises      int `json:"raises"`
	AllIns      int `json:"all_ins"`
	Timeouts    int `json:"timeouts"`
}

// Table is one poker table. All state is guarded by mu; the Run goroutine
// drives hands while API-facing methods read or submit under the same
// lock, so there is exactly one writer at any moment.
type Table struct {
	opts    Options
	logger  *log.Logger
	clock   quartz.Clock
	pub     Publisher
	settler Settler
	newDeck func() *poker.Deck
	eval    poker.Evaluator

	mu         sync.RWMutex
	seats      []*seat // indexed by seat position, nil when empty
	hand       *Hand
	handSeats  map[int]*seat // seat index -> seat, frozen at hand start
	button     int
	handNumber int
	round      string // waiting, preflop, flop, turn, river, showdown, finished
	eventSeq   uint64
	turnSeq    uint64
	resolved   bool // current turn already consumed
	deadline   time.Time
	handLog    []ActionRecord // ordered betting events for the live hand
	hist       history
	closed     bool

	turnDone chan struct{}
	joined   chan struct{}
}

// New creates a table. Run must be called for hands to be dealt.
func New(opts Options, logger *log.Logger, clock quartz.Clock, pub Publisher, settler Settler) *Table {
	opts.fill()
	if settler == nil {
		settler = NoSettler{}
	}
	return &Table{
		opts:     opts,
		logger:   logger.WithPrefix("table." + opts.ID),
		clock:    clock,
		pub:      pub,
		settler:  settler,
		newDeck:  poker.NewCryptoDeck,
		eval:     poker.NewEvaluator(),
		seats:    make([]*seat, opts.MaxSeats),
		round:    "waiting",
		turnDone: make(chan struct{}, 1),
		joined:   make(chan struct{}, 1),
	}
}

// SetDeckFactory overrides deck creation, for deterministic tests.
func (t *Table) SetDeckFactory(f func() *poker.Deck) { t.newDeck = f }

func (t *Table) ID() string   { return t.opts.ID }
func (t *Table) Ranked() bool { return t.opts.Ranked }

// Join seats a player. chips is the buy-in: the starting stack on free
// tables, the ledger-debited amount on ranked tables. glyph is the
// seat's display glyph; empty picks the default.
func (t *Table) Join(name, glyph string, chips int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrTableClosed
	}
	free := -1
	for i, s := range t.seats {
		if s == nil {
			if free == -1 {
				free = i
			}
			continue
		}
		if s.name == name {
			return 0, ErrAlreadySeated
		}
	}
	if free == -1 {
		return 0, ErrTableFull
	}

	if glyph == "" {
		glyph = "🤖"
	}
	s := &seat{name: name, glyph: glyph, index: free, chips: chips}
	t.seats[free] = s
	t.publishLocked(Event{Type: EventPlayerJoined, Player: name, Players: t.seatSummariesLocked()})
	t.logger.Info("player joined", "player", name, "seat", free, "chips", chips)

	select {
	case t.joined <- struct{}{}:
	default:
	}
	return free, nil
}

// Leave removes a player. Mid-hand the seat is folded first; the
// remaining stack is settled back exactly once.
func (t *Table) Leave(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.seatByNameLocked(name)
	if s == nil {
		return ErrNotSeated
	}
	t.removeSeatLocked(s, "left")
	return nil
}

// removeSeatLocked folds the seat out of any live hand, cashes out the
// remaining stack, and frees the position.
func (t *Table) removeSeatLocked(s *seat, reason string) {
	if t.hand != nil {
		if hp := t.handPlayerLocked(s.index); hp != nil {
			wasActive := t.hand.Active >= 0 && t.hand.Players[t.hand.Active].Seat == s.index
			t.hand.ForceFold(s.index)
			s.chips = hp.Chips
			hp.Chips = 0
			delete(t.handSeats, s.index)
			if wasActive {
				t.resolved = true
				t.signalTurnDoneLocked()
			}
		}
	}
	if s.chips > 0 {
		t.settler.Settle(s.name, s.chips)
	}
	t.seats[s.index] = nil
	t.publishLocked(Event{Type: EventPlayerLeft, Player: s.name, Reason: reason, Players: t.seatSummariesLocked()})
	t.logger.Info("player left", "player", s.name, "reason", reason, "cashout", s.chips)
	s.chips = 0
}

// SubmitAction applies a player action to the live hand. turnSeq must
// echo the value from the turn event the action answers.
func (t *Table) SubmitAction(name string, turnSeq uint64, action ActionType, amount int, note string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hand == nil {
		return ErrNotYourTurn
	}
	s := t.seatByNameLocked(name)
	if s == nil {
		return ErrNotSeated
	}
	if t.hand.Active < 0 || t.hand.Players[t.hand.Active].Seat != s.index {
		return ErrNotYourTurn
	}
	if turnSeq != t.turnSeq {
		return ErrTurnMismatch
	}
	if t.resolved {
		return ErrAlreadyActed
	}

	if err := t.hand.Apply(s.index, action, amount); err != nil {
		return err
	}
	t.resolved = true
	s.consecTimeouts = 0
	switch action {
	case ActionFold:
		s.stats.Folds++
	case ActionCheck:
		s.stats.Checks++
	case ActionCall:
		s.stats.Calls++
	case ActionRaise:
		s.stats.Raises++
	}
	for _, p := range t.hand.Players {
		if p.Seat == s.index && p.AllIn {
			s.stats.AllIns++
			break
		}
	}
	t.handLog = append(t.handLog, ActionRecord{
		Round:  t.round,
		Player: name,
		Action: string(action),
		Amount: amount,
	})
	t.publishLocked(Event{
		Type:       EventPlayerAction,
		HandNumber: t.handNumber,
		Player:     name,
		Action:     string(action),
		Amount:     amount,
		Note:       note,
		Pot:        t.hand.Pot(),
	})
	t.signalTurnDoneLocked()
	return nil
}

// Chat publishes a table chat line from a seated player or spectator.
func (t *Table) Chat(name, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishLocked(Event{Type: EventChat, Player: name, Message: message})
}

func (t *Table) signalTurnDoneLocked() {
	select {
	case t.turnDone <- struct{}{}:
	default:
	}
}

func (t *Table) seatByNameLocked(name string) *seat {
	for _, s := range t.seats {
		if s != nil && s.name == name {
			return s
		}
	}
	return nil
}

func (t *Table) handPlayerLocked(seatIdx int) *HandPlayer {
	if t.hand == nil {
		return nil
	}
	for _, hp := range t.hand.Players {
		if hp.Seat == seatIdx {
			if _, ok := t.handSeats[seatIdx]; !ok {
				return nil
			}
			return hp
		}
	}
	return nil
}

// Run deals hands until ctx is cancelled. It is the only goroutine that
// starts and finishes hands.
func (t *Table) Run(ctx context.Context) {
	defer t.close()
	for {
		if ctx.Err() != nil {
			return
		}
		if !t.enoughPlayers() {
			t.setRound("waiting")
			select {
			case <-ctx.Done():
				return
			case <-t.joined:
			}
			continue
		}
		t.playHand(ctx)
		if t.isClosed() {
			return
		}

		timer := t.clock.NewTimer(t.opts.HandInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Table) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, s := range t.seats {
		if s != nil && s.chips > 0 {
			t.settler.Settle(s.name, s.chips)
			s.chips = 0
		}
	}
}

func (t *Table) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Table) enoughPlayers() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.seats {
		if s != nil && s.chips > 0 {
			n++
		}
	}
	return n >= 2
}

func (t *Table) setRound(r string) {
	t.mu.Lock()
	t.round = r
	t.mu.Unlock()
}

// blinds returns the current blind level. Free tables follow the
// escalation schedule; ranked tables stay pinned.
func (t *Table) blindsLocked() (int, int) {
	if t.opts.Ranked {
		return t.opts.SmallBlind, t.opts.BigBlind
	}
	level := (t.handNumber - 1) / escalateEvery
	if level < 0 {
		level = 0
	}
	if level >= len(blindSchedule) {
		level = len(blindSchedule) - 1
	}
	return blindSchedule[level][0], blindSchedule[level][1]
}

// playHand runs one complete hand: deal, turn loop, resolution.
func (t *Table) playHand(ctx context.Context) {
	t.mu.Lock()
	started := t.clock.Now()

	var players []*HandPlayer
	t.handSeats = make(map[int]*seat)
	for _, s := range t.seats {
		if s == nil || s.chips == 0 {
			continue
		}
		players = append(players, &HandPlayer{Seat: s.index, Name: s.name, Chips: s.chips})
		t.handSeats[s.index] = s
	}
	if len(players) < 2 {
		t.mu.Unlock()
		return
	}

	t.handNumber++
	sb, bb := t.blindsLocked()
	if !t.opts.Ranked && t.handNumber > 1 && (t.handNumber-1)%escalateEvery == 0 {
		t.publishLocked(Event{Type: EventBlindsUp, Amount: bb})
	}

	// Rotate the button to the next occupied seat.
	btn := 0
	for i, p := range players {
		if p.Seat > t.button {
			btn = i
			break
		}
	}
	t.button = players[btn].Seat

	hand, err := NewHand(t.newDeck(), t.eval, players, btn, sb, bb)
	if err != nil {
		t.logger.Error("failed to start hand", "error", err)
		t.mu.Unlock()
		return
	}
	t.hand = hand
	t.round = hand.Street.String()
	for _, s := range t.handSeats {
		s.stats.HandsPlayed++
	}

	// The log opens with the posted blinds; amounts come from the stacks
	// so short posts are recorded as what actually went in.
	sbIdx, bbIdx := (btn+1)%len(players), (btn+2)%len(players)
	if len(players) == 2 {
		sbIdx, bbIdx = btn, (btn+1)%2
	}
	t.handLog = []ActionRecord{
		{Round: "preflop", Player: players[sbIdx].Name, Action: "small_blind", Amount: players[sbIdx].TotalInvested},
		{Round: "preflop", Player: players[bbIdx].Name, Action: "big_blind", Amount: players[bbIdx].TotalInvested},
	}
	t.publishLocked(Event{
		Type:       EventHandStart,
		HandNumber: t.handNumber,
		Players:    t.seatSummariesLocked(),
		Amount:     bb,
	})
	for _, p := range players {
		t.pub.PublishTo(p.Name, Event{
			Type:       EventDeal,
			TableID:    t.opts.ID,
			Time:       t.clock.Now(),
			HandNumber: t.handNumber,
			Player:     p.Name,
			Cards:      cardStrings(p.Hole),
		})
	}
	t.logger.Info("hand started", "hand", t.handNumber, "players", len(players), "blinds", fmt.Sprintf("%d/%d", sb, bb))
	t.mu.Unlock()

	prevStreet := Preflop
	for {
		t.mu.Lock()
		if t.hand == nil || t.hand.Complete() || ctx.Err() != nil {
			t.mu.Unlock()
			break
		}
		if t.hand.Street != prevStreet {
			prevStreet = t.hand.Street
			t.round = t.hand.Street.String()
			t.publishLocked(Event{
				Type:       EventStreet,
				HandNumber: t.handNumber,
				Street:     t.hand.Street.String(),
				Board:      cardStrings(t.hand.Board),
				Pot:        t.hand.Pot(),
			})
		}
		if t.hand.Active < 0 {
			t.mu.Unlock()
			break
		}

		active := t.hand.Players[t.hand.Active]
		// An action that raced the previous turn's timer leaves its done
		// token unconsumed; a stale token must not end this turn early.
		select {
		case <-t.turnDone:
		default:
		}
		t.turnSeq++
		t.resolved = false
		t.deadline = t.clock.Now().Add(t.opts.TurnTimeout)
		turn := &TurnInfo{
			Player:       active.Name,
			Seat:         active.Seat,
			TurnSeq:      t.turnSeq,
			DeadlineMS:   t.deadline.UnixMilli(),
			ToCall:       t.hand.CurrentBet() - active.Bet,
			LegalActions: t.hand.LegalActions(),
		}
		t.publishLocked(Event{Type: EventTurn, HandNumber: t.handNumber, Turn: turn})
		t.mu.Unlock()

		timer := t.clock.NewTimer(t.opts.TurnTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.turnDone:
			timer.Stop()
		case <-timer.C:
			t.handleTimeout(active.Seat)
		}
	}

	t.finishHand(started)
}

// handleTimeout resolves an expired turn, unless the action landed in
// the window between timer fire and lock acquisition.
func (t *Table) handleTimeout(seatIdx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved || t.hand == nil {
		return
	}
	if t.hand.Active < 0 || t.hand.Players[t.hand.Active].Seat != seatIdx {
		return
	}

	act, err := t.hand.Timeout(seatIdx)
	if err != nil {
		return
	}
	t.resolved = true
	s := t.handSeats[seatIdx]
	if s == nil {
		return
	}
	s.consecTimeouts++
	s.stats.Timeouts++
	t.handLog = append(t.handLog, ActionRecord{
		Round:  t.round,
		Player: s.name,
		Action: string(act),
		Auto:   true,
	})
	t.publishLocked(Event{
		Type:       EventPlayerAction,
		HandNumber: t.handNumber,
		Player:     s.name,
		Action:     string(act),
		Reason:     "timeout",
		Pot:        t.hand.Pot(),
	})
	t.logger.Warn("turn timed out", "player", s.name, "auto", act, "consecutive", s.consecTimeouts)

	if s.consecTimeouts >= maxTimeouts {
		t.publishLocked(Event{Type: EventEjected, Player: s.name, Reason: "repeated timeouts"})
		t.removeSeatLocked(s, "ejected")
	}
}

// finishHand resolves pots, syncs stacks back to seats, records history,
// and applies the free-table chip reset.
func (t *Table) finishHand(started time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hand == nil {
		return
	}

	pot := t.hand.Pot()
	payouts := t.hand.Resolve()
	showdown := t.hand.remaining() > 1

	var winners []WinnerView
	var reveals []HoleReveal
	for _, po := range payouts {
		w := WinnerView{Player: po.Name, Seat: po.Seat, Amount: po.Amount}
		if showdown {
			w.HandName = po.Score.Name()
		}
		winners = append(winners, w)
	}
	if showdown {
		for _, hp := range t.hand.Players {
			if !hp.Folded {
				reveals = append(reveals, HoleReveal{Player: hp.Name, Seat: hp.Seat, Cards: cardStrings(hp.Hole)})
			}
		}
	}

	// Sync stacks back for seats still at the table.
	for _, hp := range t.hand.Players {
		if s, ok := t.handSeats[hp.Seat]; ok {
			s.chips = hp.Chips
		}
	}
	for _, po := range payouts {
		if s, ok := t.handSeats[po.Seat]; ok {
			s.stats.HandsWon++
			s.stats.ChipsWon += po.Amount
			if pot > s.stats.BiggestPot {
				s.stats.BiggestPot = pot
			}
		}
	}

	holes := make([]HoleReveal, 0, len(t.hand.Players))
	for _, hp := range t.hand.Players {
		holes = append(holes, HoleReveal{Player: hp.Name, Seat: hp.Seat, Cards: cardStrings(hp.Hole)})
	}

	now := t.clock.Now()
	rec := HandRecord{
		ID:         newRecordID(now),
		HandNumber: t.handNumber,
		StartedAt:  started,
		EndedAt:    now,
		Board:      cardStrings(t.hand.Board),
		Streets:    streetCards(t.hand.Board),
		Holes:      holes,
		Actions:    t.handLog,
		Pot:        pot,
		Winners:    winners,
		Reveals:    reveals,
	}
	t.hist.add(rec)
	t.publishLocked(Event{
		Type:       EventHandEnd,
		HandNumber: t.handNumber,
		Board:      rec.Board,
		Pot:        pot,
		Winners:    winners,
		Reveals:    reveals,
		Players:    t.seatSummariesLocked(),
	})
	t.logger.Info("hand finished", "hand", t.handNumber, "pot", pot, "winners", len(winners))

	t.hand = nil
	t.handSeats = nil
	t.handLog = nil
	t.round = "between"

	// Busted ranked players are done; their buy-in is gone.
	for _, s := range t.seats {
		if s != nil && s.chips == 0 && t.opts.Ranked {
			t.removeSeatLocked(s, "busted")
		}
	}

	// Free tables reset once any stack runs away, so the table stays
	// playable indefinitely.
	if !t.opts.Ranked {
		reset := false
		for _, s := range t.seats {
			if s != nil && s.chips >= chipResetAt {
				reset = true
				break
			}
		}
		if reset {
			for _, s := range t.seats {
				if s != nil {
					s.chips = t.opts.StartingChips
				}
			}
			t.logger.Info("chip stacks reset", "to", t.opts.StartingChips)
		}
	}

	// One contender left means the table is done. Ranked tables close
	// for good, cashing out the last stack; free tables reopen as soon
	// as more players join.
	contenders := 0
	for _, s := range t.seats {
		if s != nil && s.chips > 0 {
			contenders++
		}
	}
	if contenders <= 1 {
		t.round = "finished"
		if t.opts.Ranked {
			t.finishTableLocked()
		}
	}
}

// finishTableLocked closes a ranked table whose contest is decided:
// every remaining seat is cashed out and further joins are rejected.
func (t *Table) finishTableLocked() {
	t.publishLocked(Event{Type: EventTableFinished, Players: t.seatSummariesLocked()})
	for _, s := range t.seats {
		if s != nil {
			t.removeSeatLocked(s, "table finished")
		}
	}
	t.closed = true
	t.logger.Info("table finished", "hands", t.handNumber)
}

// streetCards splits a final board into the cards revealed per street.
func streetCards(board []poker.Card) []StreetCards {
	cards := cardStrings(board)
	var out []StreetCards
	if len(cards) >= 3 {
		out = append(out, StreetCards{Street: "flop", Cards: cards[:3]})
	}
	if len(cards) >= 4 {
		out = append(out, StreetCards{Street: "turn", Cards: cards[3:4]})
	}
	if len(cards) >= 5 {
		out = append(out, StreetCards{Street: "river", Cards: cards[4:5]})
	}
	return out
}

func (t *Table) publishLocked(ev Event) {
	t.eventSeq++
	ev.TableID = t.opts.ID
	ev.Seq = t.eventSeq
	ev.Time = t.clock.Now()
	t.pub.Publish(ev)
}

func (t *Table) seatSummariesLocked() []SeatSummary {
	var out []SeatSummary
	for _, s := range t.seats {
		if s == nil {
			continue
		}
		sum := SeatSummary{Player: s.name, Glyph: s.glyph, Seat: s.index, Chips: s.chips}
		if hp := t.handPlayerLocked(s.index); hp != nil {
			sum.Chips = hp.Chips
			sum.Bet = hp.Bet
			sum.Folded = hp.Folded
			sum.AllIn = hp.AllIn
		}
		out = append(out, sum)
	}
	return out
}

func cardStrings(cards []poker.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
