// Package table implements Texas Hold'em tables: a pure hand engine,
// a per-table actor goroutine that owns all mutable state, and the
// turn scheduling that keeps autonomous agents honest about deadlines.
package table

import (
	"fmt"
	"sort"

	"github.com/openfelt/cardroom/poker"
)

// Street is the betting stage of a hand.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	switch s {
	case Preflop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case Showdown:
		return "showdown"
	}
	return "unknown"
}

// ActionType is one of the moves a player can submit.
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionRaise ActionType = "raise"
)

// HandPlayer is one participant's state within a single hand.
type HandPlayer struct {
	Seat          int
	Name          string
	Chips         int
	Bet           int // chips committed this street
	TotalInvested int // chips committed this hand
	Hole          []poker.Card
	Folded        bool
	AllIn         bool
}

func (p *HandPlayer) live() bool { return !p.Folded && !p.AllIn }

// Hand is a pure Hold'em hand state machine. It has no goroutines, no
// clock, and no I/O; the table actor drives it and owns concurrency.
type Hand struct {
	Players    []*HandPlayer
	Button     int // index into Players
	SmallBlind int
	BigBlind   int
	Street     Street
	Board      []poker.Card
	Active     int // index of the player to act, -1 when none

	deck       *poker.Deck
	eval       poker.Evaluator
	currentBet int
	lastRaise  int
	acted      []bool
}

// NewHand posts blinds and deals hole cards. players must have at least
// two entries with positive chips; button indexes into players.
func NewHand(deck *poker.Deck, eval poker.Evaluator, players []*HandPlayer, button, smallBlind, bigBlind int) (*Hand, error) {
	if len(players) < 2 {
		return nil, fmt.Errorf("need at least 2 players, have %d", len(players))
	}
	h := &Hand{
		Players:    players,
		Button:     button,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		Street:     Preflop,
		Active:     -1,
		deck:       deck,
		eval:       eval,
		acted:      make([]bool, len(players)),
	}

	// Heads-up the button posts the small blind and acts first preflop.
	var sb, bb int
	if len(players) == 2 {
		sb = button
		bb = (button + 1) % 2
	} else {
		sb = (button + 1) % len(players)
		bb = (button + 2) % len(players)
	}
	h.post(players[sb], smallBlind)
	h.post(players[bb], bigBlind)
	h.currentBet = bigBlind
	h.lastRaise = bigBlind

	for _, p := range players {
		p.Hole = deck.DealN(2)
	}

	h.Active = h.nextLive((bb + 1) % len(players))
	if h.Active == -1 || h.bettingDone() {
		h.advanceStreet()
	}
	return h, nil
}

// post commits up to amount from the player's stack as a blind.
func (h *Hand) post(p *HandPlayer, amount int) {
	n := min(amount, p.Chips)
	p.Chips -= n
	p.Bet += n
	p.TotalInvested += n
	if p.Chips == 0 {
		p.AllIn = true
	}
}

// LegalAction describes one move currently open to the active player.
type LegalAction struct {
	Type   ActionType `json:"type"`
	Amount int        `json:"amount,omitempty"` // call cost or minimum raise-to
	Max    int        `json:"max,omitempty"`    // maximum raise-to (all-in)
}

// LegalActions lists the moves open to the active player. Empty when no
// one is to act.
func (h *Hand) LegalActions() []LegalAction {
	if h.Active < 0 {
		return nil
	}
	p := h.Players[h.Active]
	owed := h.currentBet - p.Bet

	actions := []LegalAction{{Type: ActionFold}}
	if owed == 0 {
		actions = append(actions, LegalAction{Type: ActionCheck})
	} else {
		actions = append(actions, LegalAction{Type: ActionCall, Amount: min(owed, p.Chips)})
	}
	maxTo := p.Bet + p.Chips
	if maxTo > h.currentBet {
		minTo := min(h.minRaiseTo(), maxTo)
		actions = append(actions, LegalAction{Type: ActionRaise, Amount: minTo, Max: maxTo})
	}
	return actions
}

// minRaiseTo is the smallest legal raise-to total: at least a big blind
// over the current bet, and at least a full re-raise of the last raise.
func (h *Hand) minRaiseTo() int {
	return h.currentBet + max(h.BigBlind, h.lastRaise)
}

// Apply processes one action from the seat holding the turn. amount is
// the raise-to total and ignored for other actions.
func (h *Hand) Apply(seat int, action ActionType, amount int) error {
	if h.Active < 0 || h.Players[h.Active].Seat != seat {
		return ErrNotYourTurn
	}
	p := h.Players[h.Active]
	owed := h.currentBet - p.Bet

	switch action {
	case ActionFold:
		p.Folded = true

	case ActionCheck:
		if owed > 0 {
			return fmt.Errorf("%w: %d owed", ErrCannotCheck, owed)
		}

	case ActionCall:
		n := min(owed, p.Chips)
		p.Chips -= n
		p.Bet += n
		p.TotalInvested += n
		if p.Chips == 0 {
			p.AllIn = true
		}

	case ActionRaise:
		maxTo := p.Bet + p.Chips
		if amount > maxTo {
			return fmt.Errorf("%w: have %d, raise to %d", ErrInsufficientChips, maxTo, amount)
		}
		if amount <= h.currentBet {
			return fmt.Errorf("%w: raise to %d is not over %d", ErrRaiseTooSmall, amount, h.currentBet)
		}
		// A short all-in below the minimum raise is legal; anything else
		// below the minimum is not.
		if amount < h.minRaiseTo() && amount != maxTo {
			return fmt.Errorf("%w: minimum raise-to is %d", ErrRaiseTooSmall, h.minRaiseTo())
		}
		n := amount - p.Bet
		p.Chips -= n
		p.Bet = amount
		p.TotalInvested += n
		if p.Chips == 0 {
			p.AllIn = true
		}
		h.lastRaise = amount - h.currentBet
		h.currentBet = amount
		for i := range h.acted {
			h.acted[i] = false
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	h.acted[h.Active] = true
	h.Active = h.nextLive(h.Active + 1)
	if h.Active == -1 || h.bettingDone() {
		h.advanceStreet()
	}
	return nil
}

// Timeout resolves an expired turn: fold when chips are owed, otherwise
// check. Returns the action that was taken.
func (h *Hand) Timeout(seat int) (ActionType, error) {
	if h.Active < 0 || h.Players[h.Active].Seat != seat {
		return "", ErrNotYourTurn
	}
	p := h.Players[h.Active]
	if h.currentBet > p.Bet {
		return ActionFold, h.Apply(seat, ActionFold, 0)
	}
	return ActionCheck, h.Apply(seat, ActionCheck, 0)
}

// ForceFold folds a seat out of turn, for ejections and disconnects.
func (h *Hand) ForceFold(seat int) {
	idx := -1
	for i, p := range h.Players {
		if p.Seat == seat {
			idx = i
			break
		}
	}
	if idx == -1 || h.Players[idx].Folded {
		return
	}
	h.Players[idx].Folded = true
	h.acted[idx] = true

	if idx == h.Active {
		h.Active = h.nextLive(idx + 1)
	}
	if h.Active == -1 || h.bettingDone() {
		h.advanceStreet()
	}
}

func (h *Hand) nextLive(from int) int {
	n := len(h.Players)
	for i := 0; i < n; i++ {
		pos := (from + i) % n
		if h.Players[pos].live() {
			return pos
		}
	}
	return -1
}

// bettingDone reports whether the current street's betting is settled:
// every live player has acted and matched the current bet.
func (h *Hand) bettingDone() bool {
	if h.remaining() <= 1 {
		return true
	}
	for i, p := range h.Players {
		if !p.live() {
			continue
		}
		if !h.acted[i] || p.Bet != h.currentBet {
			return false
		}
	}
	return true
}

func (h *Hand) remaining() int {
	n := 0
	for _, p := range h.Players {
		if !p.Folded {
			n++
		}
	}
	return n
}

// advanceStreet reveals the next community cards with a burn before each
// reveal, and keeps advancing when no betting is possible.
func (h *Hand) advanceStreet() {
	if h.remaining() <= 1 {
		h.Street = Showdown
		h.Active = -1
		return
	}

	for {
		switch h.Street {
		case Preflop:
			h.Street = Flop
			h.deck.Burn()
			h.Board = append(h.Board, h.deck.DealN(3)...)
		case Flop:
			h.Street = Turn
			h.deck.Burn()
			h.Board = append(h.Board, h.deck.DealN(1)...)
		case Turn:
			h.Street = River
			h.deck.Burn()
			h.Board = append(h.Board, h.deck.DealN(1)...)
		case River, Showdown:
			h.Street = Showdown
			h.Active = -1
			return
		}

		for _, p := range h.Players {
			p.Bet = 0
		}
		h.currentBet = 0
		h.lastRaise = 0
		for i := range h.acted {
			h.acted[i] = false
		}

		h.Active = h.nextLive((h.Button + 1) % len(h.Players))
		if h.Active != -1 {
			return
		}
		// Everyone left is all-in; run the board out.
	}
}

// Complete reports whether the hand has reached its end state.
func (h *Hand) Complete() bool {
	return h.Street == Showdown || h.remaining() <= 1
}

// Payout is one player's winnings from a resolved hand.
type Payout struct {
	Seat   int
	Name   string
	Amount int
	Score  poker.HandScore
	Shown  bool // hole cards revealed at showdown
}

// Resolve settles the hand: side pots are layered from each player's
// total investment, each pot goes to the best eligible hand, and winnings
// are paid back into the players' stacks. Odd chips that do not split
// evenly go to the earliest eligible seat after the button.
func (h *Hand) Resolve() []Payout {
	if h.remaining() == 1 {
		for _, p := range h.Players {
			if !p.Folded {
				total := 0
				for _, q := range h.Players {
					total += q.TotalInvested
				}
				p.Chips += total
				return []Payout{{Seat: p.Seat, Name: p.Name, Amount: total}}
			}
		}
	}

	scores := make([]poker.HandScore, len(h.Players))
	for i, p := range h.Players {
		if !p.Folded {
			scores[i] = h.eval.Evaluate(append(append([]poker.Card{}, p.Hole...), h.Board...))
		}
	}

	// Distinct investment levels define the pot layers.
	levels := make([]int, 0, len(h.Players))
	seen := make(map[int]bool)
	for _, p := range h.Players {
		if p.TotalInvested > 0 && !seen[p.TotalInvested] {
			seen[p.TotalInvested] = true
			levels = append(levels, p.TotalInvested)
		}
	}
	sort.Ints(levels)

	won := make(map[int]int) // player index -> chips won
	prev := 0
	for _, level := range levels {
		pot := 0
		var eligible []int
		for i, p := range h.Players {
			pot += min(p.TotalInvested, level) - min(p.TotalInvested, prev)
			if !p.Folded && p.TotalInvested >= level {
				eligible = append(eligible, i)
			}
		}
		prev = level
		if pot == 0 || len(eligible) == 0 {
			continue
		}

		var best []int
		for _, i := range eligible {
			if len(best) == 0 {
				best = []int{i}
				continue
			}
			switch scores[i].Compare(scores[best[0]]) {
			case 1:
				best = []int{i}
			case 0:
				best = append(best, i)
			}
		}

		share := pot / len(best)
		odd := pot % len(best)
		for _, i := range best {
			won[i] += share
		}
		if odd > 0 {
			// Earliest winner after the button takes the remainder.
			sort.Slice(best, func(a, b int) bool {
				da := (best[a] - h.Button - 1 + len(h.Players)) % len(h.Players)
				db := (best[b] - h.Button - 1 + len(h.Players)) % len(h.Players)
				return da < db
			})
			won[best[0]] += odd
		}
	}

	payouts := make([]Payout, 0, len(won))
	for i, p := range h.Players {
		amount, ok := won[i]
		if !ok {
			continue
		}
		p.Chips += amount
		payouts = append(payouts, Payout{
			Seat:   p.Seat,
			Name:   p.Name,
			Amount: amount,
			Score:  scores[i],
			Shown:  true,
		})
	}
	sort.Slice(payouts, func(a, b int) bool { return payouts[a].Seat < payouts[b].Seat })
	return payouts
}

// Pot is the total currently committed to the hand.
func (h *Hand) Pot() int {
	total := 0
	for _, p := range h.Players {
		total += p.TotalInvested
	}
	return total
}

// CurrentBet is the amount each live player must match this street.
func (h *Hand) CurrentBet() int { return h.currentBet }
