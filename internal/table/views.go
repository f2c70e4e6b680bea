package table

import "time"

// SeatView is one seat as shown in a state snapshot. Cards is only
// populated for the viewer's own seat; everyone else sees hole cards
// masked until a showdown reveal.
type SeatView struct {
	Player   string   `json:"player"`
	Glyph    string   `json:"glyph,omitempty"`
	Seat     int      `json:"seat"`
	Chips    int      `json:"chips"`
	Bet      int      `json:"bet"`
	Folded   bool     `json:"folded"`
	AllIn    bool     `json:"all_in"`
	InHand   bool     `json:"in_hand"`
	Cards    []string `json:"cards,omitempty"`
	Timeouts int      `json:"consecutive_timeouts,omitempty"`
}

// State is a point-in-time snapshot of the table for one viewer.
type State struct {
	TableID    string     `json:"table_id"`
	Ranked     bool       `json:"ranked"`
	Round      string     `json:"round"`
	HandNumber int        `json:"hand_number"`
	SmallBlind int        `json:"small_blind"`
	BigBlind   int        `json:"big_blind"`
	Board      []string   `json:"board"`
	Pot        int        `json:"pot"`
	Seats      []SeatView `json:"seats"`
	Turn       *TurnInfo  `json:"turn,omitempty"`
	Time       time.Time  `json:"time"`
}

// StateFor builds a snapshot as seen by viewer. An empty viewer (or any
// name not seated) gets the spectator view with all hole cards hidden.
func (t *Table) StateFor(viewer string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sb, bb := t.blindsLocked()
	st := State{
		TableID:    t.opts.ID,
		Ranked:     t.opts.Ranked,
		Round:      t.round,
		HandNumber: t.handNumber,
		SmallBlind: sb,
		BigBlind:   bb,
		Time:       t.clock.Now(),
	}

	if t.hand != nil {
		st.Board = cardStrings(t.hand.Board)
		st.Pot = t.hand.Pot()
		if t.hand.Active >= 0 {
			active := t.hand.Players[t.hand.Active]
			st.Turn = &TurnInfo{
				Player:       active.Name,
				Seat:         active.Seat,
				TurnSeq:      t.turnSeq,
				DeadlineMS:   t.deadline.UnixMilli(),
				ToCall:       t.hand.CurrentBet() - active.Bet,
				LegalActions: t.hand.LegalActions(),
			}
		}
	}

	for _, s := range t.seats {
		if s == nil {
			continue
		}
		sv := SeatView{Player: s.name, Glyph: s.glyph, Seat: s.index, Chips: s.chips, Timeouts: s.consecTimeouts}
		if hp := t.handPlayerLocked(s.index); hp != nil {
			sv.InHand = true
			sv.Chips = hp.Chips
			sv.Bet = hp.Bet
			sv.Folded = hp.Folded
			sv.AllIn = hp.AllIn
			if s.name == viewer {
				sv.Cards = cardStrings(hp.Hole)
			}
		}
		st.Seats = append(st.Seats, sv)
	}
	return st
}

// History returns the table's recent hand records, oldest first.
func (t *Table) History() []HandRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hist.list()
}

// Stats returns accumulated per-player statistics for current seats.
func (t *Table) Stats() map[string]SeatStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]SeatStats)
	for _, s := range t.seats {
		if s != nil {
			out[s.name] = s.stats
		}
	}
	return out
}

// Seated reports whether name currently holds a seat.
func (t *Table) Seated(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seatByNameLocked(name) != nil
}

// PlayerCount is the number of occupied seats.
func (t *Table) PlayerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.seats {
		if s != nil {
			n++
		}
	}
	return n
}
