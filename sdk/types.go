package sdk

import "time"

// Action strings accepted by the server.
const (
	ActionFold  = "fold"
	ActionCheck = "check"
	ActionCall  = "call"
	ActionRaise = "raise"
)

// Event mirrors the server's table event stream.
type Event struct {
	Type    string    `json:"type"`
	TableID string    `json:"table_id"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`

	HandNumber int `json:"hand_number,omitempty"`

	Player string `json:"player,omitempty"`
	Action string `json:"action,omitempty"`
	Amount int    `json:"amount,omitempty"`
	Note   string `json:"note,omitempty"`

	Message string `json:"message,omitempty"`

	// Set on private deal events: the agent's own hole cards.
	Cards []string `json:"cards,omitempty"`

	Street  string       `json:"street,omitempty"`
	Board   []string     `json:"board,omitempty"`
	Pot     int          `json:"pot,omitempty"`
	Winners []Winner     `json:"winners,omitempty"`
	Reveals []HoleReveal `json:"reveals,omitempty"`
	Turn    *Turn        `json:"turn,omitempty"`

	Reason string `json:"reason,omitempty"`

	// Set on state messages pushed over the socket.
	State *State `json:"state,omitempty"`
}

// Event type names.
const (
	EventHandStart     = "hand_start"
	EventDeal          = "deal"
	EventTurn          = "turn"
	EventPlayerAction  = "player_action"
	EventStreet        = "street"
	EventHandEnd       = "hand_end"
	EventChat          = "chat"
	EventPlayerJoined  = "player_joined"
	EventPlayerLeft    = "player_left"
	EventEjected       = "ejected"
	EventBlindsUp      = "blinds_up"
	EventTableFinished = "table_finished"
	EventState         = "state"
)

// Turn tells an agent it must act. TurnSeq must be echoed back.
type Turn struct {
	Player       string        `json:"player"`
	Seat         int           `json:"seat"`
	TurnSeq      uint64        `json:"turn_seq"`
	DeadlineMS   int64         `json:"deadline_ms"`
	ToCall       int           `json:"to_call"`
	LegalActions []LegalAction `json:"legal_actions"`
}

// LegalAction is one move the acting player may make. Amount is the
// call cost or minimum raise-to; Max is the raise-to ceiling.
type LegalAction struct {
	Type   string `json:"type"`
	Amount int    `json:"amount,omitempty"`
	Max    int    `json:"max,omitempty"`
}

// Winner is one payout line in a hand_end event.
type Winner struct {
	Player   string `json:"player"`
	Seat     int    `json:"seat"`
	Amount   int    `json:"amount"`
	HandName string `json:"hand_name,omitempty"`
}

// HoleReveal shows a player's hole cards at showdown.
type HoleReveal struct {
	Player string   `json:"player"`
	Seat   int      `json:"seat"`
	Cards  []string `json:"cards"`
}

// Seat is one seat in a state snapshot.
type Seat struct {
	Player string   `json:"player"`
	Glyph  string   `json:"glyph,omitempty"`
	Seat   int      `json:"seat"`
	Chips  int      `json:"chips"`
	Bet    int      `json:"bet"`
	Folded bool     `json:"folded"`
	AllIn  bool     `json:"all_in"`
	InHand bool     `json:"in_hand"`
	Cards  []string `json:"cards,omitempty"`
}

// State is a point-in-time table snapshot. Hole cards appear only on
// the viewer's own seat.
type State struct {
	TableID    string    `json:"table_id"`
	Ranked     bool      `json:"ranked"`
	Round      string    `json:"round"`
	HandNumber int       `json:"hand_number"`
	SmallBlind int       `json:"small_blind"`
	BigBlind   int       `json:"big_blind"`
	Board      []string  `json:"board"`
	Pot        int       `json:"pot"`
	Seats      []Seat    `json:"seats"`
	Turn       *Turn     `json:"turn,omitempty"`
	Time       time.Time `json:"time"`
}
