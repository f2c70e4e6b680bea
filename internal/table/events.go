package table

import "time"

// Event is one table occurrence fanned out to players and spectators.
// Spectator delivery is delayed and card-masked upstream; the table
// always publishes the full payload.
type Event struct {
	Type    string    `json:"type"`
	TableID string    `json:"table_id"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`

	HandNumber int `json:"hand_number,omitempty"`

	// Set for player_action events.
	Player string `json:"player,omitempty"`
	Action string `json:"action,omitempty"`
	Amount int    `json:"amount,omitempty"`
	Note   string `json:"note,omitempty"`

	// Set for deal events, delivered privately to one player.
	Cards []string `json:"cards,omitempty"`

	// Set for chat events.
	Message string `json:"message,omitempty"`

	// Set for street / hand lifecycle events.
	Street  string        `json:"street,omitempty"`
	Board   []string      `json:"board,omitempty"`
	Pot     int           `json:"pot,omitempty"`
	Winners []WinnerView  `json:"winners,omitempty"`
	Reveals []HoleReveal  `json:"reveals,omitempty"`
	Turn    *TurnInfo     `json:"turn,omitempty"`
	Players []SeatSummary `json:"players,omitempty"`

	Reason string `json:"reason,omitempty"`
}

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
)

// TurnInfo tells the acting player what is expected of them. The turn
// sequence number must be echoed back with the action; stale echoes are
// rejected so an agent can never act on an expired turn.
type TurnInfo struct {
	Player       string        `json:"player"`
	Seat         int           `json:"seat"`
	TurnSeq      uint64        `json:"turn_seq"`
	DeadlineMS   int64         `json:"deadline_ms"`
	ToCall       int           `json:"to_call"`
	LegalActions []LegalAction `json:"legal_actions"`
}

// WinnerView is one payout line in a hand_end event.
type WinnerView struct {
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

// SeatSummary is the public view of one seat.
type SeatSummary struct {
	Player string `json:"player"`
	Glyph  string `json:"glyph,omitempty"`
	Seat   int    `json:"seat"`
	Chips  int    `json:"chips"`
	Bet    int    `json:"bet,omitempty"`
	Folded bool   `json:"folded,omitempty"`
	AllIn  bool   `json:"all_in,omitempty"`
}
