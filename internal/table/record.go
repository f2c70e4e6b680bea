package table

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const historyCap = 50

// HandRecord is the archived outcome of one completed hand: the cards
// dealt to every seat, the community cards as revealed per street, and
// the betting events in the order they happened.
type HandRecord struct {
	ID         string         `json:"id"`
	HandNumber int            `json:"hand_number"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Board      []string       `json:"board"`
	Streets    []StreetCards  `json:"streets,omitempty"`
	Holes      []HoleReveal   `json:"holes"`
	Actions    []ActionRecord `json:"actions"`
	Pot        int            `json:"pot"`
	Winners    []WinnerView   `json:"winners"`
	Reveals    []HoleReveal   `json:"reveals,omitempty"`
}

// StreetCards is the community cards revealed on one street.
type StreetCards struct {
	Street string   `json:"street"`
	Cards  []string `json:"cards"`
}

// ActionRecord is one betting event in hand order. Auto marks actions
// taken for a player on timeout.
type ActionRecord struct {
	Round  string `json:"round"`
	Player string `json:"player"`
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
	Auto   bool   `json:"auto,omitempty"`
}

func newRecordID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// history is a bounded ring of the table's most recent hand records,
// newest last.
type history struct {
	records []HandRecord
}

func (h *history) add(rec HandRecord) {
	h.records = append(h.records, rec)
	if len(h.records) > historyCap {
		h.records = h.records[len(h.records)-historyCap:]
	}
}

func (h *history) list() []HandRecord {
	out := make([]HandRecord, len(h.records))
	copy(out, h.records)
	return out
}
