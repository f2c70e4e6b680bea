package poker

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
)

// Deck represents a standard 52-card deck
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a new shuffled deck with an explicit RNG.
// Tests inject a seeded source for deterministic replays.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
	d.Shuffle()
	return d
}

// NewCryptoDeck creates a deck shuffled from a crypto/rand seed.
// Live tables always use this; a guessable shuffle is a money bug.
func NewCryptoDeck() *Deck {
	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("poker: crypto seed unavailable: " + err.Error())
	}
	return NewDeck(rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))))
}

// NewStackedDeck creates an unshuffled deck that deals the given cards in
// order. Used by tests that need a known board.
func NewStackedDeck(cards ...Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// Shuffle randomizes the order of cards using Fisher-Yates.
func (d *Deck) Shuffle() {
	if d.rng == nil {
		return
	}
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the top card from the deck
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// DealN deals n cards from the deck
func (d *Deck) DealN(n int) []Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	cards := make([]Card, n)
	for i := 0; i < n; i++ {
		cards[i], _ = d.Deal()
	}
	return cards
}

// Burn discards the top card before a street reveal.
func (d *Deck) Burn() {
	_, _ = d.Deal()
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return len(d.cards)
}
