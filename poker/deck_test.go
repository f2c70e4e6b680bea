package poker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckHas52UniqueCards(t *testing.T) {
	d := NewDeck(rand.New(rand.NewSource(1)))
	seen := map[Card]bool{}
	for {
		c, ok := d.Deal()
		if !ok {
			break
		}
		require.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, 52)
}

func TestDeckDeterministicWithSeed(t *testing.T) {
	a := NewDeck(rand.New(rand.NewSource(42)))
	b := NewDeck(rand.New(rand.NewSource(42)))
	assert.Equal(t, a.DealN(52), b.DealN(52))
}

func TestStackedDeckDealsInOrder(t *testing.T) {
	want := []Card{
		{Spades, Ace}, {Hearts, Ace}, {Clubs, Two}, {Diamonds, Seven},
	}
	d := NewStackedDeck(want...)
	assert.Equal(t, want, d.DealN(4))
	_, ok := d.Deal()
	assert.False(t, ok)
}

func TestBurn(t *testing.T) {
	d := NewStackedDeck(Card{Spades, Ace}, Card{Hearts, King})
	d.Burn()
	c, ok := d.Deal()
	require.True(t, ok)
	assert.Equal(t, Card{Hearts, King}, c)
}

func TestCryptoDeckShuffles(t *testing.T) {
	// two crypto decks agreeing on all 52 cards would be astonishing
	a := NewCryptoDeck().DealN(52)
	b := NewCryptoDeck().DealN(52)
	assert.NotEqual(t, a, b)
}
