package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfelt/cardroom/poker"
)

func card(t *testing.T, s string) poker.Card {
	t.Helper()
	c, err := poker.ParseCard(s)
	require.NoError(t, err)
	return c
}

func stacked(t *testing.T, specs ...string) *poker.Deck {
	t.Helper()
	cards := make([]poker.Card, len(specs))
	for i, s := range specs {
		cards[i] = card(t, s)
	}
	return poker.NewStackedDeck(cards...)
}

func newTestPlayers(chips ...int) []*HandPlayer {
	names := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	players := make([]*HandPlayer, len(chips))
	for i, c := range chips {
		players[i] = &HandPlayer{Seat: i, Name: names[i], Chips: c}
	}
	return players
}

// chipSum is the post-resolution conservation check: once pots are paid
// out, the stacks must add back up to the original total.
func chipSum(h *Hand) int {
	total := 0
	for _, p := range h.Players {
		total += p.Chips
	}
	return total
}

func TestHeadsUpButtonPostsSmallBlind(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	assert.Equal(t, 495, players[0].Chips)
	assert.Equal(t, 490, players[1].Chips)
	// Button acts first preflop heads-up.
	assert.Equal(t, 0, h.Active)
}

func TestThreeHandedBlindPositions(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	assert.Equal(t, 500, players[0].Chips)
	assert.Equal(t, 495, players[1].Chips)
	assert.Equal(t, 490, players[2].Chips)
	// Button acts first preflop at three seats.
	assert.Equal(t, 0, h.Active)
}

func TestCheckWhenOwingRejected(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	err = h.Apply(0, ActionCheck, 0)
	assert.ErrorIs(t, err, ErrCannotCheck)
}

func TestActionOutOfTurnRejected(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	err = h.Apply(1, ActionCall, 0)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestMinimumRaiseEnforced(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	// Current bet 10, last raise 10: minimum raise-to is 20.
	err = h.Apply(0, ActionRaise, 15)
	assert.ErrorIs(t, err, ErrRaiseTooSmall)
	require.NoError(t, h.Apply(0, ActionRaise, 20))

	// Re-raise must now reach 30.
	err = h.Apply(1, ActionRaise, 25)
	assert.ErrorIs(t, err, ErrRaiseTooSmall)
	require.NoError(t, h.Apply(1, ActionRaise, 30))
}

func TestShortAllInBelowMinimumAllowed(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 25)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	require.NoError(t, h.Apply(0, ActionRaise, 20))
	// bob has 15 behind on a bet of 10; raise-to 25 is his whole stack.
	require.NoError(t, h.Apply(1, ActionRaise, 25))
	assert.True(t, h.Players[1].AllIn)
}

func TestRaiseBeyondStackRejected(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	err = h.Apply(0, ActionRaise, 600)
	assert.ErrorIs(t, err, ErrInsufficientChips)
}

func TestEveryoneFoldsAwardsPotWithoutShowdown(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	require.NoError(t, h.Apply(0, ActionFold, 0))
	require.NoError(t, h.Apply(1, ActionFold, 0))
	require.True(t, h.Complete())

	payouts := h.Resolve()
	require.Len(t, payouts, 1)
	assert.Equal(t, 2, payouts[0].Seat)
	assert.Equal(t, 15, payouts[0].Amount)
	assert.False(t, payouts[0].Shown)
	assert.Equal(t, 1500, chipSum(h))
}

func TestAcesBeatSevenDeuceScripted(t *testing.T) {
	t.Parallel()

	deck := stacked(t,
		"As", "Ah", // alice
		"7c", "2d", // bob
		"5h",             // burn
		"Ks", "Qh", "Jd", // flop
		"6h",       // burn
		"3c",       // turn
		"8d",       // burn
		"9s",       // river
	)
	players := newTestPlayers(500, 500)
	h, err := NewHand(deck, poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	require.NoError(t, h.Apply(0, ActionCall, 0))
	require.NoError(t, h.Apply(1, ActionCheck, 0))
	for street := 0; street < 3; street++ {
		require.NoError(t, h.Apply(1, ActionCheck, 0))
		require.NoError(t, h.Apply(0, ActionCheck, 0))
	}
	require.True(t, h.Complete())
	assert.Equal(t, 20, h.Pot())

	payouts := h.Resolve()
	require.Len(t, payouts, 1)
	assert.Equal(t, "alice", payouts[0].Name)
	assert.Equal(t, 20, payouts[0].Amount)
	assert.Equal(t, poker.Pair, payouts[0].Score.Category)
	assert.Equal(t, 510, players[0].Chips)
	assert.Equal(t, 490, players[1].Chips)
}

func TestSidePotLayers(t *testing.T) {
	t.Parallel()

	// carol's short all-in builds a main pot all three contest and a
	// side pot only alice and bob can win.
	deck := stacked(t,
		"As", "Ah", // alice: top set territory
		"Ks", "Kd", // bob
		"2c", "7d", // carol, short stack
		"5h",             // burn
		"Ac", "Kh", "3d", // flop: alice set of aces, bob set of kings
		"6h", // burn
		"4s", // turn
		"8d", // burn
		"9c", // river
	)
	players := newTestPlayers(500, 500, 50)
	h, err := NewHand(deck, poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	// Preflop: alice (button) raises to 100, bob calls, carol all-in 50.
	require.NoError(t, h.Apply(0, ActionRaise, 100))
	require.NoError(t, h.Apply(1, ActionCall, 0))
	require.NoError(t, h.Apply(2, ActionCall, 0)) // capped at stack, all-in
	assert.True(t, h.Players[2].AllIn)

	// Post-flop both big stacks check it down.
	for street := 0; street < 3; street++ {
		require.NoError(t, h.Apply(1, ActionCheck, 0))
		require.NoError(t, h.Apply(0, ActionCheck, 0))
	}
	require.True(t, h.Complete())

	payouts := h.Resolve()
	assert.Equal(t, 1050, chipSum(h))

	// Main pot 150 plus side pot 100, all to alice's set of aces.
	require.Len(t, payouts, 1)
	assert.Equal(t, "alice", payouts[0].Name)
	assert.Equal(t, 250, payouts[0].Amount)
	assert.Equal(t, 650, players[0].Chips)
	assert.Equal(t, 400, players[1].Chips)
	assert.Equal(t, 0, players[2].Chips)
}

func TestSplitPotBoardPlays(t *testing.T) {
	t.Parallel()

	// Royal flush on board: both remaining players split evenly.
	deck := stacked(t,
		"2c", "3d", // alice
		"2h", "3s", // bob
		"5h",             // burn
		"As", "Ks", "Qs", // flop
		"6h", // burn
		"Js", // turn
		"8d", // burn
		"Ts", // river
	)
	players := newTestPlayers(500, 500)
	h, err := NewHand(deck, poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	require.NoError(t, h.Apply(0, ActionCall, 0))
	require.NoError(t, h.Apply(1, ActionCheck, 0))
	for street := 0; street < 3; street++ {
		require.NoError(t, h.Apply(1, ActionCheck, 0))
		require.NoError(t, h.Apply(0, ActionCheck, 0))
	}
	require.True(t, h.Complete())

	payouts := h.Resolve()
	require.Len(t, payouts, 2)
	assert.Equal(t, 10, payouts[0].Amount)
	assert.Equal(t, 10, payouts[1].Amount)
	assert.Equal(t, 1000, chipSum(h))
}

func TestOddChipGoesToEarliestSeatAfterButton(t *testing.T) {
	t.Parallel()

	// carol contributes and folds, leaving an odd pot for alice and bob
	// to split on a board that plays for both. The extra chip goes to
	// the earliest winning seat after the button.
	deck := stacked(t,
		"2c", "3d", // alice
		"2h", "3s", // bob
		"4c", "8h", // carol
		"5h",             // burn
		"As", "Ks", "Qs", // flop
		"6h", // burn
		"Js", // turn
		"8d", // burn
		"Ts", // river
	)
	players := newTestPlayers(500, 500, 500)
	h, err := NewHand(deck, poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	// Preflop: alice raises to 25, blinds call. Pot 75.
	require.NoError(t, h.Apply(0, ActionRaise, 25))
	require.NoError(t, h.Apply(1, ActionCall, 0))
	require.NoError(t, h.Apply(2, ActionCall, 0))

	// Flop: alice bets 10, bob calls, carol folds. Pot 95.
	require.NoError(t, h.Apply(1, ActionCheck, 0))
	require.NoError(t, h.Apply(2, ActionCheck, 0))
	require.NoError(t, h.Apply(0, ActionRaise, 10))
	require.NoError(t, h.Apply(1, ActionCall, 0))
	require.NoError(t, h.Apply(2, ActionFold, 0))

	for street := 0; street < 2; street++ {
		require.NoError(t, h.Apply(1, ActionCheck, 0))
		require.NoError(t, h.Apply(0, ActionCheck, 0))
	}
	require.True(t, h.Complete())
	assert.Equal(t, 95, h.Pot())

	payouts := h.Resolve()
	require.Len(t, payouts, 2)
	assert.Equal(t, "alice", payouts[0].Name)
	assert.Equal(t, 47, payouts[0].Amount)
	assert.Equal(t, "bob", payouts[1].Name)
	assert.Equal(t, 48, payouts[1].Amount)
	assert.Equal(t, 1500, chipSum(h))
}

func TestAllInRunoutDealsFullBoard(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	require.NoError(t, h.Apply(0, ActionRaise, 500))
	require.NoError(t, h.Apply(1, ActionCall, 0))

	require.True(t, h.Complete())
	assert.Equal(t, Showdown, h.Street)
	assert.Len(t, h.Board, 5)
	assert.Equal(t, 1000, h.Pot())

	h.Resolve()
	assert.Equal(t, 1000, chipSum(h))
}

func TestTimeoutFoldsWhenOwingChecksOtherwise(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	// alice owes 5 into the big blind: timeout folds.
	act, err := h.Timeout(0)
	require.NoError(t, err)
	assert.Equal(t, ActionFold, act)
	assert.True(t, h.Complete())
}

func TestTimeoutChecksWhenNothingOwed(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	require.NoError(t, h.Apply(0, ActionCall, 0))
	// bob is the big blind with nothing owed: timeout checks.
	act, err := h.Timeout(1)
	require.NoError(t, err)
	assert.Equal(t, ActionCheck, act)
	assert.Equal(t, Flop, h.Street)
}

func TestForceFoldAdvancesHand(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	h.ForceFold(0) // active player disconnects
	assert.False(t, h.Complete())
	require.NoError(t, h.Apply(1, ActionCall, 0))
	require.NoError(t, h.Apply(2, ActionCheck, 0))
	assert.Equal(t, Flop, h.Street)
}

func TestLegalActionsShape(t *testing.T) {
	t.Parallel()

	players := newTestPlayers(500, 500)
	h, err := NewHand(poker.NewCryptoDeck(), poker.NewEvaluator(), players, 0, 5, 10)
	require.NoError(t, err)

	actions := h.LegalActions()
	require.Len(t, actions, 3)
	assert.Equal(t, ActionFold, actions[0].Type)
	assert.Equal(t, ActionCall, actions[1].Type)
	assert.Equal(t, 5, actions[1].Amount)
	assert.Equal(t, ActionRaise, actions[2].Type)
	assert.Equal(t, 20, actions[2].Amount)
	assert.Equal(t, 500, actions[2].Max)
}
