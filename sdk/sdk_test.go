package sdk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallingAgentPrefersCheck(t *testing.T) {
	turn := Turn{LegalActions: []LegalAction{
		{Type: ActionFold},
		{Type: ActionCheck},
		{Type: ActionRaise, Amount: 20, Max: 500},
	}}
	d := CallingAgent{}.Decide(turn)
	assert.Equal(t, ActionCheck, d.Action)
}

func TestCallingAgentCallsWhenOwing(t *testing.T) {
	turn := Turn{ToCall: 10, LegalActions: []LegalAction{
		{Type: ActionFold},
		{Type: ActionCall, Amount: 10},
		{Type: ActionRaise, Amount: 20, Max: 500},
	}}
	d := CallingAgent{}.Decide(turn)
	assert.Equal(t, ActionCall, d.Action)
}

func TestCallingAgentFoldsAsLastResort(t *testing.T) {
	d := CallingAgent{}.Decide(Turn{LegalActions: []LegalAction{{Type: ActionFold}}})
	assert.Equal(t, ActionFold, d.Action)
}

func TestRandomAgentStaysLegal(t *testing.T) {
	turn := Turn{LegalActions: []LegalAction{
		{Type: ActionFold},
		{Type: ActionCall, Amount: 10},
		{Type: ActionRaise, Amount: 20, Max: 500},
	}}
	legal := map[string]bool{ActionFold: true, ActionCall: true, ActionRaise: true}
	for range 50 {
		d := RandomAgent{}.Decide(turn)
		assert.True(t, legal[d.Action], d.Action)
	}
}

func TestSolveFindsVerifiableNonce(t *testing.T) {
	ch := Challenge{Seed: "f00dcafe", Difficulty: 2}
	nonce, ok := Solve(ch)
	require.True(t, ok)

	sum := sha256.Sum256([]byte(ch.Seed + strconv.FormatUint(nonce, 10)))
	assert.True(t, strings.HasPrefix(hex.EncodeToString(sum[:]), "00"))
}

func TestAPIErrorFormatting(t *testing.T) {
	err := &APIError{Code: "NOT_YOUR_TURN", Message: "not your turn", Status: 409}
	assert.Equal(t, "NOT_YOUR_TURN: not your turn", err.Error())
}
