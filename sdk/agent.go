package sdk

import (
	"context"
	"math/rand/v2"

	"github.com/charmbracelet/log"
)

// Decision is what an agent wants to do with its turn.
type Decision struct {
	Action string
	Amount int
	Note   string
}

// Agent decides what to do when it is the agent's turn to act.
type Agent interface {
	Decide(turn Turn) Decision
}

// Play joins a table, streams events and answers turns with the agent's
// decisions until ctx is cancelled or the stream closes.
func Play(ctx context.Context, client *Client, tableID, name string, buyIn int, agent Agent, logger *log.Logger) error {
	if _, err := client.Join(ctx, tableID, name, buyIn); err != nil {
		return err
	}
	stream, err := client.Stream(ctx, tableID)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		if ev.Type != EventTurn || ev.Turn == nil || ev.Turn.Player != name {
			continue
		}
		d := agent.Decide(*ev.Turn)
		if err := stream.Act(ev.Turn.TurnSeq, d.Action, d.Amount, d.Note); err != nil {
			logger.Warn("action not accepted", "action", d.Action, "error", err)
		}
	}
}

// CallingAgent checks when it can and calls when it must.
type CallingAgent struct{}

func (CallingAgent) Decide(turn Turn) Decision {
	for _, la := range turn.LegalActions {
		if la.Type == ActionCheck {
			return Decision{Action: ActionCheck}
		}
	}
	for _, la := range turn.LegalActions {
		if la.Type == ActionCall {
			return Decision{Action: ActionCall}
		}
	}
	return Decision{Action: ActionFold}
}

// RandomAgent picks a uniformly random legal action. Raises go to the
// minimum raise-to amount.
type RandomAgent struct{}

func (RandomAgent) Decide(turn Turn) Decision {
	if len(turn.LegalActions) == 0 {
		return Decision{Action: ActionFold}
	}
	la := turn.LegalActions[rand.IntN(len(turn.LegalActions))]
	return Decision{Action: la.Type, Amount: la.Amount}
}
