// Package broadcast fans table events out to connected players and
// spectators. Players get events as they happen; spectators get the same
// stream on a fixed delay so a live rail cannot be used to relay hole
// card information back to a seated agent in real time.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/openfelt/cardroom/internal/table"
)

const (
	// SpectatorDelay is how far behind live the spectator stream runs.
	SpectatorDelay = 20 * time.Second

	// queueCap bounds the delayed queue; beyond it the oldest events are
	// released early rather than dropped, preserving order.
	queueCap = 500

	flushInterval = 500 * time.Millisecond
)

// Sink delivers one serialized event to a subscriber. A Send error
// removes the sink from the fanout; other sinks are unaffected.
type Sink interface {
	Send(payload []byte) error
}

type delayed struct {
	releaseAt time.Time
	payload   []byte
}

// Fanout distributes one table's events.
type Fanout struct {
	logger *log.Logger
	clock  quartz.Clock
	delay  time.Duration

	mu           sync.Mutex
	players      map[string]Sink
	spectators   map[Sink]struct{}
	queue        []delayed
	lastReleased []byte
}

// New creates a fanout with the standard spectator delay.
func New(logger *log.Logger, clock quartz.Clock) *Fanout {
	return &Fanout{
		logger:     logger.WithPrefix("broadcast"),
		clock:      clock,
		delay:      SpectatorDelay,
		players:    make(map[string]Sink),
		spectators: make(map[Sink]struct{}),
	}
}

// SetDelay overrides the spectator delay.
func (f *Fanout) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Publish implements table.Publisher: players immediately, spectators
// via the delayed queue.
func (f *Fanout) Publish(ev table.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for name, sink := range f.players {
		if err := sink.Send(payload); err != nil {
			f.logger.Debug("dropping player sink", "player", name, "error", err)
			delete(f.players, name)
		}
	}

	f.queue = append(f.queue, delayed{releaseAt: f.clock.Now().Add(f.delay), payload: payload})
	if len(f.queue) > queueCap {
		f.releaseLocked(f.queue[0].payload)
		f.queue = f.queue[1:]
	}
}

// PublishTo implements table.Publisher for private payloads. The event
// goes to one player's sink and is never queued for spectators.
func (f *Fanout) PublishTo(player string, ev table.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("failed to encode private event", "type", ev.Type, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	sink, ok := f.players[player]
	if !ok {
		return
	}
	if err := sink.Send(payload); err != nil {
		f.logger.Debug("dropping player sink", "player", player, "error", err)
		delete(f.players, player)
	}
}

// AttachPlayer subscribes a seated player's connection. A second sink for
// the same name replaces the first.
func (f *Fanout) AttachPlayer(name string, sink Sink) {
	f.mu.Lock()
	f.players[name] = sink
	f.mu.Unlock()
}

// DetachPlayer removes a player's sink if sink is still the one attached.
func (f *Fanout) DetachPlayer(name string, sink Sink) {
	f.mu.Lock()
	if f.players[name] == sink {
		delete(f.players, name)
	}
	f.mu.Unlock()
}

// AttachSpectator subscribes a spectator and replays the most recently
// released event so mid-hand joiners are not staring at a blank feed.
func (f *Fanout) AttachSpectator(sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spectators[sink] = struct{}{}
	if f.lastReleased != nil {
		if err := sink.Send(f.lastReleased); err != nil {
			delete(f.spectators, sink)
		}
	}
}

// DetachSpectator removes a spectator sink.
func (f *Fanout) DetachSpectator(sink Sink) {
	f.mu.Lock()
	delete(f.spectators, sink)
	f.mu.Unlock()
}

// SpectatorCount is the number of attached spectator sinks.
func (f *Fanout) SpectatorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spectators)
}

// Run releases due spectator events until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) {
	ticker := f.clock.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// Flush releases every queued event whose delay has elapsed, in order.
func (f *Fanout) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	released := 0
	for _, item := range f.queue {
		if item.releaseAt.After(now) {
			break
		}
		f.releaseLocked(item.payload)
		released++
	}
	f.queue = f.queue[released:]
}

func (f *Fanout) releaseLocked(payload []byte) {
	f.lastReleased = payload
	for sink := range f.spectators {
		if err := sink.Send(payload); err != nil {
			f.logger.Debug("dropping spectator sink", "error", err)
			delete(f.spectators, sink)
		}
	}
}
