package server

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/openfelt/cardroom/internal/auth"
	"github.com/openfelt/cardroom/internal/broadcast"
	"github.com/openfelt/cardroom/internal/table"
	"github.com/openfelt/cardroom/internal/wire"
)

const (
	// sinkBuffer is the per-connection outbound queue. A consumer that
	// falls this far behind is cut off rather than allowed to stall the
	// table's event loop.
	sinkBuffer = 256

	pingPeriod = 45 * time.Second
)

// wsWriter is the frame surface a sink writes through. wire.WSConn
// satisfies it.
type wsWriter interface {
	WriteMessage(payload []byte) error
	WritePing() error
	Close() error
}

// wsSink adapts a websocket connection to the broadcast sink interface.
// Send only enqueues; a writePump goroutine owns the network writes and
// keeps the peer alive with periodic pings, so one slow client cannot
// block the fanout or the table actor behind it.
type wsSink struct {
	ws        wsWriter
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSink(ws wsWriter) *wsSink {
	s := &wsSink{
		ws:   ws,
		send: make(chan []byte, sinkBuffer),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// Send enqueues a payload without blocking. A full buffer closes the
// connection and reports the sink dead to the fanout.
func (s *wsSink) Send(payload []byte) error {
	select {
	case <-s.done:
		return wire.ErrConnClosed
	case s.send <- payload:
		return nil
	default:
		s.close()
		return wire.ErrConnClosed
	}
}

func (s *wsSink) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.Send(payload)
}

func (s *wsSink) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

func (s *wsSink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			if err := s.ws.WriteMessage(payload); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.ws.WritePing(); err != nil {
				s.close()
				return
			}
		}
	}
}

type wsCommand struct {
	Type    string `json:"type"`
	TurnSeq uint64 `json:"turn_seq"`
	Action  string `json:"action"`
	Amount  int    `json:"amount"`
	Note    string `json:"note,omitempty"`
	Message string `json:"message,omitempty"`
}

type wsHandler struct {
	svc    *Service
	logger *log.Logger
}

func newWSHandler(svc *Service, logger *log.Logger) *wsHandler {
	return &wsHandler{svc: svc, logger: logger.WithPrefix("ws")}
}

// handle upgrades /ws/{table} requests and runs the read loop until the
// peer disconnects. Players get live events and can act over the
// socket; spectators get the delayed card-masked stream.
func (h *wsHandler) handle(conn net.Conn, br *bufio.Reader, req *wire.Request) {
	parts := splitPath(req.Path)
	if len(parts) != 2 || parts[0] != "ws" {
		_ = wire.WriteJSON(conn, 404, apiError{Error: "no such stream", Code: "NOT_FOUND"})
		return
	}
	fanout, tbl, err := h.svc.Fanout(parts[1])
	if err != nil {
		_ = wire.WriteJSON(conn, 404, apiError{Error: "no such table", Code: "NOT_FOUND"})
		return
	}

	mode := req.Query.Get("mode")
	name := auth.SanitizeName(req.Query.Get("name"))
	token := req.Query.Get("token")

	if mode == "play" {
		if name == "" || !h.svc.Verify(name, token) {
			_ = wire.WriteJSON(conn, 401, apiError{Error: "invalid or missing token", Code: "UNAUTHORIZED"})
			return
		}
		if !tbl.Seated(name) {
			_ = wire.WriteJSON(conn, 409, apiError{Error: "not seated at this table", Code: "NOT_SEATED"})
			return
		}
	} else {
		if fanout.SpectatorCount() >= h.svc.cfg.Server.MaxSpectators {
			_ = wire.WriteJSON(conn, 503, apiError{Error: "spectator limit reached", Code: "SPECTATOR_LIMIT"})
			return
		}
		name = ""
	}

	ws, err := wire.Upgrade(conn, br, req)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}
	sink := newWSSink(ws)
	defer sink.close()

	if mode == "play" {
		h.runPlayer(ws, sink, fanout, tbl, name)
	} else {
		h.runSpectator(ws, sink, fanout, tbl)
	}
}

func (h *wsHandler) runPlayer(ws *wire.WSConn, sink *wsSink, fanout *broadcast.Fanout, tbl *table.Table, name string) {
	fanout.AttachPlayer(name, sink)
	defer fanout.DetachPlayer(name, sink)

	sink.sendJSON(map[string]any{"type": "state", "state": tbl.StateFor(name)})
	h.logger.Info("player stream attached", "table", tbl.ID(), "player", name)

	for {
		payload, err := ws.ReadMessage()
		if err != nil {
			h.logger.Debug("player stream closed", "table", tbl.ID(), "player", name, "error", err)
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			sink.sendJSON(apiError{Error: "malformed json", Code: "INVALID_INPUT"})
			continue
		}
		switch cmd.Type {
		case "action":
			if ok, retryMS := h.svc.Allow(ws.RemoteAddr(), "action"); !ok {
				sink.sendJSON(apiError{Error: "too many requests", Code: "RATE_LIMIT", RetryAfterMS: retryMS})
				continue
			}
			action, ok := parseAction(cmd.Action)
			if !ok {
				sink.sendJSON(apiError{Error: "unknown action " + cmd.Action, Code: "INVALID_ACTION"})
				continue
			}
			note := auth.SanitizeMessage(cmd.Note, 0)
			if err := tbl.SubmitAction(name, cmd.TurnSeq, action, cmd.Amount, note); err != nil {
				code, _ := errorCode(err)
				sink.sendJSON(apiError{Error: err.Error(), Code: code})
			}
		case "chat":
			if ok, retryMS := h.svc.Allow(ws.RemoteAddr(), "chat"); !ok {
				sink.sendJSON(apiError{Error: "too many requests", Code: "RATE_LIMIT", RetryAfterMS: retryMS})
				continue
			}
			if msg := auth.SanitizeMessage(cmd.Message, 0); msg != "" {
				tbl.Chat(name, msg)
			}
		case "get_state":
			sink.sendJSON(map[string]any{"type": "state", "state": tbl.StateFor(name)})
		default:
			sink.sendJSON(apiError{Error: "unknown command " + cmd.Type, Code: "INVALID_INPUT"})
		}
	}
}

func (h *wsHandler) runSpectator(ws *wire.WSConn, sink *wsSink, fanout *broadcast.Fanout, tbl *table.Table) {
	// The masked snapshot goes out before attaching so a queued release
	// cannot interleave inside it.
	sink.sendJSON(map[string]any{"type": "state", "state": tbl.StateFor("")})
	fanout.AttachSpectator(sink)
	defer fanout.DetachSpectator(sink)
	h.logger.Info("spectator attached", "table", tbl.ID(), "spectators", fanout.SpectatorCount())

	for {
		payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			continue
		}
		// Spectators only get the delayed view back, whatever they ask.
		if cmd.Type == "get_state" {
			sink.sendJSON(map[string]any{"type": "state", "state": tbl.StateFor("")})
		}
	}
}
