package server

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/openfelt/cardroom/internal/auth"
	"github.com/openfelt/cardroom/internal/table"
	"github.com/openfelt/cardroom/internal/wire"
)

// handler routes parsed wire requests to service operations.
type handler struct {
	svc    *Service
	logger *log.Logger
}

func newHandler(svc *Service, logger *log.Logger) *handler {
	return &handler{svc: svc, logger: logger.WithPrefix("http")}
}

type joinRequest struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
	BuyIn int    `json:"buy_in"`
}

type joinResponse struct {
	Seat  int    `json:"seat"`
	Token string `json:"token"`
}

type actionRequest struct {
	TurnSeq uint64 `json:"turn_seq"`
	Action  string `json:"action"`
	Amount  int    `json:"amount"`
	Note    string `json:"note,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type createTableRequest struct {
	Name           string `json:"name"`
	MaxPlayers     int    `json:"max_players"`
	SmallBlind     int    `json:"small_blind"`
	BigBlind       int    `json:"big_blind"`
	StartingChips  int    `json:"starting_chips"`
	TurnTimeoutSec int    `json:"turn_timeout_sec"`
}

type depositRequest struct {
	Amount int `json:"amount"`
}

type withdrawRequest struct {
	Amount int    `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// handle serves one parsed HTTP request. The whole surface is also
// reachable under an /api prefix.
func (h *handler) handle(w io.Writer, req *wire.Request) {
	parts := splitPath(req.Path)
	if len(parts) > 0 && parts[0] == "api" {
		parts = parts[1:]
	}

	endpoint := rateKey(parts)
	if ok, retryMS := h.svc.Allow(remoteHost(req.RemoteAddr), endpoint); !ok {
		h.writeErrorCode(w, 429, "RATE_LIMIT", "too many requests", retryMS)
		return
	}

	switch {
	case req.Method == "GET" && len(parts) == 1 && parts[0] == "health":
		wire.WriteJSON(w, 200, map[string]string{"status": "ok"})
	case req.Method == "GET" && len(parts) == 1 && parts[0] == "tables":
		wire.WriteJSON(w, 200, map[string]any{"tables": h.svc.Tables()})
	case req.Method == "POST" && len(parts) == 1 && parts[0] == "tables":
		h.createTable(w, req)
	case len(parts) == 3 && parts[0] == "tables":
		h.tableRoute(w, req, parts[1], parts[2])
	case len(parts) >= 2 && parts[0] == "ranked":
		h.rankedRoute(w, req, parts[1:])
	default:
		h.writeError(w, ErrTableNotFound)
	}
}

func (h *handler) tableRoute(w io.Writer, req *wire.Request, tableID, op string) {
	switch {
	case req.Method == "GET" && op == "state":
		viewer, _ := h.identity(req)
		st, err := h.svc.State(tableID, viewer)
		if err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, st)
	case req.Method == "GET" && op == "history":
		records, err := h.svc.History(tableID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, map[string]any{"hands": records})
	case req.Method == "GET" && op == "stats":
		stats, err := h.svc.Stats(tableID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, map[string]any{"stats": stats})
	case req.Method == "POST" && op == "join":
		h.join(w, req, tableID)
	case req.Method == "POST" && op == "action":
		h.action(w, req, tableID)
	case req.Method == "POST" && op == "chat":
		h.chat(w, req, tableID)
	case req.Method == "POST" && op == "leave":
		name, err := h.authenticate(req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.svc.Leave(tableID, name); err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, okResponse{OK: true})
	default:
		h.writeError(w, ErrTableNotFound)
	}
}

func (h *handler) join(w io.Writer, req *wire.Request, tableID string) {
	var body joinRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		h.writeErrorCode(w, 400, "INVALID_INPUT", "malformed json body", 0)
		return
	}
	name := auth.SanitizeName(body.Name)
	if name == "" {
		h.writeErrorCode(w, 400, "INVALID_INPUT", "name is required", 0)
		return
	}
	// Ranked seats belong to bank accounts: the caller must hold the
	// account secret, not just pick a name.
	if e, err := h.svc.entry(tableID); err == nil && e.tbl.Ranked() {
		_, secret := h.identity(req)
		if err := h.svc.VerifyRanked(context.Background(), name, secret); err != nil {
			h.writeError(w, err)
			return
		}
	}
	seat, token, err := h.svc.Join(tableID, name, auth.SanitizeGlyph(body.Emoji), body.BuyIn)
	if err != nil {
		h.writeError(w, err)
		return
	}
	wire.WriteJSON(w, 200, joinResponse{Seat: seat, Token: token})
}

func (h *handler) action(w io.Writer, req *wire.Request, tableID string) {
	name, err := h.authenticate(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body actionRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		h.writeErrorCode(w, 400, "INVALID_INPUT", "malformed json body", 0)
		return
	}
	action, ok := parseAction(body.Action)
	if !ok {
		h.writeErrorCode(w, 400, "INVALID_ACTION", "unknown action "+body.Action, 0)
		return
	}
	note := auth.SanitizeMessage(body.Note, 0)
	if err := h.svc.Action(tableID, name, body.TurnSeq, action, body.Amount, note); err != nil {
		h.writeError(w, err)
		return
	}
	wire.WriteJSON(w, 200, okResponse{OK: true})
}

func (h *handler) chat(w io.Writer, req *wire.Request, tableID string) {
	name, err := h.authenticate(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body chatRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		h.writeErrorCode(w, 400, "INVALID_INPUT", "malformed json body", 0)
		return
	}
	msg := auth.SanitizeMessage(body.Message, 0)
	if msg == "" {
		h.writeErrorCode(w, 400, "INVALID_INPUT", "message is empty", 0)
		return
	}
	if err := h.svc.Chat(tableID, name, msg); err != nil {
		h.writeError(w, err)
		return
	}
	wire.WriteJSON(w, 200, okResponse{OK: true})
}

func (h *handler) createTable(w io.Writer, req *wire.Request) {
	var body createTableRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		h.writeErrorCode(w, 400, "INVALID_INPUT", "malformed json body", 0)
		return
	}
	_, err := h.svc.CreateTable(TableConfig{
		Name:           body.Name,
		MaxPlayers:     body.MaxPlayers,
		SmallBlind:     body.SmallBlind,
		BigBlind:       body.BigBlind,
		StartingChips:  body.StartingChips,
		TurnTimeoutSec: body.TurnTimeoutSec,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	wire.WriteJSON(w, 200, map[string]string{"table": body.Name})
}

// rankedRoute serves the ledger endpoints. These authenticate against
// the external bank with an account id + secret, never with a table
// session token, so a fresh account can deposit before ever sitting
// down.
func (h *handler) rankedRoute(w io.Writer, req *wire.Request, parts []string) {
	name, secret := h.identity(req)
	if name == "" || secret == "" {
		h.writeError(w, ErrUnauthorized)
		return
	}
	if err := h.svc.VerifyRanked(context.Background(), name, secret); err != nil {
		h.writeError(w, err)
		return
	}

	op := strings.Join(parts, "/")
	switch {
	case req.Method == "GET" && op == "balance":
		balance, frozen, err := h.svc.RankedBalance(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, map[string]any{"balance": balance, "frozen": frozen})
	case req.Method == "POST" && op == "deposit":
		var body depositRequest
		if err := json.Unmarshal(req.Body, &body); err != nil || body.Amount <= 0 {
			h.writeErrorCode(w, 400, "INVALID_INPUT", "amount must be positive", 0)
			return
		}
		dep, err := h.svc.RequestDeposit(name, body.Amount)
		if err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, dep)
	case req.Method == "GET" && op == "deposit":
		dep, ok, err := h.svc.DepositStatus(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !ok {
			h.writeErrorCode(w, 404, "NOT_FOUND", "no deposit on record", 0)
			return
		}
		wire.WriteJSON(w, 200, dep)
	case req.Method == "POST" && op == "withdraw/challenge":
		ch, err := h.svc.WithdrawChallenge(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, ch)
	case req.Method == "POST" && op == "withdraw":
		var body withdrawRequest
		if err := json.Unmarshal(req.Body, &body); err != nil || body.Amount <= 0 {
			h.writeErrorCode(w, 400, "INVALID_INPUT", "amount must be positive", 0)
			return
		}
		if err := h.svc.Withdraw(context.Background(), name, body.Amount, body.Nonce); err != nil {
			h.writeError(w, err)
			return
		}
		wire.WriteJSON(w, 200, okResponse{OK: true})
	default:
		h.writeError(w, ErrTableNotFound)
	}
}

// identity extracts the caller's name and token without enforcing them.
func (h *handler) identity(req *wire.Request) (name, token string) {
	name = auth.SanitizeName(req.Header("x-player"))
	token = strings.TrimPrefix(req.Header("authorization"), "Bearer ")
	return name, token
}

// authenticate requires a valid name/token pair.
func (h *handler) authenticate(req *wire.Request) (string, error) {
	name, token := h.identity(req)
	if name == "" || !h.svc.Verify(name, token) {
		return "", ErrUnauthorized
	}
	return name, nil
}

func (h *handler) writeError(w io.Writer, err error) {
	code, status := errorCode(err)
	if status >= 500 {
		h.logger.Error("request failed", "code", code, "error", err)
	}
	h.writeErrorCode(w, status, code, err.Error(), 0)
}

func (h *handler) writeErrorCode(w io.Writer, status int, code, msg string, retryMS int64) {
	_ = wire.WriteJSON(w, status, apiError{Error: msg, Code: code, RetryAfterMS: retryMS})
}

func parseAction(s string) (table.ActionType, bool) {
	switch table.ActionType(strings.ToLower(strings.TrimSpace(s))) {
	case table.ActionFold:
		return table.ActionFold, true
	case table.ActionCheck:
		return table.ActionCheck, true
	case table.ActionCall:
		return table.ActionCall, true
	case table.ActionRaise:
		return table.ActionRaise, true
	}
	return "", false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// rateKey buckets a request path into a rate-limit endpoint class.
func rateKey(parts []string) string {
	if len(parts) == 0 {
		return "default"
	}
	if parts[0] == "ranked" {
		return "ranked"
	}
	if parts[0] == "tables" && len(parts) == 3 {
		switch parts[2] {
		case "join", "action", "chat", "leave", "state":
			return parts[2]
		}
	}
	return "default"
}

// remoteHost strips the port from a net address string.
func remoteHost(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

