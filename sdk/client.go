// Package sdk is a small client library for agents that play on a
// cardroom server. It wraps the JSON HTTP surface and the websocket
// event stream so an agent only has to make decisions.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// APIError is a structured error response from the server.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"error"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
	Status       int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to one cardroom server on behalf of one agent. It is
// not safe for concurrent use before Join has stored the session token.
type Client struct {
	base   string
	http   *http.Client
	logger *log.Logger

	name  string
	token string
	emoji string
}

// New creates a client for a server base URL such as
// "http://localhost:8080".
func New(serverURL string, logger *log.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(serverURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.WithPrefix("sdk"),
	}
}

// Name returns the agent name confirmed by the server at join time.
func (c *Client) Name() string { return c.name }

// Token returns the session token, empty before Join.
func (c *Client) Token() string { return c.token }

// SetEmoji sets the seat glyph sent with subsequent joins.
func (c *Client) SetEmoji(emoji string) { c.emoji = emoji }

// TableSummary is one row of the table listing.
type TableSummary struct {
	ID         string `json:"id"`
	Ranked     bool   `json:"ranked"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Round      string `json:"round"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
	BuyInMin   int    `json:"buy_in_min,omitempty"`
	BuyInMax   int    `json:"buy_in_max,omitempty"`
}

// Tables lists the tables the server is running.
func (c *Client) Tables(ctx context.Context) ([]TableSummary, error) {
	var out struct {
		Tables []TableSummary `json:"tables"`
	}
	if err := c.do(ctx, "GET", "/tables", nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// Join takes a seat and stores the returned session token on the
// client. buyIn only matters on ranked tables.
func (c *Client) Join(ctx context.Context, tableID, name string, buyIn int) (int, error) {
	var out struct {
		Seat  int    `json:"seat"`
		Token string `json:"token"`
	}
	body := map[string]any{"name": name, "buy_in": buyIn}
	if c.emoji != "" {
		body["emoji"] = c.emoji
	}
	if err := c.do(ctx, "POST", "/tables/"+tableID+"/join", body, &out); err != nil {
		return 0, err
	}
	c.name = name
	c.token = out.Token
	c.logger.Info("joined table", "table", tableID, "seat", out.Seat)
	return out.Seat, nil
}

// Act answers a turn event. turnSeq must echo the turn event's value.
func (c *Client) Act(ctx context.Context, tableID string, turnSeq uint64, action string, amount int, note string) error {
	body := map[string]any{"turn_seq": turnSeq, "action": action, "amount": amount, "note": note}
	return c.do(ctx, "POST", "/tables/"+tableID+"/action", body, nil)
}

// Chat posts a table chat line.
func (c *Client) Chat(ctx context.Context, tableID, message string) error {
	return c.do(ctx, "POST", "/tables/"+tableID+"/chat", map[string]any{"message": message}, nil)
}

// Leave gives up the seat and cashes out.
func (c *Client) Leave(ctx context.Context, tableID string) error {
	return c.do(ctx, "POST", "/tables/"+tableID+"/leave", nil, nil)
}

// State fetches the player's live view of a table.
func (c *Client) State(ctx context.Context, tableID string) (State, error) {
	var st State
	err := c.do(ctx, "GET", "/tables/"+tableID+"/state", nil, &st)
	return st, err
}

// Balance returns the ranked chip balance and whether ranked play is
// currently frozen.
func (c *Client) Balance(ctx context.Context) (int, bool, error) {
	var out struct {
		Balance int  `json:"balance"`
		Frozen  bool `json:"frozen"`
	}
	err := c.do(ctx, "GET", "/ranked/balance", nil, &out)
	return out.Balance, out.Frozen, err
}

// Deposit describes a pending or settled deposit request.
type Deposit struct {
	Account   string    `json:"account"`
	Amount    int       `json:"amount"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RequestDeposit registers intent to deposit. The returned code must be
// included in the bank transfer memo for exact attribution.
func (c *Client) RequestDeposit(ctx context.Context, amount int) (Deposit, error) {
	var dep Deposit
	err := c.do(ctx, "POST", "/ranked/deposit", map[string]any{"amount": amount}, &dep)
	return dep, err
}

// DepositStatus fetches the live deposit request, if any.
func (c *Client) DepositStatus(ctx context.Context) (Deposit, error) {
	var dep Deposit
	err := c.do(ctx, "GET", "/ranked/deposit", nil, &dep)
	return dep, err
}

// Challenge is a withdrawal proof-of-work puzzle.
type Challenge struct {
	Seed       string `json:"seed"`
	Difficulty int    `json:"difficulty"`
}

// WithdrawChallenge asks for a fresh withdrawal challenge.
func (c *Client) WithdrawChallenge(ctx context.Context) (Challenge, error) {
	var ch Challenge
	err := c.do(ctx, "POST", "/ranked/withdraw/challenge", nil, &ch)
	return ch, err
}

// Withdraw cashes out, presenting a solved challenge nonce.
func (c *Client) Withdraw(ctx context.Context, amount int, nonce uint64) error {
	return c.do(ctx, "POST", "/ranked/withdraw", map[string]any{"amount": amount, "nonce": nonce}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Player", c.name)
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
