package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Stream is a live table event feed over a websocket.
type Stream struct {
	conn *websocket.Conn
}

// Stream opens the player event feed for a table. Join must have
// succeeded first so the session token exists.
func (c *Client) Stream(ctx context.Context, tableID string) (*Stream, error) {
	if c.token == "" {
		return nil, fmt.Errorf("sdk: join a table before streaming")
	}
	q := url.Values{}
	q.Set("mode", "play")
	q.Set("name", c.name)
	q.Set("token", c.token)
	return c.dial(ctx, tableID, q)
}

// Spectate opens the delayed card-masked spectator feed for a table.
func (c *Client) Spectate(ctx context.Context, tableID string) (*Stream, error) {
	q := url.Values{}
	q.Set("mode", "spectate")
	return c.dial(ctx, tableID, q)
}

func (c *Client) dial(ctx context.Context, tableID string, q url.Values) (*Stream, error) {
	wsBase := strings.Replace(c.base, "http", "ws", 1)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsBase+"/ws/"+tableID+"?"+q.Encode(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("sdk: stream rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &Stream{conn: conn}, nil
}

// Next blocks for the next event on the stream.
func (s *Stream) Next() (Event, error) {
	var ev Event
	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("sdk: malformed event: %w", err)
	}
	return ev, nil
}

// Send pushes a raw command over the socket. Actions submitted this way
// behave the same as the HTTP action endpoint.
func (s *Stream) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Act answers a turn event over the socket.
func (s *Stream) Act(turnSeq uint64, action string, amount int, note string) error {
	return s.Send(map[string]any{
		"type":     "action",
		"turn_seq": turnSeq,
		"action":   action,
		"amount":   amount,
		"note":     note,
	})
}

func (s *Stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
