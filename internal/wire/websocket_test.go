package wire

import (
	"bufio"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptKey(t *testing.T) {
	t.Parallel()

	// Known vector from RFC 6455 section 1.3.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestIsUpgrade(t *testing.T) {
	t.Parallel()

	req := &Request{Headers: map[string]string{
		"upgrade":           "WebSocket",
		"connection":        "Upgrade",
		"sec-websocket-key": "dGhlIHNhbXBsZSBub25jZQ==",
	}}
	assert.True(t, IsUpgrade(req))

	assert.False(t, IsUpgrade(&Request{Headers: map[string]string{"upgrade": "websocket"}}))
	assert.False(t, IsUpgrade(&Request{Headers: map[string]string{}}))
}

// clientFrame builds a masked client-to-server frame.
func clientFrame(opcode byte, payload []byte) []byte {
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}
	var frame []byte
	first := byte(0x80) | opcode
	switch n := len(payload); {
	case n < 126:
		frame = []byte{first, 0x80 | byte(n)}
	case n <= 0xFFFF:
		frame = []byte{first, 0x80 | 126, 0, 0}
		binary.BigEndian.PutUint16(frame[2:], uint16(n))
	default:
		frame = make([]byte, 10)
		frame[0], frame[1] = first, 0x80|127
		binary.BigEndian.PutUint64(frame[2:], uint64(n))
	}
	frame = append(frame, mask[:]...)
	for i, b := range payload {
		frame = append(frame, b^mask[i%4])
	}
	return frame
}

func wsPair(t *testing.T) (client net.Conn, server *WSConn) {
	t.Helper()
	c, s := connPair(t)
	return c, &WSConn{conn: s, br: bufio.NewReader(s)}
}

func TestReadMessageUnmasksPayload(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	_, err := client.Write(clientFrame(OpText, []byte(`{"type":"action"}`)))
	require.NoError(t, err)

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"action"}`, string(msg))
}

func TestReadMessageRejectsUnmasked(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	_, err := client.Write([]byte{0x81, 0x02, 'h', 'i'})
	require.NoError(t, err)

	_, err = server.ReadMessage()
	assert.ErrorIs(t, err, ErrUnmaskedFrame)
}

func TestReadMessageRejectsOversizeFrame(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	// Header declares a payload past the cap; no body needed.
	hdr := make([]byte, 10)
	hdr[0], hdr[1] = 0x82, 0x80|127
	binary.BigEndian.PutUint64(hdr[2:], uint64(MaxFrameBytes+1))
	_, err := client.Write(hdr)
	require.NoError(t, err)

	_, err = server.ReadMessage()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadMessageAnswersPing(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	_, err := client.Write(clientFrame(OpPing, []byte("beat")))
	require.NoError(t, err)
	_, err = client.Write(clientFrame(OpText, []byte("after")))
	require.NoError(t, err)

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "after", string(msg))

	// The pong must carry the ping payload back.
	var hdr [2]byte
	_, err = client.Read(hdr[:])
	require.NoError(t, err)
	assert.Equal(t, byte(0x80)|OpPong, hdr[0])
	assert.Equal(t, byte(4), hdr[1])
	body := make([]byte, 4)
	_, err = client.Read(body)
	require.NoError(t, err)
	assert.Equal(t, "beat", string(body))
}

func TestWritePingSendsEmptyPingFrame(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	errc := make(chan error, 1)
	go func() { errc <- server.WritePing() }()

	var hdr [2]byte
	_, err := client.Read(hdr[:])
	require.NoError(t, err)
	assert.Equal(t, byte(0x80)|OpPing, hdr[0])
	assert.Equal(t, byte(0), hdr[1])
	require.NoError(t, <-errc)
}

func TestReadMessageAssemblesFragments(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	first := clientFrame(OpText, []byte("hel"))
	first[0] &^= 0x80 // clear FIN
	cont := clientFrame(OpContinuation, []byte("lo"))
	_, err := client.Write(append(first, cont...))
	require.NoError(t, err)

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestCloseHandshake(t *testing.T) {
	t.Parallel()

	client, server := wsPair(t)
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, 1000)
	_, err := client.Write(clientFrame(OpClose, payload))
	require.NoError(t, err)

	_, err = server.ReadMessage()
	assert.ErrorIs(t, err, ErrConnClosed)
}

// TestGorillaInterop drives the server framing with an independent
// RFC 6455 implementation end to end: handshake, echo, close.
func TestGorillaInterop(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		req, err := ReadRequest(conn, br)
		if err != nil {
			serverErr <- err
			return
		}
		if !IsUpgrade(req) {
			serverErr <- ErrNotWebSocket
			return
		}
		ws, err := Upgrade(conn, br, req)
		if err != nil {
			serverErr <- err
			return
		}
		for {
			msg, err := ws.ReadMessage()
			if err != nil {
				serverErr <- nil
				return
			}
			if err := ws.WriteMessage(msg); err != nil {
				serverErr <- err
				return
			}
		}
	}()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial("ws://"+ln.Addr().String()+"/tables/main/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_state"}`)))
	kind, echo, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"type":"get_state"}`, string(echo))

	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	require.NoError(t, <-serverErr)
}
