package wire

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Opcodes from RFC 6455 section 5.2.
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA
)

const (
	// MaxFrameBytes caps a single frame payload. Anything a client has a
	// legitimate reason to send fits well under this.
	MaxFrameBytes = 64 * 1024

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout = 5 * time.Minute

	wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

var (
	ErrFrameTooLarge   = errors.New("wire: websocket frame too large")
	ErrUnmaskedFrame   = errors.New("wire: client frame not masked")
	ErrConnClosed      = errors.New("wire: websocket connection closed")
	ErrNotWebSocket    = errors.New("wire: not a websocket upgrade request")
	ErrReservedBitsSet = errors.New("wire: reserved bits set")
)

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(clientKey string) string {
	h := sha1.Sum([]byte(clientKey + wsGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// IsUpgrade reports whether req asks for a WebSocket upgrade.
func IsUpgrade(req *Request) bool {
	return strings.EqualFold(req.Header("upgrade"), "websocket") &&
		req.Header("sec-websocket-key") != ""
}

// Upgrade completes the WebSocket handshake and returns a framed
// connection. The request must already have been identified by IsUpgrade.
func Upgrade(conn net.Conn, br *bufio.Reader, req *Request) (*WSConn, error) {
	key := req.Header("sec-websocket-key")
	if key == "" {
		return nil, ErrNotWebSocket
	}
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n\r\n"
	if _, err := conn.Write([]byte(resp)); err != nil {
		return nil, err
	}
	return &WSConn{conn: conn, br: br, idle: IdleTimeout}, nil
}

// WSConn is a server-side WebSocket connection. Reads must come from a
// single goroutine; frame writes are serialized internally, so control
// frames from the read side cannot tear an outbound message.
type WSConn struct {
	conn net.Conn
	br   *bufio.Reader
	idle time.Duration
	wmu  sync.Mutex
}

// SetIdleTimeout overrides the read idle window. Zero disables it.
func (ws *WSConn) SetIdleTimeout(d time.Duration) { ws.idle = d }

func (ws *WSConn) RemoteAddr() string { return ws.conn.RemoteAddr().String() }

// ReadMessage returns the next text or binary payload. Pings are answered
// and control frames are consumed transparently. A close frame or idle
// expiry returns ErrConnClosed.
func (ws *WSConn) ReadMessage() ([]byte, error) {
	var message []byte
	for {
		if ws.idle > 0 {
			_ = ws.conn.SetReadDeadline(time.Now().Add(ws.idle))
		}
		fin, opcode, payload, err := readFrame(ws.br)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				_ = ws.WriteClose(1001, "idle timeout")
				return nil, ErrConnClosed
			}
			return nil, err
		}

		switch opcode {
		case OpPing:
			if err := ws.writeFrame(OpPong, payload); err != nil {
				return nil, err
			}
		case OpPong:
			// Unsolicited pongs are legal and ignored.
		case OpClose:
			_ = ws.writeFrame(OpClose, payload)
			return nil, ErrConnClosed
		case OpText, OpBinary, OpContinuation:
			if opcode == OpContinuation && message == nil {
				return nil, fmt.Errorf("wire: continuation without initial frame")
			}
			if len(message)+len(payload) > MaxFrameBytes {
				_ = ws.WriteClose(1009, "message too large")
				return nil, ErrFrameTooLarge
			}
			message = append(message, payload...)
			if fin {
				return message, nil
			}
		default:
			return nil, fmt.Errorf("wire: unknown opcode %#x", opcode)
		}
	}
}

// WriteMessage sends payload as a single unmasked text frame.
func (ws *WSConn) WriteMessage(payload []byte) error {
	return ws.writeFrame(OpText, payload)
}

// WritePing sends an empty ping frame.
func (ws *WSConn) WritePing() error {
	return ws.writeFrame(OpPing, nil)
}

// WriteClose sends a close frame with a status code and reason.
func (ws *WSConn) WriteClose(code uint16, reason string) error {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	copy(payload[2:], reason)
	return ws.writeFrame(OpClose, payload)
}

func (ws *WSConn) Close() error { return ws.conn.Close() }

// readFrame parses one frame off the stream. Client frames must be masked
// per RFC 6455; the mask is removed before the payload is returned.
func readFrame(br *bufio.Reader) (fin bool, opcode byte, payload []byte, err error) {
	var hdr [2]byte
	if _, err = io.ReadFull(br, hdr[:]); err != nil {
		return false, 0, nil, err
	}
	fin = hdr[0]&0x80 != 0
	if hdr[0]&0x70 != 0 {
		return false, 0, nil, ErrReservedBitsSet
	}
	opcode = hdr[0] & 0x0F
	masked := hdr[1]&0x80 != 0
	if !masked {
		return false, 0, nil, ErrUnmaskedFrame
	}

	length := uint64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err = io.ReadFull(br, ext[:]); err != nil {
			return false, 0, nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err = io.ReadFull(br, ext[:]); err != nil {
			return false, 0, nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > MaxFrameBytes {
		return false, 0, nil, ErrFrameTooLarge
	}

	var mask [4]byte
	if _, err = io.ReadFull(br, mask[:]); err != nil {
		return false, 0, nil, err
	}

	payload = make([]byte, length)
	if _, err = io.ReadFull(br, payload); err != nil {
		return false, 0, nil, err
	}
	for i := range payload {
		payload[i] ^= mask[i%4]
	}
	return fin, opcode, payload, nil
}

// writeFrame emits one unmasked server frame with the minimal length
// encoding for the payload size.
func (ws *WSConn) writeFrame(opcode byte, payload []byte) error {
	ws.wmu.Lock()
	defer ws.wmu.Unlock()

	var hdr []byte
	first := byte(0x80) | opcode
	switch n := len(payload); {
	case n < 126:
		hdr = []byte{first, byte(n)}
	case n <= 0xFFFF:
		hdr = []byte{first, 126, 0, 0}
		binary.BigEndian.PutUint16(hdr[2:], uint16(n))
	default:
		hdr = make([]byte, 10)
		hdr[0], hdr[1] = first, 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(n))
	}
	_ = ws.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := ws.conn.Write(hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := ws.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
