// Package wire implements the minimal HTTP/1.1 and WebSocket framing the
// server speaks. Requests are parsed directly off the TCP stream; no
// net/http server is involved so connection lifetime, limits, and the
// upgrade path stay under the caller's control.
package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxBodyBytes is the largest request body accepted on any endpoint.
	MaxBodyBytes = 64 * 1024

	maxHeaderCount   = 50
	maxLineBytes     = 8 * 1024
	readStageTimeout = 10 * time.Second
)

var (
	ErrBodyTooLarge    = errors.New("wire: request body too large")
	ErrTooManyHeaders  = errors.New("wire: too many headers")
	ErrMalformedHeader = errors.New("wire: malformed header")
	ErrBadRequestLine  = errors.New("wire: malformed request line")
)

// Request is a parsed HTTP/1.1 request. Header names are lowercased.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	Headers    map[string]string
	Body       []byte
	RemoteAddr string
}

// Header returns the value of a header by its lowercase name.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// ReadRequest parses one HTTP request from conn. Each read stage gets a
// fresh deadline so a trickling client cannot hold the connection open
// indefinitely.
func ReadRequest(conn net.Conn, br *bufio.Reader) (*Request, error) {
	_ = conn.SetReadDeadline(time.Now().Add(readStageTimeout))

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/1.") {
		return nil, ErrBadRequestLine
	}
	method := parts[0]
	rawTarget := parts[1]

	u, err := url.ParseRequestURI(rawTarget)
	if err != nil {
		return nil, ErrBadRequestLine
	}

	req := &Request{
		Method:     method,
		Path:       u.Path,
		Query:      u.Query(),
		Headers:    make(map[string]string),
		RemoteAddr: conn.RemoteAddr().String(),
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readStageTimeout))
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		if len(req.Headers) >= maxHeaderCount {
			return nil, ErrTooManyHeaders
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, ErrMalformedHeader
		}
		req.Headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}

	if cl := req.Headers["content-length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, ErrMalformedHeader
		}
		if n > MaxBodyBytes {
			return nil, ErrBodyTooLarge
		}
		_ = conn.SetReadDeadline(time.Now().Add(readStageTimeout))
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, err
		}
		req.Body = body
	}

	_ = conn.SetReadDeadline(time.Time{})
	return req, nil
}

// readLine reads one CRLF-terminated line, rejecting oversized lines.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxLineBytes {
			return "", ErrMalformedHeader
		}
		if !isPrefix {
			return string(buf), nil
		}
	}
}

// securityHeaders are attached to every HTTP response. The API is meant
// to be called from agent code and dashboards anywhere, so CORS is open;
// the rest keeps browsers from doing anything clever with the payloads.
var securityHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type, Authorization"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'"},
}

func writeResponse(w io.Writer, status int, contentType string, body []byte) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusText(status))
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	for _, h := range securityHeaders {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("Connection: keep-alive\r\n\r\n")
	b.Write(body)
	_, err := w.Write(b.Bytes())
	return err
}

// WriteJSON encodes v and writes it as a JSON response.
func WriteJSON(w io.Writer, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeResponse(w, status, "application/json; charset=utf-8", body)
}

// WriteText writes a plain-text response.
func WriteText(w io.Writer, status int, body string) error {
	return writeResponse(w, status, "text/plain; charset=utf-8", []byte(body))
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 101:
		return "Switching Protocols"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 409:
		return "Conflict"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
