package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair returns a connected TCP pair on loopback. TCP rather than
// net.Pipe so deadlines and buffered writes behave like production.
func connPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server, err = ln.Accept()
	}()
	client, dialErr := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, dialErr)
	<-done
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func sendRaw(t *testing.T, conn net.Conn, raw string) {
	t.Helper()
	_, err := conn.Write([]byte(raw))
	require.NoError(t, err)
}

func TestReadRequestBasic(t *testing.T) {
	t.Parallel()

	client, server := connPair(t)
	sendRaw(t, client, "GET /tables/main/state?viewer=alice HTTP/1.1\r\nHost: x\r\nX-Foo: bar \r\n\r\n")

	req, err := ReadRequest(server, bufio.NewReader(server))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/tables/main/state", req.Path)
	assert.Equal(t, "alice", req.Query.Get("viewer"))
	assert.Equal(t, "bar", req.Header("X-Foo"))
	assert.Equal(t, client.LocalAddr().String(), req.RemoteAddr)
}

func TestReadRequestBody(t *testing.T) {
	t.Parallel()

	client, server := connPair(t)
	body := `{"name":"alice"}`
	sendRaw(t, client, fmt.Sprintf("POST /tables/main/join HTTP/1.1\r\nContent-Length: %d\r\nContent-Type: application/json\r\n\r\n%s", len(body), body))

	req, err := ReadRequest(server, bufio.NewReader(server))
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, body, string(req.Body))
}

func TestReadRequestRejectsOversizeBody(t *testing.T) {
	t.Parallel()

	client, server := connPair(t)
	sendRaw(t, client, fmt.Sprintf("POST /x HTTP/1.1\r\nContent-Length: %d\r\n\r\n", MaxBodyBytes+1))

	_, err := ReadRequest(server, bufio.NewReader(server))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestReadRequestRejectsTooManyHeaders(t *testing.T) {
	t.Parallel()

	client, server := connPair(t)
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < maxHeaderCount+1; i++ {
		fmt.Fprintf(&b, "X-H%d: v\r\n", i)
	}
	b.WriteString("\r\n")
	sendRaw(t, client, b.String())

	_, err := ReadRequest(server, bufio.NewReader(server))
	assert.ErrorIs(t, err, ErrTooManyHeaders)
}

func TestReadRequestRejectsGarbage(t *testing.T) {
	t.Parallel()

	client, server := connPair(t)
	sendRaw(t, client, "NOT A REQUEST\r\n\r\n")

	_, err := ReadRequest(server, bufio.NewReader(server))
	assert.ErrorIs(t, err, ErrBadRequestLine)
}

func TestWriteJSONIncludesHardeningHeaders(t *testing.T) {
	t.Parallel()

	client, server := connPair(t)
	require.NoError(t, WriteJSON(server, 200, map[string]string{"ok": "yes"}))
	server.Close()

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", status)

	headers := make(map[string]string)
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, _ := strings.Cut(line, ": ")
		headers[name] = value
	}
	assert.Equal(t, "*", headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "nosniff", headers["X-Content-Type-Options"])
	assert.Equal(t, "DENY", headers["X-Frame-Options"])

	var payload map[string]string
	require.NoError(t, json.NewDecoder(br).Decode(&payload))
	assert.Equal(t, "yes", payload["ok"])
}
