package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/openfelt/cardroom/internal/wire"
)

// Server accepts raw TCP connections and speaks the wire protocol on
// them: plain HTTP requests with keep-alive, upgraded to websocket
// streams on /ws paths.
type Server struct {
	cfg    *Config
	logger *log.Logger
	svc    *Service

	http *handler
	ws   *wsHandler

	conns *semaphore.Weighted
	ln    net.Listener
}

func NewServer(cfg *Config, logger *log.Logger, svc *Service) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.WithPrefix("server"),
		svc:    svc,
		http:   newHandler(svc, logger),
		ws:     newWSHandler(svc, logger),
		conns:  semaphore.NewWeighted(int64(cfg.Server.MaxConnections)),
	}
}

// Listen binds the configured address. Split from Serve so tests can
// read the bound port before serving.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress())
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if !s.conns.TryAcquire(1) {
			_ = wire.WriteJSON(conn, 503, apiError{Error: "connection limit reached", Code: "CONNECTION_LIMIT"})
			_ = conn.Close()
			continue
		}
		go func() {
			defer s.conns.Release(1)
			defer conn.Close()
			s.serveConn(conn)
		}()
	}
}

// serveConn reads requests off one connection until it closes. A
// websocket upgrade consumes the connection for its stream.
func (s *Server) serveConn(conn net.Conn) {
	br := bufio.NewReader(conn)
	for {
		req, err := wire.ReadRequest(conn, br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.writeReadError(conn, err)
			}
			return
		}

		if wire.IsUpgrade(req) {
			s.ws.handle(conn, br, req)
			return
		}

		s.http.handle(conn, req)
		if strings.EqualFold(req.Header("connection"), "close") {
			return
		}
	}
}

func (s *Server) writeReadError(conn net.Conn, err error) {
	switch {
	case errors.Is(err, wire.ErrBodyTooLarge):
		_ = wire.WriteJSON(conn, 413, apiError{Error: err.Error(), Code: "PAYLOAD_TOO_LARGE"})
	case errors.Is(err, wire.ErrBadRequestLine),
		errors.Is(err, wire.ErrMalformedHeader),
		errors.Is(err, wire.ErrTooManyHeaders):
		_ = wire.WriteJSON(conn, 400, apiError{Error: err.Error(), Code: "MALFORMED_REQUEST"})
	default:
		// Read timeouts and connection resets get no response.
	}
}
