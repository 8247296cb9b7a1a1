package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultReadTimeout bounds how long a client may take to send its request.
const DefaultReadTimeout = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server answers one JSON request per connection.
type Server struct {
	Handler     Handler
	Logger      *slog.Logger
	ReadTimeout time.Duration
}

// Serve accepts clients until ctx is cancelled or the listener closes, then
// waits for in-flight requests.
func (s Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			s.handleConn(ctx, c)
		}(conn)
	}
}

func (s Server) handleConn(ctx context.Context, c net.Conn) {
	_ = c.SetReadDeadline(time.Now().Add(s.ReadTimeout))

	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		s.Logger.Warn("ipc read request failed", "error", err)
		_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.Logger.Warn("ipc decode request failed", "error", err)
		_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	started := time.Now()
	resp := s.Handler.Handle(ctx, req)
	s.Logger.Debug("ipc request handled",
		"command", req.Command,
		"ok", resp.OK,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	_ = json.NewEncoder(c).Encode(resp)
}

// Serve runs a Server with default settings.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	return Server{Handler: handler}.Serve(ctx, listener)
}
