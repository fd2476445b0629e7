package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Server dispatches requests to the handlers of a MethodRegistry.
type Server struct {
	registry *MethodRegistry
	logger   *slog.Logger
}

func NewServer(registry *MethodRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, logger: logger}
}

type notifierKey struct{}

// Notifier sends server-initiated notifications to the peer of the request
// being handled.
type Notifier interface {
	Notify(method string, params any) error
}

// NotifierFromContext returns the notifier of the connection a handler is
// serving, or nil outside of ServeConn.
func NotifierFromContext(ctx context.Context) Notifier {
	n, _ := ctx.Value(notifierKey{}).(Notifier)
	return n
}

// ServeConn handles requests from c one at a time until the peer closes the
// stream, a read or write fails, or ctx ends.
func (s *Server) ServeConn(ctx context.Context, c *Conn) {
	ctx = context.WithValue(ctx, notifierKey{}, Notifier(c))

	for ctx.Err() == nil {
		req, err := c.Read()
		if err != nil {
			var parseErr *Error
			if errors.As(err, &parseErr) {
				s.logger.Debug("Malformed JSON-RPC message", "error", parseErr.Data)
				if c.Reply(nil, nil, parseErr) != nil {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("JSON-RPC read failed", "error", err)
			}
			return
		}

		result, rpcErr := s.dispatch(ctx, req)
		if req.IsNotification() {
			continue
		}
		if err := c.Reply(req.ID, result, rpcErr); err != nil {
			s.logger.Debug("JSON-RPC write failed", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (result any, rpcErr *Error) {
	if req.JSONRPC != Version {
		return nil, ErrInvalidRequest(`jsonrpc field must be "2.0"`)
	}
	handler := s.registry.Lookup(req.Method)
	if handler == nil {
		return nil, ErrMethodNotFound(req.Method)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("JSON-RPC handler panicked", "method", req.Method, "panic", r)
			result, rpcErr = nil, ErrInternalError(fmt.Sprint(r))
		}
	}()
	return handler(ctx, req.Params)
}

// ServeStdio serves a single peer on stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer) {
	s.ServeConn(ctx, NewConn(stdin, stdout))
}
