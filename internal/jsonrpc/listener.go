package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

// TCPListener serves every accepted connection with one Server.
type TCPListener struct {
	listener net.Listener
	server   *Server
}

// NewTCPListener listens on addr.
func NewTCPListener(addr string, server *Server) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &TCPListener{listener: ln, server: server}, nil
}

func (tl *TCPListener) Addr() net.Addr {
	return tl.listener.Addr()
}

// Serve accepts connections until ctx ends or the listener is closed, then
// closes open connections and waits for their handlers. It returns nil when
// stopped through ctx.
func (tl *TCPListener) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = map[net.Conn]struct{}{}
	)

	go func() {
		<-ctx.Done()
		_ = tl.listener.Close()

		mu.Lock()
		for c := range conns {
			_ = c.Close()
		}
		mu.Unlock()
	}()

	var err error
	for {
		var conn net.Conn
		conn, err = tl.listener.Accept()
		if err != nil {
			break
		}

		mu.Lock()
		if ctx.Err() != nil {
			// accepted after the closer ran
			mu.Unlock()
			_ = conn.Close()
			continue
		}
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Go(func() {
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				_ = conn.Close()
			}()
			tl.server.ServeConn(ctx, NewConn(conn, conn))
		})
	}

	stopped := ctx.Err() != nil
	cancel()
	wg.Wait()

	if stopped && errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close stops accepting connections.
func (tl *TCPListener) Close() error {
	return tl.listener.Close()
}
