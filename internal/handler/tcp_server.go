package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"docdetect/internal/logger"
)

// tcpServer is the accept loop shared by the TCP handlers. Every accepted
// connection runs on its own goroutine and is joined by Wait.
type tcpServer struct {
	name   string
	addr   string
	poll   time.Duration
	logger *logger.Logger
	handle func(ctx context.Context, conn *net.TCPConn)

	mu       sync.Mutex
	listener *net.TCPListener
	clients  int
	wg       sync.WaitGroup
}

func newTCPServer(name, addr string, poll time.Duration, logger *logger.Logger) *tcpServer {
	if poll <= 0 {
		poll = time.Second
	}
	return &tcpServer{name: name, addr: addr, poll: poll, logger: logger}
}

// Listen binds the listening socket.
func (s *tcpServer) Listen() error {
	addr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve TCP address %s: %w", s.addr, err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("%s listening on %s", s.name, listener.Addr())
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *tcpServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts clients until ctx is cancelled or the listener is closed.
// The accept deadline is re-armed every poll interval so cancellation is
// observed even when no client connects.
func (s *tcpServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("%s is not listening", s.name)
	}

	// Held while accepting so connection Adds never race a zero-count Wait.
	s.wg.Add(1)
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := listener.SetDeadline(time.Now().Add(s.poll)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to set accept deadline: %w", err)
		}

		conn, err := listener.AcceptTCP()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Error("Error accepting client: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *tcpServer) serveConn(ctx context.Context, conn *net.TCPConn) {
	defer s.wg.Done()
	defer conn.Close()

	s.track(1)
	defer s.track(-1)

	s.handle(ctx, conn)
}

// Close closes the listener, unblocking Serve. Connection handlers observe the
// cancelled context within one poll interval.
func (s *tcpServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until Serve and every connection handler have returned.
func (s *tcpServer) Wait() {
	s.wg.Wait()
}

// Clients returns the number of connected clients.
func (s *tcpServer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

func (s *tcpServer) track(delta int) {
	s.mu.Lock()
	s.clients += delta
	s.mu.Unlock()
}
