package wire

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
)

// Handler executes one command. A nil result is sent as JSON null.
type Handler func(ctx context.Context, cmd string, args json.RawMessage) (any, error)

// Server dispatches call frames to a Handler and fans events out to
// every connected client.
type Server struct {
	Handler Handler
	Logger  *log.Logger

	mu        sync.Mutex
	conns     map[Conn]struct{}
	listeners []Listener
	closed    bool
	wg        sync.WaitGroup
}

func (s *Server) Serve(ctx context.Context, l Listener) error {
	if s.Handler == nil {
		return errors.New("wire: server has no handler")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrListenerClosed
	}
	if s.conns == nil {
		s.conns = make(map[Conn]struct{})
	}
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		c, err := l.Accept()
		if err != nil {
			if errors.Is(err, ErrListenerClosed) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return nil
		}
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.serveConn(ctx, c)
	}
}

func (s *Server) serveConn(ctx context.Context, c Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()
	s.logf("client connected: %s", c.RemoteAddr())
	for {
		f, err := c.ReadFrame()
		if err != nil {
			s.logf("client gone: %s: %v", c.RemoteAddr(), err)
			return
		}
		if f.Type != TypeCall {
			continue
		}
		go s.dispatch(ctx, c, f)
	}
}

func (s *Server) dispatch(ctx context.Context, c Conn, f Frame) {
	reply := Frame{Type: TypeReply, ID: f.ID}
	result, err := s.Handler(ctx, f.Cmd, f.Args)
	if err != nil {
		s.logf("%s: %v", f.Cmd, err)
		reply.Error = CodeFromError(err)
	} else {
		data, err := json.Marshal(result)
		if err != nil {
			reply.Error = CodeFromError(err)
		} else {
			reply.Result = data
		}
	}
	if err := c.WriteFrame(reply); err != nil {
		s.logf("reply %s: %v", f.Cmd, err)
	}
}

// Broadcast pushes an event to every connected client. Write failures
// drop only the failing client.
func (s *Server) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logf("broadcast %s: %v", event, err)
		return
	}
	f := Frame{Type: TypeEvent, Event: event, Payload: data}
	s.mu.Lock()
	conns := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		if err := c.WriteFrame(f); err != nil {
			s.logf("broadcast %s to %s: %v", event, c.RemoteAddr(), err)
			_ = c.Close()
		}
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, l := range s.listeners {
		_ = l.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
