package wire

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsPath = "/gateway"

var ErrListenerClosed = errors.New("listener closed")

// Listener accepts frame connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
}

func Dial(ctx context.Context, transport, addr string) (Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialer := &net.Dialer{Timeout: 8 * time.Second}
	switch transport {
	case "", "tcp":
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return newStreamConn(c), nil
	case "unix":
		c, err := dialer.DialContext(ctx, "unix", addr)
		if err != nil {
			return nil, err
		}
		return newStreamConn(c), nil
	case "ws":
		d := websocket.Dialer{HandshakeTimeout: 8 * time.Second}
		c, _, err := d.DialContext(ctx, wsURL(addr), nil)
		if err != nil {
			return nil, err
		}
		return newWSConn(c), nil
	default:
		return nil, errors.New("unknown transport: " + transport)
	}
}

func Listen(transport, addr string) (Listener, error) {
	switch transport {
	case "", "tcp":
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &streamListener{l: l}, nil
	case "unix":
		if _, err := os.Stat(addr); err == nil {
			_ = os.Remove(addr)
		}
		l, err := net.Listen("unix", addr)
		if err != nil {
			return nil, err
		}
		if err := os.Chmod(addr, 0600); err != nil {
			_ = l.Close()
			return nil, err
		}
		return &streamListener{l: l, checkPeer: true}, nil
	case "ws":
		wl, err := listenWS(addr)
		if err != nil {
			return nil, err
		}
		return wl, nil
	default:
		return nil, errors.New("unknown transport: " + transport)
	}
}

func wsURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + wsPath
}

type streamListener struct {
	l         net.Listener
	checkPeer bool
}

func (s *streamListener) Accept() (Conn, error) {
	for {
		c, err := s.l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrListenerClosed
			}
			return nil, err
		}
		if s.checkPeer {
			if err := checkPeerCredentials(c); err != nil {
				_ = c.Close()
				continue
			}
		}
		return newStreamConn(c), nil
	}
}

func (s *streamListener) Close() error {
	return s.l.Close()
}

func (s *streamListener) Addr() string {
	return s.l.Addr().String()
}

type wsListener struct {
	l     net.Listener
	srv   *http.Server
	conns chan Conn
	done  chan struct{}
	once  sync.Once
}

func listenWS(addr string) (*wsListener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	wl := &wsListener{
		l:     l,
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case wl.conns <- newWSConn(c):
		case <-wl.done:
			_ = c.Close()
		}
	})
	wl.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		_ = wl.srv.Serve(l)
	}()
	return wl, nil
}

func (w *wsListener) Accept() (Conn, error) {
	select {
	case c := <-w.conns:
		return c, nil
	case <-w.done:
		return nil, ErrListenerClosed
	}
}

func (w *wsListener) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.srv.Close()
	})
	return err
}

func (w *wsListener) Addr() string {
	return w.l.Addr().String()
}
