package wire

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn carries frames in both directions. WriteFrame is safe for
// concurrent use; ReadFrame must be called from a single goroutine.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
	RemoteAddr() string
}

const writeTimeout = 10 * time.Second

type streamConn struct {
	c  net.Conn
	r  *bufio.Reader
	mu sync.Mutex
}

func newStreamConn(c net.Conn) *streamConn {
	return &streamConn{c: c, r: bufio.NewReader(c)}
}

func (s *streamConn) ReadFrame() (Frame, error) {
	return readFrame(s.r)
}

func (s *streamConn) WriteFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return writeFrame(s.c, f)
}

func (s *streamConn) Close() error {
	return s.c.Close()
}

func (s *streamConn) RemoteAddr() string {
	if a := s.c.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(maxFrameSize)
	return &wsConn{c: c}
}

func (w *wsConn) ReadFrame() (Frame, error) {
	var f Frame
	err := w.c.ReadJSON(&f)
	return f, err
}

func (w *wsConn) WriteFrame(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.c.WriteJSON(f)
}

func (w *wsConn) Close() error {
	w.mu.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.mu.Unlock()
	return w.c.Close()
}

func (w *wsConn) RemoteAddr() string {
	return w.c.RemoteAddr().String()
}
