package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cofe/internal/backend"
)

func TestFrameRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	f := Frame{Type: TypeCall, ID: 7, Cmd: backend.CmdFindPeer, Args: json.RawMessage(`{"peerId":"abc"}`)}
	if err := writeFrame(buf, f); err != nil {
		t.Fatalf("writeFrame error: %v", err)
	}
	out, err := readFrame(buf)
	if err != nil {
		t.Fatalf("readFrame error: %v", err)
	}
	if out.Type != f.Type || out.ID != f.ID || out.Cmd != f.Cmd || string(out.Args) != string(f.Args) {
		t.Fatalf("unexpected frame: %#v", out)
	}
}

func TestFrameTooLarge(t *testing.T) {
	buf := &bytes.Buffer{}
	payload, _ := json.Marshal(strings.Repeat("a", maxFrameSize))
	f := Frame{Type: TypeEvent, Event: "x", Payload: payload}
	if err := writeFrame(buf, f); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFrameInvalidSize(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := readFrame(buf); err == nil {
		t.Fatal("expected error for invalid frame size")
	}
}

func TestErrorCodeMapping(t *testing.T) {
	e := CodeFromError(backend.ErrValidation)
	if e.Code != CodeValidation {
		t.Fatalf("unexpected code: %s", e.Code)
	}
	if !errors.Is(ErrorFromCode(e), backend.ErrValidation) {
		t.Fatal("expected validation error after round trip")
	}
	if !errors.Is(ErrorFromCode(CodeFromError(backend.ErrNotFound)), backend.ErrNotFound) {
		t.Fatal("expected not found error after round trip")
	}
	if got := CodeFromError(errors.New("boom")).Code; got != CodeInternal {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestServerCallAndBroadcast(t *testing.T) {
	for _, transport := range []string{"tcp", "ws"} {
		t.Run(transport, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			l, err := Listen(transport, "127.0.0.1:0")
			if err != nil {
				t.Fatalf("listen error: %v", err)
			}
			srv := &Server{Handler: func(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
				if cmd == "fail" {
					return nil, backend.ErrValidation
				}
				return cmd + ":" + string(args), nil
			}}
			go func() { _ = srv.Serve(ctx, l) }()
			defer srv.Close()

			c, err := Dial(ctx, transport, l.Addr())
			if err != nil {
				t.Fatalf("dial error: %v", err)
			}
			defer c.Close()

			if err := c.WriteFrame(Frame{Type: TypeCall, ID: 1, Cmd: "echo", Args: json.RawMessage(`1`)}); err != nil {
				t.Fatalf("write error: %v", err)
			}
			reply, err := c.ReadFrame()
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			var got string
			if err := json.Unmarshal(reply.Result, &got); err != nil || got != "echo:1" || reply.ID != 1 {
				t.Fatalf("unexpected reply: %#v (%v)", reply, err)
			}

			if err := c.WriteFrame(Frame{Type: TypeCall, ID: 2, Cmd: "fail"}); err != nil {
				t.Fatalf("write error: %v", err)
			}
			reply, err = c.ReadFrame()
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			if reply.Error == nil || reply.Error.Code != CodeValidation {
				t.Fatalf("expected validation error, got %#v", reply)
			}

			srv.Broadcast(backend.EventMessageReceived, map[string]string{"peer": "p1"})
			done := make(chan Frame, 1)
			go func() {
				f, _ := c.ReadFrame()
				done <- f
			}()
			select {
			case f := <-done:
				if f.Type != TypeEvent || f.Event != backend.EventMessageReceived {
					t.Fatalf("unexpected event frame: %#v", f)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for event")
			}
		})
	}
}
