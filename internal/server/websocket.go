package server

import (
	"context"
	"fmt"

	"github.com/example/kokoro-stream/internal/protocol"
	"nhooyr.io/websocket"
)

// wsConn adapts a websocket connection to Conn. Control frames go out as
// text messages and audio as binary messages.
type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, p, err := w.c.Read(ctx)
	return p, err
}

func (w wsConn) Send(ctx context.Context, f protocol.Frame) error {
	payload, err := f.Encode()
	if err != nil {
		return err
	}

	typ := websocket.MessageText
	if f.Binary() {
		typ = websocket.MessageBinary
	}

	if err := w.c.Write(ctx, typ, payload); err != nil {
		return fmt.Errorf("write %v frame: %w", f.Kind, err)
	}
	return nil
}

func (w wsConn) Watch(ctx context.Context) context.Context {
	return w.c.CloseRead(ctx)
}
