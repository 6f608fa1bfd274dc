package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/protocol"
)

// Client is the peer of a Server session. It applies received scripts to a
// local element.Memory and sends element messages back as event frames.
type Client struct {
	conn *websocket.Conn
	tree *element.Memory

	mu  sync.Mutex
	seq uint64
}

// Dial connects to a Server's /ws endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &Client{conn: conn, tree: element.NewMemory()}, nil
}

// Tree returns the client's element tree.
func (c *Client) Tree() *element.Memory {
	return c.tree
}

// Next reads frames until a script arrives and applies it. An error frame
// from the server is returned as a *protocol.ErrorMessage.
func (c *Client) Next() (*protocol.ScriptFrame, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case protocol.FrameScript:
			sf, err := protocol.DecodeScript(frame.Payload)
			if err != nil {
				return nil, err
			}
			if err := c.tree.Apply(sf.Ops); err != nil {
				c.report(protocol.NewFatalError(protocol.ErrApplyFailed, err.Error()))
				return nil, err
			}
			return sf, nil
		case protocol.FrameError:
			em, err := protocol.DecodeErrorMessage(frame.Payload)
			if err != nil {
				return nil, err
			}
			return nil, em
		}
	}
}

// Send sends msg as an event frame.
func (c *Client) Send(msg element.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	payload, err := protocol.EncodeEvent(&protocol.EventFrame{Seq: c.seq, Path: msg.Path, Payload: msg.Payload})
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, protocol.NewFrame(protocol.FrameEvent, payload).Encode())
}

// Emit sends a message from element h of the client's tree.
func (c *Client) Emit(h element.Handle, payload any) error {
	msg, err := c.tree.Emit(h, payload)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

func (c *Client) report(em *protocol.ErrorMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.BinaryMessage, protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)).Encode())
}

// Close closes the connection with a normal closure.
func (c *Client) Close() error {
	c.mu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}
