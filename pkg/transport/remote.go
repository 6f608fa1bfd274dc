package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/protocol"
)

// ErrBroken is returned by Apply after the mirror rejected a script. The
// mirror may hold part of that script, so the peer can no longer be kept in
// step with it.
var ErrBroken = errors.New("transport: remote tree out of step")

// Remote is an element.Tree whose elements live on the far end of a
// WebSocket connection. Every applied script is checked against a local
// mirror and then sent as one script frame.
type Remote struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mirror       *element.Memory

	mu       sync.Mutex
	seq      uint64
	detached bool
	broken   bool
}

// NewRemote wraps conn. A zero writeTimeout disables write deadlines.
func NewRemote(conn *websocket.Conn, writeTimeout time.Duration) *Remote {
	return &Remote{
		conn:         conn,
		writeTimeout: writeTimeout,
		mirror:       element.NewMemory(),
	}
}

// Apply implements element.Tree. A script the mirror rejects is not sent:
// the peer gets a fatal error frame, the connection is closed and every
// later Apply fails with ErrBroken. Once the connection is detached scripts
// only update the mirror.
func (r *Remote) Apply(ops []element.Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken {
		return ErrBroken
	}
	if err := r.mirror.Apply(ops); err != nil {
		r.broken = true
		if !r.detached {
			em := protocol.NewFatalError(protocol.ErrServerError, "script rejected: "+err.Error())
			r.write(protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)))
			r.conn.Close()
		}
		return fmt.Errorf("transport: mirror rejected script: %w", err)
	}
	if r.detached {
		return nil
	}

	r.seq++
	payload := protocol.EncodeScript(&protocol.ScriptFrame{Seq: r.seq, Ops: ops})
	f := &protocol.Frame{Type: protocol.FrameScript, Flags: protocol.FlagFinal, Payload: payload}
	return r.write(f)
}

// SendError sends an error frame to the peer.
func (r *Remote) SendError(em *protocol.ErrorMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.detached {
		return errors.New("transport: connection detached")
	}
	return r.write(protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)))
}

func (r *Remote) write(f *protocol.Frame) error {
	if r.writeTimeout > 0 {
		r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	}
	return r.conn.WriteMessage(websocket.BinaryMessage, f.Encode())
}

// Mirror returns the local copy of the remote tree.
func (r *Remote) Mirror() *element.Memory {
	return r.mirror
}

// Seq returns the sequence number of the last script sent.
func (r *Remote) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Remote) detach() {
	r.mu.Lock()
	r.detached = true
	r.mu.Unlock()
}
