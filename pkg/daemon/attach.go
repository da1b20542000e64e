package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thisislance98/claudia/errors"
)

// Attachment is a live terminal connection to one session.
type Attachment struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	reason  string
}

// Attach opens a terminal connection to a running session.
func (c *RemoteClient) Attach(ctx context.Context, id string) (*Attachment, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, "ws://unix"+sessionPath(id, "attach"), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, errors.DaemonUnavailable(c.socketPath, err)
	}
	return &Attachment{conn: conn}, nil
}

// Recv returns the next chunk of terminal output. It returns io.EOF once
// the daemon ends the attachment; Reason then says why.
func (a *Attachment) Recv() ([]byte, error) {
	for {
		kind, data, err := a.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				a.reason = ce.Text
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Reason is the daemon's explanation for ending the attachment.
func (a *Attachment) Reason() string {
	return a.reason
}

// Send writes raw bytes to the session's terminal.
func (a *Attachment) Send(data []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Resize changes the session's terminal size.
func (a *Attachment) Resize(cols, rows uint16) error {
	msg, err := json.Marshal(map[string]interface{}{"type": "resize", "cols": cols, "rows": rows})
	if err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close detaches. The session keeps running.
func (a *Attachment) Close() error {
	a.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "detached")
	_ = a.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	a.writeMu.Unlock()
	return a.conn.Close()
}
