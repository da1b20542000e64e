package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/models"
)

// Attach control messages travel as websocket text frames; terminal bytes
// travel as binary frames in both directions.
const (
	ControlResize = "resize"
)

// ControlMessage is a text frame sent by an attached client.
type ControlMessage struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

const attachWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 32 * 1024,
	// The socket is only reachable locally and has 0600 permissions.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents provides Server-Sent Events (SSE) for engine notifications.
// ?session=<id> limits the stream to one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeDaemonUnavailable, "event stream not initialized"))
		return
	}

	// Ensure the connection supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	filter := r.URL.Query().Get("session")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.WithField("session", filter).Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case <-s.done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != "" && ev.SessionID != filter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal event")
				continue
			}
			// SSE format: "data: {json}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleAttach upgrades to a websocket bridged to the session's terminal.
// The current output is replayed first, then live output follows until the
// session stops running or the client goes away.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	if s.events == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeDaemonUnavailable, "event stream not initialized"))
		return
	}
	id := r.PathValue("id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !sess.State.IsLive() {
		s.writeError(w, r, errors.InvalidState(id, string(sess.State), "attach to"))
		return
	}

	// The backlog and the subscription are taken together so live output
	// neither skips nor repeats bytes from the replay.
	var ch chan models.Event
	backlog, err := s.sessions.OutputAndSubscribe(id, func() { ch = s.events.Subscribe() })
	if ch != nil {
		defer s.events.Unsubscribe(ch)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.WithField("session_id", id)
	log.Debug("Client attached")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.readAttach(conn, id)
	}()

	send := func(data []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(attachWriteTimeout))
		return conn.WriteMessage(websocket.BinaryMessage, data) == nil
	}
	closeWith := func(reason string) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}

	if len(backlog) > 0 && !send(backlog) {
		return
	}

	for {
		select {
		case <-readerDone:
			log.Debug("Client detached")
			return
		case <-s.done:
			closeWith("daemon shutting down")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.SessionID != id {
				continue
			}
			switch ev.Type {
			case models.EventOutput:
				if !send(ev.Data) {
					return
				}
			case models.EventDestroyed:
				closeWith("session destroyed")
				return
			case models.EventStateChanged:
				if ev.Session != nil && !ev.Session.State.IsLive() {
					closeWith("session " + string(ev.Session.State))
					return
				}
			}
		}
	}
}

// readAttach forwards client frames to the session until the connection
// fails or closes.
func (s *Server) readAttach(conn *websocket.Conn, id string) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			if err := s.sessions.Write(id, data); err != nil {
				s.logger.WithError(err).WithField("session_id", id).Debug("Attach write failed")
				return
			}
		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == ControlResize {
				if err := s.sessions.Resize(id, msg.Cols, msg.Rows); err != nil {
					s.logger.WithError(err).WithField("session_id", id).Debug("Attach resize failed")
				}
			}
		}
	}
}
