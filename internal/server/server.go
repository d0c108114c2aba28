// Package server exposes the orchestrator over a websocket endpoint. Clients
// send JSON commands addressing sessions and receive acknowledgements plus a
// live feed of every event published on the bus.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calebforbes/ensemble/internal/event"
	"github.com/calebforbes/ensemble/internal/logging"
	"github.com/calebforbes/ensemble/internal/session"
)

const (
	// pingInterval is how often the server pings each client.
	pingInterval = 30 * time.Second

	// readDeadline is how long to wait for a pong before dropping a client.
	readDeadline = 60 * time.Second

	// writeDeadline bounds each outbound write.
	writeDeadline = 10 * time.Second

	// sendBufferSize is the per-client outbound queue. Clients that fall
	// further behind than this are skipped rather than blocking the bus.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Sessions is the subset of orchestrator operations the server dispatches
// commands to.
type Sessions interface {
	CreateSession(name, task string) (*session.Session, error)
	PauseSession(id string) error
	ResumeSession(id, prompt string) (bool, error)
	StopSession(id string) error
	ArchiveSession(id string) error
	UnarchiveSession(id string) error
	DeleteSession(id string) error
	ListSessions() []*session.Session
	GetSession(id string) (*session.Session, error)
}

// Server relays session commands to the orchestrator and broadcasts bus
// events to every connected websocket client.
type Server struct {
	sessions Sessions
	bus      *event.Bus
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	busSub uint64
}

// client is one websocket connection.
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
}

// New creates a Server and subscribes it to the event bus. Call Shutdown to
// release the subscription and close connected clients.
func New(sessions Sessions, bus *event.Bus, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		sessions: sessions,
		bus:      bus,
		logger:   logger.WithComponent("server"),
		clients:  make(map[*client]bool),
	}
	s.busSub = bus.SubscribeAll(s.broadcastEvent)
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Shutdown unsubscribes from the bus and closes all client connections.
func (s *Server) Shutdown() {
	s.bus.Unsubscribe(s.busSub)

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	s.logger.Debug("client connected", "remote", conn.RemoteAddr().String())

	go c.writePump()
	c.readPump()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}

// broadcastEvent marshals one bus event and queues it on every client.
// Marshaling happens once; slow clients are skipped, not waited on.
func (s *Server) broadcastEvent(e event.Event) {
	env := Envelope{
		Type:      e.EventType(),
		Timestamp: e.Timestamp().UTC().Format(time.RFC3339Nano),
		Payload:   e,
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("failed to marshal event", "type", e.EventType(), "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Warn("client send buffer full, dropping event",
				"type", e.EventType(), "remote", c.conn.RemoteAddr().String())
		}
	}
}

func (c *client) readPump() {
	defer c.server.removeClient(c)

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("client read error", "error", err)
			}
			return
		}
		c.server.handleCommand(c, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand parses and dispatches one inbound command, queueing a Reply
// back to the sending client.
func (s *Server) handleCommand(c *client, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.reply(c, Reply{Type: "reply", OK: false, Error: "invalid command: " + err.Error()})
		return
	}

	reply := Reply{Type: "reply", Command: cmd.Type}

	switch cmd.Type {
	case CmdSessionCreate:
		var p createPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			reply.Error = "invalid payload: " + err.Error()
			break
		}
		sess, err := s.sessions.CreateSession(p.Name, p.Task)
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.OK = true
		reply.Session = sess

	case CmdSessionPause:
		reply.applyErr(s.withSessionID(cmd.Payload, s.sessions.PauseSession))

	case CmdSessionResume:
		var p resumePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			reply.Error = "invalid payload: " + err.Error()
			break
		}
		if _, err := s.sessions.ResumeSession(p.SessionID, p.Prompt); err != nil {
			reply.Error = err.Error()
			break
		}
		reply.OK = true

	case CmdSessionStop:
		reply.applyErr(s.withSessionID(cmd.Payload, s.sessions.StopSession))

	case CmdSessionArchive:
		reply.applyErr(s.withSessionID(cmd.Payload, s.sessions.ArchiveSession))

	case CmdSessionUnarchive:
		reply.applyErr(s.withSessionID(cmd.Payload, s.sessions.UnarchiveSession))

	case CmdSessionDelete:
		reply.applyErr(s.withSessionID(cmd.Payload, s.sessions.DeleteSession))

	case CmdSessionList:
		reply.OK = true
		reply.Sessions = s.sessions.ListSessions()

	case CmdSessionGet:
		var p sessionIDPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			reply.Error = "invalid payload: " + err.Error()
			break
		}
		sess, err := s.sessions.GetSession(p.SessionID)
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.OK = true
		reply.Session = sess

	default:
		reply.Error = "unknown command: " + cmd.Type
	}

	s.reply(c, reply)
}

// withSessionID decodes a sessionId payload and applies op to it.
func (s *Server) withSessionID(payload json.RawMessage, op func(string) error) error {
	var p sessionIDPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return op(p.SessionID)
}

func (r *Reply) applyErr(err error) {
	if err != nil {
		r.Error = err.Error()
		return
	}
	r.OK = true
}

func (s *Server) reply(c *client, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("failed to marshal reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		s.logger.Warn("client send buffer full, dropping reply", "command", r.Command)
	}
}
