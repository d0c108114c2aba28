package server

import (
	"encoding/json"

	"github.com/calebforbes/ensemble/internal/session"
)

// Command is one client request over the websocket.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command types understood by the server.
const (
	CmdSessionCreate    = "session.create"
	CmdSessionPause     = "session.pause"
	CmdSessionResume    = "session.resume"
	CmdSessionStop      = "session.stop"
	CmdSessionArchive   = "session.archive"
	CmdSessionUnarchive = "session.unarchive"
	CmdSessionDelete    = "session.delete"
	CmdSessionList      = "session.list"
	CmdSessionGet       = "session.get"
)

// createPayload carries session.create arguments.
type createPayload struct {
	Name string `json:"name,omitempty"`
	Task string `json:"task"`
}

// sessionIDPayload addresses a single session.
type sessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

// resumePayload carries session.resume arguments.
type resumePayload struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt,omitempty"`
}

// Reply is the acknowledgement for one command.
type Reply struct {
	Type     string             `json:"type"`
	Command  string             `json:"command,omitempty"`
	OK       bool               `json:"ok"`
	Error    string             `json:"error,omitempty"`
	Session  *session.Session   `json:"session,omitempty"`
	Sessions []*session.Session `json:"sessions,omitempty"`
}

// Envelope wraps a published event for transport.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}
