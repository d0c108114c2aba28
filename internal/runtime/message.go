// Package runtime invokes an external agent CLI and normalizes its JSON
// output into a uniform message stream.
package runtime

import (
	"encoding/json"
	"strings"

	"github.com/calebforbes/ensemble/internal/errors"
)

// Kind identifies who produced a message in the runtime's output stream.
type Kind string

const (
	KindSystem    Kind = "system"
	KindAssistant Kind = "assistant"
	KindUser      Kind = "user"
	KindResult    Kind = "result"
)

// Result subtypes emitted by the claude CLI.
const (
	SubtypeInit                 = "init"
	SubtypeSuccess              = "success"
	SubtypeErrorDuringExecution = "error_during_execution"
	SubtypeErrorMaxTurns        = "error_max_turns"
)

// Message is the normalized form of one unit of runtime output. Intermediate
// messages carry Content; the final result message carries Result and the
// run's accounting fields.
type Message struct {
	Kind       Kind    `json:"kind"`
	Subtype    string  `json:"subtype,omitempty"`
	Content    string  `json:"content,omitempty"`
	SessionID  string  `json:"sessionId,omitempty"`
	Result     string  `json:"result,omitempty"`
	IsError    bool    `json:"isError,omitempty"`
	CostUSD    float64 `json:"costUsd,omitempty"`
	DurationMS int     `json:"durationMs,omitempty"`
	NumTurns   int     `json:"numTurns,omitempty"`
	TokensUsed int     `json:"tokensUsed,omitempty"`
}

// IsFinal reports whether this message terminates an invocation.
func (m *Message) IsFinal() bool {
	return m.Kind == KindResult
}

// streamMessage mirrors the JSON the claude CLI emits with
// --output-format stream-json (one object per line) or json (one object,
// or an array of objects).
type streamMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
			Name string `json:"name,omitempty"`
		} `json:"content"`
		Usage *usage `json:"usage,omitempty"`
	} `json:"message"`
	Result       string   `json:"result,omitempty"`
	Error        string   `json:"error,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	IsError      bool     `json:"is_error,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	DurationMs   int      `json:"duration_ms,omitempty"`
	NumTurns     int      `json:"num_turns,omitempty"`
	TotalCostUSD float64  `json:"total_cost_usd,omitempty"`
	Usage        *usage   `json:"usage,omitempty"`
}

type usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

func (u *usage) total() int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.OutputTokens
}

// parseLine parses one line of stream-json output into a normalized Message.
// Blank lines and non-JSON noise return (nil, nil) so the caller can skip
// them; a line that is JSON but not a recognized message is a parse error.
func parseLine(line string) (*Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "{") {
		// CLIs sometimes print plain-text warnings between JSON lines.
		return nil, nil
	}

	var raw streamMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, errors.NewParseError("malformed stream message", err, line)
	}
	if raw.Type == "" {
		return nil, errors.NewParseError("stream message missing type", nil, line)
	}

	return normalize(&raw), nil
}

// normalize converts a wire-format message into the uniform Message shape.
func normalize(raw *streamMessage) *Message {
	msg := &Message{
		Kind:      Kind(raw.Type),
		Subtype:   raw.Subtype,
		SessionID: raw.SessionID,
	}

	switch raw.Type {
	case "assistant", "user":
		var parts []string
		for _, c := range raw.Message.Content {
			if c.Type == "text" && c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
		msg.Content = strings.Join(parts, "\n")
		msg.TokensUsed = raw.Message.Usage.total()

	case "result":
		msg.Result = raw.Result
		msg.IsError = raw.IsError || strings.HasPrefix(raw.Subtype, "error")
		msg.CostUSD = raw.TotalCostUSD
		msg.DurationMS = raw.DurationMs
		msg.NumTurns = raw.NumTurns
		msg.TokensUsed = raw.Usage.total()
		if msg.Result == "" {
			// Error results put the message in error/errors instead.
			if raw.Error != "" {
				msg.Result = raw.Error
			} else if len(raw.Errors) > 0 {
				msg.Result = strings.Join(raw.Errors, "; ")
			}
		}
	}

	return msg
}
