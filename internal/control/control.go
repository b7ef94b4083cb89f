package control

import (
	"time"

	"parley/internal/assistant"
	"parley/internal/history"
	"parley/internal/response"
)

// Request is one line of JSON sent to the daemon control socket.
type Request struct {
	Op      string `json:"op"`
	Text    string `json:"text,omitempty"`
	Context string `json:"context,omitempty"`
	Manager bool   `json:"manager,omitempty"`
	History bool   `json:"history,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Control socket operations.
const (
	OpStatus       = "status"
	OpHealth       = "health"
	OpCommand      = "command"
	OpToggle       = "toggle"
	OpReset        = "reset"
	OpHistory      = "history"
	OpHints        = "hints"
	OpSpeak        = "speak"
	OpStopSpeaking = "stop-speaking"
	OpReload       = "reload"
)

type Status struct {
	Running     bool               `json:"running"`
	UptimeSec   float64            `json:"uptime_sec"`
	LastHeard   time.Time          `json:"last_heard"`
	Journal     bool               `json:"journal"`
	Assistant   assistant.Snapshot `json:"assistant"`
	Transcripts []Transcript       `json:"transcripts"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// CommandResponse answers OpCommand. Exactly one of Result or Error is set
// when OK is false because the command failed.
type CommandResponse struct {
	OK     bool               `json:"ok"`
	Result *response.Result   `json:"result,omitempty"`
	View   *response.View     `json:"view,omitempty"`
	Error  *assistant.Failure `json:"error,omitempty"`
}

type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

type Transcript struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
