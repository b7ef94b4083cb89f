package assistant

import (
	"context"
	"errors"
	"time"

	"parley/internal/capture"
	"parley/internal/dispatch"
	"parley/internal/hints"
	"parley/internal/history"
	"parley/internal/response"
)

// ErrBusy is returned when a command is submitted while another is processing.
var ErrBusy = errors.New("still working on the previous command")

// ErrSuperseded is returned to a caller whose command was abandoned by a reset.
var ErrSuperseded = errors.New("command was cancelled by a reset")

// Phase is the orchestrator lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseResult     Phase = "result"
	PhaseError      Phase = "error"
)

// Source says how a command entered the assistant.
type Source string

const (
	SourceVoice   Source = "voice"
	SourceTyped   Source = "typed"
	SourceManager Source = "manager"
)

// Request is a manual command (typed text or a clicked hint).
type Request struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
	// Manager routes the text to the manager action endpoint.
	Manager bool `json:"manager,omitempty"`
}

// Failure fills the error slot. Fallback results never produce one.
type Failure struct {
	Source  string `json:"source"` // capture or dispatch
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a consistent copy of the observable state.
type Snapshot struct {
	SessionID       string           `json:"sessionId"`
	Phase           Phase            `json:"phase"`
	Capture         capture.State    `json:"capture"`
	Speaking        bool             `json:"speaking"`
	Transcript      string           `json:"transcript,omitempty"`
	Interim         string           `json:"interim,omitempty"`
	Result          *response.Result `json:"result,omitempty"`
	View            *response.View   `json:"view,omitempty"`
	Error           *Failure         `json:"error,omitempty"`
	History         []history.Entry  `json:"history"`
	CaptureEnabled  bool             `json:"captureEnabled"`
	SpeechEnabled   bool             `json:"speechEnabled"`
	LastInteraction time.Time        `json:"lastInteraction"`
}

// Sink receives a fresh snapshot after every state change. It is called
// without assistant locks held.
type Sink interface {
	Changed(s Snapshot)
}

// Outcome of one command.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBusy    Outcome = "busy"
)

// Interaction describes a finished (or rejected) command for observers such
// as metrics and the journal.
type Interaction struct {
	ID         string
	Source     Source
	Role       string
	Transcript string
	Outcome    Outcome
	Result     response.Result
	Err        error
	Started    time.Time
	Duration   time.Duration
}

// Observer is notified of transcripts and command outcomes.
type Observer interface {
	TranscriptFinal(text string)
	CommandFinished(i Interaction)
}

// Dispatcher resolves commands; *dispatch.Client implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (response.Result, error)
	ManagerAction(ctx context.Context, text string) (response.Result, error)
}

// HintSource yields role-scoped example phrases; *hints.Provider implements it.
type HintSource interface {
	Fetch(ctx context.Context, role string) hints.Hints
}

type nopSink struct{}

func (nopSink) Changed(Snapshot) {}

type nopObserver struct{}

func (nopObserver) TranscriptFinal(string)       {}
func (nopObserver) CommandFinished(Interaction) {}
