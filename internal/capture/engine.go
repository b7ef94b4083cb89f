// Package capture turns a platform speech recognizer into a small finite state
// machine: Idle -> Listening -> Idle, with Unsupported as a permanent state
// when no recognizer exists and Error when a cycle could not be started.
package capture

import (
	"context"
	"errors"
	"strings"
	"sync"

	"parley/internal/asr"

	"github.com/sirupsen/logrus"
)

// State is the capture lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateListening   State = "listening"
	StateUnsupported State = "unsupported"
	StateError       State = "error"
)

// Transcript is recognized text; a final transcript ends the cycle.
type Transcript struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Sink receives engine notifications. Calls are made without engine locks held,
// so implementations may call back into the engine.
type Sink interface {
	CaptureStateChanged(state State)
	CaptureTranscript(t Transcript)
	CaptureFailed(err *Error)
}

// Engine owns one recognizer and at most one active listen cycle.
type Engine struct {
	rec    asr.Recognizer
	sink   Sink
	opts   asr.Options
	logger *logrus.Logger

	mu      sync.Mutex
	state   State
	session asr.Session
	cycle   uint64
}

// NewEngine returns an engine; a nil recognizer makes it permanently Unsupported.
func NewEngine(rec asr.Recognizer, sink Sink, opts asr.Options, logger *logrus.Logger) *Engine {
	state := StateIdle
	if rec == nil {
		state = StateUnsupported
	}
	return &Engine{rec: rec, sink: sink, opts: opts, logger: logger, state: state}
}

// State returns the current capture state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Supported reports whether a recognizer was available at construction.
func (e *Engine) Supported() bool {
	return e.rec != nil
}

// Start begins a listen cycle. While Listening it behaves as Stop (toggle).
// On an unsupported engine it returns an Unsupported *Error and changes nothing.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateUnsupported:
		e.mu.Unlock()
		return &Error{Kind: KindUnsupported, Err: asr.ErrUnsupported}
	case StateListening:
		e.mu.Unlock()
		e.Stop()
		return nil
	}
	e.cycle++
	cycle := e.cycle
	e.state = StateListening
	e.mu.Unlock()

	e.notifyState(StateListening)

	session, err := e.rec.Listen(ctx, e.opts)
	if err != nil {
		capErr := classifyStartError(err)
		e.mu.Lock()
		if e.cycle == cycle {
			if capErr.Kind == KindUnsupported {
				e.state = StateUnsupported
			} else {
				e.state = StateError
			}
		}
		state := e.state
		e.mu.Unlock()
		e.logger.Warnf("capture start: %v", err)
		e.notifyState(state)
		e.notifyFailed(capErr)
		return capErr
	}

	e.mu.Lock()
	if e.cycle != cycle || e.state != StateListening {
		// stopped while the recognizer was starting
		e.mu.Unlock()
		go drainAndStop(session)
		return nil
	}
	e.session = session
	e.mu.Unlock()

	go e.pump(cycle, session)
	return nil
}

// Stop ends the active cycle without requiring a final transcript. It is a
// no-op unless Listening.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateListening {
		e.mu.Unlock()
		return
	}
	session := e.session
	e.session = nil
	e.cycle++
	e.state = StateIdle
	e.mu.Unlock()

	if session != nil {
		if err := session.Stop(); err != nil {
			e.logger.Debugf("capture stop: %v", err)
		}
	}
	e.notifyState(StateIdle)
}

// pump applies recognizer events for one cycle. Events from a cycle that was
// stopped or superseded are drained and ignored.
func (e *Engine) pump(cycle uint64, session asr.Session) {
	finished := false
	for ev := range session.Events() {
		if finished {
			continue
		}
		e.mu.Lock()
		current := e.cycle == cycle && e.state == StateListening
		e.mu.Unlock()
		if !current {
			finished = true
			continue
		}

		switch ev.Kind {
		case asr.EventInterim:
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				continue
			}
			e.notifyTranscript(Transcript{Text: text, IsFinal: false})
		case asr.EventFinal:
			finished = true
			text := strings.TrimSpace(ev.Text)
			if !e.finish(cycle) {
				continue
			}
			// sinks see the final transcript before the cycle reads as Idle
			if text != "" {
				e.notifyTranscript(Transcript{Text: text, IsFinal: true})
			}
			e.notifyState(StateIdle)
		case asr.EventError:
			finished = true
			if !e.finish(cycle) {
				continue
			}
			e.notifyState(StateIdle)
			if ev.Code == asr.CodeNoSpeech || ev.Code == asr.CodeAborted {
				e.logger.Debugf("capture ended without speech (%s)", ev.Code)
				continue
			}
			e.notifyFailed(classifyCode(ev.Code))
		case asr.EventEnd:
			finished = true
			if e.finish(cycle) {
				e.notifyState(StateIdle)
			}
		}
	}
	// channel closed without an explicit end event
	if !finished && e.finish(cycle) {
		e.notifyState(StateIdle)
	}
}

// finish moves the given cycle to Idle; it reports false if the cycle is stale.
func (e *Engine) finish(cycle uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cycle != cycle || e.state != StateListening {
		return false
	}
	e.session = nil
	e.state = StateIdle
	return true
}

func (e *Engine) notifyState(s State) {
	if e.sink != nil {
		e.sink.CaptureStateChanged(s)
	}
}

func (e *Engine) notifyTranscript(t Transcript) {
	if e.sink != nil {
		e.sink.CaptureTranscript(t)
	}
}

func (e *Engine) notifyFailed(err *Error) {
	if e.sink != nil {
		e.sink.CaptureFailed(err)
	}
}

func drainAndStop(session asr.Session) {
	_ = session.Stop()
	for range session.Events() {
	}
}

func classifyStartError(err error) *Error {
	if errors.Is(err, asr.ErrUnsupported) {
		return &Error{Kind: KindUnsupported, Err: err}
	}
	return &Error{Kind: KindStart, Err: err}
}
