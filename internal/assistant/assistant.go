// Package assistant composes capture, dispatch, rendering, playback and
// history into one controller that any surface (CLI, daemon socket, chat
// panel) can drive.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"parley/internal/asr"
	"parley/internal/capture"
	"parley/internal/dispatch"
	"parley/internal/hints"
	"parley/internal/history"
	"parley/internal/playback"
	"parley/internal/response"
	"parley/internal/tts"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options tune an Assistant.
type Options struct {
	Role         string
	Context      string
	SpeakReplies bool
	Capture      asr.Options
	Voice        tts.Utterance
	Render       response.RenderOptions
	HistorySize  int
}

// Deps are the capabilities an Assistant owns. Recognizer and Synthesizer may
// be nil when the platform lacks them.
type Deps struct {
	Recognizer  asr.Recognizer
	Synthesizer tts.Synthesizer
	Dispatcher  Dispatcher
	Hints       HintSource
	Sink        Sink
	Observer    Observer
	Logger      *logrus.Logger
}

// Assistant is the orchestrator state machine:
// Idle -> Listening -> Processing -> Result|Error, with Speaking overlapping.
type Assistant struct {
	opts       Options
	logger     *logrus.Logger
	engine     *capture.Engine
	player     *playback.Controller
	dispatcher Dispatcher
	hints      HintSource
	history    *history.Store
	sink       Sink
	observer   Observer
	sessionID  string

	rootCtx    context.Context
	cancelRoot context.CancelFunc

	mu             sync.Mutex
	phase          Phase
	captureState   capture.State
	transcript     string
	interim        string
	result         *response.Result
	view           *response.View
	failure        *Failure
	speaking       bool
	speakingID     uint64
	gen            uint64
	processing     bool
	cancelDispatch context.CancelFunc
	dispatchDone   chan struct{}
	lastAt         time.Time
}

// New builds an Assistant and the capture engine and playback controller it
// owns.
func New(opts Options, deps Deps) *Assistant {
	if opts.Role == "" {
		opts.Role = "USER"
	}
	if opts.Render.DisplayCap <= 0 {
		opts.Render = response.DefaultRenderOptions()
	}
	a := &Assistant{
		opts:       opts,
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		hints:      deps.Hints,
		history:    history.NewStore(opts.HistorySize),
		sink:       deps.Sink,
		observer:   deps.Observer,
		sessionID:  uuid.NewString(),
		phase:      PhaseIdle,
	}
	if a.logger == nil {
		a.logger = logrus.New()
	}
	if a.sink == nil {
		a.sink = nopSink{}
	}
	if a.observer == nil {
		a.observer = nopObserver{}
	}
	a.rootCtx, a.cancelRoot = context.WithCancel(context.Background())
	a.engine = capture.NewEngine(deps.Recognizer, captureSink{a}, opts.Capture, a.logger)
	a.captureState = a.engine.State()
	a.player = playback.New(deps.Synthesizer, opts.Voice, playbackListener{a}, a.logger)
	return a
}

// SessionID identifies this assistant instance.
func (a *Assistant) SessionID() string { return a.sessionID }

// Role returns the configured caller role.
func (a *Assistant) Role() string { return a.opts.Role }

// Toggle starts a listen cycle, or stops the active one. It returns ErrBusy
// while a command is processing and a *capture.Error when capture cannot start.
func (a *Assistant) Toggle() error {
	a.mu.Lock()
	if a.processing {
		a.mu.Unlock()
		return ErrBusy
	}
	if a.engine.State() == capture.StateListening {
		a.mu.Unlock()
		a.engine.Stop()
		return nil
	}
	a.clearLiveLocked()
	a.mu.Unlock()

	if !a.engine.Supported() {
		// the engine stays silent when permanently unsupported
		err := &capture.Error{Kind: capture.KindUnsupported, Err: asr.ErrUnsupported}
		a.captureFailed(err)
		return err
	}
	return a.engine.Start(a.rootCtx)
}

// StopListening ends an active listen cycle without a result.
func (a *Assistant) StopListening() {
	a.engine.Stop()
}

// Submit injects a typed command, bypassing capture. It blocks until the
// command resolves. Blank text returns dispatch.ErrEmptyText and changes
// nothing; a concurrent command returns ErrBusy.
func (a *Assistant) Submit(ctx context.Context, req Request) (response.Result, error) {
	src := SourceTyped
	if req.Manager {
		src = SourceManager
	}
	return a.process(ctx, src, req)
}

// ResetLive stops capture and playback, abandons any in-flight command and
// clears transcript, result and error. History is kept. It returns once the
// abandoned dispatch has been released, so the next command is accepted.
// Calling it twice is the same as calling it once.
func (a *Assistant) ResetLive() {
	a.mu.Lock()
	a.gen++
	cancel := a.cancelDispatch
	done := a.dispatchDone
	a.cancelDispatch = nil
	a.dispatchDone = nil
	a.processing = false
	a.clearLiveLocked()
	a.phase = PhaseIdle
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	a.engine.Stop()
	a.player.Stop()
	a.notify()
}

// ClearHistory empties the session history without touching live state.
func (a *Assistant) ClearHistory() {
	a.history.Clear()
	a.notify()
}

// History returns past interactions, newest first.
func (a *Assistant) History() []history.Entry {
	return a.history.All()
}

// Speak reads text aloud, cancelling anything already playing.
func (a *Assistant) Speak(text string) {
	a.player.Speak(text)
}

// StopSpeaking cancels playback. Safe when idle.
func (a *Assistant) StopSpeaking() {
	a.player.Stop()
}

// Hints returns example phrases for role (the configured role when empty).
func (a *Assistant) Hints(ctx context.Context, role string) hints.Hints {
	if strings.TrimSpace(role) == "" {
		role = a.opts.Role
	}
	if a.hints == nil {
		return hints.Hints{Role: strings.ToUpper(role), Phrases: []string{}}
	}
	return a.hints.Fetch(ctx, role)
}

// Snapshot returns the current observable state.
func (a *Assistant) Snapshot() Snapshot {
	entries := a.history.All()
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{
		SessionID:       a.sessionID,
		Phase:           a.phase,
		Capture:         a.captureState,
		Speaking:        a.speaking,
		Transcript:      a.transcript,
		Interim:         a.interim,
		History:         entries,
		CaptureEnabled:  a.engine.Supported(),
		SpeechEnabled:   a.player.Supported(),
		LastInteraction: a.lastAt,
	}
	if a.result != nil {
		r := *a.result
		s.Result = &r
	}
	if a.view != nil {
		v := *a.view
		s.View = &v
	}
	if a.failure != nil {
		f := *a.failure
		s.Error = &f
	}
	return s
}

// Close resets and releases the owned capabilities.
func (a *Assistant) Close() {
	a.ResetLive()
	a.player.Close()
	a.cancelRoot()
}

// command is one accepted request between begin and run.
type command struct {
	src     Source
	text    string
	reqCtx  string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

func (a *Assistant) process(ctx context.Context, src Source, req Request) (response.Result, error) {
	cmd, err := a.begin(ctx, src, req)
	if err != nil {
		return response.Result{}, err
	}
	return a.run(cmd)
}

// begin validates req and moves the assistant to Processing. It returns
// dispatch.ErrEmptyText or ErrBusy without changing state.
func (a *Assistant) begin(ctx context.Context, src Source, req Request) (*command, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, dispatch.ErrEmptyText
	}
	reqCtx := strings.TrimSpace(req.Context)
	if reqCtx == "" {
		reqCtx = a.opts.Context
	}

	a.mu.Lock()
	if a.processing {
		a.mu.Unlock()
		a.observer.CommandFinished(Interaction{Source: src, Role: a.opts.Role, Transcript: text, Outcome: OutcomeBusy, Err: ErrBusy, Started: time.Now()})
		return nil, ErrBusy
	}
	a.gen++
	cmd := &command{src: src, text: text, reqCtx: reqCtx, gen: a.gen, done: make(chan struct{}), started: time.Now()}
	cmd.ctx, cmd.cancel = context.WithCancel(ctx)
	a.processing = true
	a.cancelDispatch = cmd.cancel
	a.dispatchDone = cmd.done
	a.clearLiveLocked()
	a.transcript = text
	a.phase = PhaseProcessing
	a.mu.Unlock()

	if src != SourceVoice {
		a.engine.Stop()
	}
	a.player.Stop()
	a.notify()
	return cmd, nil
}

func (a *Assistant) run(cmd *command) (response.Result, error) {
	defer cmd.cancel()
	interaction := Interaction{ID: uuid.NewString(), Source: cmd.src, Role: a.opts.Role, Transcript: cmd.text, Started: cmd.started}
	a.logger.Infof("command (%s): %s", cmd.src, cmd.text)

	var (
		res response.Result
		err error
	)
	if cmd.src == SourceManager {
		res, err = a.dispatcher.ManagerAction(cmd.ctx, cmd.text)
	} else {
		res, err = a.dispatcher.Dispatch(cmd.ctx, dispatch.Request{Text: cmd.text, Context: cmd.reqCtx})
	}
	close(cmd.done)
	if errors.Is(err, dispatch.ErrInFlight) {
		err = ErrBusy
	}
	interaction.Duration = time.Since(cmd.started)

	a.mu.Lock()
	if a.gen != cmd.gen {
		// reset while in flight; the outcome belongs to nobody
		a.mu.Unlock()
		a.logger.Debugf("dropping result of abandoned command %q", cmd.text)
		return response.Result{}, ErrSuperseded
	}
	a.processing = false
	a.cancelDispatch = nil
	a.dispatchDone = nil
	a.lastAt = time.Now()
	if err != nil {
		a.failure = dispatchFailure(err)
		a.phase = PhaseError
		a.mu.Unlock()
		a.notify()
		interaction.Outcome = OutcomeFailure
		interaction.Err = err
		a.observer.CommandFinished(interaction)
		return response.Result{}, err
	}

	view := response.Render(res, a.opts.Render)
	a.result = &res
	a.view = &view
	a.phase = PhaseResult
	a.history.Record(history.Entry{
		Transcript: cmd.text,
		Intent:     res.Intent,
		Message:    res.Reply,
		Timestamp:  a.lastAt,
		Fallback:   res.Fallback,
	})
	a.mu.Unlock()
	a.notify()

	interaction.Outcome = OutcomeSuccess
	interaction.Result = res
	a.observer.CommandFinished(interaction)

	if a.opts.SpeakReplies {
		a.player.Speak(res.Reply)
	}
	return res, nil
}

func (a *Assistant) clearLiveLocked() {
	a.transcript = ""
	a.interim = ""
	a.result = nil
	a.view = nil
	a.failure = nil
}

func (a *Assistant) captureFailed(err *capture.Error) {
	a.mu.Lock()
	if a.processing {
		a.mu.Unlock()
		return
	}
	a.failure = &Failure{Source: "capture", Kind: string(err.Kind), Message: err.Error()}
	a.phase = PhaseError
	a.mu.Unlock()
	a.logger.Warnf("capture: %v", err)
	a.notify()
}

type captureSink struct{ a *Assistant }

func (s captureSink) CaptureStateChanged(state capture.State) {
	a := s.a
	a.mu.Lock()
	a.captureState = state
	switch state {
	case capture.StateListening:
		if !a.processing {
			a.phase = PhaseListening
			a.interim = ""
		}
	case capture.StateIdle:
		if a.phase == PhaseListening {
			a.phase = PhaseIdle
			a.interim = ""
		}
	}
	a.mu.Unlock()
	a.notify()
}

func (s captureSink) CaptureTranscript(t capture.Transcript) {
	a := s.a
	if !t.IsFinal {
		a.mu.Lock()
		a.interim = t.Text
		a.mu.Unlock()
		a.notify()
		return
	}
	a.observer.TranscriptFinal(t.Text)
	// enter Processing before the engine reports Idle
	cmd, err := a.begin(a.rootCtx, SourceVoice, Request{Text: t.Text})
	if err != nil {
		a.logger.Debugf("voice command: %v", err)
		return
	}
	go func() {
		if _, err := a.run(cmd); err != nil {
			a.logger.Debugf("voice command: %v", err)
		}
	}()
}

func (s captureSink) CaptureFailed(err *capture.Error) {
	s.a.captureFailed(err)
}

type playbackListener struct{ a *Assistant }

func (l playbackListener) PlaybackEvent(ev playback.Event) {
	a := l.a
	a.mu.Lock()
	switch ev.Kind {
	case playback.EventStarted:
		a.speaking = true
		a.speakingID = ev.ID
	default:
		if a.speakingID == ev.ID {
			a.speaking = false
		}
	}
	a.mu.Unlock()
	a.notify()
}

func (a *Assistant) notify() {
	a.sink.Changed(a.Snapshot())
}

func dispatchFailure(err error) *Failure {
	var derr *dispatch.Error
	if errors.As(err, &derr) {
		return &Failure{Source: "dispatch", Kind: string(derr.Kind), Message: derr.Error()}
	}
	if errors.Is(err, ErrBusy) {
		return &Failure{Source: "dispatch", Kind: "busy", Message: err.Error()}
	}
	return &Failure{Source: "dispatch", Kind: string(dispatch.KindOther), Message: dispatch.Classify(err).Error()}
}
