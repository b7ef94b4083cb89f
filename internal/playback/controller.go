// Package playback guarantees at most one utterance plays at a time.
package playback

import (
	"context"
	"strings"
	"sync"

	"parley/internal/tts"

	"github.com/sirupsen/logrus"
)

// EventKind is an utterance lifecycle event.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventEnded     EventKind = "ended"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Event reports one utterance transition. Every started utterance gets exactly
// one of Ended, Failed or Cancelled; a cancelled utterance never ends.
type Event struct {
	Kind EventKind
	ID   uint64
	Text string
	Err  error
}

// Listener observes playback. It is called without controller locks held but
// must not call Speak.
type Listener interface {
	PlaybackEvent(ev Event)
}

// Controller owns one synthesizer.
type Controller struct {
	synth    tts.Synthesizer
	listener Listener
	voice    tts.Utterance
	logger   *logrus.Logger

	// speakMu makes cancel-previous-then-start atomic across callers.
	speakMu sync.Mutex

	mu      sync.Mutex
	current *utterance
	nextID  uint64
	closed  bool
}

type utterance struct {
	id     uint64
	text   string
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a controller. A nil synthesizer makes Speak a no-op. voice
// carries the language, rate, pitch and volume applied to every utterance.
func New(synth tts.Synthesizer, voice tts.Utterance, listener Listener, logger *logrus.Logger) *Controller {
	return &Controller{synth: synth, voice: voice, listener: listener, logger: logger}
}

// Supported reports whether a synthesizer is present.
func (c *Controller) Supported() bool { return c.synth != nil }

// IsSpeaking reports whether an utterance is active.
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Speak cancels any active utterance, waits for it to wind down, then starts
// text. Blank text or a missing synthesizer is a no-op returning 0.
func (c *Controller) Speak(text string) uint64 {
	text = strings.TrimSpace(text)
	if text == "" || c.synth == nil {
		return 0
	}
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	u := &utterance{id: c.nextID, text: text, cancel: cancel, done: make(chan struct{})}
	c.current = u
	c.mu.Unlock()

	c.emit(Event{Kind: EventStarted, ID: u.id, Text: text})
	go c.play(ctx, u)
	return u.id
}

// Stop cancels the active utterance and waits for it. Safe when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	u := c.current
	c.current = nil
	c.mu.Unlock()
	if u == nil {
		return
	}
	u.cancel()
	<-u.done
}

// Close stops playback and rejects further Speak calls.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Stop()
}

func (c *Controller) play(ctx context.Context, u *utterance) {
	defer close(u.done)
	voice := c.voice
	voice.Text = u.text
	err := c.synth.Speak(ctx, voice)
	cancelled := ctx.Err() != nil

	c.mu.Lock()
	if c.current == u {
		c.current = nil
	}
	c.mu.Unlock()
	u.cancel()

	switch {
	case cancelled:
		c.emit(Event{Kind: EventCancelled, ID: u.id, Text: u.text})
	case err != nil:
		c.logger.Warnf("playback: %v", err)
		c.emit(Event{Kind: EventFailed, ID: u.id, Text: u.text, Err: err})
	default:
		c.emit(Event{Kind: EventEnded, ID: u.id, Text: u.text})
	}
}

func (c *Controller) emit(ev Event) {
	if c.listener != nil {
		c.listener.PlaybackEvent(ev)
	}
}
