package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parley/internal/logging"
	"parley/internal/tts"
)

// fakeSynth plays until released or cancelled.
type fakeSynth struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	release map[string]chan error
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{release: map[string]chan error{}}
}

func (f *fakeSynth) gate(text string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.release[text]
	if !ok {
		ch = make(chan error, 1)
		f.release[text] = ch
	}
	return ch
}

func (f *fakeSynth) Speak(ctx context.Context, u tts.Utterance) error {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-f.gate(u.Text):
		return err
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) PlaybackEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) byText(text string) []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventKind
	for _, ev := range r.events {
		if ev.Text == text {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSpeakCancelsPreviousUtterance(t *testing.T) {
	t.Parallel()

	synth := newFakeSynth()
	rec := &recorder{}
	c := New(synth, tts.Utterance{Lang: "en-IN", Rate: 0.95}, rec, logging.NewTestLogger())

	c.Speak("A")
	c.Speak("B")
	synth.gate("B") <- nil
	waitFor(t, func() bool { return len(rec.byText("B")) == 2 })

	if got := rec.byText("A"); len(got) != 2 || got[0] != EventStarted || got[1] != EventCancelled {
		t.Fatalf("A events = %v, want started, cancelled", got)
	}
	if got := rec.byText("B"); len(got) != 2 || got[0] != EventStarted || got[1] != EventEnded {
		t.Fatalf("B events = %v, want started, ended", got)
	}
	synth.mu.Lock()
	defer synth.mu.Unlock()
	if synth.maxSeen != 1 {
		t.Fatalf("utterances overlapped: %d concurrent", synth.maxSeen)
	}
}

func TestStopIsSafeWhenIdle(t *testing.T) {
	t.Parallel()

	c := New(newFakeSynth(), tts.Utterance{}, nil, logging.NewTestLogger())
	c.Stop()
	c.Stop()
	if c.IsSpeaking() {
		t.Fatalf("idle controller reports speaking")
	}
}

func TestStopCancelsActiveUtterance(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(newFakeSynth(), tts.Utterance{}, rec, logging.NewTestLogger())
	c.Speak("long reply")
	if !c.IsSpeaking() {
		t.Fatalf("expected speaking")
	}
	c.Stop()
	if c.IsSpeaking() {
		t.Fatalf("expected idle after stop")
	}
	if got := rec.byText("long reply"); len(got) != 2 || got[1] != EventCancelled {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestSpeakNoOps(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := New(newFakeSynth(), tts.Utterance{}, rec, logging.NewTestLogger())
	if id := c.Speak("   "); id != 0 || c.IsSpeaking() {
		t.Fatalf("blank text should be a no-op")
	}
	unsupported := New(nil, tts.Utterance{}, rec, logging.NewTestLogger())
	if id := unsupported.Speak("hello"); id != 0 || unsupported.IsSpeaking() || unsupported.Supported() {
		t.Fatalf("missing synthesizer should be a no-op")
	}
	if len(rec.byText("hello")) != 0 {
		t.Fatalf("no events expected")
	}
}

func TestFailureEndsSpeaking(t *testing.T) {
	t.Parallel()

	synth := newFakeSynth()
	rec := &recorder{}
	c := New(synth, tts.Utterance{}, rec, logging.NewTestLogger())
	c.Speak("oops")
	synth.gate("oops") <- errors.New("audio device gone")
	waitFor(t, func() bool { return len(rec.byText("oops")) == 2 })
	if c.IsSpeaking() {
		t.Fatalf("failure should clear speaking")
	}
	if got := rec.byText("oops"); got[1] != EventFailed {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestCloseRejectsSpeak(t *testing.T) {
	t.Parallel()

	c := New(newFakeSynth(), tts.Utterance{}, nil, logging.NewTestLogger())
	c.Speak("first")
	c.Close()
	if c.IsSpeaking() {
		t.Fatalf("close should stop playback")
	}
	if id := c.Speak("second"); id != 0 {
		t.Fatalf("speak after close should be rejected")
	}
}
