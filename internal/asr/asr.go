package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"parley/internal/config"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported reports that no speech recognition capability is available.
var ErrUnsupported = errors.New("speech recognition is not supported on this system")

// Recognizer error codes shared by all backends.
const (
	CodeNoSpeech       = "no-speech"
	CodeNotAllowed     = "not-allowed"
	CodeServiceDenied  = "service-not-allowed"
	CodeAudioCapture   = "audio-capture"
	CodeNetwork        = "network"
	CodeAborted        = "aborted"
	CodeRecognizerFail = "recognizer"
)

// EventKind identifies a recognizer callback.
type EventKind int

const (
	EventInterim EventKind = iota
	EventFinal
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is one recognizer callback. Text is set for interim/final, Code for errors.
type Event struct {
	Kind EventKind
	Text string
	Code string
}

// Options tune a single listen cycle.
type Options struct {
	Language string
	Interim  bool
}

// Session is one active listen cycle. Events is closed after the EventEnd event.
type Session interface {
	Events() <-chan Event
	Stop() error
}

// Recognizer starts listen cycles.
type Recognizer interface {
	Listen(ctx context.Context, opts Options) (Session, error)
}

// NewRecognizer returns the configured recognizer or ErrUnsupported.
func NewRecognizer(cfg *config.Config, logger *logrus.Logger) (Recognizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Capture.Backend)) {
	case "whisper":
		return newWhisperRecognizer(cfg, logger)
	case "bridge":
		if strings.TrimSpace(cfg.Capture.BridgeURL) == "" {
			return nil, fmt.Errorf("capture.bridge_url is required for the bridge backend")
		}
		return NewBridgeRecognizer(cfg.Capture.BridgeURL, logger), nil
	case "", "none":
		return nil, ErrUnsupported
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Capture.Backend)
	}
}
