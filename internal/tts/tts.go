// Package tts wraps a platform speech synthesizer.
package tts

import (
	"context"
	"errors"
	"strings"

	"parley/internal/config"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable reports that no synthesizer is configured or installed.
var ErrUnavailable = errors.New("speech synthesis is not available")

// Utterance is one unit of speech.
type Utterance struct {
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Synthesizer speaks one utterance. Speak blocks until playback finishes;
// cancelling ctx cancels playback and Speak returns ctx.Err().
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance) error
}

// DefaultUtterance fills voice options from config.
func DefaultUtterance(cfg *config.Config, text string) Utterance {
	return Utterance{
		Text:   text,
		Lang:   cfg.Speech.Lang,
		Rate:   cfg.Speech.Rate,
		Pitch:  cfg.Speech.Pitch,
		Volume: cfg.Speech.Volume,
	}
}

// NewSynthesizer returns the configured synthesizer or ErrUnavailable.
func NewSynthesizer(cfg *config.Config, logger *logrus.Logger) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Speech.Backend)) {
	case "command":
		return NewCommandSynthesizer(cfg, logger)
	case "", "none":
		return nil, ErrUnavailable
	default:
		return nil, errors.New("unknown speech backend " + cfg.Speech.Backend)
	}
}
