// Package bootstrap builds an assistant and its capabilities from config.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"parley/internal/api"
	"parley/internal/asr"
	"parley/internal/assistant"
	"parley/internal/config"
	"parley/internal/dispatch"
	"parley/internal/hints"
	"parley/internal/response"
	"parley/internal/tts"

	"github.com/sirupsen/logrus"
)

// Overrides adjust a build without touching the config file.
type Overrides struct {
	// NoCapture skips the recognizer even when a backend is configured.
	NoCapture bool
	// NoSpeech skips the synthesizer.
	NoSpeech bool
	Sink     assistant.Sink
	Observer assistant.Observer
}

// Graph is a built assistant plus the pieces surfaces reach for directly.
type Graph struct {
	Assistant  *assistant.Assistant
	API        *api.Client
	Dispatcher *dispatch.Client
	Hints      *hints.Provider
	// CaptureErr and SpeechErr explain why a capability is absent.
	CaptureErr error
	SpeechErr  error
}

// Close releases the assistant.
func (g *Graph) Close() {
	if g.Assistant != nil {
		g.Assistant.Close()
	}
}

// Build wires the service client, dispatcher, hints provider, recognizer and
// synthesizer into an assistant. Missing capabilities are not fatal.
func Build(cfg *config.Config, logger *logrus.Logger, ov Overrides) (*Graph, error) {
	if strings.TrimSpace(cfg.Service.BaseURL) == "" {
		return nil, errors.New("service.base_url is not set")
	}
	client := api.NewClient(cfg.Service.BaseURL, logger,
		api.WithTokenSource(api.TokenSourceFromConfig(cfg)),
		api.WithUserAgent(cfg.Service.UserAgent),
	)
	disp := dispatch.New(client, dispatch.OptionsFromConfig(cfg), logger)
	hp := hints.NewProvider(client, cfg.Service.HintsPath, logger)

	g := &Graph{API: client, Dispatcher: disp, Hints: hp}

	var rec asr.Recognizer
	if ov.NoCapture {
		g.CaptureErr = asr.ErrUnsupported
	} else if r, err := asr.NewRecognizer(cfg, logger); err != nil {
		g.CaptureErr = err
		if !errors.Is(err, asr.ErrUnsupported) {
			logger.Warnf("capture disabled: %v", err)
		}
	} else {
		rec = r
	}

	var synth tts.Synthesizer
	if ov.NoSpeech {
		g.SpeechErr = tts.ErrUnavailable
	} else if s, err := tts.NewSynthesizer(cfg, logger); err != nil {
		g.SpeechErr = err
		if !errors.Is(err, tts.ErrUnavailable) {
			logger.Warnf("speech disabled: %v", err)
		}
	} else {
		synth = s
	}

	g.Assistant = assistant.New(OptionsFromConfig(cfg), assistant.Deps{
		Recognizer:  rec,
		Synthesizer: synth,
		Dispatcher:  disp,
		Hints:       hp,
		Sink:        ov.Sink,
		Observer:    ov.Observer,
		Logger:      logger,
	})
	logger.Infof("assistant ready: service=%s role=%s capture=%t speech=%t", client.BaseURL(), cfg.Assistant.Role, rec != nil, synth != nil)
	return g, nil
}

// OptionsFromConfig maps config onto assistant options.
func OptionsFromConfig(cfg *config.Config) assistant.Options {
	render := response.DefaultRenderOptions()
	render.DisplayCap = cfg.Assistant.DisplayCap
	if c := strings.TrimSpace(cfg.Assistant.Currency); c != "" {
		render.Currency = c
	}
	return assistant.Options{
		Role:         cfg.Assistant.Role,
		Context:      cfg.Assistant.Context,
		SpeakReplies: cfg.Assistant.SpeakReplies,
		Capture:      asr.Options{Language: cfg.Capture.Language, Interim: cfg.Capture.Interim},
		Voice:        tts.DefaultUtterance(cfg, ""),
		Render:       render,
		HistorySize:  cfg.Assistant.HistorySize,
	}
}

// Describe summarizes capability availability for status output.
func (g *Graph) Describe() string {
	capture, speech := "on", "on"
	if g.CaptureErr != nil {
		capture = fmt.Sprintf("off (%v)", g.CaptureErr)
	}
	if g.SpeechErr != nil {
		speech = fmt.Sprintf("off (%v)", g.SpeechErr)
	}
	return fmt.Sprintf("capture %s, speech %s", capture, speech)
}
