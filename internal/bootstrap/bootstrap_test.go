package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"parley/internal/asr"
	"parley/internal/assistant"
	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/tts"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Service.BaseURL = baseURL
	cfg.Capture.Backend = "none"
	cfg.Speech.Backend = "none"
	return cfg
}

func TestBuildWiresTypedCommands(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"intent":"GREETING","reply":"Hello"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Service.Token = "secret"
	g, err := Build(cfg, logging.NewTestLogger(), Overrides{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer g.Close()

	if !errors.Is(g.CaptureErr, asr.ErrUnsupported) || !errors.Is(g.SpeechErr, tts.ErrUnavailable) {
		t.Fatalf("unexpected capability errors: %v / %v", g.CaptureErr, g.SpeechErr)
	}
	res, err := g.Assistant.Submit(context.Background(), assistant.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Reply != "Hello" {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	snap := g.Assistant.Snapshot()
	if snap.CaptureEnabled || snap.SpeechEnabled {
		t.Fatalf("capabilities should be off: %+v", snap)
	}
}

func TestBuildRequiresServiceURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, " ")
	if _, err := Build(cfg, logging.NewTestLogger(), Overrides{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://example.invalid")
	cfg.Assistant.DisplayCap = 3
	cfg.Assistant.Currency = "$"
	cfg.Assistant.Role = "MANAGER"
	opts := OptionsFromConfig(cfg)
	if opts.Render.DisplayCap != 3 || opts.Render.Currency != "$" || opts.Role != "MANAGER" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.Voice.Lang != cfg.Speech.Lang || opts.Capture.Language != cfg.Capture.Language {
		t.Fatalf("voice/capture language not carried: %+v", opts)
	}
}
