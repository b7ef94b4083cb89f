// Package doctor runs local setup diagnostics.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"parley/internal/api"
	"parley/internal/config"

	"github.com/sirupsen/logrus"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Getter is the transport used to reach the service.
type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values) ([]byte, error)
}

const checkTimeout = 5 * time.Second

// Run executes doctor checks.
func Run(ctx context.Context, cfg *config.Config) []Result {
	if ctx == nil {
		ctx = context.Background()
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	client := api.NewClient(cfg.Service.BaseURL, quiet,
		api.WithTokenSource(api.TokenSourceFromConfig(cfg)),
		api.WithUserAgent(cfg.Service.UserAgent),
	)
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkService(ctx, client, cfg),
		checkToken(cfg),
		checkSpeech(cfg),
	}
	return append(results, checkCapture(cfg)...)
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

// checkService calls the hints endpoint. Any HTTP answer proves the
// service is reachable; only 401/403 are called out.
func checkService(ctx context.Context, g Getter, cfg *config.Config) Result {
	label := "service"
	if strings.TrimSpace(cfg.Service.BaseURL) == "" {
		return Result{Name: label, Pass: false, Detail: "service.base_url not set"}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	path := cfg.Service.HintsPath
	if path == "" {
		path = "/voice/hints"
	}
	_, err := g.GetJSON(ctx, path, url.Values{"role": {strings.ToUpper(cfg.Assistant.Role)}})
	if err == nil {
		return Result{Name: label, Pass: true, Detail: cfg.Service.BaseURL}
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		switch {
		case api.IsStatus(err, http.StatusUnauthorized, http.StatusForbidden):
			return Result{Name: label, Pass: false, Detail: fmt.Sprintf("HTTP %d: check service.token or service.token_file", se.Status)}
		default:
			return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%s (HTTP %d)", cfg.Service.BaseURL, se.Status)}
		}
	}
	return Result{Name: label, Pass: false, Detail: err.Error()}
}

func checkToken(cfg *config.Config) Result {
	label := "token"
	if p := strings.TrimSpace(cfg.Service.TokenFile); p != "" {
		r := checkFile(label, p)
		if r.Pass {
			if data, err := os.ReadFile(os.ExpandEnv(p)); err == nil && strings.TrimSpace(string(data)) == "" {
				return Result{Name: label, Pass: false, Detail: p + " is empty"}
			}
		}
		return r
	}
	if strings.TrimSpace(cfg.Service.Token) != "" {
		return Result{Name: label, Pass: true, Detail: "inline token"}
	}
	return Result{Name: label, Pass: true, Detail: "none (anonymous requests)"}
}

func checkSpeech(cfg *config.Config) Result {
	if strings.EqualFold(cfg.Speech.Backend, "none") {
		return Result{Name: "speech", Pass: true, Detail: "disabled"}
	}
	r := checkExecutable(cfg.Speech.Command)
	r.Name = "speech"
	return r
}

func checkExecutable(cmd string) Result {
	if cmd == "" {
		return Result{Pass: false, Detail: "speech.command not set"}
	}
	path := os.ExpandEnv(cmd)
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Pass: false, Detail: "is a directory; set speech.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Pass: false, Detail: err.Error()}
	}
	return Result{Pass: true, Detail: resolved}
}

func checkCapture(cfg *config.Config) []Result {
	backend := strings.ToLower(strings.TrimSpace(cfg.Capture.Backend))
	switch backend {
	case "", "none":
		return []Result{{Name: "capture", Pass: true, Detail: "disabled (typed commands only)"}}
	case "bridge":
		u, err := url.Parse(cfg.Capture.BridgeURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return []Result{{Name: "capture", Pass: false, Detail: fmt.Sprintf("capture.bridge_url %q is not a ws:// or wss:// URL", cfg.Capture.BridgeURL)}}
		}
		return []Result{{Name: "capture", Pass: true, Detail: "bridge " + u.Redacted()}}
	case "whisper":
		return []Result{
			{Name: "capture", Pass: true, Detail: "whisper"},
			checkFile("model file", cfg.ASR.ModelPath),
			checkPortAudioPkgConfig(),
			checkPortAudio(),
		}
	default:
		return []Result{{Name: "capture", Pass: false, Detail: fmt.Sprintf("unknown capture.backend %q", cfg.Capture.Backend)}}
	}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}
