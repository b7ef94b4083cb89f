package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"parley/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

const (
	// baseWPM is the words-per-minute a rate of 1.0 maps to.
	baseWPM = 175
	// waitDelay bounds how long a killed synthesizer may hold its output pipes.
	waitDelay = 500 * time.Millisecond
)

// CommandSynthesizer speaks through an external program such as say(1) or
// espeak-ng. Arguments may use ${text}, ${lang}, ${wpm}, ${rate}, ${pitch},
// ${pitch99} and ${amplitude}; the text is appended when no argument
// references ${text}.
type CommandSynthesizer struct {
	command string
	args    []string
	logger  *logrus.Logger
}

// NewCommandSynthesizer resolves the command on PATH.
func NewCommandSynthesizer(cfg *config.Config, logger *logrus.Logger) (*CommandSynthesizer, error) {
	command := strings.TrimSpace(cfg.Speech.Command)
	if command == "" {
		return nil, fmt.Errorf("%w: no speech.command configured", ErrUnavailable)
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, command)
	}
	args := append([]string{}, cfg.Speech.Args...)
	if strings.TrimSpace(cfg.Speech.ArgsLine) != "" {
		parsed, err := ParseArgs(cfg.Speech.ArgsLine)
		if err != nil {
			return nil, fmt.Errorf("speech.args_line: %w", err)
		}
		args = parsed
	}
	return &CommandSynthesizer{command: path, args: args, logger: logger}, nil
}

// Speak runs the command and waits for it; ctx cancellation kills it.
func (s *CommandSynthesizer) Speak(ctx context.Context, u Utterance) error {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil
	}
	args := expandArgs(s.args, u)
	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PARLEY_TEXT=%s", text),
		fmt.Sprintf("PARLEY_LANG=%s", u.Lang),
	)
	s.logger.Debugf("speaking %q", redactPII(text))

	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		if len(out) > 0 {
			s.logger.Warnf("speech output: %s", strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("speech command failed: %w", err)
	}
	return nil
}

func expandArgs(tmpl []string, u Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	volume := u.Volume
	if volume < 0 {
		volume = 0
	}
	pitch := u.Pitch
	if pitch <= 0 {
		pitch = 1
	}
	replacer := strings.NewReplacer(
		"${text}", strings.TrimSpace(u.Text),
		"${lang}", u.Lang,
		"${wpm}", strconv.Itoa(int(rate*baseWPM+0.5)),
		"${rate}", strconv.FormatFloat(rate, 'f', -1, 64),
		"${pitch}", strconv.FormatFloat(pitch, 'f', -1, 64),
		"${pitch99}", strconv.Itoa(clamp(int(pitch*50+0.5), 0, 99)),
		"${amplitude}", strconv.Itoa(clamp(int(volume*100+0.5), 0, 200)),
	)
	out := make([]string, 0, len(tmpl)+1)
	hasText := false
	for _, a := range tmpl {
		if strings.Contains(a, "${text}") {
			hasText = true
		}
		out = append(out, replacer.Replace(a))
	}
	if !hasText {
		out = append(out, strings.TrimSpace(u.Text))
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseArgs splits a shell-style argument line.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

// redactPII keeps contact details out of logs.
func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
