package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"parley/internal/assistant"
	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/dispatch"
	"parley/internal/logging"
	"parley/internal/response"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

const chatHelp = `Type a command and press enter, or:
  /listen            start or stop a voice capture cycle
  /stop              stop listening and speaking
  /reset             clear the current result
  /clear             clear history
  /history           show past interactions
  /hints [role]      show example phrases
  /manager <text>    send a manager instruction
  /help              this help
  /quit              leave`

// NewChatCmd runs an in-process assistant in a line-oriented session.
func NewChatCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session with an in-process assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			noVoice, _ := cmd.Flags().GetBool("no-voice")
			out := &lockedWriter{w: cmd.OutOrStdout()}
			sink := newChatSink(out, cfg.UI.Width)
			g, err := bootstrap.Build(cfg, logger, bootstrap.Overrides{NoCapture: noVoice, NoSpeech: noVoice, Sink: sink})
			if err != nil {
				return err
			}
			defer g.Close()
			fmt.Fprintf(out, "parley chat (%s, role %s). /help for commands.\n", g.Describe(), g.Assistant.Role())
			return runChat(cmd.Context(), g.Assistant, sink, cmd.InOrStdin(), out, cfg.UI.Width)
		},
	}
	cmd.Flags().Bool("no-voice", false, "disable capture and speech")
	return cmd
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// chatSink prints results that arrive without a typed prompt (voice
// commands). Typed results are printed by the loop itself.
type chatSink struct {
	out   io.Writer
	width int

	mu      sync.Mutex
	typing  bool
	lastKey string
	phase   assistant.Phase
}

func newChatSink(out io.Writer, width int) *chatSink {
	return &chatSink{out: out, width: width}
}

func snapshotKey(s assistant.Snapshot) string {
	msg := ""
	if s.Error != nil {
		msg = s.Error.Message
	}
	return string(s.Phase) + "|" + s.LastInteraction.Format(time.RFC3339Nano) + "|" + msg
}

func (c *chatSink) Changed(s assistant.Snapshot) {
	c.mu.Lock()
	prev := c.phase
	c.phase = s.Phase
	key := snapshotKey(s)
	fresh := key != c.lastKey
	c.lastKey = key
	typing := c.typing
	c.mu.Unlock()

	if typing {
		return
	}
	switch s.Phase {
	case assistant.PhaseListening:
		if prev != assistant.PhaseListening {
			fmt.Fprintln(c.out, "listening...")
		}
	case assistant.PhaseProcessing:
		if prev != assistant.PhaseProcessing && s.Transcript != "" {
			fmt.Fprintf(c.out, "heard: %s\n", s.Transcript)
		}
	case assistant.PhaseResult:
		if fresh && s.View != nil {
			fmt.Fprintln(c.out, response.Format(*s.View, c.width))
		}
	case assistant.PhaseError:
		if fresh && s.Error != nil {
			fmt.Fprintf(c.out, "error: %s\n", s.Error.Message)
		}
	}
}

func (c *chatSink) setTyping(on bool) {
	c.mu.Lock()
	c.typing = on
	c.mu.Unlock()
}

// settle records the state after a typed command so the sink does not
// print it a second time.
func (c *chatSink) settle(s assistant.Snapshot) {
	c.mu.Lock()
	c.lastKey = snapshotKey(s)
	c.phase = s.Phase
	c.typing = false
	c.mu.Unlock()
}

func runChat(ctx context.Context, a *assistant.Assistant, sink *chatSink, in io.Reader, out io.Writer, width int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sc := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			chatSubmit(ctx, a, sink, out, width, assistant.Request{Text: line})
			continue
		}
		quit, err := chatCommand(ctx, a, sink, out, width, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func chatCommand(ctx context.Context, a *assistant.Assistant, sink *chatSink, out io.Writer, width int, line string) (bool, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, nil
	}
	rest := strings.Join(fields[1:], " ")
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		fmt.Fprintln(out, chatHelp)
	case "/listen":
		sink.setTyping(true)
		err := a.Toggle()
		sink.settle(a.Snapshot())
		if err != nil {
			return false, err
		}
	case "/stop":
		a.StopListening()
		a.StopSpeaking()
	case "/reset":
		a.ResetLive()
		fmt.Fprintln(out, "reset")
	case "/clear":
		a.ClearHistory()
		fmt.Fprintln(out, "history cleared")
	case "/history":
		printHistory(out, a.History())
	case "/hints":
		h := a.Hints(ctx, rest)
		printHints(out, h.Role, h.Phrases, h.Tip)
	case "/manager":
		if rest == "" {
			return false, errors.New("usage: /manager <instruction>")
		}
		chatSubmit(ctx, a, sink, out, width, assistant.Request{Text: rest, Manager: true})
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

func chatSubmit(ctx context.Context, a *assistant.Assistant, sink *chatSink, out io.Writer, width int, req assistant.Request) {
	sink.setTyping(true)
	res, err := a.Submit(ctx, req)
	sink.settle(a.Snapshot())
	switch {
	case errors.Is(err, dispatch.ErrEmptyText):
		return
	case err != nil:
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	snap := a.Snapshot()
	if snap.View != nil {
		fmt.Fprintln(out, response.Format(*snap.View, width))
		return
	}
	fmt.Fprintln(out, res.Reply)
}
