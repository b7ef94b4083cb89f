package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"parley/internal/assistant"
	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/history"
	"parley/internal/journal"
	"parley/internal/logging"
	"parley/internal/response"
	"parley/internal/tts"

	"github.com/spf13/cobra"
)

// NewAskCmd sends one typed command through the daemon, or in-process with --local.
func NewAskCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask \"<text>\"",
		Short: "Send a typed command to the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			local, _ := cmd.Flags().GetBool("local")
			manager, _ := cmd.Flags().GetBool("manager")
			jsonOut, _ := cmd.Flags().GetBool("json")
			reqContext, _ := cmd.Flags().GetString("context")
			req := Request{Op: OpCommand, Text: strings.Join(args, " "), Context: reqContext, Manager: manager}

			var resp CommandResponse
			if local {
				resp, err = askLocal(cmd.Context(), cfg, req)
			} else {
				err = Call(cfg.Paths.SocketPath, req, &resp)
			}
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
			}
			return printCommandResponse(cmd.OutOrStdout(), resp, cfg.UI.Width)
		},
	}
	cmd.Flags().Bool("local", false, "run an in-process assistant instead of using the daemon")
	cmd.Flags().Bool("manager", false, "send to the manager action endpoint")
	cmd.Flags().String("context", "", "caller context sent with the command")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func askLocal(ctx context.Context, cfg *config.Config, req Request) (CommandResponse, error) {
	logger, err := logging.Configure(cfg)
	if err != nil {
		return CommandResponse{}, err
	}
	g, err := bootstrap.Build(cfg, logger, bootstrap.Overrides{NoCapture: true, NoSpeech: true})
	if err != nil {
		return CommandResponse{}, err
	}
	defer g.Close()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := g.Assistant.Submit(ctx, assistant.Request{Text: req.Text, Context: req.Context, Manager: req.Manager})
	if err != nil {
		snap := g.Assistant.Snapshot()
		if snap.Error != nil {
			return CommandResponse{OK: false, Error: snap.Error}, nil
		}
		return CommandResponse{OK: false, Error: &assistant.Failure{Source: "dispatch", Kind: "empty", Message: err.Error()}}, nil
	}
	view := response.Render(res, bootstrap.OptionsFromConfig(cfg).Render)
	return CommandResponse{OK: true, Result: &res, View: &view}, nil
}

func printCommandResponse(w io.Writer, resp CommandResponse, width int) error {
	if !resp.OK {
		msg := "command failed"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return fmt.Errorf("%s", msg)
	}
	if resp.View != nil {
		_, err := fmt.Fprintln(w, response.Format(*resp.View, width))
		return err
	}
	if resp.Result != nil {
		_, err := fmt.Fprintln(w, resp.Result.Reply)
		return err
	}
	return nil
}

// NewListenCmd toggles voice capture in the daemon.
func NewListenCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Start (or stop) a voice capture cycle in the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := callSimple(cfg.Paths.SocketPath, Request{Op: OpToggle})
			if err != nil {
				return err
			}
			cmd.Printf("capture: %s\n", resp.Message)
			return nil
		},
	}
}

// NewResetCmd clears live assistant state, and history with --history.
func NewResetCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Stop capture and playback and clear the current result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			clearHistory, _ := cmd.Flags().GetBool("history")
			resp, err := callSimple(cfg.Paths.SocketPath, Request{Op: OpReset, History: clearHistory})
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().Bool("history", false, "also clear session history")
	return cmd
}

// NewHistoryCmd prints the daemon's session history.
func NewHistoryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent interactions (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp HistoryResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpHistory}, &resp); err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resp.Entries)
			}
			printHistory(cmd.OutOrStdout(), resp.Entries)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewHintsCmd prints example phrases for a role.
func NewHintsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hints",
		Short: "Show example phrases for your role",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			var h struct {
				Role    string   `json:"role"`
				Phrases []string `json:"hints"`
				Tip     string   `json:"tip"`
			}
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpHints, Role: role}, &h); err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(h)
			}
			printHints(cmd.OutOrStdout(), h.Role, h.Phrases, h.Tip)
			return nil
		},
	}
	cmd.Flags().String("role", "", "role to fetch hints for (default: assistant.role)")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewSayCmd speaks text through the daemon, or directly with --local.
func NewSayCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "say \"<text>\"",
		Short: "Speak text with the configured synthesizer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if local, _ := cmd.Flags().GetBool("local"); !local {
				_, err := callSimple(cfg.Paths.SocketPath, Request{Op: OpSpeak, Text: text})
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			synth, err := tts.NewSynthesizer(cfg, logger)
			if err != nil {
				return err
			}
			return synth.Speak(cmd.Context(), tts.DefaultUtterance(cfg, text))
		},
	}
	cmd.Flags().Bool("local", false, "speak in this process instead of the daemon")
	return cmd
}

// NewStopSpeakingCmd cancels daemon playback.
func NewStopSpeakingCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hush",
		Short: "Stop the daemon speaking",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			_, err = callSimple(cfg.Paths.SocketPath, Request{Op: OpStopSpeaking})
			return err
		},
	}
}

// NewJournalCmd reads the persistent interaction journal.
func NewJournalCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journaled interactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			j, err := journal.Open(cfg.Paths.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()
			limit, _ := cmd.Flags().GetInt("limit")
			recs, err := j.Recent(limit)
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(recs)
			}
			stats, err := j.Stats()
			if err != nil {
				return err
			}
			printJournal(cmd.OutOrStdout(), recs, stats)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of records")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		mark := ""
		if e.Fallback {
			mark = " [" + response.FallbackLabel + "]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s\n", e.Timestamp.Format("15:04:05"), response.FormatIntent(e.Intent), e.Transcript, e.Message, mark)
	}
	_ = tw.Flush()
}

func printHints(w io.Writer, role string, phrases []string, tip string) {
	if len(phrases) == 0 {
		fmt.Fprintf(w, "no hints for %s\n", role)
		return
	}
	fmt.Fprintf(w, "Try saying (%s):\n", role)
	for _, p := range phrases {
		fmt.Fprintf(w, "  • %s\n", p)
	}
	if tip != "" {
		fmt.Fprintf(w, "tip: %s\n", tip)
	}
}

func printJournal(w io.Writer, recs []journal.Record, stats journal.Stats) {
	fmt.Fprintf(w, "%d interactions journaled (%d fallback)\n", stats.Total, stats.Fallback)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Source, response.FormatIntent(r.Intent), r.Transcript, r.PayloadKind)
	}
	_ = tw.Flush()
}
