//go:build whisper

package control

import (
	"fmt"
	"strings"

	"parley/internal/config"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/spf13/cobra"
)

// NewTranscribeCmd transcribes a WAV file with whisper and optionally sends the
// text to the assistant as a command.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			samples, err := readWAVMono16k(args[0])
			if err != nil {
				return err
			}
			txt, err := runWhisperOnce(cfg, samples)
			if err != nil {
				return err
			}
			txt = strings.TrimSpace(txt)
			fmt.Fprintln(cmd.OutOrStdout(), txt)

			if wantDispatch, _ := cmd.Flags().GetBool("dispatch"); !wantDispatch {
				return nil
			}
			if txt == "" {
				return fmt.Errorf("nothing recognized; not dispatching")
			}
			req := Request{Op: OpCommand, Text: txt}
			var resp CommandResponse
			if local, _ := cmd.Flags().GetBool("local"); local {
				resp, err = askLocal(cmd.Context(), cfg, req)
			} else {
				err = Call(cfg.Paths.SocketPath, req, &resp)
			}
			if err != nil {
				return err
			}
			return printCommandResponse(cmd.OutOrStdout(), resp, cfg.UI.Width)
		},
	}
	cmd.Flags().Bool("dispatch", false, "also send the transcript to the assistant")
	cmd.Flags().Bool("local", false, "with --dispatch, use an in-process assistant")
	return cmd
}

func runWhisperOnce(cfg *config.Config, samples []float32) (string, error) {
	model, err := whisper.New(cfg.ASR.ModelPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = model.Close() }()
	wctx, err := model.NewContext()
	if err != nil {
		return "", err
	}
	if lang := strings.TrimSpace(cfg.ASR.Language); lang != "" {
		_ = wctx.SetLanguage(lang)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteByte(' ')
		}
	}
	return b.String(), nil
}
