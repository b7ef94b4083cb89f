//go:build !whisper

package control

import "github.com/spf13/cobra"

// NewTranscribeCmd reports that transcription needs the whisper build.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe a WAV file (build with -tags whisper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				samples, err := readWAVMono16k(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("%s: %.1fs of audio; ", args[0], float64(len(samples))/whisperSampleRate)
			}
			cmd.Println("build with '-tags whisper' to use transcribe")
			return nil
		},
	}
}
