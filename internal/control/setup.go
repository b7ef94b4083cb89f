package control

import (
	"os"
	"path/filepath"

	"parley/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd writes the config file and downloads the default model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Write default config and fetch the whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			cmd.Println("config:", cfg.Paths.ConfigPath)
			cmd.Println("service:", cfg.Service.BaseURL)
			if cfg.Capture.Backend != "whisper" {
				cmd.Printf("capture backend is %q; no model needed\n", cfg.Capture.Backend)
				return nil
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				cmd.Println("model already present at", modelPath)
				return nil
			}
			cmd.Printf("downloading model to %s\n", modelPath)
			if err := downloadFile(cmd.Context(), modelBaseURL+filepath.Base(modelPath), modelPath); err != nil {
				return err
			}
			cmd.Println("model download complete")
			return nil
		},
	}
}
