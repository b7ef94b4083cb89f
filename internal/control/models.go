package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"parley/internal/config"

	"github.com/spf13/cobra"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// known ggml models for the local whisper capture backend, smallest first.
var modelRegistry = []string{
	"ggml-base.en-q5_1.bin",
	"ggml-small-q5_1.bin",
	"ggml-small.en-q5_1.bin",
	"ggml-medium-q5_1.bin",
	"ggml-large-v3-turbo-q8_0.bin",
}

func knownModel(name string) bool {
	for _, m := range modelRegistry {
		if m == name {
			return true
		}
	}
	return false
}

// modelDir is where downloaded models live: next to the configured model.
func modelDir(cfg *config.Config) string {
	return filepath.Dir(os.ExpandEnv(cfg.ASR.ModelPath))
}

// NewModelsCmd wires up the models subcommands (list/download/set).
func NewModelsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List/download/set whisper models for local capture",
	}
	cmd.AddCommand(newModelsListCmd(cfgPath))
	cmd.AddCommand(newModelsDownloadCmd(cfgPath))
	cmd.AddCommand(newModelsSetCmd(cfgPath))
	return cmd
}

func newModelsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and those present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			local := map[string]bool{}
			entries, _ := os.ReadDir(modelDir(cfg))
			for _, e := range entries {
				if !e.IsDir() {
					local[e.Name()] = true
				}
			}
			names := append([]string(nil), modelRegistry...)
			for n := range local {
				if !knownModel(n) && strings.HasSuffix(n, ".bin") {
					names = append(names, n)
				}
			}
			sort.Strings(names)
			current := filepath.Base(cfg.ASR.ModelPath)
			out := cmd.OutOrStdout()
			for _, n := range names {
				marks := ""
				if local[n] {
					marks += " (downloaded)"
				}
				if n == current {
					marks += " (configured)"
				}
				fmt.Fprintf(out, "- %s%s\n", n, marks)
			}
			return nil
		},
	}
}

func newModelsDownloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			name := args[0]
			if !knownModel(name) {
				return fmt.Errorf("unknown model %q; run models list", name)
			}
			dest := filepath.Join(modelDir(cfg), name)
			cmd.Printf("downloading %s -> %s\n", name, dest)
			return downloadFile(cmd.Context(), modelBaseURL+name, dest)
		},
	}
}

// downloadFile fetches url into dest via a .part file so an interrupted
// download never looks complete.
func downloadFile(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func newModelsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model-name-or-path>",
		Short: "Set asr.model_path in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			val := args[0]
			// a bare name resolves next to the current model
			if !strings.Contains(val, "/") {
				val = filepath.Join(modelDir(cfg), val)
			}
			cfg.ASR.ModelPath = val
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			cmd.Printf("model set to %s\n", val)
			return nil
		},
	}
}
