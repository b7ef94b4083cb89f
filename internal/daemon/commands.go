package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/run"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewStartCmd starts the daemon (background).
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start parley daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			// runtime flags reach the child as env overrides
			child.Env = append(os.Environ(), runtimeEnv(cmd.Flags())...)
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			if err := child.Start(); err != nil {
				return err
			}
			// Wait a moment and confirm pid file appears.
			waited := 0
			for waited < 20 {
				if _, err := os.Stat(cfg.Paths.PidPath); err == nil {
					break
				}
				time.Sleep(100 * time.Millisecond)
				waited++
			}
			fmt.Printf("parley started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
	addRuntimeFlags(cmd.Flags())
	return cmd
}

// NewServeCmd runs the daemon foreground (internal).
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run parley daemon (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range runtimeEnv(cmd.Flags()) {
				k, v, _ := strings.Cut(kv, "=")
				if err := os.Setenv(k, v); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			return run.Serve(cfg, logger)
		},
	}
	addRuntimeFlags(cmd.Flags())
	return cmd
}

func addRuntimeFlags(fs *pflag.FlagSet) {
	fs.String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9318) for this run")
	fs.String("capture", "", "capture backend for this run (none, whisper, bridge)")
	fs.Bool("quiet", false, "do not speak replies for this run")
	fs.Bool("no-journal", false, "do not journal interactions for this run")
}

// runtimeEnv maps changed runtime flags onto config env overrides.
func runtimeEnv(fs *pflag.FlagSet) []string {
	var env []string
	if addr, _ := fs.GetString("metrics-addr"); addr != "" {
		env = append(env, "PARLEY_METRICS_ADDR="+addr)
	}
	if backend, _ := fs.GetString("capture"); backend != "" {
		env = append(env, "PARLEY_CAPTURE_BACKEND="+backend)
	}
	if quiet, _ := fs.GetBool("quiet"); quiet {
		env = append(env, "PARLEY_SPEECH_ENABLED=0")
	}
	if off, _ := fs.GetBool("no-journal"); off {
		env = append(env, "PARLEY_JOURNAL_ENABLED=0")
	}
	return env
}

// NewStopCmd stops the daemon.
func NewStopCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop parley daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			pid, err := readPID(cfg.Paths.PidPath)
			if err != nil {
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return err
			}
			fmt.Println("stop signal sent")
			return nil
		},
	}
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart parley daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopCmd := NewStopCmd(cfgPath)
			_ = stopCmd.RunE(stopCmd, args) // ignore error if not running

			if err := waitForShutdown(*cfgPath, 5*time.Second); err != nil {
				return err
			}

			startCmd := NewStartCmd(cfgPath)
			cmd.Flags().Visit(func(f *pflag.Flag) {
				_ = startCmd.Flags().Set(f.Name, f.Value.String())
			})
			return startCmd.RunE(startCmd, args)
		},
	}
	addRuntimeFlags(cmd.Flags())
	return cmd
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	// Check if process alive.
	proc, err := os.FindProcess(pid)
	if err == nil {
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			return fmt.Errorf("already running with pid %d", pid)
		}
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func waitForShutdown(cfgPath string, timeout time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(cfg.Paths.PidPath)
		if err != nil {
			return nil // pid file gone
		}
		proc, _ := os.FindProcess(pid)
		if proc != nil {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				_ = os.Remove(cfg.Paths.PidPath)
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("restart: daemon did not stop within %s", timeout)
}
