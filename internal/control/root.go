package control

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"parley/internal/config"
	"parley/internal/doctor"
	"parley/internal/response"

	"github.com/spf13/cobra"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpStatus}, &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			printStatus(cmd.OutOrStdout(), status, cfg.UI.Width)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printStatus(w io.Writer, status Status, width int) {
	a := status.Assistant
	fmt.Fprintf(w, "running: %v\nuptime: %.1fs\n", status.Running, status.UptimeSec)
	fmt.Fprintf(w, "phase: %s  capture: %s  speaking: %v\n", a.Phase, a.Capture, a.Speaking)
	fmt.Fprintf(w, "capture enabled: %v  speech enabled: %v  journal: %v\n", a.CaptureEnabled, a.SpeechEnabled, status.Journal)
	if a.Transcript != "" {
		fmt.Fprintf(w, "transcript: %s\n", a.Transcript)
	} else if a.Interim != "" {
		fmt.Fprintf(w, "hearing: %s…\n", a.Interim)
	}
	if a.Error != nil {
		fmt.Fprintf(w, "error (%s): %s\n", a.Error.Kind, a.Error.Message)
	}
	if a.View != nil {
		fmt.Fprintln(w, response.Format(*a.View, width))
	}
	for _, t := range status.Transcripts {
		fmt.Fprintf(w, "%s  %s\n", t.Timestamp.Local().Format("15:04:05"), t.Text)
	}
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := callSimple(cfg.Paths.SocketPath, Request{Op: OpHealth})
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check service, capture and speech setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cmd.Context(), cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				cmd.Printf("%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}

// NewServiceCmd groups launchd helpers (macOS).
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage launchd service (macOS)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}
