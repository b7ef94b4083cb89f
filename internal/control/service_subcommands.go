package control

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"parley/internal/config"
	"parley/internal/service"

	"github.com/spf13/cobra"
)

// serviceLabel names the launchd job and systemd unit.
const serviceLabel = "com.parley.agent"

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a user service running the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			params := service.Params{
				Label:  serviceLabel,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			}
			path, err := service.Write(params)
			if err != nil {
				return err
			}
			cmd.Printf("service definition written: %s\n", path)
			if runtime.GOOS == "darwin" {
				cmd.Println("Load:   launchctl load -w", path)
				cmd.Printf("Start:  launchctl kickstart gui/$(id -u)/%s\n", params.Label)
				cmd.Printf("Stop:   launchctl bootout gui/$(id -u)/%s\n", params.Label)
				return nil
			}
			cmd.Println("Load:   systemctl --user daemon-reload")
			cmd.Printf("Start:  systemctl --user enable --now %s\n", params.Label)
			cmd.Printf("Stop:   systemctl --user stop %s\n", params.Label)
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set for the service (KEY=VAL)")
	return cmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := service.Remove(serviceLabel)
			if err != nil {
				return err
			}
			cmd.Printf("removed %s (if present); stop the running service manually\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service definition path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Status(serviceLabel)
			cmd.Printf("definition: %s\n", path)
			if ok {
				cmd.Println("status: present")
			} else {
				cmd.Println("status: missing (install via: parley service install)")
			}
			return nil
		},
	}
}
