package control

import (
	"fmt"

	"parley/internal/config"

	"github.com/spf13/cobra"
)

// NewMicCmd groups mic subcommands.
func NewMicCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mic",
		Aliases: []string{"microphone", "mics"},
		Short:   "Microphone management for local capture",
	}
	cmd.AddCommand(newMicListCmd())
	cmd.AddCommand(newMicSetCmd(cfgPath))
	return cmd
}

func newMicSetCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [name]",
		Short: "Set microphone device (by name or --index) in config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			index, _ := cmd.Flags().GetInt("index")
			switch {
			case len(args) == 1:
				cfg.Audio.DeviceName = args[0]
				cfg.Audio.DeviceIndex = -1
			case cmd.Flags().Changed("index"):
				cfg.Audio.DeviceName = ""
				cfg.Audio.DeviceIndex = index
			default:
				return fmt.Errorf("give a device name or --index")
			}
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			if cfg.Audio.DeviceName != "" {
				cmd.Printf("mic set to %q in %s\n", cfg.Audio.DeviceName, cfg.Paths.ConfigPath)
			} else {
				cmd.Printf("mic set to index %d in %s\n", cfg.Audio.DeviceIndex, cfg.Paths.ConfigPath)
			}
			return nil
		},
	}
	cmd.Flags().Int("index", -1, "device index from mic list")
	return cmd
}
