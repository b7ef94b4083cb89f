package control

import (
	"parley/internal/config"

	"github.com/spf13/cobra"
)

// NewReloadCmd asks the daemon to reload config.
func NewReloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload config in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := callSimple(cfg.Paths.SocketPath, Request{Op: OpReload})
			if err != nil {
				return err
			}
			cmd.Println("reload ok:", resp.Message)
			return nil
		},
	}
}
