package main

import (
	"fmt"
	"os"

	"parley/internal/control"
	"parley/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "parley",
		Short: "Parley: voice and typed command assistant for the expense service",
		Long: `Parley turns spoken or typed requests ("how many expenses are pending?") into calls to the
expense service's intent resolver, renders the structured answer in the terminal and reads the reply aloud.

Key commands:
  start|stop|restart        Daemon lifecycle
  ask "<text>"              Send a typed command (--local runs without the daemon)
  listen                    Start or stop a voice capture cycle
  chat                      Interactive session
  status [--json]           Phase, last result, recent transcripts
  history|hints|journal     Session history, example phrases, persisted interactions
  say|hush                  Speak text, stop speaking
  doctor|setup              Check setup / write default config
  service install|uninstall|status   launchd/systemd helper

Notable flags/env:
  --metrics-addr <addr>     Enable /metrics (Prometheus text)
  Env overrides: PARLEY_SERVICE_URL, PARLEY_TOKEN(_FILE), PARLEY_ROLE,
                 PARLEY_CAPTURE_BACKEND, PARLEY_SPEECH_ENABLED, PARLEY_METRICS_ADDR,
                 PARLEY_LOG_LEVEL/FORMAT, PARLEY_JOURNAL_ENABLED`,
		Example: `  parley start --metrics-addr 127.0.0.1:9318
  parley ask "show my pending expenses"
  parley ask --manager "approve all travel under 5000"
  parley chat --no-voice
  parley hints --role manager
  parley service install --env PARLEY_ROLE=MANAGER`,
		DisableFlagsInUseLine: true,
	}

	root.Version = version
	root.SetVersionTemplate("Parley v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/parley/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewAskCmd(cfgPath))
	root.AddCommand(control.NewListenCmd(cfgPath))
	root.AddCommand(control.NewResetCmd(cfgPath))
	root.AddCommand(control.NewHistoryCmd(cfgPath))
	root.AddCommand(control.NewHintsCmd(cfgPath))
	root.AddCommand(control.NewChatCmd(cfgPath))
	root.AddCommand(control.NewJournalCmd(cfgPath))
	root.AddCommand(control.NewSayCmd(cfgPath))
	root.AddCommand(control.NewStopSpeakingCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewReloadCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			// subcommands keep cobra's usage layout
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sParley%s: voice and typed command assistant %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sListens or reads your request, asks the expense service, shows and speaks the answer.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  parley [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  ask \"text\" [--manager]      send a typed command")
		writeln("  listen                      start/stop a voice capture cycle")
		writeln("  chat                        interactive session (in-process)")
		writeln("  status [--json]             phase, last result, recent transcripts")
		writeln("  reset [--history]           clear the current result")
		writeln("  history | hints | journal   past interactions, example phrases, journal")
		writeln("  say \"text\" | hush           speak text, stop speaking")
		writeln("  doctor | setup              check service/token/speech/capture")
		writeln("  models | mic | transcribe   local whisper capture helpers")
		writeln("  service install|uninstall|status  launchd/systemd unit")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --capture <backend>     none, whisper or bridge for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/parley/config.toml)")
		writeln("  Env: PARLEY_SERVICE_URL=url, PARLEY_TOKEN_FILE=path, PARLEY_ROLE=MANAGER,")
		writeln("       PARLEY_CAPTURE_BACKEND=bridge, PARLEY_SPEECH_ENABLED=0,")
		writeln("       PARLEY_LOG_LEVEL=debug, PARLEY_LOG_FORMAT=json, PARLEY_JOURNAL_ENABLED=0")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  parley start --metrics-addr 127.0.0.1:9318")
		writeln("  parley ask \"show my pending expenses\"")
		writeln("  parley ask --manager \"approve all travel under 5000\"")
		writeln("  parley ask --local --json \"team budget\"")
		writeln("  parley hints --role manager")
		writeln("  parley service install --env PARLEY_ROLE=MANAGER")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
