package main

import (
	"fmt"
	"os"

	"parley/internal/config"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}
	fmt.Printf("config=%s\n", cfg.Paths.ConfigPath)
	fmt.Printf("service=%s command=%s manager=%s hints=%s timeout=%.0fs retries=%d\n",
		cfg.Service.BaseURL, cfg.Service.CommandPath, cfg.Service.ManagerActionPath, cfg.Service.HintsPath,
		cfg.Service.TimeoutSec, cfg.Service.RetryMax)
	fmt.Printf("role=%s history=%d display_cap=%d speak=%v\n",
		cfg.Assistant.Role, cfg.Assistant.HistorySize, cfg.Assistant.DisplayCap, cfg.Assistant.SpeakReplies)
	fmt.Printf("capture=%s lang=%s interim=%v speech=%s cmd=%s args=%v\n",
		cfg.Capture.Backend, cfg.Capture.Language, cfg.Capture.Interim, cfg.Speech.Backend, cfg.Speech.Command, cfg.Speech.Args)
	fmt.Printf("socket=%s journal=%s (enabled=%v) metrics=%s (enabled=%v)\n",
		cfg.Paths.SocketPath, cfg.Paths.JournalPath, cfg.Journal.Enabled, cfg.Metrics.Addr, cfg.Metrics.Enabled)
}
