package service

import (
	"fmt"
	"os"
	"path/filepath"
)

const systemdTemplate = `[Unit]
Description=parley voice assistant daemon
After=network-online.target sound.target

[Service]
ExecStart={{.Binary}} serve --config {{.Config}}
Restart=on-failure
RestartSec=3
{{- range $k, $v := .Env }}
Environment={{$k}}={{$v}}
{{- end }}

[Install]
WantedBy=default.target
`

// SystemdPath returns the user unit path for a label.
func SystemdPath(label string) string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "systemd", "user", fmt.Sprintf("%s.service", label))
}
