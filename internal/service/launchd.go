// Package service writes user-level service definitions for the daemon:
// a launchd plist on macOS and a systemd user unit elsewhere.
package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

// Params describe the daemon process a service definition launches.
type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Path returns where the definition for label lives on this platform.
func Path(label string) string {
	if runtime.GOOS == "darwin" {
		return LaunchdPath(label)
	}
	return SystemdPath(label)
}

// Write renders the platform's service definition and returns its path.
func Write(params Params) (string, error) {
	if runtime.GOOS == "darwin" {
		return writeDefinition(LaunchdPath(params.Label), launchdTemplate, params)
	}
	return writeDefinition(SystemdPath(params.Label), systemdTemplate, params)
}

// LaunchdPath returns the plist path for a label.
func LaunchdPath(label string) string {
	return filepath.Join(os.Getenv("HOME"), "Library", "LaunchAgents", fmt.Sprintf("%s.plist", label))
}

func writeDefinition(path, tmpl string, params Params) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := render(f, tmpl, params); err != nil {
		return "", err
	}
	return path, f.Close()
}

func render(w io.Writer, tmpl string, params Params) error {
	tpl := template.Must(template.New("service").Parse(tmpl))
	return tpl.Execute(w, params)
}
