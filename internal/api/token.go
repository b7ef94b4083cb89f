package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"parley/internal/config"
)

// TokenSource supplies the bearer credential for one call. The credential
// lifecycle is owned elsewhere; sources only read it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NoToken sends no Authorization header.
type NoToken struct{}

func (NoToken) Token(context.Context) (string, error) { return "", nil }

// StaticToken is a fixed credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// FileToken re-reads a credential file on every call so an external login
// helper can rotate it. A missing file means no credential.
type FileToken struct {
	Path string
}

func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// TokenSourceFromConfig prefers the token file over an inline token.
func TokenSourceFromConfig(cfg *config.Config) TokenSource {
	if p := strings.TrimSpace(cfg.Service.TokenFile); p != "" {
		return FileToken{Path: p}
	}
	if t := strings.TrimSpace(cfg.Service.Token); t != "" {
		return StaticToken(t)
	}
	return NoToken{}
}
