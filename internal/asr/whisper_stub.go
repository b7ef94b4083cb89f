//go:build !whisper

package asr

import (
	"fmt"

	"parley/internal/config"

	"github.com/sirupsen/logrus"
)

func newWhisperRecognizer(_ *config.Config, _ *logrus.Logger) (Recognizer, error) {
	return nil, fmt.Errorf("%w: build with '-tags whisper' for local capture", ErrUnsupported)
}
