package capture

import (
	"fmt"

	"parley/internal/asr"
)

// Kind classifies capture failures.
type Kind string

const (
	// KindUnsupported: no recognizer on this system; permanent.
	KindUnsupported Kind = "unsupported"
	// KindPermission: the user or OS denied microphone access.
	KindPermission Kind = "permission"
	// KindStart: the recognizer could not begin a cycle (device busy, bridge down).
	KindStart Kind = "start"
	// KindRecognition: recognition failed mid-cycle.
	KindRecognition Kind = "recognition"
)

// Error is a classified capture failure.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnsupported:
		return "voice input is not supported here; type your command instead"
	case KindPermission:
		return "microphone permission denied"
	case KindStart:
		if e.Err != nil {
			return fmt.Sprintf("could not start listening: %v", e.Err)
		}
		return "could not start listening"
	default:
		if e.Code != "" {
			return fmt.Sprintf("speech recognition failed: %s", e.Code)
		}
		return "speech recognition failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func classifyCode(code string) *Error {
	switch code {
	case asr.CodeNotAllowed, asr.CodeServiceDenied:
		return &Error{Kind: KindPermission, Code: code}
	default:
		return &Error{Kind: KindRecognition, Code: code}
	}
}
