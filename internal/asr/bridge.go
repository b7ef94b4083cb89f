package asr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// BridgeRecognizer delegates recognition to a speech bridge reachable over a
// websocket (for example a browser or phone companion that owns the microphone).
//
// Protocol: the client sends {"type":"start","lang":..,"interim":..}; the bridge
// answers with interim/final/error/end messages and the client may send
// {"type":"stop"} to end the cycle early.
type BridgeRecognizer struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger *logrus.Logger
}

// NewBridgeRecognizer returns a recognizer speaking to the bridge at url.
func NewBridgeRecognizer(url string, logger *logrus.Logger) *BridgeRecognizer {
	return &BridgeRecognizer{
		url:    normalizeBridgeURL(url),
		dialer: websocket.DefaultDialer,
		header: http.Header{},
		logger: logger,
	}
}

type bridgeMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
	Lang    string `json:"lang,omitempty"`
	Interim bool   `json:"interim,omitempty"`
}

func (b *BridgeRecognizer) Listen(ctx context.Context, opts Options) (Session, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.url, b.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to speech bridge: %w", err)
	}
	start := bridgeMessage{Type: "start", Lang: opts.Language, Interim: opts.Interim}
	if err := conn.WriteJSON(start); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start speech bridge cycle: %w", err)
	}

	s := &bridgeSession{
		conn:   conn,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
		logger: b.logger,
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()
	return s, nil
}

type bridgeSession struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	logger *logrus.Logger

	writeMu  sync.Mutex
	stopOnce sync.Once
}

func (s *bridgeSession) Events() <-chan Event { return s.events }

// Stop asks the bridge to end the cycle and closes the connection.
func (s *bridgeSession) Stop() error {
	s.stopOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteJSON(bridgeMessage{Type: "stop"})
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *bridgeSession) readLoop() {
	defer close(s.done)
	defer close(s.events)
	defer func() { _ = s.conn.Close() }()

	for {
		var msg bridgeMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !isBenignClose(err) {
				s.logger.Warnf("speech bridge read: %v", err)
				s.events <- Event{Kind: EventError, Code: CodeNetwork}
			}
			s.events <- Event{Kind: EventEnd}
			return
		}
		switch strings.ToLower(msg.Type) {
		case "interim":
			select {
			case s.events <- Event{Kind: EventInterim, Text: msg.Text}:
			default:
			}
		case "final":
			s.events <- Event{Kind: EventFinal, Text: msg.Text}
		case "error":
			code := strings.TrimSpace(msg.Error)
			if code == "" {
				code = CodeRecognizerFail
			}
			s.events <- Event{Kind: EventError, Code: code}
		case "end":
			s.events <- Event{Kind: EventEnd}
			return
		default:
			s.logger.Debugf("speech bridge: ignoring message type %q", msg.Type)
		}
	}
}

func isBenignClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}

func normalizeBridgeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}

var _ Recognizer = (*BridgeRecognizer)(nil)
