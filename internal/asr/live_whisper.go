//go:build whisper

package asr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"parley/internal/config"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/gordonklaus/portaudio"
	vad "github.com/maxhawkins/go-webrtcvad"
	"github.com/sirupsen/logrus"
)

const interimEvery = 2 * time.Second

// whisperRecognizer captures one utterance per cycle from the microphone,
// segments it with WebRTC VAD and transcribes it locally with whisper.cpp.
type whisperRecognizer struct {
	cfg    *config.Config
	logger *logrus.Logger
	model  whisper.Model

	// whisper contexts are not safe for concurrent use
	modelMu sync.Mutex
}

func newWhisperRecognizer(cfg *config.Config, logger *logrus.Logger) (Recognizer, error) {
	if cfg.Audio.Channels != 1 {
		return nil, fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	if cfg.Audio.FrameMS != 10 && cfg.Audio.FrameMS != 20 && cfg.Audio.FrameMS != 30 {
		return nil, fmt.Errorf("audio.frame_ms must be 10, 20, or 30 (got %d)", cfg.Audio.FrameMS)
	}
	switch cfg.Audio.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("sample_rate must be 8k/16k/32k/48k for webrtc VAD (got %d)", cfg.Audio.SampleRate)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrUnsupported, err)
	}
	if _, err := selectDevice(cfg.Audio.DeviceName, cfg.Audio.DeviceIndex); err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	model, err := whisper.New(cfg.ASR.ModelPath)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &whisperRecognizer{cfg: cfg, logger: logger, model: model}, nil
}

func (r *whisperRecognizer) Listen(ctx context.Context, opts Options) (Session, error) {
	dev, err := selectDevice(r.cfg.Audio.DeviceName, r.cfg.Audio.DeviceIndex)
	if err != nil {
		return nil, err
	}
	detector, err := vad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := detector.SetMode(r.cfg.VAD.Aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	frameSamples := r.cfg.Audio.SampleRate * r.cfg.Audio.FrameMS / 1000
	if !vad.ValidRateAndFrameLength(r.cfg.Audio.SampleRate, frameSamples) {
		return nil, fmt.Errorf("invalid frame_ms %d for sample_rate %d", r.cfg.Audio.FrameMS, r.cfg.Audio.SampleRate)
	}

	buf := make([]int16, frameSamples)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: r.cfg.Audio.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(r.cfg.Audio.SampleRate),
		FramesPerBuffer: frameSamples,
	}, &buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream (microphone busy?): %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &whisperSession{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.logger.Infof("listening on mic: %s @ %d Hz", dev.Name, r.cfg.Audio.SampleRate)
	go func() {
		defer close(s.done)
		defer close(s.events)
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
		}()
		r.capture(runCtx, s, stream, detector, buf, opts)
		s.emit(Event{Kind: EventEnd})
	}()
	return s, nil
}

// capture reads frames until one utterance is complete, the cycle is stopped,
// or nothing was said within capture.no_speech_ms.
func (r *whisperRecognizer) capture(ctx context.Context, s *whisperSession, stream *portaudio.Stream, detector *vad.VAD, buf []int16, opts Options) {
	var (
		chunk       []int16
		inSpeech    bool
		started     = time.Now()
		lastVoice   time.Time
		lastInterim time.Time
		silenceDur  = time.Duration(r.cfg.VAD.SilenceMS) * time.Millisecond
		minSpeech   = time.Duration(r.cfg.VAD.MinSpeechMS) * time.Millisecond
		maxSegDur   = time.Duration(r.cfg.VAD.MaxSegmentMS) * time.Millisecond
		noSpeechDur = time.Duration(r.cfg.Capture.NoSpeechMS) * time.Millisecond
		maxListen   = time.Duration(r.cfg.Capture.MaxListenMS) * time.Millisecond
		speechBegan time.Time
		frame       = make([]byte, len(buf)*2)
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				r.logger.Warn("input overflow")
				continue
			}
			r.logger.Errorf("stream read: %v", err)
			s.emit(Event{Kind: EventError, Code: CodeAudioCapture})
			return
		}
		for i, v := range buf {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(v))
		}
		voice, err := detector.Process(r.cfg.Audio.SampleRate, frame)
		if err != nil {
			r.logger.Warnf("vad: %v", err)
			continue
		}
		now := time.Now()

		if voice {
			if !inSpeech {
				inSpeech = true
				speechBegan = now
				chunk = chunk[:0]
			}
			chunk = append(chunk, buf...)
			lastVoice = now
			if opts.Interim && now.Sub(lastInterim) >= interimEvery && now.Sub(speechBegan) >= minSpeech {
				lastInterim = now
				if text := r.transcribeQuiet(ctx, chunk); text != "" {
					s.emit(Event{Kind: EventInterim, Text: text})
				}
			}
			if maxListen <= 0 || now.Sub(started) < maxListen {
				continue
			}
		}

		if !inSpeech {
			if noSpeechDur > 0 && now.Sub(started) >= noSpeechDur {
				s.emit(Event{Kind: EventError, Code: CodeNoSpeech})
				return
			}
			continue
		}
		capped := maxListen > 0 && now.Sub(started) >= maxListen
		if !capped && now.Sub(lastVoice) < silenceDur && (maxSegDur <= 0 || now.Sub(speechBegan) < maxSegDur) {
			continue
		}
		if lastVoice.Sub(speechBegan) < minSpeech {
			inSpeech = false
			chunk = chunk[:0]
			continue
		}
		text, err := r.transcribe(ctx, chunk)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Errorf("transcribe: %v", err)
				s.emit(Event{Kind: EventError, Code: CodeRecognizerFail})
			}
			return
		}
		if text == "" {
			s.emit(Event{Kind: EventError, Code: CodeNoSpeech})
			return
		}
		s.emit(Event{Kind: EventFinal, Text: text})
		return
	}
}

func (r *whisperRecognizer) transcribeQuiet(ctx context.Context, pcm []int16) string {
	text, err := r.transcribe(ctx, pcm)
	if err != nil {
		r.logger.Debugf("interim transcribe: %v", err)
		return ""
	}
	return text
}

func (r *whisperRecognizer) transcribe(ctx context.Context, pcm []int16) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}

	r.modelMu.Lock()
	defer r.modelMu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", err
	}
	if lang := strings.TrimSpace(r.cfg.ASR.Language); lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			r.logger.Warnf("set language: %v", err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type whisperSession struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *whisperSession) Events() <-chan Event { return s.events }

func (s *whisperSession) Stop() error {
	s.cancel()
	<-s.done
	return nil
}

// emit drops interim events when the consumer lags; terminal events block
// since consumers drain Events until it is closed.
func (s *whisperSession) emit(ev Event) {
	if ev.Kind != EventInterim {
		s.events <- ev
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// selectDevice prefers a name match, then index (negative means unset), then
// the system default input.
func selectDevice(preferred string, index int) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if index >= 0 && index < len(devs) && devs[index].MaxInputChannels > 0 {
		return devs[index], nil
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
