package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"parley/internal/assistant"
	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/control"
	"parley/internal/dispatch"
	"parley/internal/journal"
	"parley/internal/logging"
	"parley/internal/response"

	"github.com/sirupsen/logrus"
)

// Server hosts one assistant behind the control socket, metrics and the journal.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	assistant *assistant.Assistant
	hints     interface{ Invalidate() }
	render    response.RenderOptions
	startedAt time.Time
	lastHeard atomic.Int64

	transcriptsMu sync.Mutex
	transcripts   []control.Transcript

	metrics   metrics
	journal   *journal.Journal
	journalCh chan journal.Record

	wg sync.WaitGroup
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	srv := newServer(cfg, logger)
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Paths.JournalPath)
		if err != nil {
			logger.Warnf("journal disabled: %v", err)
		} else {
			srv.journal = j
			defer func() {
				if err := j.Close(); err != nil {
					logger.Warnf("journal close: %v", err)
				}
			}()
		}
	}

	graph, err := bootstrap.Build(cfg, logger, bootstrap.Overrides{Observer: srv})
	if err != nil {
		return err
	}
	defer graph.Close()
	srv.attach(graph.Assistant, graph.Hints)
	logger.Infof("parley daemon started: %s", graph.Describe())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.controlLoop(ctx)

	if srv.journal != nil {
		srv.wg.Add(1)
		go srv.journalWorker(ctx)
	}

	if cfg.Metrics.Enabled {
		go srv.metricsServe(ctx.Done(), cfg.Metrics.Addr)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-sigCh:
		logger.Infof("received signal %s, shutting down", s)
		cancel()
	case <-ctx.Done():
	}
	// let the journal worker flush queued records
	srv.wg.Wait()
	return nil
}

func newServer(cfg *config.Config, logger *logrus.Logger) *Server {
	queue := max(1, cfg.Journal.QueueSize)
	return &Server{
		cfg:         cfg,
		logger:      logger,
		render:      bootstrap.OptionsFromConfig(cfg).Render,
		startedAt:   time.Now(),
		transcripts: make([]control.Transcript, 0, cfg.UI.StatusTail),
		journalCh:   make(chan journal.Record, queue),
	}
}

func (s *Server) attach(a *assistant.Assistant, hints interface{ Invalidate() }) {
	s.assistant = a
	s.hints = hints
}

// TranscriptFinal records a recognized utterance.
func (s *Server) TranscriptFinal(text string) {
	s.lastHeard.Store(time.Now().UnixNano())
	s.metrics.incTranscripts()
	s.logger.Infof("heard: %q", text)
	s.recordTranscript(text)
}

// CommandFinished counts the outcome and queues successes for the journal.
func (s *Server) CommandFinished(i assistant.Interaction) {
	switch i.Outcome {
	case assistant.OutcomeBusy:
		s.metrics.incBusy()
		return
	case assistant.OutcomeFailure:
		s.metrics.incCommands()
		s.metrics.incFailed()
		return
	}
	s.metrics.incCommands()
	if i.Result.Fallback {
		s.metrics.incFallback()
	}
	if s.journal == nil {
		return
	}
	select {
	case s.journalCh <- recordFor(i):
	default:
		s.metrics.incJournalDropped()
		s.logger.Warn("journal queue full, dropping record")
	}
}

func recordFor(i assistant.Interaction) journal.Record {
	kind := response.KindNone
	if i.Result.Data != nil {
		kind = i.Result.Data.Kind()
	}
	return journal.Record{
		RequestID:    i.ID,
		Source:       string(i.Source),
		Role:         i.Role,
		Transcript:   i.Transcript,
		Intent:       i.Result.Intent,
		Message:      i.Result.Reply,
		PayloadKind:  string(kind),
		Params:       i.Result.Params,
		Fallback:     i.Result.Fallback,
		ProcessingMS: i.Result.ProcessingMS,
		CreatedAt:    i.Started,
	}
}

func (s *Server) recordTranscript(text string) {
	entry := control.Transcript{
		Text:      text,
		Timestamp: time.Now(),
	}
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	s.transcripts = append(s.transcripts, entry)
	if len(s.transcripts) > s.cfg.UI.StatusTail {
		s.transcripts = s.transcripts[len(s.transcripts)-s.cfg.UI.StatusTail:]
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	out := make([]control.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func (s *Server) controlLoop(ctx context.Context) {
	ln, err := net.Listen("unix", s.cfg.Paths.SocketPath)
	if err != nil {
		s.logger.Errorf("control listen: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: "bad request"})
		return
	}
	if err := json.NewEncoder(conn).Encode(s.handle(ctx, req)); err != nil && ctx.Err() == nil {
		s.logger.Warnf("control reply: %v", err)
	}
}

// handle answers one control request.
func (s *Server) handle(ctx context.Context, req control.Request) any {
	a := s.assistant
	switch req.Op {
	case control.OpStatus:
		st := control.Status{
			Running:     true,
			UptimeSec:   time.Since(s.startedAt).Seconds(),
			Journal:     s.journal != nil,
			Assistant:   a.Snapshot(),
			Transcripts: s.copyTranscripts(),
		}
		if ns := s.lastHeard.Load(); ns > 0 {
			st.LastHeard = time.Unix(0, ns)
		}
		return st
	case control.OpHealth:
		return control.SimpleResponse{OK: true, Message: "ok"}
	case control.OpCommand:
		return s.command(ctx, req)
	case control.OpToggle:
		if err := a.Toggle(); err != nil {
			return control.SimpleResponse{OK: false, Message: err.Error()}
		}
		return control.SimpleResponse{OK: true, Message: string(a.Snapshot().Capture)}
	case control.OpReset:
		a.ResetLive()
		if req.History {
			a.ClearHistory()
			return control.SimpleResponse{OK: true, Message: "reset; history cleared"}
		}
		return control.SimpleResponse{OK: true, Message: "reset"}
	case control.OpHistory:
		return control.HistoryResponse{Entries: a.History()}
	case control.OpHints:
		return a.Hints(ctx, req.Role)
	case control.OpSpeak:
		if strings.TrimSpace(req.Text) == "" {
			return control.SimpleResponse{OK: false, Message: "nothing to say"}
		}
		if !a.Snapshot().SpeechEnabled {
			return control.SimpleResponse{OK: false, Message: "speech is not available"}
		}
		a.Speak(req.Text)
		return control.SimpleResponse{OK: true, Message: "speaking"}
	case control.OpStopSpeaking:
		a.StopSpeaking()
		return control.SimpleResponse{OK: true, Message: "stopped"}
	case control.OpReload:
		return s.reload()
	default:
		return control.SimpleResponse{OK: false, Message: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *Server) command(ctx context.Context, req control.Request) control.CommandResponse {
	res, err := s.assistant.Submit(ctx, assistant.Request{Text: req.Text, Context: req.Context, Manager: req.Manager})
	if err == nil {
		view := response.Render(res, s.render)
		return control.CommandResponse{OK: true, Result: &res, View: &view}
	}
	failure := &assistant.Failure{Source: "dispatch", Message: err.Error()}
	switch {
	case errors.Is(err, dispatch.ErrEmptyText):
		failure.Kind = "empty"
	case errors.Is(err, assistant.ErrBusy):
		failure.Kind = "busy"
	case errors.Is(err, assistant.ErrSuperseded):
		failure.Kind = "cancelled"
	default:
		failure.Kind = string(dispatch.Classify(err).Kind)
	}
	return control.CommandResponse{OK: false, Error: failure}
}

// reload re-reads logging settings and drops cached hints. Service, capture
// and speech settings take effect on restart.
func (s *Server) reload() control.SimpleResponse {
	cfg, err := config.Load(s.cfg.Paths.ConfigPath)
	if err != nil {
		return control.SimpleResponse{OK: false, Message: err.Error()}
	}
	logging.Apply(s.logger, cfg)
	if s.hints != nil {
		s.hints.Invalidate()
	}
	s.logger.Infof("config reloaded from %s", cfg.Paths.ConfigPath)
	return control.SimpleResponse{OK: true, Message: "logging and hints refreshed; restart for service, capture or speech changes"}
}
