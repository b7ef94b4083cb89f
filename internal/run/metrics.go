package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type metrics struct {
	transcripts    atomic.Int64
	commands       atomic.Int64
	failed         atomic.Int64
	fallback       atomic.Int64
	busy           atomic.Int64
	journaled      atomic.Int64
	journalDropped atomic.Int64
}

func (m *metrics) incTranscripts()    { m.transcripts.Add(1) }
func (m *metrics) incCommands()       { m.commands.Add(1) }
func (m *metrics) incFailed()         { m.failed.Add(1) }
func (m *metrics) incFallback()       { m.fallback.Add(1) }
func (m *metrics) incBusy()           { m.busy.Add(1) }
func (m *metrics) incJournaled()      { m.journaled.Add(1) }
func (m *metrics) incJournalDropped() { m.journalDropped.Add(1) }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "uptime_sec": time.Since(s.startedAt).Seconds()})
	})
	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.assistant.History())
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.assistant.Snapshot())
	})
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "parley_transcripts_total %d\n", s.metrics.transcripts.Load())
	fmt.Fprintf(w, "parley_commands_total %d\n", s.metrics.commands.Load())
	fmt.Fprintf(w, "parley_commands_failed_total %d\n", s.metrics.failed.Load())
	fmt.Fprintf(w, "parley_commands_fallback_total %d\n", s.metrics.fallback.Load())
	fmt.Fprintf(w, "parley_commands_busy_total %d\n", s.metrics.busy.Load())
	fmt.Fprintf(w, "parley_journal_written_total %d\n", s.metrics.journaled.Load())
	fmt.Fprintf(w, "parley_journal_dropped_total %d\n", s.metrics.journalDropped.Load())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) metricsServe(ctxDone <-chan struct{}, addr string) {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	s.logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warnf("metrics server: %v", err)
	}
}
