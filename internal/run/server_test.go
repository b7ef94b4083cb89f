package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parley/internal/assistant"
	"parley/internal/config"
	"parley/internal/control"
	"parley/internal/dispatch"
	"parley/internal/history"
	"parley/internal/journal"
	"parley/internal/logging"
	"parley/internal/response"
)

type stubDispatcher struct {
	result response.Result
	err    error
}

func (d stubDispatcher) Dispatch(context.Context, dispatch.Request) (response.Result, error) {
	return d.result, d.err
}

func (d stubDispatcher) ManagerAction(context.Context, string) (response.Result, error) {
	return d.result, d.err
}

func newTestServer(t *testing.T, disp assistant.Dispatcher) *Server {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.UI.StatusTail = 3
	cfg.Journal.QueueSize = 1
	s := newServer(cfg, logging.NewTestLogger())
	a := assistant.New(assistant.Options{Role: "EMPLOYEE"}, assistant.Deps{
		Dispatcher: disp,
		Observer:   s,
		Logger:     s.logger,
	})
	t.Cleanup(a.Close)
	s.attach(a, nil)
	return s
}

func okResult() response.Result {
	return response.Result{Intent: "GREETING", Reply: "Hello", Data: response.None{}, ProcessingMS: 12}
}

func TestHandleCommandSuccess(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: okResult()})
	resp, ok := s.handle(context.Background(), control.Request{Op: control.OpCommand, Text: "hi"}).(control.CommandResponse)
	if !ok {
		t.Fatalf("unexpected reply type")
	}
	if !resp.OK || resp.Result == nil || resp.View == nil || resp.View.IntentLabel != "Greeting" {
		t.Fatalf("unexpected reply %+v", resp)
	}
	if s.metrics.commands.Load() != 1 || s.metrics.failed.Load() != 0 {
		t.Fatalf("unexpected counters commands=%d failed=%d", s.metrics.commands.Load(), s.metrics.failed.Load())
	}
}

func TestHandleCommandFailures(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{err: &dispatch.Error{Kind: dispatch.KindUnauthorized, Status: 401}})
	resp := s.handle(context.Background(), control.Request{Op: control.OpCommand, Text: "   "}).(control.CommandResponse)
	if resp.OK || resp.Error == nil || resp.Error.Kind != "empty" {
		t.Fatalf("blank command: %+v", resp)
	}
	resp = s.handle(context.Background(), control.Request{Op: control.OpCommand, Text: "list expenses"}).(control.CommandResponse)
	if resp.OK || resp.Error == nil || resp.Error.Kind != string(dispatch.KindUnauthorized) {
		t.Fatalf("unauthorized command: %+v", resp)
	}
	if !strings.Contains(resp.Error.Message, "sign in") {
		t.Fatalf("message should direct to sign in: %q", resp.Error.Message)
	}
	if s.metrics.failed.Load() != 1 {
		t.Fatalf("expected one failure counted, got %d", s.metrics.failed.Load())
	}
}

func TestHandleResetAndHistory(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: okResult()})
	ctx := context.Background()
	s.handle(ctx, control.Request{Op: control.OpCommand, Text: "hi"})

	if r := s.handle(ctx, control.Request{Op: control.OpReset}).(control.SimpleResponse); !r.OK {
		t.Fatalf("reset: %+v", r)
	}
	hist := s.handle(ctx, control.Request{Op: control.OpHistory}).(control.HistoryResponse)
	if len(hist.Entries) != 1 {
		t.Fatalf("plain reset must keep history, got %d", len(hist.Entries))
	}
	s.handle(ctx, control.Request{Op: control.OpReset, History: true})
	hist = s.handle(ctx, control.Request{Op: control.OpHistory}).(control.HistoryResponse)
	if len(hist.Entries) != 0 {
		t.Fatalf("reset --history should clear, got %d", len(hist.Entries))
	}
}

func TestHandleCapabilityOpsWithoutCapabilities(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: okResult()})
	ctx := context.Background()
	if r := s.handle(ctx, control.Request{Op: control.OpToggle}).(control.SimpleResponse); r.OK {
		t.Fatalf("toggle without recognizer should fail: %+v", r)
	}
	if r := s.handle(ctx, control.Request{Op: control.OpSpeak, Text: "hello"}).(control.SimpleResponse); r.OK {
		t.Fatalf("speak without synthesizer should fail: %+v", r)
	}
	if r := s.handle(ctx, control.Request{Op: control.OpStopSpeaking}).(control.SimpleResponse); !r.OK {
		t.Fatalf("stop speaking is always safe: %+v", r)
	}
	if r := s.handle(ctx, control.Request{Op: "bogus"}).(control.SimpleResponse); r.OK {
		t.Fatalf("unknown op should fail")
	}
	st := s.handle(ctx, control.Request{Op: control.OpStatus}).(control.Status)
	if !st.Running || st.Assistant.Phase != assistant.PhaseError || st.Assistant.Error.Source != "capture" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestTranscriptTailIsBounded(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: okResult()})
	for i := 0; i < 5; i++ {
		s.TranscriptFinal(fmt.Sprintf("utterance %d", i))
	}
	got := s.copyTranscripts()
	if len(got) != 3 || got[0].Text != "utterance 2" || got[2].Text != "utterance 4" {
		t.Fatalf("unexpected tail %+v", got)
	}
	if s.metrics.transcripts.Load() != 5 || s.lastHeard.Load() == 0 {
		t.Fatalf("transcript metrics not updated")
	}
}

func TestJournalWorkerPersistsSuccesses(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: okResult()})
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()
	s.journal = j

	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.journalWorker(ctx)

	if _, err := s.assistant.Submit(context.Background(), assistant.Request{Text: "hi"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()
	s.wg.Wait()

	recs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].Transcript != "hi" || recs[0].Intent != "GREETING" || recs[0].PayloadKind != string(response.KindNone) {
		t.Fatalf("unexpected records %+v", recs)
	}
	if recs[0].Role != "EMPLOYEE" || recs[0].Source != string(assistant.SourceTyped) || recs[0].ProcessingMS != 12 {
		t.Fatalf("record metadata not carried: %+v", recs[0])
	}
}

func TestJournalQueueFullDrops(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: okResult()})
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()
	s.journal = j

	ok := assistant.Interaction{ID: "a", Outcome: assistant.OutcomeSuccess, Result: okResult(), Started: time.Now()}
	s.CommandFinished(ok)
	ok.ID = "b"
	s.CommandFinished(ok)
	if s.metrics.journalDropped.Load() != 1 {
		t.Fatalf("expected one drop with a queue of one, got %d", s.metrics.journalDropped.Load())
	}
}

func TestRouterServesMetricsAndHistory(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubDispatcher{result: response.Result{Intent: "UNKNOWN", Reply: "Offline", Fallback: true, Data: response.None{}}})
	if _, err := s.assistant.Submit(context.Background(), assistant.Request{Text: "whatever"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	srv := httptest.NewServer(s.router())
	defer srv.Close()

	body := get(t, srv.URL+"/metrics")
	for _, want := range []string{"parley_commands_total 1", "parley_commands_fallback_total 1", "parley_commands_failed_total 0"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	var entries []history.Entry
	if err := json.Unmarshal([]byte(get(t, srv.URL+"/history")), &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 1 || !entries[0].Fallback {
		t.Fatalf("unexpected history %+v", entries)
	}
	if !strings.Contains(get(t, srv.URL+"/healthz"), `"ok":true`) {
		t.Fatalf("healthz not ok")
	}
}

func TestControlSocketRoundTrip(t *testing.T) {
	t.Parallel()

	// unix socket paths are length-limited; keep it short
	dir, err := os.MkdirTemp("", "pl")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s := newTestServer(t, stubDispatcher{result: okResult()})
	s.cfg.Paths.SocketPath = filepath.Join(dir, "c.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.controlLoop(ctx)

	var health control.SimpleResponse
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := control.Call(s.cfg.Paths.SocketPath, control.Request{Op: control.OpHealth}, &health)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("control socket never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !health.OK {
		t.Fatalf("unexpected health %+v", health)
	}

	var cmd control.CommandResponse
	if err := control.Call(s.cfg.Paths.SocketPath, control.Request{Op: control.OpCommand, Text: "hi"}, &cmd); err != nil {
		t.Fatalf("command: %v", err)
	}
	if !cmd.OK || cmd.Result == nil || cmd.Result.Reply != "Hello" {
		t.Fatalf("unexpected command reply %+v", cmd)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(b)
}
