package control

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"parley/internal/assistant"
	"parley/internal/dispatch"
	"parley/internal/logging"
	"parley/internal/response"
)

type chatDispatcher struct {
	mu      sync.Mutex
	texts   []string
	manager []string
}

func (d *chatDispatcher) Dispatch(_ context.Context, req dispatch.Request) (response.Result, error) {
	d.mu.Lock()
	d.texts = append(d.texts, req.Text)
	d.mu.Unlock()
	return response.Result{Intent: "LIST_EXPENSES", Reply: "You have 2 pending expenses", Data: response.None{}}, nil
}

func (d *chatDispatcher) ManagerAction(_ context.Context, text string) (response.Result, error) {
	d.mu.Lock()
	d.manager = append(d.manager, text)
	d.mu.Unlock()
	return response.Result{Intent: "BULK_APPROVE", Reply: "Approved 3 expenses", Data: response.None{}}, nil
}

func newChat(t *testing.T) (*assistant.Assistant, *chatSink, *chatDispatcher, *bytes.Buffer, *lockedWriter) {
	t.Helper()
	var buf bytes.Buffer
	out := &lockedWriter{w: &buf}
	sink := newChatSink(out, 80)
	disp := &chatDispatcher{}
	a := assistant.New(assistant.Options{Role: "MANAGER"}, assistant.Deps{
		Dispatcher: disp,
		Sink:       sink,
		Logger:     logging.NewTestLogger(),
	})
	t.Cleanup(a.Close)
	return a, sink, disp, &buf, out
}

func TestChatTypedCommandsAndHistory(t *testing.T) {
	t.Parallel()

	a, sink, disp, buf, out := newChat(t)
	if err := runChat(context.Background(), a, sink, strings.NewReader("how many pending\n\n"), out, 80); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if got := buf.String(); strings.Count(got, "You have 2 pending expenses") != 1 {
		t.Fatalf("typed reply should print exactly once:\n%s", got)
	}

	buf.Reset()
	in := strings.NewReader("/history\n/manager \"approve all travel\"\n/quit\nnever sent\n")
	if err := runChat(context.Background(), a, sink, in, out, 80); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "how many pending") || !strings.Contains(got, "Approved 3 expenses") {
		t.Fatalf("missing history or manager reply:\n%s", got)
	}
	if len(disp.texts) != 1 || disp.texts[0] != "how many pending" {
		t.Fatalf("unexpected dispatches %v", disp.texts)
	}
	if len(disp.manager) != 1 || disp.manager[0] != "approve all travel" {
		t.Fatalf("unexpected manager actions %v", disp.manager)
	}
}

func TestChatSlashCommandErrors(t *testing.T) {
	t.Parallel()

	a, sink, _, buf, out := newChat(t)
	in := strings.NewReader("/frobnicate\n/manager\n/listen\n")
	if err := runChat(context.Background(), a, sink, in, out, 80); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "unknown command /frobnicate") || !strings.Contains(got, "usage: /manager") {
		t.Fatalf("missing errors:\n%s", got)
	}
	if strings.Count(got, "error:") != 3 {
		t.Fatalf("each failure should be reported once:\n%s", got)
	}
	if a.Snapshot().Error == nil {
		t.Fatalf("unsupported capture should fill the error slot")
	}
}

func TestChatResetAndClear(t *testing.T) {
	t.Parallel()

	a, sink, _, buf, out := newChat(t)
	in := strings.NewReader("list my expenses\n/reset\n/clear\n/history\n")
	if err := runChat(context.Background(), a, sink, in, out, 80); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if len(a.History()) != 0 || a.Snapshot().Result != nil {
		t.Fatalf("reset and clear should leave nothing behind: %+v", a.Snapshot())
	}
	if !strings.Contains(buf.String(), "no history yet") {
		t.Fatalf("expected empty history listing:\n%s", buf.String())
	}
}

func TestChatSinkPrintsUnpromptedResultsOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := newChatSink(&buf, 80)
	view := response.Render(response.Result{Intent: "GREETING", Reply: "Hello there", Data: response.None{}}, response.DefaultRenderOptions())
	snap := assistant.Snapshot{Phase: assistant.PhaseResult, View: &view, LastInteraction: time.Now()}

	sink.Changed(assistant.Snapshot{Phase: assistant.PhaseListening})
	sink.Changed(assistant.Snapshot{Phase: assistant.PhaseProcessing, Transcript: "hello"})
	sink.Changed(snap)
	sink.Changed(snap)

	got := buf.String()
	if strings.Count(got, "Hello there") != 1 {
		t.Fatalf("result should print once:\n%s", got)
	}
	if !strings.Contains(got, "listening...") || !strings.Contains(got, "heard: hello") {
		t.Fatalf("missing progress lines:\n%s", got)
	}

	buf.Reset()
	sink.setTyping(true)
	sink.Changed(assistant.Snapshot{Phase: assistant.PhaseError, Error: &assistant.Failure{Message: "boom"}, LastInteraction: time.Now()})
	if buf.Len() != 0 {
		t.Fatalf("typed commands are printed by the loop, got %q", buf.String())
	}
}
