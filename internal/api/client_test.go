package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parley/internal/config"
	"parley/internal/logging"
)

func TestPostJSONSendsHeadersAndBody(t *testing.T) {
	t.Parallel()

	var gotAuth, gotReqID, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if r.URL.Path != "/api/voice/command" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"intent":"GREETING"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", logging.NewTestLogger(), WithTokenSource(StaticToken(" abc ")))
	data, err := c.PostJSON(context.Background(), "/voice/command", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if string(data) != `{"intent":"GREETING"}` {
		t.Fatalf("unexpected body %s", data)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("unexpected auth %q", gotAuth)
	}
	if gotReqID == "" || gotType != "application/json" {
		t.Fatalf("missing headers: id=%q type=%q", gotReqID, gotType)
	}
	if gotBody != `{"text":"hi"}` {
		t.Fatalf("unexpected request body %s", gotBody)
	}
}

func TestGetJSONEncodesQueryAndOmitsEmptyToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("no credential should be sent")
		}
		if r.URL.Query().Get("role") != "MANAGER" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logging.NewTestLogger())
	if _, err := c.GetJSON(context.Background(), "hints", url.Values{"role": {"MANAGER"}}); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestStatusErrorCarriesServerMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "message field", body: `{"message":"Expense already approved"}`, want: "Expense already approved"},
		{name: "error field", body: `{"error":"bad role"}`, want: "bad role"},
		{name: "plain text", body: "upstream down", want: "upstream down"},
		{name: "empty json", body: `{}`, want: ""},
		{name: "long text cut on rune boundary", body: strings.Repeat("a", 199) + strings.Repeat("₹", 10), want: strings.Repeat("a", 199) + "…"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, logging.NewTestLogger()).PostJSON(context.Background(), "/x", struct{}{})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected status error, got %v", err)
			}
			if se.Status != http.StatusBadRequest || se.Message != tc.want {
				t.Fatalf("unexpected %+v", se)
			}
			if !IsStatus(err, 400) || IsStatus(err, 401) {
				t.Fatalf("IsStatus mismatch")
			}
		})
	}
}

func TestTransportErrorBeforeConnect(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", logging.NewTestLogger())
	_, err := c.PostJSON(context.Background(), "/voice/command", struct{}{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if te.Connected {
		t.Fatalf("refused connection must not count as connected")
	}
}

func TestFileTokenIsReadPerCall(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	ts := FileToken{Path: path}
	if tok, err := ts.Token(context.Background()); err != nil || tok != "" {
		t.Fatalf("missing file should yield empty token, got %q %v", tok, err)
	}
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := ts.Token(context.Background()); tok != "first" {
		t.Fatalf("unexpected token %q", tok)
	}
	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := ts.Token(context.Background()); tok != "second" {
		t.Fatalf("token file was not re-read, got %q", tok)
	}
}

func TestTokenSourceFromConfig(t *testing.T) {
	cfg := &config.Config{}
	if _, ok := TokenSourceFromConfig(cfg).(NoToken); !ok {
		t.Fatalf("expected NoToken")
	}
	cfg.Service.Token = "abc"
	if _, ok := TokenSourceFromConfig(cfg).(StaticToken); !ok {
		t.Fatalf("expected StaticToken")
	}
	cfg.Service.TokenFile = "/tmp/tok"
	if _, ok := TokenSourceFromConfig(cfg).(FileToken); !ok {
		t.Fatalf("token file should win")
	}
}
