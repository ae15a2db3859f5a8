package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cordum/playground/core/infra/config"
	"github.com/cordum/playground/core/pipeline"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("TEST_ENV", "")
	if got := envOr("TEST_ENV", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value")
	}
	t.Setenv("TEST_ENV", " value ")
	if got := envOr("TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("expected trimmed env value")
	}
}

func TestNewFlagSetDefaults(t *testing.T) {
	t.Setenv("PLAYGROUND_API_URL", "http://guard.example")
	t.Setenv("PLAYGROUND_API_KEY", "token")
	fs := newFlagSet("test")
	fs.ParseArgs([]string{"--timeout", "3s"})
	if *fs.apiURL != "http://guard.example" || *fs.apiKey != "token" || *fs.timeout != 3*time.Second {
		t.Fatalf("unexpected flags: %s %s %s", *fs.apiURL, *fs.apiKey, *fs.timeout)
	}
}

func TestNewClientTrimsURL(t *testing.T) {
	c := newClient("http://localhost:5000/", "key", 2*time.Second)
	if c.BaseURL != "http://localhost:5000" || c.APIKey != "key" || c.HTTPClient.Timeout != 2*time.Second {
		t.Fatalf("unexpected client: %s %s %s", c.BaseURL, c.APIKey, c.HTTPClient.Timeout)
	}
}

func writePreset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preset.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	return path
}

func TestGuardRequestFromPreset(t *testing.T) {
	p, err := config.ParsePreset([]byte("name: strict\nconfig:\n  guard:\n    num_reasks: 1\n    validators:\n      - type: toxic_language\n        on_fail: filter\n"))
	if err != nil {
		t.Fatalf("parse preset: %v", err)
	}
	req, err := guardRequest(p, "hello")
	if err != nil {
		t.Fatalf("guard request: %v", err)
	}
	if req.Text != "hello" || req.NumReasks != 1 || len(req.Validators) != 1 || req.Validators[0].OnFail != "filter" {
		t.Fatalf("unexpected request: %#v", req)
	}

	empty, _ := config.ParsePreset([]byte("name: bare\nconfig: {}\n"))
	if _, err := guardRequest(empty, "hello"); err == nil {
		t.Fatalf("expected error without validators")
	}
}

func fakeGuardrails(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/context/check":
		_, _ = w.Write([]byte(`{"is_valid":true,"threshold":0.7,"max_similarity":0.91}`))
	case "/api/chat":
		_, _ = w.Write([]byte(`{"response":"insulin lowers blood sugar","raw_response":"insulin lowers blood sugar"}`))
	case "/api/monitor/track":
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func TestLocalSessionUsesPreset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(fakeGuardrails))
	defer srv.Close()
	path := writePreset(t, "tool: context-manager\nconfig:\n  context:\n    keywords: [diabetes]\n")

	sess, done, err := newLocalSession(newClient(srv.URL, "", time.Second), path, "")
	if err != nil {
		t.Fatalf("local session: %v", err)
	}
	defer done()
	if tool, _ := sess.Tool(); tool != pipeline.ToolContextManager {
		t.Fatalf("expected preset tool, got %s", tool)
	}
	res, err := sess.Submit(context.Background(), "diabetes care")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome != pipeline.OutcomeSuccess || !strings.Contains(res.Entries[1].Content, "0.910") {
		t.Fatalf("unexpected result: %#v", res)
	}

	override, doneOverride, err := newLocalSession(newClient(srv.URL, "", time.Second), path, "rag")
	if err != nil {
		t.Fatalf("local session: %v", err)
	}
	defer doneOverride()
	if tool, _ := override.Tool(); tool != pipeline.ToolRAG {
		t.Fatalf("expected flag to override preset tool, got %s", tool)
	}

	if _, _, err := newLocalSession(newClient(srv.URL, "", time.Second), filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Fatalf("expected error for missing preset")
	}
}

func TestREPL(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_MODEL", "OPENAI_MODEL", "OPENAI_BASE_URL", "BASE_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(fakeGuardrails))
	defer srv.Close()
	sess, done, err := newLocalSession(newClient(srv.URL, "", time.Second), "", "")
	if err != nil {
		t.Fatalf("local session: %v", err)
	}
	defer done()

	in := strings.NewReader("what is insulin?\n\n/readiness\n/tool monitor\nanything\n/bogus\n/reset\n/quit\nnever sent\n")
	var out bytes.Buffer
	if err := repl(context.Background(), sess, in, &out); err != nil {
		t.Fatalf("repl: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"tool: chat",
		"[assistant] insulin lowers blood sugar",
		`"llm_ready": true`,
		"tool: monitor",
		"[assistant] Monitoring statistics",
		"unknown command /bogus",
		"transcript cleared",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	if strings.Contains(text, "never sent") || len(sess.Transcript()) != 0 {
		t.Fatalf("expected repl to stop at /quit after reset")
	}
}

func TestREPLEndsAtEOF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(fakeGuardrails))
	defer srv.Close()
	sess, done, err := newLocalSession(newClient(srv.URL, "", time.Second), "", "")
	if err != nil {
		t.Fatalf("local session: %v", err)
	}
	defer done()
	if err := repl(context.Background(), sess, io.LimitReader(strings.NewReader("   \n"), 4), io.Discard); err != nil {
		t.Fatalf("expected clean exit at eof: %v", err)
	}
}
