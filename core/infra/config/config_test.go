package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cordum/playground/core/configsvc"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{envAPIURL, envAPITimeout, envHTTPAddr, envMetricsAddr, envRedisURL, envNATSURL, envSessionTTL, envMaxSessions, envPresetPath, envAllowedOrigins} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.APIURL != defaultAPIURL {
		t.Fatalf("expected default api url, got %s", cfg.APIURL)
	}
	if cfg.APITimeout != defaultAPITimeout {
		t.Fatalf("expected default api timeout")
	}
	if cfg.HTTPAddr != defaultHTTPAddr || cfg.MetricsAddr != defaultMetricsAddr {
		t.Fatalf("unexpected listen addresses: %s %s", cfg.HTTPAddr, cfg.MetricsAddr)
	}
	if cfg.SessionTTL != defaultSessionTTL || cfg.MaxSessions != defaultMaxSessions {
		t.Fatalf("unexpected session limits")
	}
	if cfg.RedisURL != "" || cfg.NatsURL != "" || cfg.PresetPath != "" || len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected optional settings unset: %#v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envAPIURL, "http://guard:5000")
	t.Setenv(envAPIKey, "secret")
	t.Setenv(envAPITimeout, "15")
	t.Setenv(envHTTPAddr, ":1234")
	t.Setenv(envRedisURL, "redis://example:6379")
	t.Setenv(envNATSURL, "nats://example:4222")
	t.Setenv(envSessionTTL, "5m")
	t.Setenv(envMaxSessions, "8")
	t.Setenv(envAllowedOrigins, "http://a.test, http://b.test,")

	cfg := Load()
	if cfg.APIURL != "http://guard:5000" || cfg.APIKey != "secret" {
		t.Fatalf("unexpected api settings: %#v", cfg)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.APITimeout)
	}
	if cfg.HTTPAddr != ":1234" || cfg.RedisURL != "redis://example:6379" || cfg.NatsURL != "nats://example:4222" {
		t.Fatalf("unexpected addresses: %#v", cfg)
	}
	if cfg.SessionTTL != 5*time.Minute || cfg.MaxSessions != 8 {
		t.Fatalf("unexpected session limits: %s %d", cfg.SessionTTL, cfg.MaxSessions)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "http://a.test|http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envAPITimeout, "soon")
	t.Setenv(envMaxSessions, "-3")
	cfg := Load()
	if cfg.APITimeout != defaultAPITimeout || cfg.MaxSessions != defaultMaxSessions {
		t.Fatalf("expected defaults for invalid values")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PLAYGROUND_HTTP_ADDR=:7777\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(envHTTPAddr, "")
	os.Unsetenv(envHTTPAddr)
	cfg := Load()
	if cfg.HTTPAddr != ":7777" {
		t.Fatalf("expected .env value, got %s", cfg.HTTPAddr)
	}
}

func TestLLMDefaultsFromEnv(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_MODEL", "OPENAI_MODEL", "OPENAI_BASE_URL", "BASE_URL"} {
		t.Setenv(key, "")
	}
	d := LLMDefaultsFromEnv()
	if d.FromEnv || d.Provider != configsvc.ProviderOpenAI || d.Model != defaultLLMModel {
		t.Fatalf("unexpected empty-env defaults: %#v", d)
	}

	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("BASE_URL", "http://proxy")
	d = LLMDefaultsFromEnv()
	if !d.FromEnv || d.Model != "gpt-4o-mini" || d.BaseURL != "http://proxy" {
		t.Fatalf("unexpected defaults: %#v", d)
	}
	t.Setenv("LLM_MODEL", "claude-sonnet")
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	d = LLMDefaultsFromEnv()
	if d.Provider != configsvc.ProviderAnthropic || d.Model != "claude-sonnet" || d.APIKey != "ak" {
		t.Fatalf("expected anthropic defaults: %#v", d)
	}
}

func TestLLMDefaultsSeed(t *testing.T) {
	base := configsvc.Defaults()
	if got := (LLMDefaults{}).Seed(base); got.LLM.Model != "" {
		t.Fatalf("expected no seeding without env values")
	}
	d := LLMDefaults{Provider: configsvc.ProviderOpenAI, Model: "gpt-4o", APIKey: "k", FromEnv: true}
	seeded := d.Seed(base)
	if seeded.LLM.Provider != configsvc.ProviderOpenAI || seeded.LLM.Model != "gpt-4o" || seeded.LLM.Temperature == nil {
		t.Fatalf("unexpected seeded llm: %#v", seeded.LLM)
	}
	if base.LLM.Model != "" {
		t.Fatalf("seed mutated its input")
	}
	custom := configsvc.NewLLMConfig(configsvc.ProviderCustom, "local")
	kept := d.Seed(configsvc.Aggregate{LLM: &custom})
	if kept.LLM.Provider != configsvc.ProviderCustom || kept.LLM.Model != "local" || kept.LLM.APIKey != "k" {
		t.Fatalf("seed overwrote explicit values: %#v", kept.LLM)
	}
}

const samplePreset = `
name: medical
tool: chat
config:
  llm:
    provider: openai
    model: gpt-4o
  chat:
    use_context: true
    use_rag: true
  context:
    keywords: [diabetes, insulin, diabetes]
  rag:
    qa_pairs:
      - question: What is insulin?
        answer: A hormone.
  guard:
    validators:
      - type: toxic_language
        applies_to: input
`

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset([]byte(samplePreset))
	if err != nil {
		t.Fatalf("parse preset: %v", err)
	}
	if p.Name != "medical" || p.Tool != "chat" {
		t.Fatalf("unexpected preset header: %#v", p)
	}
	cfg := p.Config
	if len(cfg.Context.Keywords) != 2 || cfg.Context.ThresholdValue() != configsvc.DefaultThreshold {
		t.Fatalf("expected context defaults: %#v", cfg.Context)
	}
	if cfg.RAG.TopK != configsvc.DefaultTopK || cfg.RAG.CollectionName != configsvc.DefaultCollectionName {
		t.Fatalf("expected rag defaults: %#v", cfg.RAG)
	}
	if b := cfg.Guard.Validators[0]; b.AppliesTo != configsvc.AppliesToInput || b.OnFail != configsvc.OnFailException {
		t.Fatalf("unexpected binding: %#v", b)
	}
	if cfg.LLM.MaxTokens == nil || *cfg.LLM.MaxTokens != configsvc.DefaultMaxTokens {
		t.Fatalf("expected llm defaults: %#v", cfg.LLM)
	}
	if !cfg.ChatToggles().UseRAG || cfg.ChatToggles().UseGuard {
		t.Fatalf("unexpected toggles: %#v", cfg.Chat)
	}
	if cfg.Scorer != nil {
		t.Fatalf("absent sub-config must stay nil")
	}
}

func TestParsePresetRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":           "   ",
		"missing config":  "name: x\n",
		"unknown section": "config:\n  telemetry: {}\n",
		"bad threshold":   "config:\n  context:\n    threshold: 3\n",
		"bad provider":    "config:\n  llm:\n    provider: mystery\n",
		"bad top_k":       "config:\n  rag:\n    top_k: 0\n",
		"bad on_fail":     "config:\n  guard:\n    validators:\n      - type: x\n        on_fail: explode\n",
		"not yaml":        "config: [unclosed",
	}
	for name, data := range cases {
		if _, err := ParsePreset([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadPreset(t *testing.T) {
	if _, err := LoadPreset(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	path := filepath.Join(t.TempDir(), "preset.yaml")
	if err := os.WriteFile(path, []byte(samplePreset), 0o600); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	p, err := LoadPreset(path)
	if err != nil || p.Name != "medical" {
		t.Fatalf("load preset: %v %#v", err, p)
	}
	if _, err := LoadPreset(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
