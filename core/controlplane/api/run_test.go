package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/config"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_MODEL", "OPENAI_MODEL", "OPENAI_BASE_URL", "BASE_URL"} {
		t.Setenv(key, "")
	}
}

func TestSessionDefaultsFromPresetAndEnv(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "preset.yaml")
	preset := "name: rag-demo\ntool: rag\nconfig:\n  rag:\n    qa_pairs:\n      - question: q\n        answer: a\n"
	if err := os.WriteFile(path, []byte(preset), 0o600); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	initial, tool, err := sessionDefaults(&config.Config{PresetPath: path})
	if err != nil {
		t.Fatalf("session defaults: %v", err)
	}
	if tool != "rag" {
		t.Fatalf("expected preset tool, got %q", tool)
	}
	first := initial()
	if first.RAG == nil || len(first.RAG.QAPairs) != 1 || first.RAG.TopK != configsvc.DefaultTopK {
		t.Fatalf("expected preset rag config: %#v", first.RAG)
	}
	if first.LLM == nil || first.LLM.Provider != configsvc.ProviderOpenAI || first.LLM.APIKey != "sk-test" {
		t.Fatalf("expected env llm defaults: %#v", first.LLM)
	}
	first.RAG.QAPairs[0].Answer = "changed"
	if second := initial(); second.RAG.QAPairs[0].Answer != "a" {
		t.Fatalf("sessions must not share configuration")
	}
}

func TestSessionDefaultsWithoutPreset(t *testing.T) {
	clearLLMEnv(t)
	initial, tool, err := sessionDefaults(&config.Config{})
	if err != nil || tool != "" {
		t.Fatalf("unexpected defaults: %q %v", tool, err)
	}
	if agg := initial(); agg.LLM == nil || agg.LLM.Model != "" {
		t.Fatalf("expected unseeded llm config: %#v", agg.LLM)
	}
}

func TestSessionDefaultsBadPreset(t *testing.T) {
	if _, _, err := sessionDefaults(&config.Config{PresetPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected missing preset error")
	}
	if err := Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
