package config

import (
	"os"
	"strings"

	"github.com/cordum/playground/core/configsvc"
)

const defaultLLMModel = "gpt-4o"

// LLMDefaults are generation settings derived from provider credentials in
// the environment.
type LLMDefaults struct {
	Provider configsvc.Provider
	Model    string
	APIKey   string
	BaseURL  string
	// FromEnv is false when no provider credential or model variable is set.
	FromEnv bool
}

// LLMDefaultsFromEnv reads OPENAI_API_KEY, ANTHROPIC_API_KEY, LLM_MODEL,
// OPENAI_MODEL, OPENAI_BASE_URL and BASE_URL. A set ANTHROPIC_API_KEY
// selects the anthropic provider.
func LLMDefaultsFromEnv() LLMDefaults {
	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	anthropicKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	model := firstNonEmpty(os.Getenv("LLM_MODEL"), os.Getenv("OPENAI_MODEL"))

	d := LLMDefaults{
		Provider: configsvc.ProviderOpenAI,
		Model:    model,
		APIKey:   openAIKey,
		BaseURL:  firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("BASE_URL")),
		FromEnv:  openAIKey != "" || anthropicKey != "" || model != "",
	}
	if anthropicKey != "" {
		d.Provider = configsvc.ProviderAnthropic
		if d.APIKey == "" {
			d.APIKey = anthropicKey
		}
	}
	if d.Model == "" {
		d.Model = defaultLLMModel
	}
	return d
}

// Seed fills the provider, model, key and base URL of agg's LLM sub-config
// where they are unset. It leaves agg untouched when nothing came from the
// environment.
func (d LLMDefaults) Seed(agg configsvc.Aggregate) configsvc.Aggregate {
	if !d.FromEnv {
		return agg
	}
	out := agg.Clone()
	llm := configsvc.LLMConfig{}
	if out.LLM != nil {
		llm = *out.LLM
	}
	if llm.Provider == "" {
		llm.Provider = d.Provider
	}
	if strings.TrimSpace(llm.Model) == "" {
		llm.Model = d.Model
	}
	if llm.APIKey == "" {
		llm.APIKey = d.APIKey
	}
	if llm.BaseURL == "" {
		llm.BaseURL = d.BaseURL
	}
	llm = llm.WithDefaults()
	out.LLM = &llm
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
