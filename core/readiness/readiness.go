// Package readiness derives advisory facts from a configuration aggregate:
// which stages have enough data to run, which are switched on, and which of
// those the dispatcher may actually invoke.
package readiness

import (
	"fmt"
	"strings"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/schema"
)

// Feature is a pipeline stage that can be toggled from the chat surface.
type Feature string

const (
	FeatureGuard   Feature = "guard"
	FeatureContext Feature = "context"
	FeatureRAG     Feature = "rag"
	FeatureScorer  Feature = "scorer"
)

// Features lists every toggleable stage in pipeline order.
var Features = []Feature{FeatureContext, FeatureRAG, FeatureGuard, FeatureScorer}

// Status is the readiness of one feature.
type Status struct {
	Feature          Feature `json:"feature"`
	HasPrerequisites bool    `json:"has_prerequisites"`
	Enabled          bool    `json:"enabled"`
	Actionable       bool    `json:"actionable"`
	Missing          string  `json:"missing,omitempty"`
}

// Skip records a stage the dispatcher left out and why.
type Skip struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Report is the full advisory view of an aggregate.
type Report struct {
	Features   map[Feature]Status `json:"features"`
	LLMReady   bool               `json:"llm_ready"`
	Advisories []string           `json:"advisories,omitempty"`
}

// HasPrerequisites reports whether f has the minimum data to produce
// meaningful output.
func HasPrerequisites(cfg configsvc.Aggregate, f Feature) bool {
	return missing(cfg, f) == ""
}

// IsEnabled reports the chat.use_<f> toggle.
func IsEnabled(cfg configsvc.Aggregate, f Feature) bool {
	chat := cfg.ChatToggles()
	switch f {
	case FeatureGuard:
		return chat.UseGuard
	case FeatureContext:
		return chat.UseContext
	case FeatureRAG:
		return chat.UseRAG
	case FeatureScorer:
		return chat.UseScorer
	default:
		return false
	}
}

// IsActionable is HasPrerequisites and IsEnabled.
func IsActionable(cfg configsvc.Aggregate, f Feature) bool {
	return HasPrerequisites(cfg, f) && IsEnabled(cfg, f)
}

// LLMReady reports whether a provider and model are configured.
func LLMReady(cfg configsvc.Aggregate) bool {
	return MissingLLM(cfg) == ""
}

// MissingLLM names the missing generation settings, or "" when ready.
func MissingLLM(cfg configsvc.Aggregate) string {
	var parts []string
	if cfg.LLM == nil || strings.TrimSpace(string(cfg.LLM.Provider)) == "" {
		parts = append(parts, "provider")
	}
	if cfg.LLM == nil || strings.TrimSpace(cfg.LLM.Model) == "" {
		parts = append(parts, "model")
	}
	return strings.Join(parts, " and ")
}

// StatusOf evaluates one feature.
func StatusOf(cfg configsvc.Aggregate, f Feature) Status {
	miss := missing(cfg, f)
	enabled := IsEnabled(cfg, f)
	return Status{
		Feature:          f,
		HasPrerequisites: miss == "",
		Enabled:          enabled,
		Actionable:       miss == "" && enabled,
		Missing:          miss,
	}
}

// SkipFor returns the skip record for a stage that was selected but lacks
// prerequisites.
func SkipFor(cfg configsvc.Aggregate, f Feature) (Skip, bool) {
	miss := missing(cfg, f)
	if miss == "" {
		return Skip{}, false
	}
	return Skip{Stage: string(f), Reason: miss}, true
}

// Evaluate builds the advisory report shown next to the configuration.
func Evaluate(cfg configsvc.Aggregate) Report {
	report := Report{
		Features: make(map[Feature]Status, len(Features)),
		LLMReady: LLMReady(cfg),
	}
	for _, f := range Features {
		st := StatusOf(cfg, f)
		report.Features[f] = st
		if st.Enabled && !st.HasPrerequisites {
			report.Advisories = append(report.Advisories, fmt.Sprintf("%s is enabled but %s", f, st.Missing))
		}
	}
	if !report.LLMReady {
		report.Advisories = append(report.Advisories, "llm "+MissingLLM(cfg)+" not set")
	}
	if msg := schemaAdvisory(cfg.Guard); msg != "" {
		report.Advisories = append(report.Advisories, msg)
	}
	if msg := inputGuardAdvisory(cfg); msg != "" {
		report.Advisories = append(report.Advisories, msg)
	}
	return report
}

func missing(cfg configsvc.Aggregate, f Feature) string {
	switch f {
	case FeatureGuard:
		if cfg.Guard == nil || len(cfg.Guard.Validators) == 0 {
			return "no validators configured"
		}
		for _, b := range cfg.Guard.Validators {
			if strings.TrimSpace(b.Type) != "" {
				return ""
			}
		}
		return "no validators configured"
	case FeatureContext:
		if cfg.Context == nil {
			return "no keywords or approved contexts configured"
		}
		c := cfg.Context.WithDefaults()
		if len(c.Keywords) == 0 && len(c.ApprovedContexts) == 0 {
			return "no keywords or approved contexts configured"
		}
		return ""
	case FeatureRAG:
		if cfg.RAG == nil {
			return "no Q&A pairs or documents configured"
		}
		if cfg.RAG.Document != nil && strings.TrimSpace(cfg.RAG.Document.Name) != "" {
			return ""
		}
		for _, p := range cfg.RAG.QAPairs {
			if strings.TrimSpace(p.Question) != "" || strings.TrimSpace(p.Answer) != "" {
				return ""
			}
		}
		return "no Q&A pairs or documents configured"
	case FeatureScorer:
		if cfg.Scorer == nil || len(cfg.Scorer.WithDefaults().Metrics) == 0 {
			return "no metrics selected"
		}
		return ""
	default:
		return "unknown feature"
	}
}

func schemaAdvisory(g *configsvc.GuardConfig) string {
	if g == nil || g.Schema == nil || g.Schema.Kind != configsvc.SchemaJSONSchema {
		return ""
	}
	if strings.TrimSpace(g.Schema.Content) == "" {
		if g.Schema.File != nil {
			return ""
		}
		return "guard json schema is empty"
	}
	if _, err := schema.Compile("guard-output", []byte(g.Schema.Content)); err != nil {
		return fmt.Sprintf("guard json schema is invalid: %v", err)
	}
	return ""
}

// inputGuardAdvisory flags prompt-side validators that chat will not run.
func inputGuardAdvisory(cfg configsvc.Aggregate) string {
	if cfg.Guard == nil || cfg.ChatToggles().UseGuard {
		return ""
	}
	n := len(cfg.Guard.InputValidators())
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("guard has %d input validator(s) but chat.use_guard is off, so chat sends prompts unchecked", n)
}
