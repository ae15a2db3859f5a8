package client

import "github.com/cordum/playground/core/configsvc"

// Binding is the wire form of a validator binding. The service reads the
// target from "on".
type Binding struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
	OnFail string         `json:"on_fail"`
	On     string         `json:"on"`
}

// GuardPayload is the guard configuration forwarded with chat calls.
type GuardPayload struct {
	Validators []Binding `json:"validators"`
	NumReasks  int       `json:"num_reasks"`
	Name       string    `json:"name,omitempty"`
}

// BindingsFrom converts bindings to their wire form with defaults applied.
func BindingsFrom(bindings []configsvc.ValidatorBinding) []Binding {
	out := make([]Binding, 0, len(bindings))
	for _, b := range bindings {
		b = b.WithDefaults()
		out = append(out, Binding{
			Type:   b.Type,
			Params: b.Params,
			OnFail: string(b.OnFail),
			On:     string(b.AppliesTo),
		})
	}
	return out
}

// GuardPayloadFrom converts a guard config to its wire form.
func GuardPayloadFrom(g configsvc.GuardConfig) GuardPayload {
	g = g.WithDefaults()
	return GuardPayload{
		Validators: BindingsFrom(g.Validators),
		NumReasks:  g.NumReasks,
		Name:       g.Name,
	}
}

// GuardValidateRequest mirrors POST /api/guard/validate.
type GuardValidateRequest struct {
	Text       string    `json:"text"`
	GuardID    string    `json:"guard_id,omitempty"`
	Validators []Binding `json:"validators"`
	NumReasks  int       `json:"num_reasks"`
	Name       string    `json:"name,omitempty"`
}

// GuardResult is a guard validation outcome.
type GuardResult struct {
	rawBody          `json:"-"`
	ValidatedOutput  *string        `json:"validated_output"`
	RawOutput        string         `json:"raw_output"`
	ValidationPassed bool           `json:"validation_passed"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ContextCheckRequest mirrors POST /api/context/check.
type ContextCheckRequest struct {
	Text             string   `json:"text"`
	ContextID        string   `json:"context_id,omitempty"`
	Keywords         []string `json:"keywords"`
	ApprovedContexts []string `json:"approved_contexts"`
	Threshold        float64  `json:"threshold"`
}

// ImageContextRequest mirrors POST /api/context/check-image.
type ImageContextRequest struct {
	ImageBase64      string   `json:"image_base64"`
	MimeType         string   `json:"mime_type"`
	Filename         string   `json:"filename,omitempty"`
	ContextID        string   `json:"context_id,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	ApprovedContexts []string `json:"approved_contexts,omitempty"`
	Threshold        float64  `json:"threshold"`
}

// Similarity is one approved context scored against the input.
type Similarity struct {
	Context    string  `json:"context"`
	Similarity float64 `json:"similarity"`
}

// ContextResult is the outcome of a context check.
type ContextResult struct {
	rawBody       `json:"-"`
	IsValid       bool         `json:"is_valid"`
	Threshold     float64      `json:"threshold"`
	Similarities  []Similarity `json:"similarities,omitempty"`
	MaxSimilarity float64      `json:"max_similarity"`
}

// RAGRequest mirrors POST /api/rag/retrieve.
type RAGRequest struct {
	Query              string `json:"query"`
	RAGID              string `json:"rag_id,omitempty"`
	TopK               int    `json:"top_k"`
	CollectionName     string `json:"collection_name,omitempty"`
	EmbeddingProvider  string `json:"embedding_provider,omitempty"`
	EmbeddingModelName string `json:"embedding_model_name,omitempty"`
}

// RAGDocument is one retrieved document.
type RAGDocument struct {
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
	Distance float64        `json:"distance"`
}

// RAGResult is a retrieval outcome.
type RAGResult struct {
	rawBody `json:"-"`
	Query   string        `json:"query"`
	Results []RAGDocument `json:"results"`
	Count   int           `json:"count"`
}

// ScoreRequest mirrors POST /api/scorer/calculate.
type ScoreRequest struct {
	Response    string             `json:"response"`
	Reference   string             `json:"reference"`
	ScorerID    string             `json:"scorer_id,omitempty"`
	Metrics     []string           `json:"metrics,omitempty"`
	Threshold   float64            `json:"threshold"`
	Aggregation string             `json:"aggregation,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty"`
}

// ScoreResult carries per-metric and aggregated scores.
type ScoreResult struct {
	rawBody         `json:"-"`
	Response        string             `json:"response"`
	Reference       string             `json:"reference"`
	Scores          map[string]float64 `json:"scores"`
	AggregatedScore float64            `json:"aggregated_score"`
	Threshold       float64            `json:"threshold"`
	Passed          bool               `json:"passed"`
}

// ValidatorTestRequest mirrors POST /api/validators/test.
type ValidatorTestRequest struct {
	Text            string         `json:"text"`
	ValidatorType   string         `json:"validator_type"`
	ValidatorParams map[string]any `json:"validator_params"`
	OnFail          string         `json:"on_fail,omitempty"`
}

// ValidatorTestResult is the outcome of one validator run.
type ValidatorTestResult struct {
	rawBody      `json:"-"`
	Passed       bool           `json:"passed"`
	Result       string         `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ValidatorInfo describes one validator type the service offers.
type ValidatorInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ChatRequest mirrors POST /api/chat.
type ChatRequest struct {
	Prompt      string              `json:"prompt"`
	LLMConfig   configsvc.LLMConfig `json:"llm_config"`
	GuardConfig *GuardPayload       `json:"guard_config,omitempty"`
	GuardID     string              `json:"guard_id,omitempty"`
}

// ChatResponse is a generation outcome. OutputValidated is nil when no
// output validation ran.
type ChatResponse struct {
	rawBody                `json:"-"`
	Response               *string        `json:"response"`
	RawResponse            string         `json:"raw_response"`
	InputValidated         *bool          `json:"input_validated"`
	OutputValidated        *bool          `json:"output_validated"`
	InputValidationResult  map[string]any `json:"input_validation_result,omitempty"`
	OutputValidationResult map[string]any `json:"output_validation_result,omitempty"`
	Error                  string         `json:"error,omitempty"`
	ValidationStage        string         `json:"validation_stage,omitempty"`
}

// Text returns the validated answer, falling back to the raw response.
func (r ChatResponse) Text() string {
	if r.Response != nil {
		return *r.Response
	}
	return r.RawResponse
}

// TrackRequest mirrors POST /api/monitor/track.
type TrackRequest struct {
	Input    string         `json:"input"`
	Output   string         `json:"output"`
	Latency  float64        `json:"latency"`
	Metadata map[string]any `json:"metadata"`
}

// MonitorStats is the service's aggregate interaction statistics.
type MonitorStats struct {
	rawBody                `json:"-"`
	TotalInteractions      int            `json:"total_interactions"`
	SuccessfulInteractions int            `json:"successful_interactions"`
	FailedInteractions     int            `json:"failed_interactions"`
	SuccessRate            float64        `json:"success_rate"`
	AvgLatency             float64        `json:"avg_latency"`
	Errors                 map[string]int `json:"errors,omitempty"`
}

// ScorePoint is one plotted response.
type ScorePoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Label string  `json:"label"`
}

// VisualizationData is the data behind the visualization panel.
type VisualizationData struct {
	rawBody           `json:"-"`
	Scores            []ScorePoint       `json:"scores,omitempty"`
	ContextBoundaries map[string]float64 `json:"context_boundaries,omitempty"`
	WordFrequencies   map[string]int     `json:"word_frequencies,omitempty"`
}

// LLMDefaults are the generation settings the service derives from its
// environment.
type LLMDefaults struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// Health is the service liveness payload.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}
