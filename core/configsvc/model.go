package configsvc

import (
	"math"
	"strings"
)

// OnFail is the policy a guard applies when a validator fails.
type OnFail string

const (
	OnFailException OnFail = "exception"
	OnFailFilter    OnFail = "filter"
	OnFailRefrain   OnFail = "refrain"
	OnFailReask     OnFail = "reask"
	OnFailFix       OnFail = "fix"
	OnFailFixReask  OnFail = "fix_reask"
	OnFailNoop      OnFail = "noop"
)

// AppliesTo selects whether a validator runs on the prompt or the model output.
type AppliesTo string

const (
	AppliesToInput  AppliesTo = "input"
	AppliesToOutput AppliesTo = "output"
)

// SchemaKind describes the output schema attached to a guard.
type SchemaKind string

const (
	SchemaNone       SchemaKind = "none"
	SchemaPydantic   SchemaKind = "pydantic"
	SchemaRail       SchemaKind = "rail"
	SchemaJSONSchema SchemaKind = "json_schema"
)

// Aggregation is how the scorer folds per-metric scores into one value.
type Aggregation string

const (
	AggregationWeightedAverage Aggregation = "weighted_average"
	AggregationAverage         Aggregation = "average"
	AggregationMin             Aggregation = "min"
	AggregationMax             Aggregation = "max"
)

// Provider names the generation backend used by the remote service.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderCustom    Provider = "custom"
)

// InputType is the kind of input the chat surface accepts.
type InputType string

const (
	InputText InputType = "text"
	InputFile InputType = "file"
)

const (
	DefaultContextID         = "default"
	DefaultThreshold         = 0.7
	DefaultTopK              = 5
	DefaultCollectionName    = "playground_collection"
	DefaultEmbeddingProvider = "sentence-transformers"
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 1000
)

// Preferences is an open bag of presentation or telemetry settings that is
// forwarded as-is.
type Preferences map[string]any

// FileRef points at a file the operator attached. The core never reads it.
type FileRef struct {
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	MimeType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

// ValidatorBinding attaches one validator type to a guard.
type ValidatorBinding struct {
	Type      string         `json:"type" yaml:"type"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	OnFail    OnFail         `json:"on_fail,omitempty" yaml:"on_fail,omitempty"`
	AppliesTo AppliesTo      `json:"applies_to,omitempty" yaml:"applies_to,omitempty"`
}

// NewValidatorBinding returns a binding with the default failure policy and
// target filled in.
func NewValidatorBinding(validatorType string, params map[string]any) ValidatorBinding {
	return ValidatorBinding{
		Type:   strings.TrimSpace(validatorType),
		Params: params,
	}.WithDefaults()
}

// WithDefaults fills on_fail=exception and applies_to=output when absent.
func (b ValidatorBinding) WithDefaults() ValidatorBinding {
	if b.OnFail == "" {
		b.OnFail = OnFailException
	}
	if b.AppliesTo == "" {
		b.AppliesTo = AppliesToOutput
	}
	if b.Params == nil {
		b.Params = map[string]any{}
	}
	return b
}

// SchemaDescriptor is the output schema attached to a guard.
type SchemaDescriptor struct {
	Kind    SchemaKind `json:"kind" yaml:"kind"`
	Content string     `json:"content,omitempty" yaml:"content,omitempty"`
	File    *FileRef   `json:"file,omitempty" yaml:"file,omitempty"`
}

// GuardConfig is the ordered validator list forwarded to chat and guard calls.
type GuardConfig struct {
	Validators []ValidatorBinding `json:"validators,omitempty" yaml:"validators,omitempty"`
	NumReasks  int                `json:"num_reasks,omitempty" yaml:"num_reasks,omitempty"`
	Name       string             `json:"name,omitempty" yaml:"name,omitempty"`
	Logger     Preferences        `json:"logger,omitempty" yaml:"logger,omitempty"`
	Schema     *SchemaDescriptor  `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// WithDefaults normalizes bindings and clamps the reask count.
func (g GuardConfig) WithDefaults() GuardConfig {
	if g.NumReasks < 0 {
		g.NumReasks = 0
	}
	if len(g.Validators) > 0 {
		out := make([]ValidatorBinding, 0, len(g.Validators))
		for _, b := range g.Validators {
			out = append(out, b.WithDefaults())
		}
		g.Validators = out
	}
	return g
}

// InputValidators returns the bindings that run on the prompt.
func (g GuardConfig) InputValidators() []ValidatorBinding {
	var out []ValidatorBinding
	for _, b := range g.WithDefaults().Validators {
		if b.AppliesTo == AppliesToInput {
			out = append(out, b)
		}
	}
	return out
}

// ContextConfig bounds the topics the pipeline accepts.
type ContextConfig struct {
	ContextID        string   `json:"context_id,omitempty" yaml:"context_id,omitempty"`
	Keywords         []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	ApprovedContexts []string `json:"approved_contexts,omitempty" yaml:"approved_contexts,omitempty"`
	Threshold        *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	File             *FileRef `json:"file,omitempty" yaml:"file,omitempty"`
}

// NewContextConfig builds a context config with keywords deduplicated. A nil
// threshold takes the default.
func NewContextConfig(keywords, approved []string, threshold *float64) ContextConfig {
	return ContextConfig{
		Keywords:         keywords,
		ApprovedContexts: approved,
		Threshold:        threshold,
	}.WithDefaults()
}

// WithDefaults dedupes keywords and fills the id and threshold. An unset
// threshold takes the default; a set one is clamped to [0,1].
func (c ContextConfig) WithDefaults() ContextConfig {
	if strings.TrimSpace(c.ContextID) == "" {
		c.ContextID = DefaultContextID
	}
	c.Threshold = unitOrDefault(c.Threshold)
	c.Keywords = orderedSet(c.Keywords)
	c.ApprovedContexts = nonEmpty(c.ApprovedContexts)
	return c
}

// ThresholdValue is the similarity cut-off, or the default when unset.
func (c ContextConfig) ThresholdValue() float64 {
	if c.Threshold == nil {
		return DefaultThreshold
	}
	return *c.Threshold
}

// QAPair is one question/answer seed document for retrieval.
type QAPair struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// RAGConfig configures knowledge retrieval.
type RAGConfig struct {
	RAGID              string   `json:"rag_id,omitempty" yaml:"rag_id,omitempty"`
	TopK               int      `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	CollectionName     string   `json:"collection_name,omitempty" yaml:"collection_name,omitempty"`
	EmbeddingProvider  string   `json:"embedding_provider,omitempty" yaml:"embedding_provider,omitempty"`
	EmbeddingModelName string   `json:"embedding_model_name,omitempty" yaml:"embedding_model_name,omitempty"`
	PersistDirectory   string   `json:"persist_directory,omitempty" yaml:"persist_directory,omitempty"`
	HybridSearch       bool     `json:"hybrid_search,omitempty" yaml:"hybrid_search,omitempty"`
	Document           *FileRef `json:"document,omitempty" yaml:"document,omitempty"`
	QAPairs            []QAPair `json:"qa_pairs,omitempty" yaml:"qa_pairs,omitempty"`
}

// NewRAGConfig builds a retrieval config seeded with Q&A pairs.
func NewRAGConfig(pairs ...QAPair) RAGConfig {
	return RAGConfig{QAPairs: pairs}.WithDefaults()
}

func (r RAGConfig) WithDefaults() RAGConfig {
	if strings.TrimSpace(r.RAGID) == "" {
		r.RAGID = DefaultContextID
	}
	if r.TopK < 1 {
		r.TopK = DefaultTopK
	}
	if strings.TrimSpace(r.CollectionName) == "" {
		r.CollectionName = DefaultCollectionName
	}
	if strings.TrimSpace(r.EmbeddingProvider) == "" {
		r.EmbeddingProvider = DefaultEmbeddingProvider
	}
	return r
}

// ScorerConfig selects quality metrics.
type ScorerConfig struct {
	ScorerID    string             `json:"scorer_id,omitempty" yaml:"scorer_id,omitempty"`
	Metrics     []string           `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Threshold   *float64           `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Aggregation Aggregation        `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// NewScorerConfig builds a scorer config over the given metrics.
func NewScorerConfig(metrics ...string) ScorerConfig {
	return ScorerConfig{Metrics: metrics}.WithDefaults()
}

func (s ScorerConfig) WithDefaults() ScorerConfig {
	if strings.TrimSpace(s.ScorerID) == "" {
		s.ScorerID = DefaultContextID
	}
	s.Threshold = unitOrDefault(s.Threshold)
	switch s.Aggregation {
	case AggregationWeightedAverage, AggregationAverage, AggregationMin, AggregationMax:
	default:
		s.Aggregation = AggregationWeightedAverage
	}
	s.Metrics = orderedSet(s.Metrics)
	return s
}

// ThresholdValue is the pass mark for the aggregate score, or the default
// when unset.
func (s ScorerConfig) ThresholdValue() float64 {
	if s.Threshold == nil {
		return DefaultThreshold
	}
	return *s.Threshold
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 { return &v }

func unitOrDefault(v *float64) *float64 {
	if v == nil {
		return Float(DefaultThreshold)
	}
	return Float(math.Min(1, math.Max(0, *v)))
}

// ValidatorConfig is the single ad-hoc validator exercised by the validators tool.
type ValidatorConfig struct {
	ValidatorType   string         `json:"validator_type,omitempty" yaml:"validator_type,omitempty"`
	ValidatorParams map[string]any `json:"validator_params,omitempty" yaml:"validator_params,omitempty"`
	OnFail          OnFail         `json:"on_fail,omitempty" yaml:"on_fail,omitempty"`
}

func (v ValidatorConfig) WithDefaults() ValidatorConfig {
	if v.OnFail == "" {
		v.OnFail = OnFailException
	}
	if v.ValidatorParams == nil {
		v.ValidatorParams = map[string]any{}
	}
	return v
}

// LLMConfig holds the base generation settings.
type LLMConfig struct {
	Provider    Provider `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey      string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Streaming   bool     `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	AsyncMode   bool     `json:"async_mode,omitempty" yaml:"async_mode,omitempty"`
}

// NewLLMConfig builds generation settings with the default sampling values.
func NewLLMConfig(provider Provider, model string) LLMConfig {
	return LLMConfig{Provider: provider, Model: strings.TrimSpace(model)}.WithDefaults()
}

func (l LLMConfig) WithDefaults() LLMConfig {
	if l.Temperature == nil {
		t := DefaultTemperature
		l.Temperature = &t
	}
	if l.MaxTokens == nil {
		n := DefaultMaxTokens
		l.MaxTokens = &n
	}
	return l
}

// ChatConfig toggles the stages the chat tool runs.
type ChatConfig struct {
	UseGuard   bool      `json:"use_guard,omitempty" yaml:"use_guard,omitempty"`
	UseContext bool      `json:"use_context,omitempty" yaml:"use_context,omitempty"`
	UseRAG     bool      `json:"use_rag,omitempty" yaml:"use_rag,omitempty"`
	UseScorer  bool      `json:"use_scorer,omitempty" yaml:"use_scorer,omitempty"`
	InputType  InputType `json:"input_type,omitempty" yaml:"input_type,omitempty"`
}

func (c ChatConfig) WithDefaults() ChatConfig {
	if c.InputType != InputFile {
		c.InputType = InputText
	}
	return c
}

// Aggregate is the whole playground configuration. Every sub-config is
// optional; nil means not yet configured.
type Aggregate struct {
	Guard         *GuardConfig     `json:"guard,omitempty" yaml:"guard,omitempty"`
	Context       *ContextConfig   `json:"context,omitempty" yaml:"context,omitempty"`
	RAG           *RAGConfig       `json:"rag,omitempty" yaml:"rag,omitempty"`
	Scorer        *ScorerConfig    `json:"scorer,omitempty" yaml:"scorer,omitempty"`
	Validator     *ValidatorConfig `json:"validator,omitempty" yaml:"validator,omitempty"`
	Logger        Preferences      `json:"logger,omitempty" yaml:"logger,omitempty"`
	Monitor       Preferences      `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Visualization Preferences      `json:"visualization,omitempty" yaml:"visualization,omitempty"`
	LLM           *LLMConfig       `json:"llm,omitempty" yaml:"llm,omitempty"`
	Chat          *ChatConfig      `json:"chat,omitempty" yaml:"chat,omitempty"`
}

// Defaults returns the aggregate a new session starts with.
func Defaults() Aggregate {
	llm := LLMConfig{}.WithDefaults()
	chat := ChatConfig{}.WithDefaults()
	return Aggregate{
		LLM:  &llm,
		Chat: &chat,
	}
}

// ChatToggles returns the chat toggles, or the zero toggles when absent.
func (a Aggregate) ChatToggles() ChatConfig {
	if a.Chat == nil {
		return ChatConfig{}.WithDefaults()
	}
	return a.Chat.WithDefaults()
}

func orderedSet(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonEmpty(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
