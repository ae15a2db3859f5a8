package client

import (
	"context"
	"net/http"
)

// Operation names used in errors and metrics.
const (
	OpValidateGuard          = "validate guard"
	OpCheckContext           = "context check"
	OpCheckImageContext      = "image context check"
	OpRetrieveRAG            = "rag retrieval"
	OpCalculateScores        = "score calculation"
	OpTestValidator          = "validator test"
	OpListValidators         = "list validators"
	OpChat                   = "chat"
	OpTrackInteraction       = "track interaction"
	OpFetchMonitorStats      = "monitor stats"
	OpFetchVisualizationData = "visualization data"
	OpFetchLLMDefaults       = "llm defaults"
	OpHealth                 = "health"
)

// ValidateGuard runs a guard over text.
func (c *Client) ValidateGuard(ctx context.Context, req GuardValidateRequest) (*GuardResult, error) {
	if req.Validators == nil {
		req.Validators = []Binding{}
	}
	var out GuardResult
	if err := c.doJSON(ctx, OpValidateGuard, http.MethodPost, "/api/guard/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckContext scores text against the approved contexts.
func (c *Client) CheckContext(ctx context.Context, req ContextCheckRequest) (*ContextResult, error) {
	if req.Keywords == nil {
		req.Keywords = []string{}
	}
	if req.ApprovedContexts == nil {
		req.ApprovedContexts = []string{}
	}
	var out ContextResult
	if err := c.doJSON(ctx, OpCheckContext, http.MethodPost, "/api/context/check", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckImageContext scores an image against the approved contexts.
func (c *Client) CheckImageContext(ctx context.Context, req ImageContextRequest) (*ContextResult, error) {
	var out ContextResult
	if err := c.doJSON(ctx, OpCheckImageContext, http.MethodPost, "/api/context/check-image", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveRAG retrieves documents for a query.
func (c *Client) RetrieveRAG(ctx context.Context, req RAGRequest) (*RAGResult, error) {
	var out RAGResult
	if err := c.doJSON(ctx, OpRetrieveRAG, http.MethodPost, "/api/rag/retrieve", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CalculateScores scores a response against a reference.
func (c *Client) CalculateScores(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	var out ScoreResult
	if err := c.doJSON(ctx, OpCalculateScores, http.MethodPost, "/api/scorer/calculate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestValidator runs a single validator over text.
func (c *Client) TestValidator(ctx context.Context, req ValidatorTestRequest) (*ValidatorTestResult, error) {
	if req.ValidatorParams == nil {
		req.ValidatorParams = map[string]any{}
	}
	var out ValidatorTestResult
	if err := c.doJSON(ctx, OpTestValidator, http.MethodPost, "/api/validators/test", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListValidators returns the validator types the service offers. Results are
// cached for a short ttl and concurrent callers share one request.
func (c *Client) ListValidators(ctx context.Context) ([]ValidatorInfo, error) {
	if c.validators != nil {
		if cached, ok := c.validators.Get(validatorCacheKey); ok {
			return append([]ValidatorInfo(nil), cached...), nil
		}
	}
	v, err, _ := c.group.Do(validatorCacheKey, func() (any, error) {
		var out struct {
			Validators []ValidatorInfo `json:"validators"`
		}
		if err := c.doJSON(ctx, OpListValidators, http.MethodGet, "/api/validators/list", nil, &out); err != nil {
			return nil, err
		}
		if out.Validators == nil {
			out.Validators = []ValidatorInfo{}
		}
		if c.validators != nil {
			c.validators.Add(validatorCacheKey, out.Validators)
		}
		return out.Validators, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]ValidatorInfo(nil), v.([]ValidatorInfo)...), nil
}

// InvalidateValidators drops the cached validator list.
func (c *Client) InvalidateValidators() {
	if c.validators != nil {
		c.validators.Remove(validatorCacheKey)
	}
}

// Chat generates a response, validating input and output when a guard is
// attached.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.doJSON(ctx, OpChat, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackInteraction records one interaction with the monitor.
func (c *Client) TrackInteraction(ctx context.Context, req TrackRequest) error {
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	return c.doJSON(ctx, OpTrackInteraction, http.MethodPost, "/api/monitor/track", req, nil)
}

// FetchMonitorStats returns aggregate interaction statistics.
func (c *Client) FetchMonitorStats(ctx context.Context) (*MonitorStats, error) {
	var out MonitorStats
	if err := c.doJSON(ctx, OpFetchMonitorStats, http.MethodGet, "/api/monitor/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchVisualizationData returns the data behind the visualization panel.
func (c *Client) FetchVisualizationData(ctx context.Context) (*VisualizationData, error) {
	var out VisualizationData
	if err := c.doJSON(ctx, OpFetchVisualizationData, http.MethodGet, "/api/visualization/data", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchLLMDefaults returns the generation settings the service derives from
// its environment.
func (c *Client) FetchLLMDefaults(ctx context.Context) (*LLMDefaults, error) {
	var out LLMDefaults
	if err := c.doJSON(ctx, OpFetchLLMDefaults, http.MethodGet, "/api/config/llm", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, OpHealth, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
