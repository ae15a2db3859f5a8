package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/readiness"
	"github.com/cordum/playground/core/transcript"
	"github.com/cordum/playground/sdk/client"
)

// chat serves the guard and chat tools; the LLM check already passed. The
// guard config is forwarded when the guard stage is selected and has
// validators. The chat tool also runs
// the context, retrieval and scoring stages that are actionable.
func (d *Dispatcher) chat(ctx context.Context, run *submission, input string) reply {
	cfg := run.snapshot.Config
	var skipped []readiness.Skip
	meta := map[string]any{}

	if run.tool == ToolChat && readiness.IsEnabled(cfg, readiness.FeatureContext) {
		if skip, ok := readiness.SkipFor(cfg, readiness.FeatureContext); ok {
			skipped = append(skipped, skip)
		} else {
			c := contextOrDefault(cfg)
			res, err := d.checkText(ctx, run, input, c)
			if err != nil {
				return failure(err)
			}
			meta["context_check"] = res.Fields
			if !res.IsValid {
				rep := contextReply(res, c.ThresholdValue())
				rep.meta = withSkips(meta, skipped)
				return rep
			}
		}
	}

	prompt := input
	var docs []client.RAGDocument
	if run.tool == ToolChat && readiness.IsEnabled(cfg, readiness.FeatureRAG) {
		if skip, ok := readiness.SkipFor(cfg, readiness.FeatureRAG); ok {
			skipped = append(skipped, skip)
		} else {
			res, err := d.retrieveDocs(ctx, run, input, ragOrDefault(cfg))
			if err != nil {
				return failure(err)
			}
			docs = res.Results
			meta["retrieved"] = len(docs)
			prompt = withReferences(input, docs)
		}
	}

	guardSelected := run.tool == ToolGuard || readiness.IsEnabled(cfg, readiness.FeatureGuard)
	req := client.ChatRequest{Prompt: prompt, LLMConfig: cfg.LLM.WithDefaults()}
	if guardSelected {
		if skip, ok := readiness.SkipFor(cfg, readiness.FeatureGuard); ok {
			skipped = append(skipped, skip)
		} else {
			payload := client.GuardPayloadFrom(*cfg.Guard)
			req.GuardConfig = &payload
			req.GuardID = configsvc.GuardID(*cfg.Guard)
			meta["guard_id"] = req.GuardID
		}
	}

	release, err := d.holdGuard(ctx, req.GuardID)
	if err != nil {
		return failure(err)
	}
	var resp *client.ChatResponse
	err = d.observe(run, client.OpChat, func() (err error) {
		resp, err = d.gw.Chat(ctx, req)
		return err
	})
	release()
	if err != nil {
		return failure(err)
	}
	meta["response"] = resp.Fields
	rep := chatReply(resp)
	if rep.outcome == OutcomeSuccess && run.tool == ToolChat && readiness.IsEnabled(cfg, readiness.FeatureScorer) {
		if skip, ok := readiness.SkipFor(cfg, readiness.FeatureScorer); ok {
			skipped = append(skipped, skip)
		} else if len(docs) == 0 {
			skipped = append(skipped, readiness.Skip{Stage: string(readiness.FeatureScorer), Reason: "no retrieved document to score against"})
		} else {
			score, err := d.scoreAgainst(ctx, run, rep.content, docs[0].Document, scorerOrDefault(cfg))
			if err != nil {
				skipped = append(skipped, readiness.Skip{Stage: string(readiness.FeatureScorer), Reason: err.Error()})
			} else {
				meta["scores"] = score.Fields
				rep.content += fmt.Sprintf("\n\nQuality score: %.3f (%s)", score.AggregatedScore, passLabel(score.Passed))
			}
		}
	}
	rep.meta = withSkips(meta, skipped)
	return rep
}

func chatReply(resp *client.ChatResponse) reply {
	if resp.InputValidated != nil && !*resp.InputValidated {
		return reply{
			role:    transcript.RoleSystem,
			content: "Input blocked: " + ExtractError(resp.Fields, FallbackValidation),
			outcome: OutcomeInputBlocked,
		}
	}
	if resp.OutputValidated != nil && !*resp.OutputValidated {
		content := "Output blocked: " + extractOutputError(resp.OutputValidationResult, resp.Fields)
		if raw := strings.TrimSpace(resp.RawResponse); raw != "" {
			content += "\n\nRaw response preview: " + Truncate(raw, rawPreviewLimit)
		}
		return reply{role: transcript.RoleSystem, content: content, outcome: OutcomeOutputBlocked}
	}
	if resp.Response == nil && resp.RawResponse == "" && strings.TrimSpace(resp.Error) != "" {
		return reply{role: transcript.RoleSystem, content: ErrorPrefix + resp.Error, outcome: OutcomeError}
	}
	return reply{role: transcript.RoleAssistant, content: resp.Text(), outcome: OutcomeSuccess, passed: true}
}

func (d *Dispatcher) contextCheck(ctx context.Context, run *submission, input string) reply {
	c := contextOrDefault(run.snapshot.Config)
	res, err := d.checkText(ctx, run, input, c)
	if err != nil {
		return failure(err)
	}
	rep := contextReply(res, c.ThresholdValue())
	rep.meta = map[string]any{"response": res.Fields}
	return rep
}

func (d *Dispatcher) checkText(ctx context.Context, run *submission, input string, c configsvc.ContextConfig) (*client.ContextResult, error) {
	req := client.ContextCheckRequest{
		Text:             input,
		ContextID:        c.ContextID,
		Keywords:         c.Keywords,
		ApprovedContexts: c.ApprovedContexts,
		Threshold:        c.ThresholdValue(),
	}
	var res *client.ContextResult
	err := d.observe(run, client.OpCheckContext, func() (err error) {
		res, err = d.gw.CheckContext(ctx, req)
		return err
	})
	return res, err
}

func contextReply(res *client.ContextResult, threshold float64) reply {
	if res.Threshold > 0 {
		threshold = res.Threshold
	}
	if res.IsValid {
		return reply{
			role:    transcript.RoleAssistant,
			content: fmt.Sprintf("Context check passed: similarity %.3f meets threshold %.3f", res.MaxSimilarity, threshold),
			outcome: OutcomeSuccess,
			passed:  true,
		}
	}
	return reply{
		role:    transcript.RoleSystem,
		content: fmt.Sprintf("Context check failed: similarity %.3f is below threshold %.3f", res.MaxSimilarity, threshold),
		outcome: OutcomeBlocked,
	}
}

func (d *Dispatcher) retrieve(ctx context.Context, run *submission, input string) reply {
	r := ragOrDefault(run.snapshot.Config)
	res, err := d.retrieveDocs(ctx, run, input, r)
	if err != nil {
		return failure(err)
	}
	meta := map[string]any{"response": res.Fields}
	if len(res.Results) == 0 {
		return reply{role: transcript.RoleAssistant, content: "No documents retrieved.", outcome: OutcomeSuccess, passed: true, meta: meta}
	}
	docs := res.Results
	if len(docs) > r.TopK {
		docs = docs[:r.TopK]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Retrieved %d document(s):", len(docs))
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n%d. %s (score %.3f)", i+1, Truncate(oneLine(doc.Document), ragItemLimit), doc.Score)
	}
	return reply{role: transcript.RoleAssistant, content: b.String(), outcome: OutcomeSuccess, passed: true, meta: meta}
}

func (d *Dispatcher) retrieveDocs(ctx context.Context, run *submission, query string, r configsvc.RAGConfig) (*client.RAGResult, error) {
	req := client.RAGRequest{
		Query:              query,
		RAGID:              r.RAGID,
		TopK:               r.TopK,
		CollectionName:     r.CollectionName,
		EmbeddingProvider:  r.EmbeddingProvider,
		EmbeddingModelName: r.EmbeddingModelName,
	}
	var res *client.RAGResult
	err := d.observe(run, client.OpRetrieveRAG, func() (err error) {
		res, err = d.gw.RetrieveRAG(ctx, req)
		return err
	})
	return res, err
}

func (d *Dispatcher) score(ctx context.Context, run *submission, input string) reply {
	prior, ok := d.transcript.LastByRole(transcript.RoleAssistant)
	if !ok {
		return missingConfig("Scorer needs a reference: get an assistant reply from another tool first, then send the response to score against it.")
	}
	res, err := d.scoreAgainst(ctx, run, input, prior.Content, scorerOrDefault(run.snapshot.Config))
	if err != nil {
		return failure(err)
	}
	names := make([]string, 0, len(res.Scores))
	for name := range res.Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Scores:")
	for _, name := range names {
		fmt.Fprintf(&b, "\n- %s: %.3f", name, res.Scores[name])
	}
	fmt.Fprintf(&b, "\nAggregated score: %.3f (threshold %.3f, %s)", res.AggregatedScore, res.Threshold, passLabel(res.Passed))
	return reply{
		role:    transcript.RoleAssistant,
		content: b.String(),
		outcome: OutcomeSuccess,
		passed:  res.Passed,
		meta:    map[string]any{"response": res.Fields, "reference_id": prior.ID},
	}
}

func (d *Dispatcher) scoreAgainst(ctx context.Context, run *submission, response, reference string, s configsvc.ScorerConfig) (*client.ScoreResult, error) {
	req := client.ScoreRequest{
		Response:    response,
		Reference:   reference,
		ScorerID:    s.ScorerID,
		Metrics:     s.Metrics,
		Threshold:   s.ThresholdValue(),
		Aggregation: string(s.Aggregation),
		Weights:     s.Weights,
	}
	var res *client.ScoreResult
	err := d.observe(run, client.OpCalculateScores, func() (err error) {
		res, err = d.gw.CalculateScores(ctx, req)
		return err
	})
	return res, err
}

func (d *Dispatcher) testValidator(ctx context.Context, run *submission, input string) reply {
	cfg := run.snapshot.Config
	if cfg.Validator == nil || strings.TrimSpace(cfg.Validator.ValidatorType) == "" {
		return missingConfig("Validator configuration missing: choose a validator type before testing.")
	}
	v := cfg.Validator.WithDefaults()
	req := client.ValidatorTestRequest{
		Text:            input,
		ValidatorType:   v.ValidatorType,
		ValidatorParams: v.ValidatorParams,
		OnFail:          string(v.OnFail),
	}
	var res *client.ValidatorTestResult
	err := d.observe(run, client.OpTestValidator, func() (err error) {
		res, err = d.gw.TestValidator(ctx, req)
		return err
	})
	if err != nil {
		return failure(err)
	}
	meta := map[string]any{"response": res.Fields}
	if res.Passed {
		return reply{
			role:    transcript.RoleAssistant,
			content: fmt.Sprintf("Validator %s passed.", v.ValidatorType),
			outcome: OutcomeSuccess,
			passed:  true,
			meta:    meta,
		}
	}
	msg := strings.TrimSpace(res.ErrorMessage)
	if msg == "" {
		msg = strings.TrimSpace(res.Error)
	}
	if msg == "" {
		msg = FallbackValidation
	}
	return reply{
		role:    transcript.RoleSystem,
		content: fmt.Sprintf("Validator %s failed: %s", v.ValidatorType, msg),
		outcome: OutcomeBlocked,
		meta:    meta,
	}
}

func contextOrDefault(cfg configsvc.Aggregate) configsvc.ContextConfig {
	if cfg.Context == nil {
		return configsvc.ContextConfig{}.WithDefaults()
	}
	return cfg.Context.WithDefaults()
}

func ragOrDefault(cfg configsvc.Aggregate) configsvc.RAGConfig {
	if cfg.RAG == nil {
		return configsvc.RAGConfig{}.WithDefaults()
	}
	return cfg.RAG.WithDefaults()
}

func scorerOrDefault(cfg configsvc.Aggregate) configsvc.ScorerConfig {
	if cfg.Scorer == nil {
		return configsvc.ScorerConfig{}.WithDefaults()
	}
	return cfg.Scorer.WithDefaults()
}

func withReferences(prompt string, docs []client.RAGDocument) string {
	if len(docs) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Use the following reference material when answering.\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, strings.TrimSpace(doc.Document))
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(prompt)
	return b.String()
}

func withSkips(meta map[string]any, skipped []readiness.Skip) map[string]any {
	if len(skipped) == 0 {
		return meta
	}
	list := make([]any, 0, len(skipped))
	for _, s := range skipped {
		list = append(list, map[string]any{"stage": s.Stage, "reason": s.Reason})
	}
	meta["skipped_stages"] = list
	return meta
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
