package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/bus"
	"github.com/cordum/playground/core/infra/locks"
	"github.com/cordum/playground/core/pipeline"
	"github.com/cordum/playground/sdk/client"
)

type stubGateway struct {
	mu      sync.Mutex
	tracked int
}

func (g *stubGateway) CheckContext(context.Context, client.ContextCheckRequest) (*client.ContextResult, error) {
	return &client.ContextResult{IsValid: true, MaxSimilarity: 0.9, Threshold: 0.7}, nil
}

func (g *stubGateway) CheckImageContext(context.Context, client.ImageContextRequest) (*client.ContextResult, error) {
	return &client.ContextResult{IsValid: true}, nil
}

func (g *stubGateway) RetrieveRAG(context.Context, client.RAGRequest) (*client.RAGResult, error) {
	return &client.RAGResult{}, nil
}

func (g *stubGateway) CalculateScores(context.Context, client.ScoreRequest) (*client.ScoreResult, error) {
	return &client.ScoreResult{}, nil
}

func (g *stubGateway) TestValidator(context.Context, client.ValidatorTestRequest) (*client.ValidatorTestResult, error) {
	return &client.ValidatorTestResult{Passed: true}, nil
}

func (g *stubGateway) Chat(context.Context, client.ChatRequest) (*client.ChatResponse, error) {
	return &client.ChatResponse{RawResponse: "hi"}, nil
}

func (g *stubGateway) TrackInteraction(context.Context, client.TrackRequest) error {
	g.mu.Lock()
	g.tracked++
	g.mu.Unlock()
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
	err    error
}

func (p *recordingPublisher) Publish(ev bus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type countingSessionMetrics struct {
	mu      sync.Mutex
	active  int
	evicted int
}

func (c *countingSessionMetrics) SetActiveSessions(n int) {
	c.mu.Lock()
	c.active = n
	c.mu.Unlock()
}

func (c *countingSessionMetrics) IncSessionsEvicted() {
	c.mu.Lock()
	c.evicted++
	c.mu.Unlock()
}

func (c *countingSessionMetrics) snapshot() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.evicted
}

func TestCreateGetDelete(t *testing.T) {
	sm := &countingSessionMetrics{}
	m := NewManager(Options{Gateway: &stubGateway{}, SessionMetrics: sm})
	defer m.Close()

	s := m.Create()
	if s.ID() == "" || s.Config().Version != 1 {
		t.Fatalf("unexpected session: %s %d", s.ID(), s.Config().Version)
	}
	if tool, _ := s.Tool(); tool != pipeline.ToolChat {
		t.Fatalf("expected chat as default tool, got %s", tool)
	}
	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("get: %v", err)
	}
	if active, _ := sm.snapshot(); active != 1 || m.Len() != 1 {
		t.Fatalf("expected one active session, got %d", active)
	}

	if err := m.Delete(s.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Delete(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if active, evicted := sm.snapshot(); active != 0 || evicted != 0 {
		t.Fatalf("explicit delete must not count as eviction: %d %d", active, evicted)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	sm := &countingSessionMetrics{}
	m := NewManager(Options{Gateway: &stubGateway{}, MaxSessions: 2, SessionMetrics: sm})
	defer m.Close()

	first := m.Create()
	second := m.Create()
	if _, err := m.Get(first.ID()); err != nil {
		t.Fatalf("get first: %v", err)
	}
	m.Create()

	if _, err := m.Get(second.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected least recently used session evicted")
	}
	if _, err := m.Get(first.ID()); err != nil {
		t.Fatalf("recently used session should survive: %v", err)
	}
	if active, evicted := sm.snapshot(); active != 2 || evicted != 1 {
		t.Fatalf("unexpected metrics: active=%d evicted=%d", active, evicted)
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	m := NewManager(Options{Gateway: &stubGateway{}, TTL: 50 * time.Millisecond})
	defer m.Close()
	s := m.Create()
	time.Sleep(120 * time.Millisecond)
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestCreateFromPreset(t *testing.T) {
	m := NewManager(Options{Gateway: &stubGateway{}})
	defer m.Close()
	ctx := configsvc.NewContextConfig([]string{"diabetes"}, nil, configsvc.Float(0.8))
	s := m.CreateFrom(configsvc.Aggregate{Context: &ctx}, "context-manager")
	if tool, _ := s.Tool(); tool != pipeline.ToolContextManager {
		t.Fatalf("unexpected tool: %s", tool)
	}
	if s.Config().Config.Context.ThresholdValue() != 0.8 {
		t.Fatalf("expected preset config")
	}
	st := s.Readiness().Features["context"]
	if !st.HasPrerequisites || st.Enabled {
		t.Fatalf("unexpected readiness: %#v", st)
	}
}

func TestInitialBuilderIsUsed(t *testing.T) {
	calls := 0
	m := NewManager(Options{Gateway: &stubGateway{}, Initial: func() configsvc.Aggregate {
		calls++
		llm := configsvc.NewLLMConfig(configsvc.ProviderOpenAI, "gpt-4o")
		return configsvc.Aggregate{LLM: &llm}
	}})
	defer m.Close()
	s := m.Create()
	if calls != 1 || s.Config().Config.LLM.Model != "gpt-4o" || !s.Readiness().LLMReady {
		t.Fatalf("expected initial builder to seed the session")
	}
}

func TestSessionEvents(t *testing.T) {
	pub := &recordingPublisher{}
	gw := &stubGateway{}
	m := NewManager(Options{Gateway: gw, Publisher: pub})
	s := m.Create()

	var mu sync.Mutex
	var local []bus.Event
	cancel := s.Subscribe(func(ev bus.Event) {
		mu.Lock()
		local = append(local, ev)
		mu.Unlock()
	})

	s.UpdateConfig(configsvc.Aggregate{Chat: &configsvc.ChatConfig{UseGuard: true}})
	s.SetTool("context-manager")
	if _, err := s.Submit(context.Background(), "diabetes"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.Reset()
	cancel()
	s.SetTool("rag")

	mu.Lock()
	localCount := len(local)
	cfgEvent := local[0]
	mu.Unlock()
	if localCount != 5 {
		t.Fatalf("expected 5 local events, got %d", localCount)
	}
	payload, ok := cfgEvent.Data.(ConfigEvent)
	if !ok || payload.Snapshot.Version != 2 || !payload.Readiness.Features["guard"].Enabled {
		t.Fatalf("unexpected config event: %#v", cfgEvent)
	}
	if cfgEvent.SessionID != s.ID() || cfgEvent.ID == "" {
		t.Fatalf("event missing identity: %#v", cfgEvent)
	}

	m.Close()
	want := []string{"config", "tool", "transcript", "transcript", "reset", "tool", "closed"}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("unexpected published events: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected published events: %v", got)
		}
	}
	if len(s.Transcript()) != 0 {
		t.Fatalf("expected reset transcript")
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.tracked != 1 {
		t.Fatalf("expected tracking to finish before close returned, got %d", gw.tracked)
	}
}

func TestPublishFailureDoesNotBreakSession(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	m := NewManager(Options{Gateway: &stubGateway{}, Publisher: pub})
	defer m.Close()
	s := m.Create()
	if snap := s.UpdateConfig(configsvc.Aggregate{Monitor: configsvc.Preferences{"enabled": true}}); snap.Version != 2 {
		t.Fatalf("unexpected version: %d", snap.Version)
	}
}

func TestSessionsShareGuardLocks(t *testing.T) {
	store := locks.NewMemoryStore()
	m := NewManager(Options{Gateway: &stubGateway{}, Locks: store, LockWait: 50 * time.Millisecond})
	defer m.Close()

	llm := configsvc.NewLLMConfig(configsvc.ProviderOpenAI, "gpt-4o")
	guard := configsvc.GuardConfig{Validators: []configsvc.ValidatorBinding{configsvc.NewValidatorBinding("toxic", nil)}}
	s := m.CreateFrom(configsvc.Aggregate{LLM: &llm, Guard: &guard}, "guard")
	other := m.CreateFrom(configsvc.Aggregate{LLM: &llm}, "guard")

	resource := "guard:" + configsvc.GuardID(guard)
	if _, ok, err := store.Acquire(context.Background(), resource, "other-replica", time.Minute); err != nil || !ok {
		t.Fatalf("acquire: %v", err)
	}
	res, err := s.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome != pipeline.OutcomeError || len(s.Transcript()) != 2 {
		t.Fatalf("expected busy guard entry, got %#v", res)
	}
	if res, _ := other.Submit(context.Background(), "hello"); res.Outcome != pipeline.OutcomeSuccess {
		t.Fatalf("a session without that guard must not wait: %#v", res)
	}
}
