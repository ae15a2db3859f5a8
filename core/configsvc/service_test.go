package configsvc

import (
	"reflect"
	"testing"
)

func ptrGuard(types ...string) *GuardConfig {
	g := &GuardConfig{Name: "g"}
	for _, typ := range types {
		g.Validators = append(g.Validators, NewValidatorBinding(typ, nil))
	}
	return g
}

func TestUpdatePreservesSiblings(t *testing.T) {
	store := NewStore(Defaults())
	store.Update(Aggregate{Context: &ContextConfig{Keywords: []string{"diabetes"}, Threshold: Float(0.7)}})
	snap := store.Update(Aggregate{Guard: ptrGuard("toxic_language")})

	if snap.Config.Context == nil || len(snap.Config.Context.Keywords) != 1 {
		t.Fatalf("expected context kept after guard update: %#v", snap.Config.Context)
	}
	if snap.Config.Guard == nil || len(snap.Config.Guard.Validators) != 1 {
		t.Fatalf("expected guard set")
	}
	if snap.Config.LLM == nil || snap.Config.Chat == nil {
		t.Fatalf("expected default llm/chat kept")
	}
	if snap.Version != 3 {
		t.Fatalf("expected version 3, got %d", snap.Version)
	}
}

func TestSequentialUpdatesEqualMergedUpdate(t *testing.T) {
	p1 := Aggregate{
		Guard:   ptrGuard("a"),
		Context: &ContextConfig{Keywords: []string{"x"}},
		Logger:  Preferences{"level": "info"},
	}
	p2 := Aggregate{
		Guard:  ptrGuard("b"),
		RAG:    &RAGConfig{TopK: 3},
		Scorer: &ScorerConfig{Metrics: []string{"cosine"}},
	}

	seq := NewStore(Defaults())
	seq.Update(p1)
	gotSeq := seq.Update(p2)

	once := NewStore(Defaults())
	gotOnce := once.Update(Merge(p1, p2))

	if !reflect.DeepEqual(gotSeq.Config, gotOnce.Config) {
		t.Fatalf("sequential and merged updates differ:\n%#v\n%#v", gotSeq.Config, gotOnce.Config)
	}
	if gotSeq.Hash != gotOnce.Hash {
		t.Fatalf("expected equal hashes")
	}
	if gotSeq.Config.Guard.Validators[0].Type != "b" {
		t.Fatalf("expected later guard to win")
	}
	if gotSeq.Config.Logger["level"] != "info" {
		t.Fatalf("expected logger preserved")
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	store := NewStore(Defaults())
	partial := Aggregate{Context: &ContextConfig{Keywords: []string{"diabetes"}}}
	snap := store.Update(partial)

	partial.Context.Keywords[0] = "mutated"
	snap.Config.Context.Keywords = append(snap.Config.Context.Keywords, "extra")

	current := store.Current()
	if got := current.Config.Context.Keywords; len(got) != 1 || got[0] != "diabetes" {
		t.Fatalf("store leaked mutable state: %#v", got)
	}
}

func TestSubscribeNotifiesInOrder(t *testing.T) {
	store := NewStore(Defaults())
	var seen []int64
	var order []string
	cancelA := store.Subscribe(func(s Snapshot) {
		seen = append(seen, s.Version)
		order = append(order, "a")
	})
	store.Subscribe(func(Snapshot) { order = append(order, "b") })

	store.Update(Aggregate{Chat: &ChatConfig{UseGuard: true}})
	cancelA()
	store.Update(Aggregate{Chat: &ChatConfig{UseRAG: true}})

	if !reflect.DeepEqual(seen, []int64{2}) {
		t.Fatalf("unexpected versions seen: %v", seen)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "b"}) {
		t.Fatalf("unexpected notification order: %v", order)
	}
}

func TestUpdateAcceptsInvalidValues(t *testing.T) {
	store := NewStore(Defaults())
	snap := store.Update(Aggregate{Context: &ContextConfig{Threshold: Float(7)}, RAG: &RAGConfig{TopK: -1}})
	if *snap.Config.Context.Threshold != 7 || snap.Config.RAG.TopK != -1 {
		t.Fatalf("store should not validate: %#v %#v", snap.Config.Context, snap.Config.RAG)
	}
}

func TestBuildersFillDefaults(t *testing.T) {
	b := NewValidatorBinding(" toxic ", nil)
	if b.OnFail != OnFailException || b.AppliesTo != AppliesToOutput || b.Type != "toxic" {
		t.Fatalf("unexpected binding defaults: %#v", b)
	}
	ctx := NewContextConfig([]string{"a", "a", " ", "b"}, nil, nil)
	if !reflect.DeepEqual(ctx.Keywords, []string{"a", "b"}) || *ctx.Threshold != DefaultThreshold {
		t.Fatalf("unexpected context defaults: %#v", ctx)
	}
	rag := NewRAGConfig(QAPair{Question: "q", Answer: "a"})
	if rag.TopK != DefaultTopK || rag.CollectionName != DefaultCollectionName || rag.EmbeddingProvider != DefaultEmbeddingProvider {
		t.Fatalf("unexpected rag defaults: %#v", rag)
	}
	sc := NewScorerConfig("cosine", "cosine", "rouge")
	if sc.Aggregation != AggregationWeightedAverage || len(sc.Metrics) != 2 {
		t.Fatalf("unexpected scorer defaults: %#v", sc)
	}
	llm := NewLLMConfig(ProviderOpenAI, " gpt-4o ")
	if llm.Model != "gpt-4o" || *llm.Temperature != DefaultTemperature || *llm.MaxTokens != DefaultMaxTokens {
		t.Fatalf("unexpected llm defaults: %#v", llm)
	}
}

func TestInputValidators(t *testing.T) {
	g := GuardConfig{Validators: []ValidatorBinding{
		{Type: "pii", AppliesTo: AppliesToInput},
		{Type: "toxic"},
	}}
	in := g.InputValidators()
	if len(in) != 1 || in[0].Type != "pii" {
		t.Fatalf("unexpected input validators: %#v", in)
	}
}
