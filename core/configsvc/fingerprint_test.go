package configsvc

import (
	"strings"
	"testing"
)

func TestSnapshotHashTracksContent(t *testing.T) {
	a := Aggregate{Context: &ContextConfig{Keywords: []string{"diabetes"}, Threshold: Float(0.7)}}
	b := Aggregate{Context: &ContextConfig{Keywords: []string{"diabetes"}, Threshold: Float(0.7)}}
	c := Aggregate{Context: &ContextConfig{Keywords: []string{"insulin"}, Threshold: Float(0.7)}}

	hashA, err := snapshotHash(a)
	if err != nil || hashA == "" {
		t.Fatalf("expected hash for a, err=%v", err)
	}
	hashB, _ := snapshotHash(b)
	hashC, _ := snapshotHash(c)
	if hashA != hashB {
		t.Fatalf("expected equal hashes for equal aggregates")
	}
	if hashA == hashC {
		t.Fatalf("expected different hashes for different keywords")
	}
	if len(hashA) != 64 || strings.Trim(hashA, "0123456789abcdef") != "" {
		t.Fatalf("expected hex sha256, got %s", hashA)
	}
}

func TestSnapshotHashPreferencesOrder(t *testing.T) {
	a := Aggregate{Logger: Preferences{"level": "debug", "sink": "stdout"}}
	b := Aggregate{Logger: Preferences{"sink": "stdout", "level": "debug"}}
	hashA, _ := snapshotHash(a)
	hashB, _ := snapshotHash(b)
	if hashA != hashB {
		t.Fatalf("preference order changed the hash")
	}
}

func TestGuardIDFollowsValidators(t *testing.T) {
	g := GuardConfig{Name: "medical", Validators: []ValidatorBinding{NewValidatorBinding("toxic_language", map[string]any{"threshold": 0.5})}}
	id := GuardID(g)
	if !strings.HasPrefix(id, "medical-") || len(id) != len("medical-")+guardIDHashLen {
		t.Fatalf("unexpected guard id %q", id)
	}
	if GuardID(g) != id {
		t.Fatalf("guard id must be stable")
	}

	edited := g.clone()
	edited.Validators[0].Params["threshold"] = 0.9
	if GuardID(edited) == id {
		t.Fatalf("editing a validator must change the guard id")
	}
	if got := GuardID(GuardConfig{Validators: g.Validators}); !strings.HasPrefix(got, "guard-") {
		t.Fatalf("unnamed guard id %q", got)
	}
}
