package schema

import (
	"encoding/json"
	"testing"
)

func TestValidateSchema(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
	if err := ValidateSchema("test", schema, map[string]any{"name": "ok"}); err != nil {
		t.Fatalf("expected valid schema: %v", err)
	}
	if err := ValidateSchema("test", schema, map[string]any{"nope": "bad"}); err == nil {
		t.Fatalf("expected schema validation error")
	}
}

func TestValidateSchemaIntegers(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"top_k":{"type":"integer","minimum":1}}}`)
	if err := ValidateSchema("ints", schema, map[string]any{"top_k": 3}); err != nil {
		t.Fatalf("expected go ints to validate: %v", err)
	}
	if err := ValidateSchema("ints", schema, map[string]any{"top_k": 0}); err == nil {
		t.Fatalf("expected minimum violation")
	}
}

func TestCompileRejectsBrokenSchema(t *testing.T) {
	if _, err := Compile("empty", nil); err == nil {
		t.Fatalf("expected empty schema error")
	}
	if _, err := Compile("broken", []byte(`{"type":`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Compile("bad type", []byte(`{"type":"nonsense"}`)); err == nil {
		t.Fatalf("expected compile error for unknown type")
	}
	if _, err := Compile("ok", []byte(`{"type":"string"}`)); err != nil {
		t.Fatalf("expected compile ok: %v", err)
	}
}

func TestNormalizeValue(t *testing.T) {
	data := json.RawMessage(`{"k":"v"}`)
	val, err := normalizeValue(data)
	if err != nil {
		t.Fatalf("normalize raw: %v", err)
	}
	m, ok := val.(map[string]any)
	if !ok || m["k"] != "v" {
		t.Fatalf("unexpected normalized value")
	}
	val, err = normalizeValue(map[string]any{"n": 2})
	if err != nil {
		t.Fatalf("normalize map: %v", err)
	}
	if val.(map[string]any)["n"] != float64(2) {
		t.Fatalf("expected json number, got %#v", val)
	}
	if _, err := normalizeValue([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSchemaID(t *testing.T) {
	if got := schemaID(""); got != "inmemory://schema" {
		t.Fatalf("unexpected default id: %s", got)
	}
	if got := schemaID("guard schema"); got != "inmemory://guard-schema" {
		t.Fatalf("unexpected id: %s", got)
	}
}
