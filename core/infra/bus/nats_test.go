package bus

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestSubject(t *testing.T) {
	if Subject("", EventConfig) != "" || Subject("s1", "") != "" {
		t.Fatalf("expected empty subject")
	}
	if got := Subject("s1", EventTranscript); got != "playground.session.s1.transcript" {
		t.Fatalf("unexpected subject: %s", got)
	}
	if got := SessionSubject("s1"); got != "playground.session.s1.*" {
		t.Fatalf("unexpected session subject: %s", got)
	}
	if got := SessionSubject(""); got != "playground.session.*.*" {
		t.Fatalf("unexpected wildcard subject: %s", got)
	}
}

func TestInitJetStreamEnabled(t *testing.T) {
	t.Setenv(envUseJetStream, "")
	if initJetStreamEnabled() {
		t.Fatalf("expected jetstream disabled by default")
	}
	for _, val := range []string{"1", "true", "yes", "y", "on"} {
		t.Setenv(envUseJetStream, val)
		if !initJetStreamEnabled() {
			t.Fatalf("expected jetstream enabled for %s", val)
		}
	}
	t.Setenv(envUseJetStream, "no")
	if initJetStreamEnabled() {
		t.Fatalf("expected jetstream disabled for no")
	}
}

func TestDurableName(t *testing.T) {
	if durableName("", "") != "" {
		t.Fatalf("expected empty durable name")
	}
	if got := durableName("playground.session.*.*", "ui"); got != "dur_ui__playground_session_STAR_STAR" {
		t.Fatalf("unexpected durable name: %s", got)
	}
	if got := durableName("playground.>", ""); got != "dur_playground_GT" {
		t.Fatalf("unexpected durable name for empty queue: %s", got)
	}
}

func TestComputeMsgID(t *testing.T) {
	subject := Subject("s1", EventConfig)
	if got := computeMsgID(subject, Event{ID: "e-1"}); got != "playground.session.s1.config:e-1" {
		t.Fatalf("unexpected msg id: %s", got)
	}
	if computeMsgID(subject, Event{}) != "" {
		t.Fatalf("expected empty msg id for event without id")
	}
}

func TestNatsBusPublishErrors(t *testing.T) {
	var nilBus *NatsBus
	if err := nilBus.Publish(Event{SessionID: "s1", Type: EventConfig}); !errors.Is(err, errNilBus) {
		t.Fatalf("expected nil bus error, got %v", err)
	}
	bus := &NatsBus{nc: &nats.Conn{}}
	if err := bus.Publish(Event{Type: EventConfig}); !errors.Is(err, errNoSession) {
		t.Fatalf("expected missing session error, got %v", err)
	}
	if err := bus.Publish(Event{SessionID: "s1"}); !errors.Is(err, errEmptyTopic) {
		t.Fatalf("expected empty topic error, got %v", err)
	}
}

func TestNatsBusSubscribeErrors(t *testing.T) {
	var nilBus *NatsBus
	if err := nilBus.Subscribe("playground.>", "", func(Event) error { return nil }); !errors.Is(err, errNilBus) {
		t.Fatalf("expected nil bus error, got %v", err)
	}
	bus := &NatsBus{nc: &nats.Conn{}}
	if err := bus.Subscribe("", "", func(Event) error { return nil }); !errors.Is(err, errEmptyTopic) {
		t.Fatalf("expected empty topic error, got %v", err)
	}
	if err := bus.Subscribe("playground.>", "", nil); err == nil {
		t.Fatalf("expected nil handler error")
	}
}

func TestNatsBusStatusDefaults(t *testing.T) {
	var nilBus *NatsBus
	if nilBus.IsConnected() {
		t.Fatalf("expected disconnected nil bus")
	}
	if status := nilBus.Status(); status != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN status, got %s", status)
	}
	if url := nilBus.ConnectedURL(); url != "" {
		t.Fatalf("expected empty url, got %s", url)
	}
	nilBus.Close()
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.Publish(Event{}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
	p.Close()
}
