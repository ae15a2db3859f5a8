// Package session hosts playground sessions in memory. A session owns one
// configuration store, one transcript and the dispatcher that connects them.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/bus"
	"github.com/cordum/playground/core/infra/logging"
	"github.com/cordum/playground/core/infra/secrets"
	"github.com/cordum/playground/core/pipeline"
	"github.com/cordum/playground/core/readiness"
	"github.com/cordum/playground/core/transcript"
	"github.com/google/uuid"
)

// ConfigEvent is the payload of a config event.
type ConfigEvent struct {
	Snapshot  configsvc.Snapshot `json:"snapshot"`
	Readiness readiness.Report   `json:"readiness"`
}

// ToolEvent is the payload of a tool event.
type ToolEvent struct {
	Tool pipeline.Tool `json:"tool"`
	Name string        `json:"name"`
}

// Session is one operator's playground state.
type Session struct {
	id        string
	createdAt time.Time

	config     *configsvc.Store
	transcript *transcript.Store
	dispatcher *pipeline.Dispatcher
	publisher  bus.Publisher

	mu        sync.Mutex
	listeners map[int]func(bus.Event)
	nextID    int
	cancel    []func()
	closed    bool
}

func newSession(id string, initial configsvc.Aggregate, gw pipeline.Gateway, publisher bus.Publisher, opts pipeline.Options) *Session {
	s := &Session{
		id:         id,
		createdAt:  time.Now().UTC(),
		config:     configsvc.NewStore(initial),
		transcript: transcript.NewStore(),
		publisher:  publisher,
		listeners:  make(map[int]func(bus.Event)),
	}
	s.dispatcher = pipeline.NewDispatcher(gw, s.config, s.transcript, opts)
	s.cancel = append(s.cancel,
		s.config.Subscribe(func(snap configsvc.Snapshot) {
			s.emit(bus.EventConfig, ConfigEvent{Snapshot: secrets.RedactSnapshot(snap), Readiness: readiness.Evaluate(snap.Config)})
		}),
		s.transcript.Subscribe(func(ev transcript.Event) {
			if ev.Kind == transcript.EventReset {
				s.emit(bus.EventReset, nil)
				return
			}
			s.emit(bus.EventTranscript, ev.Entry)
		}),
	)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Config returns the current configuration snapshot.
func (s *Session) Config() configsvc.Snapshot { return s.config.Current() }

// UpdateConfig merges partial into the configuration. An LLM key echoed back
// in masked form keeps the stored key.
func (s *Session) UpdateConfig(partial configsvc.Aggregate) configsvc.Snapshot {
	return s.config.Update(secrets.Restore(partial, s.config.Current().Config))
}

// Readiness evaluates the current configuration.
func (s *Session) Readiness() readiness.Report {
	return readiness.Evaluate(s.config.Current().Config)
}

// SetTool selects the active tool.
func (s *Session) SetTool(name string) pipeline.Tool {
	tool := s.dispatcher.SetActiveTool(name)
	_, label := s.dispatcher.ActiveTool()
	s.emit(bus.EventTool, ToolEvent{Tool: tool, Name: label})
	return tool
}

// Tool returns the active tool and the name it was selected by.
func (s *Session) Tool() (pipeline.Tool, string) { return s.dispatcher.ActiveTool() }

// Processing reports whether a submission is in flight.
func (s *Session) Processing() bool { return s.dispatcher.Processing() }

// Submit runs input through the active tool.
func (s *Session) Submit(ctx context.Context, input string) (pipeline.Result, error) {
	return s.dispatcher.Submit(ctx, input)
}

// SubmitImage runs an image through the context check.
func (s *Session) SubmitImage(ctx context.Context, img pipeline.Image) (pipeline.Result, error) {
	return s.dispatcher.SubmitImage(ctx, img)
}

// Transcript returns every entry appended so far.
func (s *Session) Transcript() []transcript.Entry { return s.transcript.Entries() }

// TranscriptSince returns the entries after the first n.
func (s *Session) TranscriptSince(n int) []transcript.Entry { return s.transcript.Since(n) }

// Reset clears the transcript.
func (s *Session) Reset() { s.transcript.Reset() }

// Subscribe registers fn for every event of this session. fn runs on the
// goroutine that caused the event and must not block.
func (s *Session) Subscribe(fn func(bus.Event)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) emit(eventType string, data any) {
	ev := bus.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: s.id,
		Time:      time.Now().UTC(),
		Data:      data,
	}
	for _, fn := range s.snapshotListeners() {
		fn(ev)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ev); err != nil {
		logging.Error("session", "publish event", "session", s.id, "type", eventType, "error", err)
	}
}

func (s *Session) snapshotListeners() []func(bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(bus.Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

// close detaches observers, tells listeners the session is gone and waits
// for tracking calls.
func (s *Session) close() {
	s.mu.Lock()
	done := s.closed
	s.mu.Unlock()
	if done {
		return
	}
	s.emit(bus.EventClosed, nil)

	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.listeners = make(map[int]func(bus.Event))
	s.mu.Unlock()
	for _, fn := range cancel {
		fn()
	}
	s.dispatcher.Close()
}
