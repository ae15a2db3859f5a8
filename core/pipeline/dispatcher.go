// Package pipeline routes a submission to the remote guardrail stages that
// the active tool needs and records one result entry per submission.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/locks"
	"github.com/cordum/playground/core/infra/logging"
	"github.com/cordum/playground/core/infra/metrics"
	"github.com/cordum/playground/core/readiness"
	"github.com/cordum/playground/core/transcript"
	"github.com/cordum/playground/sdk/client"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("submission already in progress")
	// ErrEmptyInput is returned for blank input.
	ErrEmptyInput = errors.New("input is empty")
	// ErrClosed is returned once the dispatcher has been closed.
	ErrClosed = errors.New("dispatcher closed")
)

// Gateway is the subset of the remote client the dispatcher calls.
type Gateway interface {
	CheckContext(ctx context.Context, req client.ContextCheckRequest) (*client.ContextResult, error)
	CheckImageContext(ctx context.Context, req client.ImageContextRequest) (*client.ContextResult, error)
	RetrieveRAG(ctx context.Context, req client.RAGRequest) (*client.RAGResult, error)
	CalculateScores(ctx context.Context, req client.ScoreRequest) (*client.ScoreResult, error)
	TestValidator(ctx context.Context, req client.ValidatorTestRequest) (*client.ValidatorTestResult, error)
	Chat(ctx context.Context, req client.ChatRequest) (*client.ChatResponse, error)
	TrackInteraction(ctx context.Context, req client.TrackRequest) error
}

// ConfigSource supplies the configuration snapshot read at submission start.
type ConfigSource interface {
	Current() configsvc.Snapshot
}

// Outcome classifies a submission result.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeInputBlocked  Outcome = "input_blocked"
	OutcomeOutputBlocked Outcome = "output_blocked"
	OutcomeBlocked       Outcome = "blocked"
	OutcomeConfigMissing Outcome = "config_missing"
	OutcomeError         Outcome = "error"
)

// Result is what one accepted submission appended.
type Result struct {
	Tool     Tool               `json:"tool"`
	ToolName string             `json:"tool_name"`
	Outcome  Outcome            `json:"outcome"`
	Entries  []transcript.Entry `json:"entries"`
}

// Image is a file submitted for an image context check.
type Image struct {
	Data     []byte
	MimeType string
	Filename string
}

// Options tune a Dispatcher. Zero values are usable.
type Options struct {
	Metrics metrics.Metrics
	// Locks, when set, keeps one chat call per remote guard id in flight
	// across every dispatcher sharing the store. LockTTL bounds a lock whose
	// holder died; LockWait bounds how long a submission queues for it.
	Locks    locks.Store
	LockTTL  time.Duration
	LockWait time.Duration
	// InitialTool is the active tool before SetActiveTool is called.
	InitialTool string
}

// Dispatcher runs submissions for one session.
type Dispatcher struct {
	gw         Gateway
	config     ConfigSource
	transcript *transcript.Store
	metrics    metrics.Metrics
	locks      locks.Store
	lockTTL    time.Duration
	lockWait   time.Duration

	mu         sync.Mutex
	tool       Tool
	toolName   string
	processing bool
	closed     bool

	tracking sync.WaitGroup
	now      func() time.Time
}

// NewDispatcher builds a dispatcher over a config source and transcript.
func NewDispatcher(gw Gateway, config ConfigSource, log *transcript.Store, opts Options) *Dispatcher {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if log == nil {
		log = transcript.NewStore()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	d := &Dispatcher{
		gw:         gw,
		config:     config,
		transcript: log,
		metrics:    opts.Metrics,
		locks:      opts.Locks,
		lockTTL:    opts.LockTTL,
		lockWait:   opts.LockWait,
		now:        time.Now,
	}
	initial := opts.InitialTool
	if strings.TrimSpace(initial) == "" {
		initial = string(ToolChat)
	}
	d.SetActiveTool(initial)
	return d
}

// SetActiveTool selects the tool for the next submission.
func (d *Dispatcher) SetActiveTool(name string) Tool {
	tool := ParseTool(name)
	d.mu.Lock()
	d.tool = tool
	d.toolName = strings.TrimSpace(name)
	if tool != ToolUnknown {
		d.toolName = string(tool)
	}
	d.mu.Unlock()
	return tool
}

// ActiveTool returns the selected tool and the name it was selected by.
func (d *Dispatcher) ActiveTool() (Tool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tool, d.toolName
}

// Processing reports whether a submission is in flight.
func (d *Dispatcher) Processing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processing
}

// Transcript returns the store entries are appended to.
func (d *Dispatcher) Transcript() *transcript.Store {
	return d.transcript
}

// Close rejects further submissions and waits for detached tracking calls.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.tracking.Wait()
}

// Submit runs input through the active tool. It appends the user entry and
// exactly one result entry.
func (d *Dispatcher) Submit(ctx context.Context, input string) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return Result{}, ErrEmptyInput
	}
	return d.run(ctx, input, func(ctx context.Context, run *submission) reply {
		return d.dispatch(ctx, run, input)
	})
}

// SubmitImage runs an image context check. File input must be selected in
// the chat settings.
func (d *Dispatcher) SubmitImage(ctx context.Context, img Image) (Result, error) {
	if len(img.Data) == 0 {
		return Result{}, ErrEmptyInput
	}
	label := "[image]"
	if name := strings.TrimSpace(img.Filename); name != "" {
		label = "[image] " + name
	}
	return d.run(ctx, label, func(ctx context.Context, run *submission) reply {
		return d.imageContext(ctx, run, img)
	})
}

type submission struct {
	tool     Tool
	toolName string
	snapshot configsvc.Snapshot
	calls    int
}

type reply struct {
	role    transcript.Role
	content string
	outcome Outcome
	passed  bool
	meta    map[string]any
}

func (d *Dispatcher) run(ctx context.Context, input string, handle func(context.Context, *submission) reply) (Result, error) {
	release, err := d.enter()
	if err != nil {
		return Result{}, err
	}
	defer release()

	tool, toolName := d.ActiveTool()
	run := &submission{tool: tool, toolName: toolName, snapshot: d.config.Current()}
	user := d.transcript.Append(transcript.RoleUser, input, nil)

	started := d.now()
	rep := handle(ctx, run)
	latency := d.now().Sub(started)

	meta := rep.meta
	if meta == nil {
		meta = map[string]any{}
	}
	meta["tool"] = toolName
	meta["outcome"] = string(rep.outcome)
	meta["config_version"] = run.snapshot.Version
	entry := d.transcript.Append(rep.role, rep.content, meta)
	d.metrics.IncSubmissions(string(tool), string(rep.outcome))

	logging.Debug("dispatcher", "submission complete",
		"tool", toolName, "outcome", rep.outcome, "calls", run.calls, "latency_ms", latency.Milliseconds())

	if tool.Tracked() && rep.outcome != OutcomeConfigMissing {
		d.track(ctx, tool, toolName, input, rep, latency)
	}
	return Result{
		Tool:     tool,
		ToolName: toolName,
		Outcome:  rep.outcome,
		Entries:  []transcript.Entry{user, entry},
	}, nil
}

// enter marks the dispatcher busy.
func (d *Dispatcher) enter() (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.processing {
		return nil, ErrBusy
	}
	d.processing = true
	return func() {
		d.mu.Lock()
		d.processing = false
		d.mu.Unlock()
	}, nil
}

func (d *Dispatcher) track(ctx context.Context, tool Tool, toolName, input string, rep reply, latency time.Duration) {
	req := client.TrackRequest{
		Input:   input,
		Output:  rep.content,
		Latency: latency.Seconds(),
		Metadata: map[string]any{
			"tool":              toolName,
			"validation_passed": rep.passed,
		},
	}
	detached := context.WithoutCancel(ctx)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		logging.Debug("dispatcher", "tracking skipped after close", "tool", toolName)
		return
	}
	d.tracking.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.tracking.Done()
		if err := d.gw.TrackInteraction(detached, req); err != nil {
			d.metrics.IncTrackingFailures(string(tool))
			logging.Debug("dispatcher", "track interaction failed", "tool", toolName, "error", err)
		}
	}()
}

// observe times one remote call.
func (d *Dispatcher) observe(run *submission, op string, fn func() error) error {
	run.calls++
	started := d.now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
		if code := client.StatusCode(err); code > 0 {
			status = fmt.Sprintf("%d", code)
		}
	}
	d.metrics.ObserveRemoteCall(op, status, d.now().Sub(started).Seconds())
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, run *submission, input string) reply {
	if run.tool.NeedsLLM() {
		if miss := readiness.MissingLLM(run.snapshot.Config); miss != "" {
			return missingConfig(fmt.Sprintf("LLM configuration missing: set the %s in the LLM settings before using the %s tool.", miss, run.toolName))
		}
	}
	switch run.tool {
	case ToolGuard, ToolChat:
		return d.chat(ctx, run, input)
	case ToolContextManager:
		return d.contextCheck(ctx, run, input)
	case ToolRAG:
		return d.retrieve(ctx, run, input)
	case ToolScorer:
		return d.score(ctx, run, input)
	case ToolValidators:
		return d.testValidator(ctx, run, input)
	case ToolMonitor:
		return reply{
			role:    transcript.RoleAssistant,
			content: "Monitoring statistics for this session are available in the monitor view.",
			outcome: OutcomeSuccess,
			passed:  true,
		}
	case ToolVisualization:
		return reply{
			role:    transcript.RoleAssistant,
			content: "Visualization data for this session is available in the visualization view.",
			outcome: OutcomeSuccess,
			passed:  true,
		}
	case ToolUnknown:
		return reply{
			role:    transcript.RoleAssistant,
			content: "Echo: " + input,
			outcome: OutcomeSuccess,
			passed:  true,
		}
	default:
		return failure(fmt.Errorf("unsupported tool %q", run.tool))
	}
}

func failure(err error) reply {
	msg := err.Error()
	if strings.TrimSpace(msg) == "" {
		msg = "request failed"
	}
	return reply{
		role:    transcript.RoleSystem,
		content: ErrorPrefix + msg,
		outcome: OutcomeError,
		meta:    map[string]any{"error": msg},
	}
}

func missingConfig(msg string) reply {
	return reply{role: transcript.RoleSystem, content: msg, outcome: OutcomeConfigMissing}
}

func (d *Dispatcher) imageContext(ctx context.Context, run *submission, img Image) reply {
	cfg := run.snapshot.Config
	if cfg.ChatToggles().InputType != configsvc.InputFile {
		return missingConfig("File input is not enabled: set the chat input type to file before submitting images.")
	}
	c := contextOrDefault(cfg)
	mime := strings.TrimSpace(img.MimeType)
	if mime == "" {
		mime = "application/octet-stream"
	}
	req := client.ImageContextRequest{
		ImageBase64:      base64.StdEncoding.EncodeToString(img.Data),
		MimeType:         mime,
		Filename:         img.Filename,
		ContextID:        c.ContextID,
		Keywords:         c.Keywords,
		ApprovedContexts: c.ApprovedContexts,
		Threshold:        c.ThresholdValue(),
	}
	var res *client.ContextResult
	err := d.observe(run, client.OpCheckImageContext, func() (err error) {
		res, err = d.gw.CheckImageContext(ctx, req)
		return err
	})
	if err != nil {
		return failure(err)
	}
	return contextReply(res, c.ThresholdValue())
}
