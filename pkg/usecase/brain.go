package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/agent/tool"
	"github.com/secmon-lab/anemone/pkg/agent/tool/sandbox"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/inbox"
	"github.com/secmon-lab/anemone/pkg/service/llm"
	"github.com/secmon-lab/anemone/pkg/service/retrieval"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
)

const (
	historyThought    = "thought"
	historyTool       = "tool"
	historyReflection = "reflection"

	reflectionHistoryLimit = 200
	messageQueueSize       = 16

	finishNowText = "You've used a lot of tools this cycle. Stop using tools now and finish your thought in a few sentences."
)

// BrainConfig holds the per-agent loop settings.
type BrainConfig struct {
	AgentID string
	BoxDir  string

	Pace                time.Duration
	HistoryWindow       int
	MaxToolRounds       int
	ReflectionThreshold int
	PlanInterval        int
	RetrievalCount      int
	DecayRate           float64
	ReplyTimeout        time.Duration
	BackoffBase         time.Duration
	BackoffMax          time.Duration

	Blocklist    []string
	ShellTimeout time.Duration
	WatchFiles   bool
}

func DefaultBrainConfig() BrainConfig {
	return BrainConfig{
		Pace:                45 * time.Second,
		HistoryWindow:       20,
		MaxToolRounds:       10,
		ReflectionThreshold: 50,
		PlanInterval:        10,
		RetrievalCount:      3,
		DecayRate:           retrieval.DefaultDecayRate,
		ReplyTimeout:        sandbox.DefaultReplyTimeout,
		BackoffBase:         5 * time.Second,
		BackoffMax:          10 * time.Minute,
		ShellTimeout:        sandbox.DefaultShellTimeout,
		WatchFiles:          true,
	}
}

// withDefaults fills zero values from DefaultBrainConfig.
func (c BrainConfig) withDefaults() BrainConfig {
	d := DefaultBrainConfig()
	if c.Pace <= 0 {
		c.Pace = d.Pace
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = d.MaxToolRounds
	}
	if c.ReflectionThreshold <= 0 {
		c.ReflectionThreshold = d.ReflectionThreshold
	}
	if c.PlanInterval <= 0 {
		c.PlanInterval = d.PlanInterval
	}
	if c.RetrievalCount <= 0 {
		c.RetrievalCount = d.RetrievalCount
	}
	if c.DecayRate <= 0 {
		c.DecayRate = d.DecayRate
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = d.ReplyTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.ShellTimeout <= 0 {
		c.ShellTimeout = d.ShellTimeout
	}
	return c
}

// Status is a snapshot of a running brain for frontends.
type Status struct {
	AgentID   string           `json:"agent_id"`
	State     model.BrainState `json:"state"`
	Position  model.Position   `json:"position"`
	Cycle     int              `json:"cycle"`
	Focus     string           `json:"focus,omitempty"`
	FocusMode bool             `json:"focus_mode"`
	Mood      model.Mood       `json:"mood,omitempty"`
}

// Brain runs one agent's think-act-reflect-plan loop. All cycle state is
// owned by the goroutine running Run; other goroutines only see Status and
// talk to it through Send and SetFocusMode.
type Brain struct {
	cfg       BrainConfig
	identity  *model.Identity
	llm       *llm.Client
	store     interfaces.MemoryStore
	retriever *retrieval.Retriever
	reflector *Reflector
	planner   *Planner
	memo      *memorizer
	sandbox   *sandbox.Sandbox
	search    interfaces.WebSearch
	scanner   *inbox.Scanner
	publisher interfaces.EventPublisher
	clock     func() time.Time
	rand      *rand.Rand

	state   model.CycleState
	changes <-chan string

	messages  chan string
	focusMode atomic.Bool

	mu     sync.RWMutex
	status Status
}

type BrainOption func(*Brain)

func WithWebSearch(search interfaces.WebSearch) BrainOption {
	return func(b *Brain) {
		b.search = search
	}
}

func WithPublisher(p interfaces.EventPublisher) BrainOption {
	return func(b *Brain) {
		if p != nil {
			b.publisher = p
		}
	}
}

func WithBrainClock(clock func() time.Time) BrainOption {
	return func(b *Brain) {
		b.clock = clock
	}
}

// WithRand fixes the source of mood sampling and idle wandering.
func WithRand(r *rand.Rand) BrainOption {
	return func(b *Brain) {
		b.rand = r
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

func NewBrain(cfg BrainConfig, id *model.Identity, client *llm.Client, store interfaces.MemoryStore, opts ...BrainOption) (*Brain, error) {
	if id == nil {
		return nil, goerr.Wrap(ErrMissingDependency, "identity is required", goerr.V(AgentIDKey, cfg.AgentID))
	}
	if client == nil {
		return nil, goerr.Wrap(ErrMissingDependency, "LLM client is required", goerr.V(AgentIDKey, cfg.AgentID))
	}
	if store == nil {
		return nil, goerr.Wrap(ErrMissingDependency, "memory store is required", goerr.V(AgentIDKey, cfg.AgentID))
	}
	if cfg.BoxDir == "" {
		return nil, goerr.Wrap(ErrMissingDependency, "box directory is required", goerr.V(AgentIDKey, cfg.AgentID), goerr.V(BoxDirKey, cfg.BoxDir))
	}
	cfg = cfg.withDefaults()

	b := &Brain{
		cfg:       cfg,
		identity:  id,
		llm:       client,
		store:     store,
		scanner:   inbox.NewScanner(cfg.BoxDir),
		publisher: nopPublisher{},
		clock:     time.Now,
		messages:  make(chan string, messageQueueSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sandbox = sandbox.New(b.sandboxConfig(), b.search, b, b)
	if b.rand == nil {
		b.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	b.retriever = retrieval.NewRetriever(store, client, retrieval.NewScorer(cfg.DecayRate), retrieval.WithClock(b.clock))
	b.reflector = NewReflector(client, store)
	b.planner = NewPlanner(client, store, cfg.BoxDir, b.clock)
	b.memo = &memorizer{llm: client, store: store}

	b.state = model.CycleState{
		Tracker:  model.NewReflectionTracker(cfg.ReflectionThreshold),
		Position: model.StartPosition,
	}
	b.status = Status{
		AgentID:  cfg.AgentID,
		State:    model.BrainStateIdle,
		Position: model.StartPosition,
	}

	return b, nil
}

func (b *Brain) sandboxConfig() sandbox.Config {
	return sandbox.Config{
		BoxDir:       b.cfg.BoxDir,
		Blocklist:    b.cfg.Blocklist,
		ShellTimeout: b.cfg.ShellTimeout,
	}
}

func (b *Brain) AgentID() string {
	return b.cfg.AgentID
}

func (b *Brain) BoxDir() string {
	return b.cfg.BoxDir
}

func (b *Brain) Identity() *model.Identity {
	return b.identity
}

// Store is the agent's memory stream, for read-only use by frontends.
func (b *Brain) Store() interfaces.MemoryStore {
	return b.store
}

// Status returns a copy of the latest published status.
func (b *Brain) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Send queues a message heard from outside the room. It returns false when
// the queue is full.
func (b *Brain) Send(msg string) bool {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return false
	}
	select {
	case b.messages <- msg:
		return true
	default:
		return false
	}
}

// SetFocusMode takes effect from the next cycle.
func (b *Brain) SetFocusMode(on bool) {
	b.focusMode.Store(on)
	b.mu.Lock()
	b.status.FocusMode = on
	b.mu.Unlock()
}

// Position implements sandbox.Room.
func (b *Brain) Position() model.Position {
	return b.state.Position
}

// MoveTo implements sandbox.Room.
func (b *Brain) MoveTo(p model.Position) {
	b.state.Position = p
	b.mu.Lock()
	b.status.Position = p
	b.mu.Unlock()
	b.emit(model.EventPositionChanged, map[string]any{"x": p.X, "y": p.Y})
}

// AwaitReply implements sandbox.Listener. It waits for the next queued
// message for at most the reply timeout.
func (b *Brain) AwaitReply(ctx context.Context, message string) (string, bool) {
	deadline := b.clock().Add(b.cfg.ReplyTimeout)
	b.state.ReplyDeadline = &deadline
	defer func() { b.state.ReplyDeadline = nil }()

	b.emit(model.EventAwaitingReply, map[string]any{
		"message": message,
		"timeout": b.cfg.ReplyTimeout.Seconds(),
	})

	timer := time.NewTimer(b.cfg.ReplyTimeout)
	defer timer.Stop()

	var (
		reply   string
		replied bool
	)
	select {
	case reply = <-b.messages:
		replied = true
	case <-timer.C:
	case <-ctx.Done():
	}

	b.emit(model.EventReplyEnded, map[string]any{"replied": replied})
	return reply, replied
}

func (b *Brain) emit(typ model.EventType, data map[string]any) {
	b.publisher.Publish(model.NewEvent(b.cfg.AgentID, typ, b.clock(), data))
}

func (b *Brain) setState(s model.BrainState) {
	b.mu.Lock()
	b.status.State = s
	b.status.Cycle = b.state.Cycle
	b.status.Focus = b.state.Focus
	b.status.Mood = b.state.Mood
	b.mu.Unlock()
	b.emit(model.EventStateChanged, map[string]any{"state": string(s)})
}

// Run repeats cycles until ctx is cancelled. Cancellation is observed
// between cycles and during the pacing sleep; a started cycle always
// finishes. Only storage failures end the loop with an error.
func (b *Brain) Run(ctx context.Context) error {
	logger := logging.From(ctx).With("agent_id", b.cfg.AgentID)
	ctx = logging.With(ctx, logger)
	defer b.setState(model.BrainStateStopped)

	if err := b.scanner.Prime(); err != nil {
		return goerr.Wrap(err, "failed to scan box", goerr.V("agent_id", b.cfg.AgentID))
	}
	b.state.Mood = model.SampleMood(b.rand)
	b.state.Focus = LoadFocus(b.cfg.BoxDir)

	if b.cfg.WatchFiles {
		stop, err := b.watch(ctx)
		if err != nil {
			logger.Warn("file watcher unavailable, new files are noticed once per cycle", "error", err)
		} else {
			defer stop()
		}
	}

	logger.Info("waking up", "name", b.identity.Name, "focus", b.state.Focus, "mood", b.state.Mood)

	for {
		if ctx.Err() != nil {
			logger.Info("going to sleep")
			return nil
		}

		if err := b.cycle(context.WithoutCancel(ctx)); err != nil {
			return err
		}

		if !b.rest(ctx, b.pause()) {
			logger.Info("going to sleep")
			return nil
		}
	}
}

func (b *Brain) watch(ctx context.Context) (func(), error) {
	w, err := inbox.NewWatcher(b.cfg.BoxDir)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(watchCtx)
	}()
	b.changes = w.Changes()

	return func() {
		cancel()
		wg.Wait()
		if err := w.Close(); err != nil {
			logging.From(ctx).Warn("failed to close file watcher", "error", err)
		}
		b.changes = nil
	}, nil
}

// pause is the pace, or the provider backoff after consecutive failures.
func (b *Brain) pause() time.Duration {
	if n := b.state.ProviderFailures; n > 0 {
		return llm.Backoff(n, b.cfg.BackoffBase, b.cfg.BackoffMax)
	}
	return b.cfg.Pace
}

// rest sleeps for d. A queued message or a newly dropped file ends the sleep
// early. It returns false when ctx was cancelled.
func (b *Brain) rest(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case msg := <-b.messages:
			b.queueMessage(msg)
			return true
		case rel := <-b.changes:
			if b.scanner.IsNew(rel) {
				b.emit(model.EventFileDropped, map[string]any{"file": rel})
				return true
			}
		}
	}
}

func (b *Brain) queueMessage(msg string) {
	if b.state.UserMessage == "" {
		b.state.UserMessage = msg
		return
	}
	b.state.UserMessage += "\n" + msg
}

func (b *Brain) drainMessages() {
	for {
		select {
		case msg := <-b.messages:
			b.queueMessage(msg)
		default:
			return
		}
	}
}

func (b *Brain) drainChanges() {
	for {
		select {
		case <-b.changes:
		default:
			return
		}
	}
}

// cycle runs one think-act-reflect?-plan? pass.
func (b *Brain) cycle(ctx context.Context) error {
	logger := logging.From(ctx)
	st := &b.state

	st.Cycle++
	st.FocusMode = b.focusMode.Load()
	b.emit(model.EventCycleStarted, map[string]any{
		"cycle": st.Cycle,
		"mood":  string(st.Mood),
		"focus": st.Focus,
	})
	b.setState(model.BrainStateThinking)

	if files, err := b.scanner.Scan(); err != nil {
		logger.Warn("failed to scan for new files", "error", err)
	} else if len(files) > 0 {
		st.Inbox = append(st.Inbox, files...)
		logger.Info("new files in the box", "count", len(files))
	}
	b.drainMessages()

	nudge := b.selectNudge(ctx)
	logger.Debug("nudge selected", "kind", nudge.Kind, "cycle", st.Cycle)

	outcome, err := b.think(ctx, nudge)
	if err != nil {
		st.ProviderFailures++
		logger.Warn("cycle degraded, model unavailable", "error", err, "failures", st.ProviderFailures)
		b.emit(model.EventError, map[string]any{"message": err.Error()})
		b.setState(model.BrainStateIdle)
		return nil
	}
	st.ProviderFailures = 0

	switch nudge.Kind {
	case NudgeInbox:
		st.Inbox = nil
	case NudgeVoice:
		st.UserMessage = ""
	}

	switch {
	case len(outcome.createdFiles) > 0:
		st.ResearchStreak = 0
	case outcome.researched:
		st.ResearchStreak++
	}

	if outcome.thought != "" {
		if err := b.recordThought(ctx, outcome.thought); err != nil {
			return err
		}
	}

	st.CyclesSincePlan++
	if st.CyclesSincePlan >= b.cfg.PlanInterval {
		if err := b.plan(ctx); err != nil {
			return err
		}
	}

	if !nudge.FocusDriven() {
		st.Mood = model.SampleMood(b.rand)
	}

	b.MoveTo(st.Position.Wander(b.rand))
	b.drainChanges()
	b.setState(model.BrainStateIdle)
	return nil
}

type thinkOutcome struct {
	thought      string
	researched   bool
	createdFiles []string
}

// think runs the model and tool loop for one nudge.
func (b *Brain) think(ctx context.Context, nudge Nudge) (*thinkOutcome, error) {
	sys, err := SystemPrompt(b.identity)
	if err != nil {
		return nil, err
	}

	session, err := b.llm.NewSession(ctx,
		gollem.WithSessionSystemPrompt(sys),
		gollem.WithSessionTools(b.sandbox.Tools()...),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session")
	}

	ctx = tool.WithUpdate(ctx, func(ctx context.Context, msg string) {
		b.emit(model.EventToolExecuted, map[string]any{"progress": msg})
	})

	resp, err := b.llm.Generate(ctx, session, gollem.Text(b.contextText(nudge)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate thought")
	}

	outcome := &thinkOutcome{}
	lastText := joinTexts(resp)
	rounds := 0

	for len(resp.FunctionCalls) > 0 {
		rounds++
		inputs := make([]gollem.Input, 0, len(resp.FunctionCalls)+1)
		replied := false

		for _, call := range resp.FunctionCalls {
			inv := b.sandbox.Execute(ctx, call.Name, call.Arguments)
			b.afterTool(ctx, inv, outcome)
			if inv.Name == model.ToolRespond && inv.Result.Data["replied"] == true {
				replied = true
			}
			inputs = append(inputs, gollem.FunctionResponse{
				ID:   call.ID,
				Name: call.Name,
				Data: inv.Result.Map(),
			})
		}

		if replied {
			rounds = 0
		}

		finishing := rounds >= b.cfg.MaxToolRounds
		if finishing {
			logging.From(ctx).Info("tool round limit reached", "rounds", rounds)
			inputs = append(inputs, gollem.Text(finishNowText))
		}

		resp, err = b.llm.Generate(ctx, session, inputs...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to continue after tool calls", goerr.V("round", rounds))
		}
		if text := joinTexts(resp); text != "" {
			lastText = text
		}
		if finishing {
			break
		}
	}

	outcome.thought = lastText
	return outcome, nil
}

func joinTexts(resp *gollem.Response) string {
	if resp == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(resp.Texts, "\n"))
}

// contextText is the recent-activity window followed by the nudge.
func (b *Brain) contextText(nudge Nudge) string {
	if len(b.state.History) == 0 {
		return nudge.Text
	}

	lines := make([]string, 0, len(b.state.History))
	for _, item := range b.state.History {
		lines = append(lines, item.Text)
	}
	return "Recently:\n" + strings.Join(lines, "\n\n") + "\n\n---\n\n" + nudge.Text
}

func (b *Brain) afterTool(ctx context.Context, inv model.ToolInvocation, outcome *thinkOutcome) {
	b.state.PushHistory(model.HistoryItem{
		Role: historyTool,
		Text: fmt.Sprintf("[Used %s tool]", inv.Name),
	}, b.cfg.HistoryWindow)

	if inv.Name == model.ToolWebSearch && inv.Result.OK {
		outcome.researched = true
	}
	if created, ok := inv.Result.Data["created_files"].([]string); ok && len(created) > 0 {
		b.scanner.MarkSeen(created...)
		outcome.createdFiles = append(outcome.createdFiles, created...)
	}

	b.emit(model.EventToolExecuted, map[string]any{
		"tool":        string(inv.Name),
		"args":        inv.Args,
		"ok":          inv.Result.OK,
		"error":       inv.Result.Error,
		"side_effect": string(inv.SideEffect),
	})
	logging.From(ctx).Debug("tool executed", "tool", inv.Name, "ok", inv.Result.OK)
}

func (b *Brain) recordThought(ctx context.Context, thought string) error {
	entry, err := b.memo.remember(ctx, model.MemoryKindThought, thought, nil)
	if err != nil {
		return b.fatalOrLog(ctx, err, "failed to record thought")
	}

	b.state.PushHistory(model.HistoryItem{Role: historyThought, Text: thought}, b.cfg.HistoryWindow)
	b.emit(model.EventThoughtProduced, map[string]any{
		"id":         entry.ID.String(),
		"text":       entry.Content,
		"importance": entry.Importance,
	})

	return b.track(ctx, entry)
}

// track feeds an entry to the reflection tracker and reflects when due.
func (b *Brain) track(ctx context.Context, entry *model.MemoryEntry) error {
	tracker := b.state.Tracker
	if !tracker.Add(entry.ID, entry.Importance) {
		return nil
	}

	ids := tracker.Contributors()
	b.setState(model.BrainStateReflecting)
	defer tracker.Reset()

	reflections, err := b.reflector.Reflect(ctx, ids)
	for _, r := range reflections {
		b.state.PushHistory(model.HistoryItem{
			Role: historyReflection,
			Text: fmt.Sprintf("[Reflection: %s...]", strutil.Truncate(r.Content, reflectionHistoryLimit)),
		}, b.cfg.HistoryWindow)
		b.emit(model.EventReflectionOccurred, map[string]any{
			"id":         r.ID.String(),
			"text":       r.Content,
			"depth":      r.Depth,
			"references": len(r.References),
		})
	}
	if err != nil {
		return b.fatalOrLog(ctx, err, "reflection failed")
	}
	return nil
}

func (b *Brain) plan(ctx context.Context) error {
	b.setState(model.BrainStatePlanning)
	b.state.CyclesSincePlan = 0

	plan, err := b.planner.Plan(ctx)
	if err != nil {
		if fatal := b.fatalOrLog(ctx, err, "planning failed"); fatal != nil {
			return fatal
		}
	}
	if plan == nil {
		return nil
	}

	b.state.Focus = plan.Focus
	if err := b.scanner.Reset(); err != nil {
		logging.From(ctx).Warn("failed to rescan box after planning", "error", err)
	}
	b.emit(model.EventPlanUpdated, map[string]any{
		"focus": plan.Focus,
		"log":   plan.LogEntry,
	})

	if plan.Entry != nil {
		// a planning entry counts toward reflection like any other memory
		return b.track(ctx, plan.Entry)
	}
	return nil
}

// fatalOrLog returns err when storage failed; anything else is logged and
// the cycle carries on.
func (b *Brain) fatalOrLog(ctx context.Context, err error, msg string) error {
	if errors.Is(err, interfaces.ErrPersistence) {
		return goerr.Wrap(err, msg, goerr.V("agent_id", b.cfg.AgentID))
	}
	logging.From(ctx).Warn(msg, "error", err)
	b.emit(model.EventError, map[string]any{"message": err.Error()})
	return nil
}
