// Package engine ties the Tick Scheduler, World State, Character Simulator,
// Pathfinder, Action Executor, Behaviour Decider, Conversation Orchestrator
// and Subscriber Fan-out into one running simulation, per SPEC_FULL §4.
// Grounded on the teacher's server.Server/ExecuteStep tick-loop shape
// (advance time, iterate personas, save, advance step), generalised to an
// explicit Uninitialized -> Initialized -> Running <-> Paused -> Stopped
// state machine with async per-character LLM decision tasks draining into
// the tick loop through a result channel -- the teacher has no equivalent
// of that concurrency, so it is built fresh in the teacher's own idiom:
// goroutines and channels, no actor framework anywhere in the pack.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/conversation"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/llm"
	"github.com/worldsim/worldsim/internal/store"
	"github.com/worldsim/worldsim/internal/webhook"
	"github.com/worldsim/worldsim/internal/worldmap"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// Phase is the engine's own lifecycle state, independent of WorldState's
// IsPaused flag, per §4.1's "Uninitialized -> Initialized -> Running <->
// Paused -> Stopped" state machine.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitialized    Phase = "initialized"
	PhaseRunning        Phase = "running"
	PhasePaused         Phase = "paused"
	PhaseStopped        Phase = "stopped"
)

// Deps bundles the engine's external collaborators: everything §4.9/§4.8's
// "abstract store"/"concrete provider SDK" boundaries name.
type Deps struct {
	Store    store.StateStore
	Gateway  llm.Gateway // nil disables LLM-backed decisions/conversation/mini-episodes
	Notifier *webhook.Notifier
}

// runtimeState is per-character bookkeeping that does not belong in the
// persisted/snapshotted character.Character -- in-flight decision tasks and
// conversation pacing, neither of which is part of WorldState's public shape.
type runtimeState struct {
	decisionPending    bool
	decisionCancel     context.CancelFunc
	lastConversationAt worldtime.WorldTime
	affinitySum        int

	conversationPending bool
	conversationCancel  context.CancelFunc

	miniEpisodePending bool
	miniEpisodeCancel  context.CancelFunc
}

// Engine is the composition root's one long-lived object: it owns
// WorldState exclusively within its tick scope, per §5's locking discipline.
type Engine struct {
	mu    sync.Mutex
	phase Phase

	cfg  Config
	deps Deps

	maps map[string]*worldmap.Map

	world     *WorldState
	schedules map[string]character.Schedule
	sessions  map[string]*conversation.Session
	runtimes  map[string]*runtimeState

	decider decide.Decider
	breaker *llm.Breaker
	log     *slog.Logger

	pendingDecisions             map[string]chan decisionOutcome
	pendingConversationTurns     map[string]chan conversationTurnOutcome
	pendingConversationSummaries map[string]chan conversationSummaryOutcome
	pendingMiniEpisodes          map[string]chan miniEpisodeOutcome

	taskCtx    context.Context
	taskCancel context.CancelFunc
	taskWG     sync.WaitGroup

	tickCancel context.CancelFunc
	tickDone   chan struct{}

	stateSubs map[string]func(SerializedWorldState)
	logSubs   map[string]func(ActivityLogEntry)
}

// New constructs an Engine in PhaseUninitialized. Call Initialize before
// Start.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		phase:                        PhaseUninitialized,
		pendingDecisions:             map[string]chan decisionOutcome{},
		pendingConversationTurns:     map[string]chan conversationTurnOutcome{},
		pendingConversationSummaries: map[string]chan conversationSummaryOutcome{},
		pendingMiniEpisodes:          map[string]chan miniEpisodeOutcome{},
		stateSubs:                    map[string]func(SerializedWorldState){},
		logSubs:                      map[string]func(ActivityLogEntry){},
		log:                          log,
	}
}

// Initialize constructs WorldState from the given maps/characters/NPCs and
// wires the configured Decider, breaker and dependencies. It is idempotent:
// calling it again on an already-Initialized (or later) engine is a no-op
// that returns the same engine, per §4.1.
func (e *Engine) Initialize(cfg Config, deps Deps, maps map[string]*worldmap.Map, chars []*character.Character, npcs map[string]*character.NPC, startMapID string, startTime worldtime.WorldTime) (*Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseUninitialized {
		return e, nil
	}

	if len(maps) == 0 {
		return nil, fmt.Errorf("engine: at least one map is required")
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("engine: at least one character is required")
	}

	e.cfg = cfg
	e.deps = deps
	e.maps = maps
	e.world = newWorldState(chars, npcs, startMapID, startTime)
	e.schedules = map[string]character.Schedule{}
	e.sessions = map[string]*conversation.Session{}
	e.runtimes = map[string]*runtimeState{}

	fallback := decide.NewRuleBased(cfg.Thresholds)
	if cfg.DecideMode == DecideModeLLM && deps.Gateway != nil {
		e.decider = decide.NewLLMBacked(deps.Gateway, fallback)
	} else {
		e.decider = fallback
	}
	e.breaker = llm.NewBreaker(cfg.Breaker)

	e.phase = PhaseInitialized
	return e, nil
}

func (e *Engine) runtimeFor(characterID string) *runtimeState {
	rs, ok := e.runtimes[characterID]
	if !ok {
		rs = &runtimeState{}
		e.runtimes[characterID] = rs
	}
	return rs
}

// Phase reports the engine's current lifecycle state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Start transitions Initialized/Stopped -> Running and begins tick
// emission. Starting a Paused engine resumes it on its existing tick loop;
// starting an already-Running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseRunning {
		return nil
	}
	if e.phase == PhasePaused {
		e.phase = PhaseRunning
		e.world.IsPaused = false
		return nil
	}
	if e.phase != PhaseInitialized && e.phase != PhaseStopped {
		return fmt.Errorf("engine: cannot start from phase %q", e.phase)
	}

	e.taskCtx, e.taskCancel = context.WithCancel(context.Background())

	tickCtx, cancel := context.WithCancel(context.Background())
	e.tickCancel = cancel
	e.tickDone = make(chan struct{})

	e.phase = PhaseRunning
	e.world.IsPaused = false

	go e.runLoop(tickCtx)

	return nil
}

// runLoop drives the tick emission on its own goroutine at cfg.TickInterval
// wall-clock cadence; it is the only goroutine that ever calls e.tick.
func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.tickDone)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			paused := e.world.IsPaused || e.phase != PhaseRunning
			if !paused {
				e.tick()
			}
			e.mu.Unlock()
		}
	}
}

// Stop halts tick emission and drains in-flight LLM tasks to best-effort
// cancellation before returning, per §4.1/§5: new results from those tasks
// are discarded.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.phase != PhaseRunning && e.phase != PhasePaused {
		e.mu.Unlock()
		return nil
	}
	cancel := e.tickCancel
	done := e.tickDone
	taskCancel := e.taskCancel
	e.phase = PhaseStopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if taskCancel != nil {
		taskCancel()
	}
	e.taskWG.Wait()

	return nil
}

// Pause halts per-character logic and world-time advancement while leaving
// subscribers attached and wall-clock tick emission running, per §4.1.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.world.IsPaused = true
	if e.phase == PhaseRunning {
		e.phase = PhasePaused
	}
}

// Unpause resumes per-character logic and world-time advancement.
func (e *Engine) Unpause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.world.IsPaused = false
	if e.phase == PhasePaused {
		e.phase = PhaseRunning
	}
}

// TogglePause flips the current pause state and reports the new value.
func (e *Engine) TogglePause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.world.IsPaused = !e.world.IsPaused
	if e.world.IsPaused {
		if e.phase == PhaseRunning {
			e.phase = PhasePaused
		}
	} else if e.phase == PhasePaused {
		e.phase = PhaseRunning
	}
	return e.world.IsPaused
}

// IsPaused reports WorldState's pause flag.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.IsPaused
}

// IsRunning reports whether the engine is presently emitting ticks (running
// or merely paused, as opposed to stopped or never started).
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseRunning || e.phase == PhasePaused
}

// tick advances the simulation by exactly one tick: drain decision,
// conversation-turn, conversation-summary and mini-episode results queued by
// background LLM tasks since the previous tick, advance world time, apply
// stat decay to every character, drive each character's state machine in
// sorted-id order, then publish a snapshot -- the ordering guarantees of §5.
// decide, a conversation turn, a conversation summary and mini-episode
// generation are the engine's only LLM suspension points (§5); each runs as
// a background task under e.taskWG rather than blocking tick() itself, since
// tick() runs with e.mu held and every other engine method (Subscribe,
// GetState, Control, and every apiserver handler built on them) shares that
// lock.
func (e *Engine) tick() {
	e.world.Transition = nil

	e.drainPendingDecisions()
	e.drainConversationTurns()
	e.drainConversationSummaries()
	e.drainMiniEpisodes()

	now := e.world.Time.AddMinutes(int(e.cfg.WorldMinutesPerTick))
	e.world.Time = now

	ids := make([]string, 0, len(e.world.Characters))
	for id := range e.world.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := e.world.Characters[id]
		e.applyStatDecay(c, now)
	}

	for _, id := range ids {
		c := e.world.Characters[id]
		e.simulateCharacter(c, now)
	}

	e.world.Tick++
	snapshot := e.world.snapshot()
	e.publishState(snapshot)
}

// applyStatDecay advances c's stats by one tick's world-minutes, replacing
// (not superimposing) decay for any stat covered by the running action's
// perMinute effects, per §4.5/§8 property 7.
func (e *Engine) applyStatDecay(c *character.Character, now worldtime.WorldTime) {
	var override map[string]float64
	if c.CurrentAction != nil {
		if def, ok := e.cfg.Catalogue[c.CurrentAction.ActionID]; ok {
			override = def.Effects.PerMinute
		}
	}
	character.ApplyDecay(c, e.cfg.DecayRates, override, e.cfg.WorldMinutesPerTick)
}

// simulateCharacter advances one character's Idle/Deciding/Moving/Acting
// state machine by one tick, per §4.4. Exactly one of {Idle, Moving, Acting}
// applies afterward, modulo a pending action held during Moving.
func (e *Engine) simulateCharacter(c *character.Character, now worldtime.WorldTime) {
	switch {
	case c.CurrentAction != nil:
		e.tickAction(c, now)

	case c.Navigation.IsMoving:
		e.tickNavigation(c, now)

	default:
		e.maybeDecide(c, now)
	}
}

// emitLog hands entry to every log subscriber, synchronously and in
// registration-independent FIFO order per subscriber, per §4.10.
func (e *Engine) emitLog(entry ActivityLogEntry) {
	for _, cb := range e.logSubs {
		cb(entry)
	}
}

func (e *Engine) publishState(s SerializedWorldState) {
	for _, cb := range e.stateSubs {
		cb(s)
	}
}

// Subscribe registers cb to receive every future snapshot, delivering the
// current one immediately, per §4.10. The returned unsubscribe function is
// idempotent.
func (e *Engine) Subscribe(cb func(SerializedWorldState)) func() {
	e.mu.Lock()
	id := uuid.NewString()
	e.stateSubs[id] = cb
	snapshot := e.world.snapshot()
	e.mu.Unlock()

	cb(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.stateSubs, id)
			e.mu.Unlock()
		})
	}
}

// SubscribeToLogs registers cb to receive every future ActivityLogEntry.
// The returned unsubscribe function is idempotent.
func (e *Engine) SubscribeToLogs(cb func(ActivityLogEntry)) func() {
	e.mu.Lock()
	id := uuid.NewString()
	e.logSubs[id] = cb
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.logSubs, id)
			e.mu.Unlock()
		})
	}
}

// GetSubscriberCount returns the sum of state- and log-subscribers, for
// operational introspection only (§4.10).
func (e *Engine) GetSubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.stateSubs) + len(e.logSubs)
}

// Meta is the control API's non-state metadata, per §6's getState() shape.
type Meta struct {
	TickRate         time.Duration `json:"tickRate"`
	IsPaused         bool          `json:"isPaused"`
	IsRunning        bool          `json:"isRunning"`
	SubscriberCount  int           `json:"subscriberCount"`
}

// GetState returns the current snapshot plus operational metadata, per §6.
func (e *Engine) GetState() (SerializedWorldState, Meta) {
	e.mu.Lock()
	snapshot := e.world.snapshot()
	meta := Meta{
		TickRate:        e.cfg.TickInterval,
		IsPaused:        e.world.IsPaused,
		IsRunning:       e.phase == PhaseRunning || e.phase == PhasePaused,
		SubscriberCount: len(e.stateSubs) + len(e.logSubs),
	}
	e.mu.Unlock()
	return snapshot, meta
}

// ControlAction is one of the Control API's recognised engine commands.
type ControlAction string

const (
	ControlPause   ControlAction = "pause"
	ControlUnpause ControlAction = "unpause"
	ControlToggle  ControlAction = "toggle"
	ControlStart   ControlAction = "start"
	ControlStop    ControlAction = "stop"
)

// ValidationError marks a Control API input that failed validation, per §7's
// error table (returned to the caller as a 400-equivalent).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Control dispatches one Control API command and reports the resulting
// pause/run flags, per §6.
func (e *Engine) Control(action ControlAction) (isPaused, isRunning bool, err error) {
	switch action {
	case ControlPause:
		e.Pause()
	case ControlUnpause:
		e.Unpause()
	case ControlToggle:
		e.TogglePause()
	case ControlStart:
		if serr := e.Start(); serr != nil {
			return false, false, serr
		}
	case ControlStop:
		if serr := e.Stop(); serr != nil {
			return false, false, serr
		}
	default:
		return false, false, &ValidationError{Msg: fmt.Sprintf("unknown control action %q", action)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.IsPaused, e.phase == PhaseRunning || e.phase == PhasePaused, nil
}
