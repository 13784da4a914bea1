package engine

import (
	"context"
	"log/slog"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/llm"
	"github.com/worldsim/worldsim/internal/worldtime"
)

type decisionOutcome struct {
	decision decide.Decision
	err      error
}

// maybeDecide is the Idle/Deciding entry point: if the character's cooldown
// has elapsed and no decision is already in flight for it, a new one is
// requested -- synchronously for the rule-based decider (no suspension
// point), as a background task for the LLM-backed one (§5's "at most one
// in-flight LLM call per character").
func (e *Engine) maybeDecide(c *character.Character, now worldtime.WorldTime) {
	if now.Before(c.DecisionCooldownUntil) {
		return
	}

	rs := e.runtimeFor(c.ID)
	if rs.decisionPending {
		return
	}

	bctx := e.buildContext(c, now)

	if e.cfg.DecideMode != DecideModeLLM {
		decision, err := e.decider.Decide(context.Background(), bctx)
		e.applyDecision(c, now, decision, err)
		return
	}

	rs.decisionPending = true
	ctx, cancel := context.WithCancel(e.taskCtx)
	rs.decisionCancel = cancel

	ch := make(chan decisionOutcome, 1)
	e.pendingDecisions[c.ID] = ch

	e.taskWG.Add(1)
	go func() {
		defer e.taskWG.Done()
		defer cancel()

		decision, err := e.decider.Decide(ctx, bctx)
		select {
		case ch <- decisionOutcome{decision: decision, err: err}:
		case <-ctx.Done():
		}
	}()
}

// drainPendingDecisions applies every decision result that has arrived since
// the last tick, at the start of this tick -- a decision requested in tick T
// is therefore applied no earlier than tick T+1, per §5.
func (e *Engine) drainPendingDecisions() {
	for id, ch := range e.pendingDecisions {
		select {
		case out := <-ch:
			delete(e.pendingDecisions, id)
			rs := e.runtimeFor(id)
			rs.decisionPending = false
			rs.decisionCancel = nil

			c, ok := e.world.Characters[id]
			if ok {
				e.applyDecision(c, e.world.Time, out.decision, out.err)
			}
		default:
		}
	}
}

// applyDecision is the single code path both the synchronous rule-based
// branch and the drained LLM-backed branch funnel through, so the two
// decider implementations can never diverge in how their output is acted on.
func (e *Engine) applyDecision(c *character.Character, now worldtime.WorldTime, decision decide.Decision, err error) {
	if err != nil {
		e.handleLLMError(c, now, err)
		return
	}

	if decision.ScheduleUpdate != nil {
		e.applyScheduleUpdate(c, decision.ScheduleUpdate, now)
	}

	switch decision.Type {
	case decide.TypeIdle:
		e.setIdleCooldown(c, now)

	case decide.TypeAction:
		mapID, nodeID, facility, obstacleID, rerr := e.resolveActionTarget(c, decision)
		if rerr != nil {
			e.log.Debug("decision_target_unresolved", slog.String("characterId", c.ID), slog.String("error", rerr.Error()))
			e.setFailureCooldown(c, now)
			return
		}

		if mapID == c.CurrentMapID && nodeID == c.CurrentNodeID {
			e.enterAction(c, decision, facility, obstacleID, now)
			return
		}

		if !e.routeCharacterTo(c, mapID, nodeID, now) {
			e.setFailureCooldown(c, now)
			return
		}
		c.PendingAction = &character.PendingAction{ActionID: decision.ActionID, FacilityID: obstacleID, TargetNPCID: decision.TargetNPCID}

	case decide.TypeMove:
		mapID := decision.TargetMapID
		if mapID == "" {
			mapID = c.CurrentMapID
		}
		if mapID == c.CurrentMapID && decision.TargetNodeID == c.CurrentNodeID {
			e.setIdleCooldown(c, now)
			return
		}
		if !e.routeCharacterTo(c, mapID, decision.TargetNodeID, now) {
			e.setFailureCooldown(c, now)
		}

	default:
		e.setFailureCooldown(c, now)
	}
}

func (e *Engine) handleLLMError(c *character.Character, now worldtime.WorldTime, err error) {
	classified := llm.ClassifyErr(err)
	e.log.Warn("llm_error",
		slog.String("characterId", c.ID),
		slog.String("code", string(classified.Code)),
		slog.String("severity", string(classified.Severity)),
		slog.String("error", err.Error()),
	)

	willPause := e.breaker.RecordFailure(classified.Severity)
	if e.deps.Notifier != nil {
		e.deps.Notifier.NotifyLLMError(classified, willPause)
	}
	if willPause && !e.world.IsPaused {
		e.world.IsPaused = true
		e.log.Warn("engine_paused", slog.String("reason", "llm_error"), slog.String("code", string(classified.Code)))
	}

	e.setFailureCooldown(c, now)
}

func (e *Engine) setIdleCooldown(c *character.Character, now worldtime.WorldTime) {
	c.ConsecutiveDecisionFailures = 0
	backoff := llm.Backoff(e.cfg.DecisionCooldownBaseMinutes, 0, e.cfg.DecisionCooldownCap)
	c.DecisionCooldownUntil = now.AddMinutes(backoff)
}

func (e *Engine) setFailureCooldown(c *character.Character, now worldtime.WorldTime) {
	c.ConsecutiveDecisionFailures++
	backoff := llm.Backoff(e.cfg.DecisionCooldownBaseMinutes, c.ConsecutiveDecisionFailures, e.cfg.DecisionCooldownCap)
	c.DecisionCooldownUntil = now.AddMinutes(backoff)
}

func (e *Engine) applyScheduleUpdate(c *character.Character, update *decide.ScheduleUpdate, now worldtime.WorldTime) {
	sched := e.scheduleFor(c.ID, now.Day)

	switch update.Kind {
	case decide.ScheduleAdd:
		sched = append(sched, update.Entry)
	case decide.ScheduleModify:
		if update.Index >= 0 && update.Index < len(sched) {
			sched[update.Index] = update.Entry
		}
	case decide.ScheduleRemove:
		if update.Index >= 0 && update.Index < len(sched) {
			sched = append(sched[:update.Index], sched[update.Index+1:]...)
		}
	}

	e.schedules[c.ID] = sched
	if err := e.deps.Store.SaveSchedule(c.ID, now.Day, sched); err != nil {
		e.log.Warn("persistence_error", slog.String("op", "SaveSchedule"), slog.String("error", err.Error()))
	}
}

func (e *Engine) scheduleFor(characterID string, day uint32) character.Schedule {
	if sched, ok := e.schedules[characterID]; ok {
		return sched
	}
	sched, _, _ := e.deps.Store.LoadSchedule(characterID, day)
	e.schedules[characterID] = sched
	return sched
}
