package engine

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/worldsim/worldsim/internal/action"
	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/llm"
	"github.com/worldsim/worldsim/internal/worldmap"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// miniEpisodeOutcome is what a background mini-episode task reports back to
// drainMiniEpisodes: enough of the just-completed action's identity to patch
// the right ActionHistory row without holding a pointer into it.
type miniEpisodeOutcome struct {
	day       uint32
	entryTime string
	deltas    map[string]float64
	text      string
	err       error
}

// resolveActionTarget turns a Decision naming an action into the concrete
// location the character must stand at to perform it: the NPC's node for
// "talk", a node inside the named facility's obstacle otherwise, or the
// character's current location when no target was named at all.
func (e *Engine) resolveActionTarget(c *character.Character, decision decide.Decision) (mapID, nodeID string, facility *worldmap.Facility, obstacleID string, err error) {
	if decision.ActionID == "talk" {
		npc, ok := e.world.NPCs[decision.TargetNPCID]
		if !ok {
			return "", "", nil, "", fmt.Errorf("unknown npc %s", decision.TargetNPCID)
		}
		return npc.MapID, npc.CurrentNodeID, nil, "", nil
	}

	if decision.TargetFacilityID == "" {
		return c.CurrentMapID, c.CurrentNodeID, nil, "", nil
	}

	mapID = decision.TargetMapID
	if mapID == "" {
		mapID = c.CurrentMapID
	}
	m, ok := e.maps[mapID]
	if !ok {
		return "", "", nil, "", fmt.Errorf("unknown map %s", mapID)
	}

	node, ok := m.FacilityNode(decision.TargetFacilityID)
	if !ok {
		return "", "", nil, "", fmt.Errorf("facility %s not found on map %s", decision.TargetFacilityID, mapID)
	}

	obs := m.ObstacleByID(decision.TargetFacilityID)
	var fac *worldmap.Facility
	if obs != nil {
		fac = obs.Facility
	}
	return mapID, node.ID, fac, decision.TargetFacilityID, nil
}

// facilityAt looks up the facility attached to obstacleID on mapID, or nil if
// either does not resolve (no facility was involved, e.g. a "thinking" action).
func (e *Engine) facilityAt(mapID, obstacleID string) *worldmap.Facility {
	if obstacleID == "" {
		return nil
	}
	m, ok := e.maps[mapID]
	if !ok {
		return nil
	}
	obs := m.ObstacleByID(obstacleID)
	if obs == nil {
		return nil
	}
	return obs.Facility
}

// enterAction validates def.Requirements against the character's immediate
// surroundings and, if satisfied, starts the action -- a conversation
// session for "talk", an Acting{CurrentAction} span for everything else.
func (e *Engine) enterAction(c *character.Character, decision decide.Decision, facility *worldmap.Facility, obstacleID string, now worldtime.WorldTime) {
	def, ok := e.cfg.Catalogue[decision.ActionID]
	if !ok {
		e.setFailureCooldown(c, now)
		return
	}

	nearNPCID := ""
	if def.Requirements.NearNPC {
		nearNPCID = decision.TargetNPCID
	}

	if err := action.CheckPreconditions(def, action.Context{Character: c, Facility: facility, NearNPCID: nearNPCID}); err != nil {
		e.log.Debug("action_precondition_failed", "characterId", c.ID, "error", err.Error())
		e.setFailureCooldown(c, now)
		return
	}

	if decision.ActionID == "talk" {
		e.enterConversation(c, decision, now)
		return
	}

	duration := resolveDuration(def, decision)
	c.CurrentAction = &character.CurrentAction{
		ActionID:        decision.ActionID,
		StartTime:       now,
		TargetEndTime:   now.AddMinutes(duration),
		FacilityID:      obstacleID,
		TargetNPCID:     decision.TargetNPCID,
		DurationMinutes: duration,
	}
	c.PendingAction = nil
	c.ConsecutiveDecisionFailures = 0

	e.emitLog(ActivityLogEntry{
		Kind: LogKindAction, Timestamp: now, CharacterID: c.ID, CharacterName: c.Name,
		ActionCounter: c.NextActionCounter(),
		Action:        &ActionLogPayload{Status: ActionStarted, ActionID: decision.ActionID, FacilityID: obstacleID, DurationMinutes: duration},
	})
}

// resolveDuration picks the action's running length in world-minutes: a
// fixed-duration definition always wins; a variable-duration one uses the
// decision's requested length if it falls within [Min,Max], else its Default.
func resolveDuration(def *action.Definition, decision decide.Decision) int {
	if def.Duration != nil {
		return *def.Duration
	}
	if def.DurationRange != nil {
		r := def.DurationRange
		if decision.DurationMinutes >= r.Min && decision.DurationMinutes <= r.Max {
			return decision.DurationMinutes
		}
		return r.Default
	}
	return 1
}

// tickAction advances whatever the character is presently doing: a talk
// action is driven by tickConversation's own pacing; any other action simply
// waits for its TargetEndTime (its stat effects already accrue every tick
// via the decay override, per §4.5's "replace, not superimpose" rule).
func (e *Engine) tickAction(c *character.Character, now worldtime.WorldTime) {
	if c.CurrentAction.ActionID == "talk" {
		e.tickConversation(c, now)
		return
	}
	if now.AtOrAfter(c.CurrentAction.TargetEndTime) {
		e.completeAction(c, now)
	}
}

// completeAction applies a fixed-duration action's one-shot stat/money
// deltas, deducts the acting facility's Cost (if any -- resolved uniformly
// on completion for every action definition, not just "eat", per §4.5/§9),
// records the action in history (mini-episode generation dispatched as a
// background task, unless the action is the "thinking" internal state never
// persisted per §4.5), and clears CurrentAction.
func (e *Engine) completeAction(c *character.Character, now worldtime.WorldTime) {
	def := e.cfg.Catalogue[c.CurrentAction.ActionID]

	for stat, delta := range def.Effects.Fixed {
		v, _ := c.Stats.Get(stat)
		c.Stats.Set(stat, v+delta)
	}
	c.Stats.Clamp()

	moneyDelta := action.ResolveMoney(def.Effects.Money, c.Employment, float64(c.CurrentAction.DurationMinutes))
	c.Money += moneyDelta

	if facility := e.facilityAt(c.CurrentMapID, c.CurrentAction.FacilityID); facility != nil && facility.Cost != nil {
		c.Money -= *facility.Cost
	}

	if !e.cfg.AllowNegativeMoney && c.Money < 0 {
		c.Money = 0
	}

	actionID := c.CurrentAction.ActionID
	facilityID := c.CurrentAction.FacilityID
	duration := c.CurrentAction.DurationMinutes
	startTime := c.CurrentAction.StartTime

	if actionID != "thinking" {
		entry := character.ActionHistoryEntry{
			CharacterID:     c.ID,
			Day:             now.Day,
			Time:            startTime.Clock(),
			ActionID:        actionID,
			Target:          facilityID,
			DurationMinutes: duration,
		}
		if err := e.deps.Store.AddActionHistory(entry); err != nil {
			e.log.Warn("persistence_error", "op", "AddActionHistory", "error", err.Error())
		}

		if e.deps.Gateway != nil && rand.Float64() < e.cfg.MiniEpisodeProbability {
			e.maybeGenerateMiniEpisode(c, def, now, entry.Time)
		}
	}

	e.emitLog(ActivityLogEntry{
		Kind: LogKindAction, Timestamp: now, CharacterID: c.ID, CharacterName: c.Name,
		ActionCounter: c.NextActionCounter(),
		Action:        &ActionLogPayload{Status: ActionCompleted, ActionID: actionID, FacilityID: facilityID, DurationMinutes: duration},
	})

	c.CurrentAction = nil
}

// maybeGenerateMiniEpisode dispatches a background task asking the Gateway
// for a short narrative fragment to attach to the just-completed action,
// mirroring maybeDecide's task-plus-channel pattern: the LLM round-trip runs
// without e.mu held, and drainMiniEpisodes applies the result (persistence +
// log emission) on a later tick. LLM failures here are classified and logged
// but never fail the action itself or pause the engine -- mini-episodes are
// flavour, not a core loop dependency.
func (e *Engine) maybeGenerateMiniEpisode(c *character.Character, def *action.Definition, now worldtime.WorldTime, entryTime string) {
	rs := e.runtimeFor(c.ID)
	if rs.miniEpisodePending {
		return
	}

	prompt := fmt.Sprintf(
		"Character %s just finished %q at %s. Personality: %s. Write one or two sentences of narrative flavour for this moment.",
		c.Name, def.ActionID, now.String(), c.Personality,
	)
	deltas := def.Effects.Fixed
	if len(deltas) == 0 {
		deltas = def.Effects.PerMinute
	}

	rs.miniEpisodePending = true
	ctx, cancel := context.WithCancel(e.taskCtx)
	rs.miniEpisodeCancel = cancel
	ch := make(chan miniEpisodeOutcome, 1)
	e.pendingMiniEpisodes[c.ID] = ch

	gw := e.deps.Gateway
	day := now.Day
	e.taskWG.Add(1)
	go func() {
		defer e.taskWG.Done()
		defer cancel()
		text, err := gw.GenerateText(ctx, prompt, miniEpisodeSystemPrompt)
		select {
		case ch <- miniEpisodeOutcome{day: day, entryTime: entryTime, deltas: deltas, text: text, err: err}:
		case <-ctx.Done():
		}
	}()
}

// drainMiniEpisodes applies every mini-episode result that has arrived since
// the previous tick: patches the matching ActionHistory row with the
// narrative and emits the mini_episode log entry.
func (e *Engine) drainMiniEpisodes() {
	for charID, ch := range e.pendingMiniEpisodes {
		select {
		case out := <-ch:
			delete(e.pendingMiniEpisodes, charID)
			rs := e.runtimeFor(charID)
			rs.miniEpisodePending = false
			rs.miniEpisodeCancel = nil

			if out.err != nil {
				classified := llm.ClassifyErr(out.err)
				e.log.Warn("mini_episode_error", "characterId", charID, "code", string(classified.Code), "error", out.err.Error())
				continue
			}

			c, ok := e.world.Characters[charID]
			if !ok {
				continue
			}

			episode := character.Episode{Narrative: out.text, StatDeltas: out.deltas}
			if err := e.deps.Store.UpdateActionHistoryEpisode(charID, out.day, out.entryTime, episode); err != nil {
				e.log.Warn("persistence_error", "op", "UpdateActionHistoryEpisode", "error", err.Error())
			}
			e.emitLog(ActivityLogEntry{
				Kind: LogKindMiniEpisode, Timestamp: e.world.Time, CharacterID: charID, CharacterName: c.Name,
				ActionCounter: c.NextActionCounter(),
				MiniEpisode:   &MiniEpisodeLogPayload{Narrative: episode.Narrative, StatDeltas: episode.StatDeltas},
			})
		default:
		}
	}
}

const miniEpisodeSystemPrompt = "You write brief, grounded narrative flavour text for a life simulation. Keep it to one or two sentences."
