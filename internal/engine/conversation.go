package engine

import (
	"context"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/conversation"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// conversationTurnOutcome is what a background conversation-turn task reports
// back to drainConversationTurns: the session it worked from (a snapshot, not
// the live pointer -- see tickConversation) together with Advance's effect.
type conversationTurnOutcome struct {
	sessionID string
	session   conversation.Session
	effect    conversation.TurnEffect
	err       error
}

// conversationSummaryOutcome is what a background summary task reports back
// to drainConversationSummaries. It carries enough of the now-closed
// session's identity to build the log entry without re-reading the session:
// by the time this arrives, the session has already been removed from
// e.sessions.
type conversationSummaryOutcome struct {
	characterID   string
	characterName string
	npcID         string

	summary conversation.Summary
	err     error

	affinityChange int
	fallbackMood   string
	goalAchieved   bool
}

// enterConversation opens a Session between c and the NPC named by
// decision.TargetNPCID. At most one open session per NPC is enforced for
// free: characters are processed in sorted-id order within tick(), and
// npc.InConversation is set here synchronously, so a later character in the
// same tick sees the NPC already taken and fails its own precondition check.
func (e *Engine) enterConversation(c *character.Character, decision decide.Decision, now worldtime.WorldTime) {
	npc, ok := e.world.NPCs[decision.TargetNPCID]
	if !ok || npc.InConversation {
		e.setFailureCooldown(c, now)
		return
	}

	goal := conversation.Goal{Goal: "make conversation"}
	if decision.ConversationGoal != nil {
		goal = *decision.ConversationGoal
	}

	sess := conversation.New(c.ID, npc.ID, goal, now)
	e.sessions[sess.ID] = sess

	npc.InConversation = true
	npc.ConversationCount++
	lastAt := now
	npc.LastConversationAt = &lastAt

	c.ConversationID = sess.ID
	c.CurrentAction = &character.CurrentAction{ActionID: "talk", StartTime: now, TargetEndTime: now, TargetNPCID: npc.ID}
	c.PendingAction = nil
	c.ConsecutiveDecisionFailures = 0

	rs := e.runtimeFor(c.ID)
	rs.lastConversationAt = now.AddMinutes(-e.cfg.ConversationTurnIntervalMinutes - 1)
	rs.affinitySum = 0

	e.emitLog(ActivityLogEntry{
		Kind: LogKindAction, Timestamp: now, CharacterID: c.ID, CharacterName: c.Name,
		ActionCounter: c.NextActionCounter(),
		Action:        &ActionLogPayload{Status: ActionStarted, ActionID: "talk"},
	})
}

func characterProfile(c *character.Character) conversation.Profile {
	return conversation.Profile{ID: c.ID, Name: c.Name, Personality: c.Personality, Tendencies: c.Tendencies, CustomPrompt: c.CustomPrompt}
}

func npcConversationProfile(npc *character.NPC) conversation.Profile {
	return conversation.Profile{
		ID: npc.ID, Name: npc.Name, Personality: npc.Personality, Tendencies: npc.Tendencies,
		Facts: npc.Facts, Affinity: npc.Affinity, Mood: npc.Mood, CustomPrompt: npc.CustomPrompt,
	}
}

// tickConversation dispatches one pending turn of c's active session, once
// ConversationTurnIntervalMinutes of world-time has elapsed since the last
// one, as a background task under e.taskWG: conversation.Advance is an LLM
// round-trip and must not hold e.mu for its duration, per §5's suspension-
// point rule -- mirroring maybeDecide's pattern exactly rather than the
// earlier in-tick call, which held e.mu (and therefore blocked every other
// engine method, not just later characters in the same tick) for as long as
// the round-trip took. Advance mutates its Session argument in place, so the
// task runs against a snapshot copy rather than the live *conversation.Session;
// drainConversationTurns applies the mutated fields back onto the live
// session under the lock once the result arrives.
func (e *Engine) tickConversation(c *character.Character, now worldtime.WorldTime) {
	sess, ok := e.sessions[c.ConversationID]
	if !ok {
		c.CurrentAction = nil
		c.ConversationID = ""
		return
	}

	rs := e.runtimeFor(c.ID)
	if rs.conversationPending {
		return
	}
	if now.Sub(rs.lastConversationAt) < e.cfg.ConversationTurnIntervalMinutes {
		return
	}

	npc := e.world.NPCs[sess.NPCID]
	charProfile := characterProfile(c)
	npcProfile := npcConversationProfile(npc)

	sessCopy := *sess
	sessCopy.Messages = append([]conversation.Message(nil), sess.Messages...)

	rs.conversationPending = true
	ctx, cancel := context.WithCancel(e.taskCtx)
	rs.conversationCancel = cancel
	ch := make(chan conversationTurnOutcome, 1)
	e.pendingConversationTurns[c.ID] = ch

	gw := e.deps.Gateway
	e.taskWG.Add(1)
	go func() {
		defer e.taskWG.Done()
		defer cancel()
		effect, err := conversation.Advance(ctx, gw, &sessCopy, charProfile, npcProfile, now)
		select {
		case ch <- conversationTurnOutcome{sessionID: sessCopy.ID, session: sessCopy, effect: effect, err: err}:
		case <-ctx.Done():
		}
	}()
}

// drainConversationTurns applies every conversation-turn result that has
// arrived since the previous tick, in the same non-blocking per-character
// drain shape as drainPendingDecisions.
func (e *Engine) drainConversationTurns() {
	for charID, ch := range e.pendingConversationTurns {
		select {
		case out := <-ch:
			delete(e.pendingConversationTurns, charID)
			rs := e.runtimeFor(charID)
			rs.conversationPending = false
			rs.conversationCancel = nil
			e.applyConversationTurnOutcome(charID, out)
		default:
		}
	}
}

func (e *Engine) applyConversationTurnOutcome(charID string, out conversationTurnOutcome) {
	rs := e.runtimeFor(charID)

	c, ok := e.world.Characters[charID]
	if !ok {
		return
	}
	sess, ok := e.sessions[c.ConversationID]
	if !ok || sess.ID != out.sessionID {
		return
	}
	npc := e.world.NPCs[sess.NPCID]

	if out.err != nil {
		e.handleLLMError(c, e.world.Time, out.err)
		e.endConversation(c, npc, sess)
		rs.affinitySum = 0
		return
	}

	sess.Messages = out.session.Messages
	sess.CurrentTurn = out.session.CurrentTurn
	sess.Status = out.session.Status
	sess.GoalAchieved = out.session.GoalAchieved

	rs.lastConversationAt = e.world.Time
	rs.affinitySum += out.effect.AffinityDelta

	if out.effect.AffinityDelta != 0 {
		npc.Affinity += out.effect.AffinityDelta
		npc.ClampAffinity(e.cfg.AffinityMin, e.cfg.AffinityMax)
	}
	if out.effect.NewNPCMood != "" {
		npc.Mood = out.effect.NewNPCMood
	}
	if out.effect.FactLearned != "" {
		npc.Facts = append(npc.Facts, out.effect.FactLearned)
	}

	if len(sess.Messages) > 0 {
		last := sess.Messages[len(sess.Messages)-1]
		e.emitLog(ActivityLogEntry{
			Kind: LogKindConversationMessage, Timestamp: e.world.Time, CharacterID: c.ID, CharacterName: c.Name,
			ActionCounter: c.NextActionCounter(),
			ConversationMessage: &ConversationMessageLogPayload{
				NPCID: npc.ID, Speaker: string(last.Speaker), SpeakerID: last.SpeakerID,
				SpeakerName: last.SpeakerName, Utterance: last.Utterance,
			},
		})
	}

	if out.effect.SessionEnded {
		affinitySum := rs.affinitySum
		rs.affinitySum = 0
		e.dispatchConversationSummary(c, npc, sess, affinitySum)
	}
}

// dispatchConversationSummary ends the session immediately -- it has already
// concluded per Advance's effect -- and requests its closing summary as a
// background task, so the still-pending LLM round-trip for flavour text
// never delays freeing the character/NPC for their next tick.
func (e *Engine) dispatchConversationSummary(c *character.Character, npc *character.NPC, sess *conversation.Session, affinitySum int) {
	charProfile := characterProfile(c)
	npcProfile := npcConversationProfile(npc)

	sessCopy := *sess
	sessCopy.Messages = append([]conversation.Message(nil), sess.Messages...)

	out := conversationSummaryOutcome{
		characterID: c.ID, characterName: c.Name, npcID: npc.ID,
		affinityChange: affinitySum, fallbackMood: npc.Mood, goalAchieved: sess.GoalAchieved,
	}

	ctx, cancel := context.WithCancel(e.taskCtx)
	ch := make(chan conversationSummaryOutcome, 1)
	e.pendingConversationSummaries[c.ID] = ch

	gw := e.deps.Gateway
	e.taskWG.Add(1)
	go func() {
		defer e.taskWG.Done()
		defer cancel()
		summary, err := conversation.Summarize(ctx, gw, &sessCopy, charProfile, npcProfile, affinitySum)
		out.summary, out.err = summary, err
		select {
		case ch <- out:
		case <-ctx.Done():
		}
	}()

	e.endConversation(c, npc, sess)
}

// drainConversationSummaries applies every summary result that has arrived
// since the previous tick, falling back to a minimal summary (matching the
// old synchronous error path) when the LLM call failed.
func (e *Engine) drainConversationSummaries() {
	for charID, ch := range e.pendingConversationSummaries {
		select {
		case out := <-ch:
			delete(e.pendingConversationSummaries, charID)

			summary := out.summary
			if out.err != nil {
				summary = conversation.Summary{AffinityChange: out.affinityChange, NPCMood: out.fallbackMood, GoalAchieved: out.goalAchieved}
			}

			name := out.characterName
			var counter uint64
			if c, ok := e.world.Characters[charID]; ok {
				name = c.Name
				counter = c.NextActionCounter()
			}

			e.emitLog(ActivityLogEntry{
				Kind: LogKindConversation, Timestamp: e.world.Time, CharacterID: charID, CharacterName: name,
				ActionCounter: counter,
				Conversation: &ConversationLogPayload{
					NPCID: out.npcID, Summary: summary.Summary, Topics: summary.Topics,
					AffinityChange: summary.AffinityChange, NPCMood: summary.NPCMood, GoalAchieved: summary.GoalAchieved,
				},
			})
		default:
		}
	}
}

func (e *Engine) endConversation(c *character.Character, npc *character.NPC, sess *conversation.Session) {
	if npc != nil {
		npc.InConversation = false
	}
	c.CurrentAction = nil
	c.ConversationID = ""
	delete(e.sessions, sess.ID)
}
