// Package decide implements the Behaviour Decider: a rule-based fallback and
// an LLM-backed primary policy sharing one contract, generalising the
// teacher's agent/plan.go decision helpers (letsTalk/letsReact/shouldReact,
// each a heuristic-then-cognition-call pair) into a single explicit
// Decider interface the Character Simulator calls once per Deciding entry.
package decide

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/conversation"
	"github.com/worldsim/worldsim/internal/llm"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// Type is the kind of BehaviourDecision returned by a Decider.
type Type string

const (
	TypeAction Type = "action"
	TypeMove   Type = "move"
	TypeIdle   Type = "idle"
)

// ScheduleUpdateKind enumerates the mutations a decision may request against
// today's schedule.
type ScheduleUpdateKind string

const (
	ScheduleAdd    ScheduleUpdateKind = "add"
	ScheduleModify ScheduleUpdateKind = "modify"
	ScheduleRemove ScheduleUpdateKind = "remove"
)

// ScheduleUpdate is an atomic mutation to today's Schedule, applied by the
// engine before control returns to the caller (§4.7).
type ScheduleUpdate struct {
	Kind  ScheduleUpdateKind `json:"kind"`
	Index int                `json:"index,omitempty"`
	Entry character.ScheduleEntry `json:"entry,omitempty"`
}

// Decision is the Behaviour Decider's output.
type Decision struct {
	Type             Type                  `json:"type"`
	ActionID         string                `json:"actionId,omitempty"`
	TargetNodeID     string                `json:"targetNodeId,omitempty"`
	TargetMapID      string                `json:"targetMapId,omitempty"`
	TargetNPCID      string                `json:"targetNpcId,omitempty"`
	TargetFacilityID string                `json:"targetFacilityId,omitempty"`
	ConversationGoal *conversation.Goal    `json:"conversationGoal,omitempty"`
	DurationMinutes  int                   `json:"durationMinutes,omitempty"`
	ScheduleUpdate   *ScheduleUpdate       `json:"scheduleUpdate,omitempty"`
	Reason           string                `json:"reason,omitempty"`
}

// FacilityInfo describes one facility available for decision-making.
type FacilityInfo struct {
	ID               string
	Tags             []string
	AvailableActions []string
}

// NearbyNPC describes an NPC the decider may choose to approach.
type NearbyNPC struct {
	ID   string
	Name string
	HopDistance int
}

// NearbyFacility is a facility on another map, reachable within a hop bound.
type NearbyFacility struct {
	FacilityInfo
	MapID       string
	HopDistance int
}

// BehaviorContext is everything a Decider may consult to produce a Decision.
type BehaviorContext struct {
	Character            *character.Character
	Now                   worldtime.WorldTime
	Schedule              character.Schedule
	AvailableActions      []string
	CurrentMapFacilities  []FacilityInfo
	NearbyMaps            []string
	NearbyFacilities      []NearbyFacility
	NearbyNPCs            []NearbyNPC
	TodayActions          []character.ActionHistoryEntry
	MidTermMemories       []character.MidTermMemory
}

// Decider produces a BehaviourDecision for a character about to enter Deciding.
type Decider interface {
	Decide(ctx context.Context, bctx BehaviorContext) (Decision, error)
}

// Thresholds configures the rule-based fallback's urgent-stat triggers.
type Thresholds struct {
	BladderUrgent float64
	EnergyUrgent  float64
	SatietyUrgent float64
	NightStartHour int
	NightEndHour   int
}

// DefaultThresholds are reasonable, reproducible defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{BladderUrgent: 15, EnergyUrgent: 20, SatietyUrgent: 20, NightStartHour: 22, NightEndHour: 6}
}

// RuleBased is the safe, deterministic fallback decider of §4.7: urgent
// stat triggers, then the current schedule entry, then idle.
type RuleBased struct {
	Thresholds Thresholds
}

func NewRuleBased(t Thresholds) *RuleBased {
	return &RuleBased{Thresholds: t}
}

func (r *RuleBased) Decide(_ context.Context, bctx BehaviorContext) (Decision, error) {
	c := bctx.Character

	if c.Stats.Bladder < r.Thresholds.BladderUrgent {
		if fac, ok := nearestFacilityWithAction(bctx, "toilet"); ok {
			return Decision{Type: TypeAction, ActionID: "toilet", TargetFacilityID: fac, Reason: "bladder urgent"}, nil
		}
	}

	inNightRange := int(bctx.Now.Hour) >= r.Thresholds.NightStartHour || int(bctx.Now.Hour) < r.Thresholds.NightEndHour
	if c.Stats.Energy < r.Thresholds.EnergyUrgent && inNightRange {
		if fac, ok := nearestFacilityWithAction(bctx, "sleep"); ok {
			return Decision{Type: TypeAction, ActionID: "sleep", TargetFacilityID: fac, Reason: "energy urgent at night"}, nil
		}
	}

	if c.Stats.Satiety < r.Thresholds.SatietyUrgent {
		if fac, ok := nearestFacilityWithAction(bctx, "eat"); ok {
			return Decision{Type: TypeAction, ActionID: "eat", TargetFacilityID: fac, Reason: "satiety urgent"}, nil
		}
	}

	if idx := bctx.Schedule.DueEntry(bctx.Now); idx >= 0 {
		entry := bctx.Schedule[idx]
		return Decision{
			Type:             TypeAction,
			ActionID:         entry.Activity,
			TargetFacilityID: entry.Location,
			Reason:           "schedule entry due",
			ScheduleUpdate:   &ScheduleUpdate{Kind: ScheduleModify, Index: idx, Entry: markDone(entry)},
		}, nil
	}

	return Decision{Type: TypeIdle, Reason: "nothing due"}, nil
}

func markDone(e character.ScheduleEntry) character.ScheduleEntry {
	e.Done = true
	return e
}

func nearestFacilityWithAction(bctx BehaviorContext, actionID string) (string, bool) {
	for _, f := range bctx.CurrentMapFacilities {
		for _, a := range f.AvailableActions {
			if a == actionID {
				return f.ID, true
			}
		}
	}
	for _, f := range bctx.NearbyFacilities {
		for _, a := range f.AvailableActions {
			if a == actionID {
				return f.ID, true
			}
		}
	}
	return "", false
}

const decisionSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "enum": ["action", "move", "idle"]},
    "actionId": {"type": "string"},
    "targetNodeId": {"type": "string"},
    "targetMapId": {"type": "string"},
    "targetNpcId": {"type": "string"},
    "targetFacilityId": {"type": "string"},
    "conversationGoal": {"type": "object"},
    "durationMinutes": {"type": "integer"},
    "scheduleUpdate": {"type": "object"},
    "reason": {"type": "string"}
  }
}`

// LLMBacked assembles a BehaviorContext prompt and requests a structured
// Decision from an llm.Gateway, falling back to a RuleBased decider whenever
// the response is classified LLM_INVALID_RESPONSE, per §4.7/§9.
type LLMBacked struct {
	Gateway  llm.Gateway
	Fallback *RuleBased
}

func NewLLMBacked(gw llm.Gateway, fallback *RuleBased) *LLMBacked {
	return &LLMBacked{Gateway: gw, Fallback: fallback}
}

func (d *LLMBacked) Decide(ctx context.Context, bctx BehaviorContext) (Decision, error) {
	prompt := buildDecisionPrompt(bctx)

	var decision Decision
	err := d.Gateway.GenerateObject(ctx, prompt, []byte(decisionSchema), decisionSystemPrompt, &decision)
	if err != nil {
		code, _ := llm.Classify(err)
		if code == llm.CodeInvalidResponse && d.Fallback != nil {
			return d.Fallback.Decide(ctx, bctx)
		}
		return Decision{}, err
	}

	switch decision.Type {
	case TypeAction, TypeMove, TypeIdle:
	default:
		if d.Fallback != nil {
			return d.Fallback.Decide(ctx, bctx)
		}
		return Decision{}, fmt.Errorf("invalid decision type %q: schema", decision.Type)
	}

	return decision, nil
}

const decisionSystemPrompt = "You decide the next action for a simulated character. Respond only with the requested structured decision."

func buildDecisionPrompt(bctx BehaviorContext) string {
	b, _ := json.Marshal(struct {
		Stats            character.Stats         `json:"stats"`
		Location         string                  `json:"location"`
		Schedule         character.Schedule       `json:"schedule"`
		AvailableActions []string                `json:"availableActions"`
		CurrentMapFacilities []FacilityInfo       `json:"currentMapFacilities"`
		NearbyMaps       []string                `json:"nearbyMaps"`
		NearbyFacilities []NearbyFacility        `json:"nearbyFacilities"`
		NearbyNPCs       []NearbyNPC             `json:"nearbyNpcs"`
		TodayActions     []character.ActionHistoryEntry `json:"todayActions"`
		MidTermMemories  []character.MidTermMemory      `json:"midTermMemories,omitempty"`
	}{
		Stats:            bctx.Character.Stats,
		Location:         bctx.Character.CurrentNodeID,
		Schedule:         bctx.Schedule,
		AvailableActions: bctx.AvailableActions,
		CurrentMapFacilities: bctx.CurrentMapFacilities,
		NearbyMaps:       bctx.NearbyMaps,
		NearbyFacilities: bctx.NearbyFacilities,
		NearbyNPCs:       bctx.NearbyNPCs,
		TodayActions:     bctx.TodayActions,
		MidTermMemories:  bctx.MidTermMemories,
	})

	return string(b)
}
