// Package conversation implements the turn-based dialogue orchestrator
// between a Character and an NPC, generalising the teacher's
// agent/plan.go iterativeGenerateConversation/chatReact turn loop (which
// alternates utterance generation between two personas and summarises at
// the end) to a goal-tracked character/NPC exchange with structured,
// schema-validated LLM output per turn.
package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/worldsim/worldsim/internal/llm"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// Speaker identifies which party produced a Message.
type Speaker string

const (
	SpeakerCharacter Speaker = "character"
	SpeakerNPC       Speaker = "npc"
)

// Status is the lifecycle state of a ConversationSession.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Goal is the objective a conversation was started to pursue, supplied by
// the Behaviour Decider when it chose the talk action.
type Goal struct {
	Goal            string
	SuccessCriteria string
}

// Message is one utterance in a session's transcript.
type Message struct {
	Speaker     Speaker
	SpeakerID   string
	SpeakerName string
	Utterance   string
	Timestamp   worldtime.WorldTime
}

// MaxTurns is the default and, currently, only supported turn cap (§4.6).
const MaxTurns = 10

// Session is an active or concluded conversation between one Character and
// one NPC. It holds only ids for its participants -- no pointers back into
// World State -- per the "shared/cyclic references become ids" design note.
type Session struct {
	ID          string
	CharacterID string
	NPCID       string
	Goal        Goal
	Messages    []Message
	CurrentTurn uint
	MaxTurns    uint
	StartTime   worldtime.WorldTime
	Status      Status
	GoalAchieved bool
}

// New starts a session, assigning it a fresh opaque id.
func New(characterID, npcID string, goal Goal, start worldtime.WorldTime) *Session {
	return &Session{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		NPCID:       npcID,
		Goal:        goal,
		MaxTurns:    MaxTurns,
		StartTime:   start,
		Status:      StatusActive,
	}
}

// Profile is the subset of a participant's state the LLM prompt needs.
type Profile struct {
	ID           string
	Name         string
	Personality  string
	Tendencies   string
	Facts        []string
	Affinity     int
	Mood         string
	CustomPrompt string
}

// TurnOutput is the structured response requested from the LLM for one
// conversation turn, matching §4.6 step 2's schema.
type TurnOutput struct {
	Utterance       string   `json:"utterance"`
	Speaker         Speaker  `json:"speaker"`
	GoalAchieved    bool     `json:"goalAchieved"`
	EndConversation bool     `json:"endConversation"`
	NPCMood         *string  `json:"npcMoodDelta,omitempty"`
	AffinityDelta   *int     `json:"affinityDelta,omitempty"`
	FactLearned     *string  `json:"factLearned,omitempty"`
}

const turnSchema = `{
  "type": "object",
  "required": ["utterance", "speaker", "goalAchieved", "endConversation"],
  "properties": {
    "utterance": {"type": "string"},
    "speaker": {"type": "string", "enum": ["character", "npc"]},
    "goalAchieved": {"type": "boolean"},
    "endConversation": {"type": "boolean"},
    "npcMoodDelta": {"type": "string"},
    "affinityDelta": {"type": "integer"},
    "factLearned": {"type": "string"}
  }
}`

// TurnEffect is what the orchestrator reports back to the caller after
// Advance, so the caller (engine) can apply NPC-side mutations and emit log
// entries without the conversation package reaching into character.NPC
// itself.
type TurnEffect struct {
	AffinityDelta int
	NewNPCMood    string
	FactLearned   string
	SessionEnded  bool
}

// Advance requests the next turn from gw, appends it to the session, and
// reports whether/how the session should close. Callers own applying
// TurnEffect to the NPC and emitting the conversation_message / conversation
// summary log entries.
func Advance(ctx context.Context, gw llm.Gateway, s *Session, char, npc Profile, now worldtime.WorldTime) (TurnEffect, error) {
	if s.Status != StatusActive {
		return TurnEffect{}, fmt.Errorf("conversation %s is not active", s.ID)
	}

	prompt := buildTurnPrompt(s, char, npc)

	var out TurnOutput
	if err := gw.GenerateObject(ctx, prompt, []byte(turnSchema), conversationSystemPrompt, &out); err != nil {
		return TurnEffect{}, err
	}

	speakerID, speakerName := char.ID, char.Name
	if out.Speaker == SpeakerNPC {
		speakerID, speakerName = npc.ID, npc.Name
	}

	s.Messages = append(s.Messages, Message{
		Speaker:     out.Speaker,
		SpeakerID:   speakerID,
		SpeakerName: speakerName,
		Utterance:   out.Utterance,
		Timestamp:   now,
	})
	s.CurrentTurn++

	effect := TurnEffect{}
	if out.AffinityDelta != nil {
		effect.AffinityDelta = *out.AffinityDelta
	}
	if out.NPCMood != nil {
		effect.NewNPCMood = *out.NPCMood
	}
	if out.FactLearned != nil {
		effect.FactLearned = *out.FactLearned
	}

	if out.GoalAchieved {
		s.GoalAchieved = true
	}

	if out.EndConversation || out.GoalAchieved || s.CurrentTurn >= s.MaxTurns {
		s.Status = StatusCompleted
		effect.SessionEnded = true
	}

	return effect, nil
}

// Summary is the structured close-out requested once a session ends, for
// the "conversation" summary log entry of §4.6 step 5.
type Summary struct {
	Summary        string   `json:"summary"`
	Topics         []string `json:"topics"`
	AffinityChange int      `json:"affinityChange"`
	NPCMood        string   `json:"npcMood"`
	GoalAchieved   bool     `json:"goalAchieved"`
}

const summarySchema = `{
  "type": "object",
  "required": ["summary", "affinityChange", "npcMood", "goalAchieved"],
  "properties": {
    "summary": {"type": "string"},
    "topics": {"type": "array", "items": {"type": "string"}},
    "affinityChange": {"type": "integer"},
    "npcMood": {"type": "string"},
    "goalAchieved": {"type": "boolean"}
  }
}`

// Summarize requests a closing summary for a session that has already ended.
func Summarize(ctx context.Context, gw llm.Gateway, s *Session, char, npc Profile, affinityChange int) (Summary, error) {
	prompt := buildSummaryPrompt(s, char, npc)

	var out Summary
	if err := gw.GenerateObject(ctx, prompt, []byte(summarySchema), conversationSystemPrompt, &out); err != nil {
		return Summary{}, err
	}
	out.AffinityChange = affinityChange
	out.GoalAchieved = s.GoalAchieved
	return out, nil
}

const conversationSystemPrompt = "You orchestrate one turn of dialogue between a simulated character and a non-player character. Respond only with the requested structured output."

func buildTurnPrompt(s *Session, char, npc Profile) string {
	transcript := ""
	for _, m := range s.Messages {
		transcript += fmt.Sprintf("%s: %s\n", m.SpeakerName, m.Utterance)
	}

	return fmt.Sprintf(
		"Character %s (%s, tendencies: %s).\nNPC %s (%s, tendencies: %s, facts: %v, affinity: %d, mood: %s).\nGoal: %s\nSuccess criteria: %s\nTranscript so far:\n%s\nProduce the next utterance.",
		char.Name, char.Personality, char.Tendencies,
		npc.Name, npc.Personality, npc.Tendencies, npc.Facts, npc.Affinity, npc.Mood,
		s.Goal.Goal, s.Goal.SuccessCriteria, transcript,
	)
}

func buildSummaryPrompt(s *Session, char, npc Profile) string {
	transcript := ""
	for _, m := range s.Messages {
		transcript += fmt.Sprintf("%s: %s\n", m.SpeakerName, m.Utterance)
	}
	return fmt.Sprintf(
		"Summarize the conversation between %s and %s. Goal: %s\nTranscript:\n%s",
		char.Name, npc.Name, s.Goal.Goal, transcript,
	)
}
