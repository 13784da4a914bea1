package engine

import "github.com/worldsim/worldsim/internal/worldtime"

// LogKind is the tag of the ActivityLogEntry union (§3).
type LogKind string

const (
	LogKindAction              LogKind = "action"
	LogKindConversation        LogKind = "conversation"
	LogKindConversationMessage LogKind = "conversation_message"
	LogKindMiniEpisode         LogKind = "mini_episode"
)

// ActionStatus is the state of an action{...} log entry.
type ActionStatus string

const (
	ActionStarted   ActionStatus = "started"
	ActionCompleted ActionStatus = "completed"
)

// ActionLogPayload is the action-kind payload.
type ActionLogPayload struct {
	Status          ActionStatus `json:"status"`
	ActionID        string       `json:"actionId"`
	FacilityID      string       `json:"facilityId,omitempty"`
	DurationMinutes int          `json:"durationMinutes,omitempty"`
}

// ConversationLogPayload is the conversation-kind (summary) payload.
type ConversationLogPayload struct {
	NPCID          string   `json:"npcId"`
	Summary        string   `json:"summary"`
	Topics         []string `json:"topics,omitempty"`
	AffinityChange int      `json:"affinityChange"`
	NPCMood        string   `json:"npcMood"`
	GoalAchieved   bool     `json:"goalAchieved"`
}

// ConversationMessageLogPayload is the conversation_message-kind payload.
type ConversationMessageLogPayload struct {
	NPCID       string `json:"npcId"`
	Speaker     string `json:"speaker"`
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
	Utterance   string `json:"utterance"`
}

// MiniEpisodeLogPayload is the mini_episode-kind payload.
type MiniEpisodeLogPayload struct {
	Narrative  string             `json:"narrative"`
	StatDeltas map[string]float64 `json:"statDeltas,omitempty"`
}

// ActivityLogEntry is one emitted, not-stored-in-WorldState event (§3).
// Exactly one of the kind-specific payload fields is populated, matching
// Kind.
type ActivityLogEntry struct {
	Kind          LogKind             `json:"kind"`
	Timestamp     worldtime.WorldTime `json:"timestamp"`
	CharacterID   string              `json:"characterId"`
	CharacterName string              `json:"characterName"`
	ActionCounter uint64              `json:"actionCounter"`

	Action              *ActionLogPayload              `json:"action,omitempty"`
	Conversation        *ConversationLogPayload         `json:"conversation,omitempty"`
	ConversationMessage *ConversationMessageLogPayload  `json:"conversationMessage,omitempty"`
	MiniEpisode         *MiniEpisodeLogPayload          `json:"miniEpisode,omitempty"`
}
