package engine

import (
	"encoding/json"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// Transition describes a single in-progress map-to-map fade, set for exactly
// the tick a character crosses a map boundary (§4.2).
type Transition struct {
	CharacterID string `json:"characterId"`
	FromMapID   string `json:"fromMapId"`
	ToMapID     string `json:"toMapId"`
}

// WorldState is the engine's authoritative, exclusively tick-scope-owned
// entity store. Mutators live on Engine, not on WorldState itself, so every
// mutation happens under the tick loop's single ownership (§4.2/§5).
type WorldState struct {
	Characters   map[string]*character.Character
	NPCs         map[string]*character.NPC
	CurrentMapID string
	Time         worldtime.WorldTime
	IsPaused     bool
	Transition   *Transition
	Tick         uint64
}

func newWorldState(chars []*character.Character, npcs map[string]*character.NPC, startMapID string, startTime worldtime.WorldTime) *WorldState {
	cs := make(map[string]*character.Character, len(chars))
	for _, c := range chars {
		cs[c.ID] = c
	}
	return &WorldState{
		Characters:   cs,
		NPCs:         npcs,
		CurrentMapID: startMapID,
		Time:         startTime,
	}
}

// SerializedWorldState is the deep-immutable snapshot handed to subscribers
// and the Control API; it shares no memory with WorldState.
type SerializedWorldState struct {
	Characters   map[string]character.Character `json:"characters"`
	NPCs         map[string]character.NPC       `json:"npcs"`
	CurrentMapID string                          `json:"currentMapId"`
	Time         worldtime.WorldTime             `json:"time"`
	IsPaused     bool                            `json:"isPaused"`
	Transition   *Transition                     `json:"transition,omitempty"`
	Tick         uint64                          `json:"tick"`
}

// snapshot deep-copies w via a JSON round trip, matching the deep-clone
// discipline already used by internal/store.
func (w *WorldState) snapshot() SerializedWorldState {
	chars := make(map[string]character.Character, len(w.Characters))
	for id, c := range w.Characters {
		chars[id] = *clone(c)
	}
	npcs := make(map[string]character.NPC, len(w.NPCs))
	for id, n := range w.NPCs {
		npcs[id] = *clone(n)
	}

	var tr *Transition
	if w.Transition != nil {
		tr = clone(w.Transition)
	}

	return SerializedWorldState{
		Characters:   chars,
		NPCs:         npcs,
		CurrentMapID: w.CurrentMapID,
		Time:         w.Time,
		IsPaused:     w.IsPaused,
		Transition:   tr,
		Tick:         w.Tick,
	}
}

func clone[T any](in *T) *T {
	b, err := json.Marshal(in)
	if err != nil {
		return in
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return in
	}
	return &out
}
