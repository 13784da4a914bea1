package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// InMemory is the reference StateStore implementation: everything lives in
// process memory, deep-cloned via JSON round-trip on every save and load so
// that callers can never observe or cause aliasing through the store.
type InMemory struct {
	mu sync.Mutex

	hasState bool
	state    State

	characters map[string]character.Character

	schedules map[string]map[uint32]character.Schedule // characterID -> day -> schedule

	// actionHistory stores each entry pre-marshalled to JSON so
	// UpdateActionHistoryEpisode can patch a single field with sjson
	// without round-tripping the whole store.
	actionHistory []json.RawMessage

	midTermMemories map[string]character.MidTermMemory
}

// New constructs an empty in-memory StateStore.
func New() *InMemory {
	return &InMemory{
		characters:      map[string]character.Character{},
		schedules:       map[string]map[uint32]character.Schedule{},
		midTermMemories: map[string]character.MidTermMemory{},
	}
}

func deepClone[T any](in T) (T, error) {
	var out T
	b, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *InMemory) SaveState(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone, err := deepClone(st)
	if err != nil {
		return &PersistenceError{"SaveState", err}
	}
	s.state = clone
	s.hasState = true
	return nil
}

func (s *InMemory) LoadState() (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasState {
		return State{}, false, nil
	}
	clone, err := deepClone(s.state)
	if err != nil {
		return State{}, false, &PersistenceError{"LoadState", err}
	}
	return clone, true, nil
}

func (s *InMemory) SaveCharacter(c character.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone, err := deepClone(c)
	if err != nil {
		return &PersistenceError{"SaveCharacter", err}
	}
	s.characters[c.ID] = clone
	return nil
}

func (s *InMemory) LoadCharacter(id string) (character.Character, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[id]
	if !ok {
		return character.Character{}, false, nil
	}
	clone, err := deepClone(c)
	if err != nil {
		return character.Character{}, false, &PersistenceError{"LoadCharacter", err}
	}
	return clone, true, nil
}

func (s *InMemory) LoadAllCharacters() ([]character.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]character.Character, 0, len(s.characters))
	for _, c := range s.characters {
		clone, err := deepClone(c)
		if err != nil {
			return nil, &PersistenceError{"LoadAllCharacters", err}
		}
		out = append(out, clone)
	}
	return out, nil
}

func (s *InMemory) DeleteCharacter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.characters, id)
	return nil
}

func (s *InMemory) SaveTime(t worldtime.WorldTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Time = t
	s.hasState = true
	return nil
}

func (s *InMemory) LoadTime() (worldtime.WorldTime, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasState {
		return worldtime.WorldTime{}, false, nil
	}
	return s.state.Time, true, nil
}

func (s *InMemory) SaveCurrentMapID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentMapID = id
	s.hasState = true
	return nil
}

func (s *InMemory) LoadCurrentMapID() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasState {
		return "", false, nil
	}
	return s.state.CurrentMapID, true, nil
}

func (s *InMemory) SaveSchedule(characterID string, day uint32, sched character.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone, err := deepClone(sched)
	if err != nil {
		return &PersistenceError{"SaveSchedule", err}
	}

	if s.schedules[characterID] == nil {
		s.schedules[characterID] = map[uint32]character.Schedule{}
	}
	s.schedules[characterID][day] = clone
	return nil
}

func (s *InMemory) LoadSchedule(characterID string, day uint32) (character.Schedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay, ok := s.schedules[characterID]
	if !ok {
		return nil, false, nil
	}
	sched, ok := byDay[day]
	if !ok {
		return nil, false, nil
	}
	clone, err := deepClone(sched)
	if err != nil {
		return nil, false, &PersistenceError{"LoadSchedule", err}
	}
	return clone, true, nil
}

func (s *InMemory) LoadSchedulesForCharacter(characterID string) (map[uint32]character.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay, ok := s.schedules[characterID]
	if !ok {
		return map[uint32]character.Schedule{}, nil
	}
	clone, err := deepClone(byDay)
	if err != nil {
		return nil, &PersistenceError{"LoadSchedulesForCharacter", err}
	}
	return clone, nil
}

func (s *InMemory) DeleteSchedule(characterID string, day uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byDay, ok := s.schedules[characterID]; ok {
		delete(byDay, day)
	}
	return nil
}

func (s *InMemory) DeleteAllSchedulesForCharacter(characterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, characterID)
	return nil
}

func (s *InMemory) AddActionHistory(entry character.ActionHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(entry)
	if err != nil {
		return &PersistenceError{"AddActionHistory", err}
	}
	s.actionHistory = append(s.actionHistory, b)
	return nil
}

func (s *InMemory) LoadActionHistoryForDay(characterID string, day uint32) ([]character.ActionHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []character.ActionHistoryEntry
	for _, raw := range s.actionHistory {
		if gjson.GetBytes(raw, "characterId").String() != characterID {
			continue
		}
		if uint32(gjson.GetBytes(raw, "day").Uint()) != day {
			continue
		}
		var entry character.ActionHistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, &PersistenceError{"LoadActionHistoryForDay", err}
		}
		out = append(out, entry)
	}
	return out, nil
}

// UpdateActionHistoryEpisode patches the episode field of the latest entry
// matching (characterID, day, time) in place, using sjson so the rest of
// that entry's JSON is preserved byte-for-byte.
func (s *InMemory) UpdateActionHistoryEpisode(characterID string, day uint32, time string, episode character.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := -1
	for i, raw := range s.actionHistory {
		if gjson.GetBytes(raw, "characterId").String() != characterID {
			continue
		}
		if uint32(gjson.GetBytes(raw, "day").Uint()) != day {
			continue
		}
		if gjson.GetBytes(raw, "time").String() != time {
			continue
		}
		latest = i
	}
	if latest < 0 {
		return &PersistenceError{"UpdateActionHistoryEpisode", fmt.Errorf("no matching action history row for %s/%d/%s", characterID, day, time)}
	}

	patched, err := sjson.SetBytes(s.actionHistory[latest], "episode", episode)
	if err != nil {
		return &PersistenceError{"UpdateActionHistoryEpisode", err}
	}
	s.actionHistory[latest] = patched
	return nil
}

func (s *InMemory) AddMidTermMemory(m character.MidTermMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone, err := deepClone(m)
	if err != nil {
		return &PersistenceError{"AddMidTermMemory", err}
	}
	s.midTermMemories[m.ID] = clone
	return nil
}

func (s *InMemory) LoadActiveMidTermMemories(characterID string, currentDay uint32) ([]character.MidTermMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []character.MidTermMemory
	for _, m := range s.midTermMemories {
		if m.CharacterID != characterID {
			continue
		}
		if m.Expired(currentDay) {
			continue
		}
		clone, err := deepClone(m)
		if err != nil {
			return nil, &PersistenceError{"LoadActiveMidTermMemories", err}
		}
		out = append(out, clone)
	}
	return out, nil
}

func (s *InMemory) DeleteExpiredMidTermMemories(currentDay uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.midTermMemories {
		if m.Expired(currentDay) {
			delete(s.midTermMemories, id)
		}
	}
	return nil
}

func (s *InMemory) HasData() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasState || len(s.characters) > 0, nil
}

func (s *InMemory) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hasState = false
	s.state = State{}
	s.characters = map[string]character.Character{}
	s.schedules = map[string]map[uint32]character.Schedule{}
	s.actionHistory = nil
	s.midTermMemories = map[string]character.MidTermMemory{}
	return nil
}

func (s *InMemory) Close() error {
	return nil
}
