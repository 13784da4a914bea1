// Package store defines the StateStore boundary the engine persists
// through, plus an in-memory reference implementation. The engine owns no
// files (§4.9); disk/SQLite persistence is an external collaborator and
// deliberately absent here -- this package only has to prove the contract
// is satisfiable and satisfy it for development/tests. Grounded on the
// teacher's simulation_loader/storage.go FileStorage (same method-per-
// entity shape: SaveMovements/SaveSimulation/SavePersona/...) generalised
// from file writes to deep-cloned in-memory maps.
package store

import (
	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// PersistenceError wraps any store failure. The engine logs and continues
// on this kind; a failed write is not retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// State is the coarse engine-level snapshot saved/loaded as a unit,
// independent of the finer-grained per-entity operations below.
type State struct {
	Time         worldtime.WorldTime
	CurrentMapID string
}

// StateStore is the persistence boundary the engine consumes. Every method
// must be safe for reads concurrent with writes from the tick loop; the
// in-memory reference implementation achieves this with full-copy semantics
// on every call, matching §4.9's deep-clone requirement: mutating a
// returned object must never affect the store.
type StateStore interface {
	SaveState(s State) error
	LoadState() (State, bool, error)

	SaveCharacter(c character.Character) error
	LoadCharacter(id string) (character.Character, bool, error)
	LoadAllCharacters() ([]character.Character, error)
	DeleteCharacter(id string) error

	SaveTime(t worldtime.WorldTime) error
	LoadTime() (worldtime.WorldTime, bool, error)

	SaveCurrentMapID(id string) error
	LoadCurrentMapID() (string, bool, error)

	SaveSchedule(characterID string, day uint32, sched character.Schedule) error
	LoadSchedule(characterID string, day uint32) (character.Schedule, bool, error)
	LoadSchedulesForCharacter(characterID string) (map[uint32]character.Schedule, error)
	DeleteSchedule(characterID string, day uint32) error
	DeleteAllSchedulesForCharacter(characterID string) error

	AddActionHistory(entry character.ActionHistoryEntry) error
	LoadActionHistoryForDay(characterID string, day uint32) ([]character.ActionHistoryEntry, error)
	UpdateActionHistoryEpisode(characterID string, day uint32, time string, episode character.Episode) error

	AddMidTermMemory(m character.MidTermMemory) error
	LoadActiveMidTermMemories(characterID string, currentDay uint32) ([]character.MidTermMemory, error)
	DeleteExpiredMidTermMemories(currentDay uint32) error

	HasData() (bool, error)
	Clear() error
	Close() error
}
