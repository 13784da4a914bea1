package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/store"
)

func TestSaveCharacterDeepClonesOnLoad(t *testing.T) {
	s := store.New()

	c := character.Character{ID: "alice", Name: "Alice"}
	c.Stats.Satiety = 80

	require.NoError(t, s.SaveCharacter(c))

	loaded, ok, err := s.LoadCharacter("alice")
	require.NoError(t, err)
	require.True(t, ok)

	loaded.Stats.Satiety = 0

	again, _, err := s.LoadCharacter("alice")
	require.NoError(t, err)
	assert.Equal(t, 80.0, again.Stats.Satiety, "mutating a loaded character must not affect the store")
}

func TestUpdateActionHistoryEpisodePatchesLatestMatchingRow(t *testing.T) {
	s := store.New()

	base := character.ActionHistoryEntry{CharacterID: "bob", Day: 1, Time: "08:00", ActionID: "eat"}
	require.NoError(t, s.AddActionHistory(base))
	require.NoError(t, s.AddActionHistory(base))

	ep := character.Episode{Narrative: "Bob enjoyed a quiet breakfast."}
	require.NoError(t, s.UpdateActionHistoryEpisode("bob", 1, "08:00", ep))

	entries, err := s.LoadActionHistoryForDay("bob", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Nil(t, entries[0].Episode, "expected only the latest matching row to be patched")
	if assert.NotNil(t, entries[1].Episode) {
		assert.Equal(t, ep.Narrative, entries[1].Episode.Narrative)
	}
}

func TestDeleteExpiredMidTermMemories(t *testing.T) {
	s := store.New()

	require.NoError(t, s.AddMidTermMemory(character.MidTermMemory{ID: "m1", CharacterID: "alice", ExpiresDay: 2}))
	require.NoError(t, s.AddMidTermMemory(character.MidTermMemory{ID: "m2", CharacterID: "alice", ExpiresDay: 10}))

	require.NoError(t, s.DeleteExpiredMidTermMemories(5))

	active, err := s.LoadActiveMidTermMemories("alice", 5)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "m2", active[0].ID)
}

func TestLoadMissingCharacterReportsNotFound(t *testing.T) {
	s := store.New()

	_, ok, err := s.LoadCharacter("nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
