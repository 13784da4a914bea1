package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/worldsim/worldsim/internal/engine"
)

func TestLoadEnvDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"WORLD_DIR", "LOG_DIR", "DECIDE_MODE", "HTTP_ADDR", "LLM_API_KEY"} {
		os.Unsetenv(key)
	}

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.WorldDir != "world" || env.LogDir != "logs" || env.DecideMode != "rule" || env.HTTPAddr != ":8080" {
		t.Fatalf("expected documented defaults, got %+v", env)
	}
}

func TestLoadEnvHonorsOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORLD_DIR", "myworld")
	t.Setenv("DECIDE_MODE", "llm")
	t.Setenv("LLM_API_KEY", "secret")

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.WorldDir != "myworld" || env.DecideMode != "llm" || env.LLMAPIKey != "secret" {
		t.Fatalf("expected overrides to take effect, got %+v", env)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func minimalWorldDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	maps := []map[string]any{
		{
			"id": "town", "name": "Town", "width": 1, "height": 1,
			"spawnNodeId": "t-0-0",
			"grid":        map[string]any{"prefix": "t", "cols": 1, "rows": 1},
		},
	}
	writeJSON(t, filepath.Join(dir, "maps.json"), maps)

	chars := map[string]any{
		"characters": []map[string]any{{"id": "alice", "name": "Alice", "currentMapId": "town", "currentNodeId": "t-0-0"}},
	}
	writeJSON(t, filepath.Join(dir, "characters.json"), chars)

	return dir
}

func TestLoadWorldAppliesDefaultsWithoutWorldJSON(t *testing.T) {
	dir := minimalWorldDir(t)

	w, err := LoadWorld(dir, engine.DecideModeRule)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if len(w.Characters) != 1 || w.Characters[0].ID != "alice" {
		t.Fatalf("expected alice to load, got %+v", w.Characters)
	}
	if w.StartMapID != "town" {
		t.Fatalf("expected the sole map to be picked as startMapId, got %q", w.StartMapID)
	}
	if w.Engine.WorldMinutesPerTick != 1 || w.Engine.MovementSpeed != 64 {
		t.Fatalf("expected world.json-absent defaults to apply, got %+v", w.Engine)
	}
}

func TestLoadWorldOverlaysWorldJSONTuning(t *testing.T) {
	dir := minimalWorldDir(t)
	writeJSON(t, filepath.Join(dir, "world.json"), map[string]any{
		"startMapId":          "town",
		"worldMinutesPerTick": 5,
		"movementSpeed":       128,
		"nearbyMapHops":       2,
	})

	w, err := LoadWorld(dir, engine.DecideModeLLM)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if w.Engine.WorldMinutesPerTick != 5 || w.Engine.MovementSpeed != 128 || w.Engine.NearbyMapHops != 2 {
		t.Fatalf("expected world.json tuning to overlay the defaults, got %+v", w.Engine)
	}
	if w.Engine.DecideMode != engine.DecideModeLLM {
		t.Fatalf("expected the caller's decide mode to be set, got %s", w.Engine.DecideMode)
	}
}

func TestLoadWorldRejectsUnresolvedStartMapID(t *testing.T) {
	dir := minimalWorldDir(t)
	writeJSON(t, filepath.Join(dir, "world.json"), map[string]any{"startMapId": "nowhere"})

	if _, err := LoadWorld(dir, engine.DecideModeRule); err == nil {
		t.Fatal("expected an error for a startMapId that does not resolve")
	}
}

func TestLoadWorldRejectsEmptyCharacterList(t *testing.T) {
	dir := minimalWorldDir(t)
	writeJSON(t, filepath.Join(dir, "characters.json"), map[string]any{"characters": []map[string]any{}})

	_, err := LoadWorld(dir, engine.DecideModeRule)
	if err == nil {
		t.Fatal("expected an error when characters.json has no characters")
	}
	if _, ok := err.(*CharacterLoadError); !ok {
		t.Fatalf("expected *CharacterLoadError, got %T", err)
	}
}

func TestLoadWorldRejectsUnresolvedStartMapIDWithTypedError(t *testing.T) {
	dir := minimalWorldDir(t)
	writeJSON(t, filepath.Join(dir, "world.json"), map[string]any{"startMapId": "nowhere"})

	_, err := LoadWorld(dir, engine.DecideModeRule)
	if _, ok := err.(*ConfigLoadError); !ok {
		t.Fatalf("expected *ConfigLoadError, got %T", err)
	}
}
