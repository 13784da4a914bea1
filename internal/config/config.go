// Package config loads everything a run needs from the environment and from
// the on-disk world description: LLM credentials, webhook URL, engine
// tuning, maps.json and characters.json. Grounded on the teacher's main.go
// Config-from-os.Getenv-plus-godotenv.Load pattern, generalised to also read
// the world's own JSON files the way simulation_loader/simulation.go reads a
// simulation's meta/environment JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/engine"
	"github.com/worldsim/worldsim/internal/worldmap"
	"github.com/worldsim/worldsim/internal/worldtime"
)

// CharacterLoadError wraps a failure to parse or validate characters.json.
type CharacterLoadError struct {
	Err error
}

func (e *CharacterLoadError) Error() string { return fmt.Sprintf("characters.json: %v", e.Err) }
func (e *CharacterLoadError) Unwrap() error { return e.Err }

// ConfigLoadError wraps a failure to read or parse world.json or .env.
type ConfigLoadError struct {
	Err error
}

func (e *ConfigLoadError) Error() string { return fmt.Sprintf("config: %v", e.Err) }
func (e *ConfigLoadError) Unwrap() error { return e.Err }

// Env is everything read from the process environment / .env file.
type Env struct {
	WorldDir string
	LogDir   string

	LLMModel   string
	LLMAPIKey  string
	LLMBaseURL string

	ErrorWebhookURL string

	DecideMode string // "rule" | "llm"

	HTTPAddr string
}

// LoadEnv reads .env (if present, per godotenv's own "missing file is not an
// error" convention) then the process environment into an Env.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Env{}, &ConfigLoadError{Err: fmt.Errorf("load .env: %w", err)}
	}

	env := Env{
		WorldDir:        getenvDefault("WORLD_DIR", "world"),
		LogDir:          getenvDefault("LOG_DIR", "logs"),
		LLMModel:        os.Getenv("LLM_MODEL"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		LLMBaseURL:      os.Getenv("LLM_BASE_URL"),
		ErrorWebhookURL: os.Getenv("ERROR_WEBHOOK_URL"),
		DecideMode:      getenvDefault("DECIDE_MODE", "rule"),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
	}

	return env, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// World is everything loaded from WorldDir's JSON files: the map set, the
// starting characters/NPCs, and the engine tuning overlaid onto
// engine.DefaultConfig.
type World struct {
	Maps       map[string]*worldmap.Map
	Characters []*character.Character
	NPCs       map[string]*character.NPC
	StartMapID string
	StartTime  worldtime.WorldTime
	Engine     engine.Config
}

// worldFile is the top-level shape of world.json: engine tuning plus the
// starting clock and map.
type worldFile struct {
	StartMapID          string  `json:"startMapId"`
	StartDay            uint32  `json:"startDay"`
	StartHour           int     `json:"startHour"`
	StartMinute         int     `json:"startMinute"`
	TickIntervalSeconds float64 `json:"tickIntervalSeconds"`
	WorldMinutesPerTick float64 `json:"worldMinutesPerTick"`
	MovementSpeed       float64 `json:"movementSpeed"`
	NearbyMapHops       int     `json:"nearbyMapHops"`
}

type charactersFile struct {
	Characters []*character.Character `json:"characters"`
	NPCs       []*character.NPC       `json:"npcs"`
}

// LoadWorld reads maps.json, characters.json and world.json from dir,
// validating maps per worldmap.LoadMaps and overlaying world.json's tuning
// fields onto engine.DefaultConfig.
func LoadWorld(dir string, decideMode engine.DecideMode) (World, error) {
	mapsData, err := os.ReadFile(filepath.Join(dir, "maps.json"))
	if err != nil {
		return World{}, fmt.Errorf("read maps.json: %w", err)
	}
	maps, err := worldmap.LoadMaps(mapsData)
	if err != nil {
		return World{}, fmt.Errorf("load maps: %w", err)
	}

	charsData, err := os.ReadFile(filepath.Join(dir, "characters.json"))
	if err != nil {
		return World{}, &CharacterLoadError{Err: fmt.Errorf("read characters.json: %w", err)}
	}
	var cf charactersFile
	if err := json.Unmarshal(charsData, &cf); err != nil {
		return World{}, &CharacterLoadError{Err: fmt.Errorf("decode characters.json: %w", err)}
	}
	if len(cf.Characters) == 0 {
		return World{}, &CharacterLoadError{Err: fmt.Errorf("at least one character is required")}
	}

	npcs := make(map[string]*character.NPC, len(cf.NPCs))
	for _, n := range cf.NPCs {
		npcs[n.ID] = n
	}

	wf := worldFile{
		TickIntervalSeconds: 1,
		WorldMinutesPerTick: 1,
		MovementSpeed:       64,
		NearbyMapHops:       3,
	}
	if data, err := os.ReadFile(filepath.Join(dir, "world.json")); err == nil {
		if err := json.Unmarshal(data, &wf); err != nil {
			return World{}, &ConfigLoadError{Err: fmt.Errorf("decode world.json: %w", err)}
		}
	} else if !os.IsNotExist(err) {
		return World{}, &ConfigLoadError{Err: fmt.Errorf("read world.json: %w", err)}
	}

	if wf.StartMapID == "" {
		for id := range maps {
			wf.StartMapID = id
			break
		}
	}
	if _, ok := maps[wf.StartMapID]; !ok {
		return World{}, &ConfigLoadError{Err: fmt.Errorf("world.json: startMapId %q does not resolve", wf.StartMapID)}
	}

	cfg := engine.DefaultConfig()
	cfg.DecideMode = decideMode
	if wf.TickIntervalSeconds > 0 {
		cfg.TickInterval = time.Duration(wf.TickIntervalSeconds * float64(time.Second))
	}
	if wf.WorldMinutesPerTick > 0 {
		cfg.WorldMinutesPerTick = wf.WorldMinutesPerTick
	}
	if wf.MovementSpeed > 0 {
		cfg.MovementSpeed = wf.MovementSpeed
	}
	if wf.NearbyMapHops > 0 {
		cfg.NearbyMapHops = wf.NearbyMapHops
	}

	return World{
		Maps:       maps,
		Characters: cf.Characters,
		NPCs:       npcs,
		StartMapID: wf.StartMapID,
		StartTime:  worldtime.New(wf.StartDay, wf.StartHour, wf.StartMinute),
		Engine:     cfg,
	}, nil
}

