package engine

import (
	"time"

	"github.com/worldsim/worldsim/internal/action"
	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/decide"
	"github.com/worldsim/worldsim/internal/llm"
)

// DecideMode selects which Behaviour Decider implementation drives every
// character, per the §9 "pick one by configuration" resolution.
type DecideMode string

const (
	DecideModeRule DecideMode = "rule"
	DecideModeLLM  DecideMode = "llm"
)

// Config parameterises one Engine run. Exact numbers are expected to be
// loaded from the world config JSON by internal/config; the zero value of
// most fields is not runnable, so DefaultConfig exists for tests and for
// filling in whatever the world config leaves unset.
type Config struct {
	TickInterval        time.Duration // wall-clock duration of one tick
	WorldMinutesPerTick float64       // world-time advance per tick

	MovementSpeed float64 // pixels per second

	DecideMode DecideMode
	Thresholds decide.Thresholds

	DecisionCooldownBaseMinutes int // base of the exponential back-off
	DecisionCooldownCap         int // exponent cap

	ConversationTurnIntervalMinutes int // world-minutes between conversation turns

	Breaker llm.BreakerConfig

	AffinityMin, AffinityMax int

	AllowNegativeMoney bool

	DecayRates character.DecayRates
	Catalogue  action.Catalogue

	MiniEpisodeProbability float64

	NearbyMapHops int
}

// DefaultConfig returns a runnable configuration using the illustrative
// defaults named throughout spec §4.5/§4.7/§4.8.
func DefaultConfig() Config {
	return Config{
		TickInterval:                    time.Second,
		WorldMinutesPerTick:             1,
		MovementSpeed:                   64,
		DecideMode:                      DecideModeRule,
		Thresholds:                      decide.DefaultThresholds(),
		DecisionCooldownBaseMinutes:     1,
		DecisionCooldownCap:             6,
		ConversationTurnIntervalMinutes: 1,
		Breaker:                         llm.DefaultBreakerConfig(),
		AffinityMin:                     -100,
		AffinityMax:                     100,
		AllowNegativeMoney:              false,
		DecayRates: character.DecayRates{
			SatietyPerMinute: 0.1,
			EnergyPerMinute:  0.05,
			HygienePerMinute: 0.05,
			MoodPerMinute:    0.02,
			BladderPerMinute: 0.15,
		},
		Catalogue:              action.DefaultCatalogue(),
		MiniEpisodeProbability: 0.15,
		NearbyMapHops:          3,
	}
}
