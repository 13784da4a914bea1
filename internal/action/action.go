// Package action holds the data-driven action catalogue: requirements,
// duration and effect shape for every recognised action, plus precondition
// evaluation. There is no teacher equivalent (the source domain has no
// facility/economy model); the catalogue is built in the teacher's
// data-driven-table idiom seen in llm/openai/types.go's per-prompt struct
// pairing -- one Go struct per action id, looked up from a map.
package action

import "github.com/worldsim/worldsim/internal/worldmap"

// MoneyDelta is either a literal amount or the symbolic "hourlyWage",
// resolved against the facility's job at application time.
type MoneyDelta struct {
	Literal  *int
	HourlyWage bool
}

// DurationRange describes a variable-duration action.
type DurationRange struct {
	Min, Max, Default int
}

// Requirements gates whether an action's preconditions are satisfied.
type Requirements struct {
	FacilityTags []worldmap.FacilityTag // any one of these tags suffices
	Ownership    bool                   // facility.Owner must equal the acting character's id
	MinStats     map[string]float64
	NearNPC      bool
	Employment   bool // facility must expose the character's employment job
}

// Effects describes what an action does, split between the fixed-duration
// and variable-duration (perMinute) shapes of §4.5.
type Effects struct {
	// Fixed actions: delta applied once, at completion.
	Fixed map[string]float64
	Money *MoneyDelta

	// Variable-duration actions: rate applied continuously, replacing decay
	// for any stat it covers while the action runs.
	PerMinute map[string]float64
}

// Definition is one row of the action catalogue.
type Definition struct {
	ActionID      string
	Requirements  Requirements
	Duration      *int // fixed duration, world minutes
	DurationRange *DurationRange
	Effects       Effects
}

// IsVariableDuration reports whether the action runs for a range of minutes
// (and therefore drives stats via PerMinute) rather than a single fixed span.
func (d *Definition) IsVariableDuration() bool {
	return d.DurationRange != nil
}

// Catalogue is the full set of recognised action definitions, keyed by id.
type Catalogue map[string]*Definition

// DefaultCatalogue returns the illustrative defaults of §4.5's table. These
// values are used as they are: the world config loader reads no `actions`
// block, so durations and effects cannot be overridden from world.json.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		"eat": {
			ActionID: "eat",
			Requirements: Requirements{
				FacilityTags: []worldmap.FacilityTag{worldmap.TagKitchen, worldmap.TagRestaurant},
			},
			DurationRange: &DurationRange{Min: 15, Max: 60, Default: 30},
			Effects: Effects{
				PerMinute: map[string]float64{"satiety": 1.67},
			},
		},
		"sleep": {
			ActionID: "sleep",
			Requirements: Requirements{
				FacilityTags: []worldmap.FacilityTag{worldmap.TagBedroom},
			},
			DurationRange: &DurationRange{Min: 60, Max: 600, Default: 480},
			Effects: Effects{
				PerMinute: map[string]float64{"energy": 0.2, "mood": 0.05},
			},
		},
		"bathe": {
			ActionID: "bathe",
			Requirements: Requirements{
				FacilityTags: []worldmap.FacilityTag{worldmap.TagBathroom, worldmap.TagHotspring},
			},
			DurationRange: &DurationRange{Min: 15, Max: 60, Default: 20},
			Effects: Effects{
				PerMinute: map[string]float64{"hygiene": 2.0},
			},
		},
		"toilet": {
			ActionID: "toilet",
			Requirements: Requirements{
				FacilityTags: []worldmap.FacilityTag{worldmap.TagToilet},
			},
			DurationRange: &DurationRange{Min: 3, Max: 10, Default: 5},
			Effects: Effects{
				PerMinute: map[string]float64{"bladder": 20.0},
			},
		},
		"rest": {
			ActionID: "rest",
			Requirements: Requirements{
				FacilityTags: []worldmap.FacilityTag{worldmap.TagPublic},
			},
			DurationRange: &DurationRange{Min: 10, Max: 30, Default: 15},
			Effects: Effects{
				PerMinute: map[string]float64{"mood": 0.3},
			},
		},
		"work": {
			ActionID: "work",
			Requirements: Requirements{
				FacilityTags: []worldmap.FacilityTag{worldmap.TagWorkspace},
				Employment:   true,
			},
			DurationRange: &DurationRange{Min: 60, Max: 480, Default: 240},
			Effects: Effects{
				PerMinute: map[string]float64{"energy": -0.15, "mood": -0.05},
				Money:     &MoneyDelta{HourlyWage: true},
			},
		},
		"talk": {
			ActionID: "talk",
			Requirements: Requirements{
				NearNPC: true,
			},
			// session-driven: see internal/conversation
		},
		"thinking": {
			ActionID: "thinking",
			Duration: intPtr(1),
		},
	}
}

func intPtr(v int) *int { return &v }
