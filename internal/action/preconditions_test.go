package action

import (
	"testing"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/worldmap"
)

func TestCheckPreconditionsFacilityTags(t *testing.T) {
	def := DefaultCatalogue()["eat"]
	c := &character.Character{ID: "alice"}

	if err := CheckPreconditions(def, Context{Character: c, Facility: nil}); err == nil {
		t.Fatal("expected an error with no facility at all")
	}

	wrongTag := &worldmap.Facility{Tags: []worldmap.FacilityTag{worldmap.TagBedroom}}
	if err := CheckPreconditions(def, Context{Character: c, Facility: wrongTag}); err == nil {
		t.Fatal("expected an error when the facility lacks a required tag")
	}

	kitchen := &worldmap.Facility{Tags: []worldmap.FacilityTag{worldmap.TagKitchen}}
	if err := CheckPreconditions(def, Context{Character: c, Facility: kitchen}); err != nil {
		t.Fatalf("expected the kitchen tag to satisfy eat's requirements, got %v", err)
	}
}

func TestCheckPreconditionsOwnership(t *testing.T) {
	def := &Definition{ActionID: "nap", Requirements: Requirements{Ownership: true}}
	c := &character.Character{ID: "alice"}

	othersHouse := &worldmap.Facility{Owner: "bob"}
	if err := CheckPreconditions(def, Context{Character: c, Facility: othersHouse}); err == nil {
		t.Fatal("expected an error when the facility belongs to someone else")
	}

	ownHouse := &worldmap.Facility{Owner: "alice"}
	if err := CheckPreconditions(def, Context{Character: c, Facility: ownHouse}); err != nil {
		t.Fatalf("expected ownership to be satisfied, got %v", err)
	}
}

func TestCheckPreconditionsMinStats(t *testing.T) {
	def := &Definition{ActionID: "sprint", Requirements: Requirements{MinStats: map[string]float64{"energy": 50}}}
	c := &character.Character{ID: "alice"}
	c.Stats.Energy = 10

	if err := CheckPreconditions(def, Context{Character: c}); err == nil {
		t.Fatal("expected an error when the stat is below the minimum")
	}

	c.Stats.Energy = 75
	if err := CheckPreconditions(def, Context{Character: c}); err != nil {
		t.Fatalf("expected the stat minimum to be satisfied, got %v", err)
	}
}

func TestCheckPreconditionsNearNPC(t *testing.T) {
	def := DefaultCatalogue()["talk"]
	c := &character.Character{ID: "alice"}

	if err := CheckPreconditions(def, Context{Character: c}); err == nil {
		t.Fatal("expected an error with no adjacent NPC")
	}
	if err := CheckPreconditions(def, Context{Character: c, NearNPCID: "bob"}); err != nil {
		t.Fatalf("expected an adjacent NPC to satisfy the requirement, got %v", err)
	}
}

func TestCheckPreconditionsEmployment(t *testing.T) {
	def := DefaultCatalogue()["work"]
	c := &character.Character{ID: "alice"}
	workplace := &worldmap.Facility{Tags: []worldmap.FacilityTag{worldmap.TagWorkspace}, Job: "baker"}

	if err := CheckPreconditions(def, Context{Character: c, Facility: workplace}); err == nil {
		t.Fatal("expected an error with no employment at all")
	}

	c.Employment = &character.Employment{Job: "cashier"}
	if err := CheckPreconditions(def, Context{Character: c, Facility: workplace}); err == nil {
		t.Fatal("expected an error when employed for a different job than the facility offers")
	}

	c.Employment = &character.Employment{Job: "baker", HourlyWage: 12}
	if err := CheckPreconditions(def, Context{Character: c, Facility: workplace}); err != nil {
		t.Fatalf("expected matching employment to satisfy the requirement, got %v", err)
	}
}

func TestResolveMoney(t *testing.T) {
	if got := ResolveMoney(nil, nil, 60); got != 0 {
		t.Fatalf("expected 0 for a nil delta, got %d", got)
	}

	literal := 50
	if got := ResolveMoney(&MoneyDelta{Literal: &literal}, nil, 60); got != 50 {
		t.Fatalf("expected the literal amount, got %d", got)
	}

	emp := &character.Employment{HourlyWage: 30}
	if got := ResolveMoney(&MoneyDelta{HourlyWage: true}, emp, 60); got != 30 {
		t.Fatalf("expected a full hour's wage for 60 minutes, got %d", got)
	}
	if got := ResolveMoney(&MoneyDelta{HourlyWage: true}, emp, 30); got != 15 {
		t.Fatalf("expected half an hour's wage for 30 minutes, got %d", got)
	}
	if got := ResolveMoney(&MoneyDelta{HourlyWage: true}, nil, 60); got != 0 {
		t.Fatalf("expected 0 hourly wage with no employment, got %d", got)
	}
}
