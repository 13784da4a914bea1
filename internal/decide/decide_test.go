package decide

import (
	"context"
	"errors"
	"testing"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/worldtime"
)

func baseContext() BehaviorContext {
	return BehaviorContext{
		Character: &character.Character{ID: "alice"},
		Now:       worldtime.New(0, 12, 0),
		CurrentMapFacilities: []FacilityInfo{
			{ID: "kitchen-1", AvailableActions: []string{"eat"}},
			{ID: "toilet-1", AvailableActions: []string{"toilet"}},
			{ID: "bedroom-1", AvailableActions: []string{"sleep"}},
		},
	}
}

func TestRuleBasedBladderTakesPriorityOverSchedule(t *testing.T) {
	r := NewRuleBased(DefaultThresholds())
	bctx := baseContext()
	bctx.Character.Stats.Bladder = 5
	bctx.Schedule = character.Schedule{{Time: "00:00", Activity: "work", Location: "work-1"}}

	got, err := r.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.ActionID != "toilet" || got.TargetFacilityID != "toilet-1" {
		t.Fatalf("expected urgent toilet trip, got %+v", got)
	}
}

func TestRuleBasedEnergyOnlyUrgentAtNight(t *testing.T) {
	r := NewRuleBased(DefaultThresholds())
	bctx := baseContext()
	bctx.Character.Stats = character.Stats{Bladder: 100, Energy: 5, Satiety: 100}
	bctx.Now = worldtime.New(0, 12, 0) // daytime, outside [22,6)

	got, err := r.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.ActionID == "sleep" {
		t.Fatal("did not expect sleep to trigger during the day")
	}

	bctx.Now = worldtime.New(0, 23, 0)
	got, err = r.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.ActionID != "sleep" || got.TargetFacilityID != "bedroom-1" {
		t.Fatalf("expected urgent sleep at night, got %+v", got)
	}
}

func TestRuleBasedFallsBackToScheduleThenIdle(t *testing.T) {
	r := NewRuleBased(DefaultThresholds())
	bctx := baseContext()
	bctx.Character.Stats = character.Stats{Bladder: 100, Energy: 100, Satiety: 100}
	bctx.Schedule = character.Schedule{{Time: "00:00", Activity: "eat", Location: "kitchen-1"}}

	got, err := r.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.ActionID != "eat" || got.ScheduleUpdate == nil || got.ScheduleUpdate.Kind != ScheduleModify {
		t.Fatalf("expected schedule-driven eat with a modify update, got %+v", got)
	}

	bctx.Schedule = nil
	got, err = r.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Type != TypeIdle {
		t.Fatalf("expected idle with nothing due, got %+v", got)
	}
}

type stubGateway struct {
	err error
	fn  func(out any)
}

func (g *stubGateway) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	return "", g.err
}

func (g *stubGateway) GenerateObject(ctx context.Context, prompt string, schema []byte, system string, out any) error {
	if g.err != nil {
		return g.err
	}
	if g.fn != nil {
		g.fn(out)
	}
	return nil
}

func TestLLMBackedFallsBackOnInvalidResponseClassification(t *testing.T) {
	fallback := NewRuleBased(DefaultThresholds())
	bctx := baseContext()
	bctx.Character.Stats = character.Stats{Bladder: 100, Energy: 100, Satiety: 100}

	gw := &stubGateway{err: errors.New("could not parse json response")}
	d := NewLLMBacked(gw, fallback)

	got, err := d.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("expected fallback to absorb the error, got %v", err)
	}
	if got.Type != TypeIdle {
		t.Fatalf("expected fallback rule-based idle decision, got %+v", got)
	}
}

func TestLLMBackedPropagatesNonFallbackErrors(t *testing.T) {
	fallback := NewRuleBased(DefaultThresholds())
	bctx := baseContext()

	gw := &stubGateway{err: errors.New("401 unauthorized")}
	d := NewLLMBacked(gw, fallback)

	if _, err := d.Decide(context.Background(), bctx); err == nil {
		t.Fatal("expected an API-classified error to propagate rather than fall back")
	}
}

func TestLLMBackedRejectsUnknownDecisionType(t *testing.T) {
	bctx := baseContext()
	gw := &stubGateway{fn: func(out any) {
		d := out.(*Decision)
		*d = Decision{Type: "teleport"}
	}}

	d := NewLLMBacked(gw, nil)
	if _, err := d.Decide(context.Background(), bctx); err == nil {
		t.Fatal("expected an error for an unrecognised decision type with no fallback")
	}
}

func TestLLMBackedAcceptsValidDecision(t *testing.T) {
	bctx := baseContext()
	gw := &stubGateway{fn: func(out any) {
		d := out.(*Decision)
		*d = Decision{Type: TypeMove, TargetNodeID: "kitchen"}
	}}

	d := NewLLMBacked(gw, nil)
	got, err := d.Decide(context.Background(), bctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Type != TypeMove || got.TargetNodeID != "kitchen" {
		t.Fatalf("expected the gateway's decision to pass through, got %+v", got)
	}
}
