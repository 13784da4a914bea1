package character_test

import (
	"math"
	"testing"

	"github.com/worldsim/worldsim/internal/character"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestStatDecayRoundTrip mirrors S6: satiety 80 with no action over 30
// world-minutes at 0.1/min decay ends at 77; satiety 20 with an eat action
// whose perMinute.satiety = 1.67 over 30 minutes ends at clamp(70.1).
func TestStatDecayRoundTrip(t *testing.T) {
	c := &character.Character{}
	c.Stats.Satiety = 80

	character.ApplyDecay(c, character.DecayRates{SatietyPerMinute: 0.1}, nil, 30)

	if !almostEqual(c.Stats.Satiety, 77) {
		t.Fatalf("expected satiety 77 after passive decay, got %v", c.Stats.Satiety)
	}

	c2 := &character.Character{}
	c2.Stats.Satiety = 20

	character.ApplyDecay(c2, character.DecayRates{SatietyPerMinute: 0.1}, map[string]float64{"satiety": 1.67}, 30)

	if !almostEqual(c2.Stats.Satiety, 70.1) {
		t.Fatalf("expected satiety 70.1 after eat action, got %v", c2.Stats.Satiety)
	}
}

func TestStatsClampToRange(t *testing.T) {
	s := &character.Stats{Satiety: 150, Energy: -40}
	s.Clamp()

	if s.Satiety != 100 {
		t.Fatalf("expected satiety clamped to 100, got %v", s.Satiety)
	}
	if s.Energy != 0 {
		t.Fatalf("expected energy clamped to 0, got %v", s.Energy)
	}
}
