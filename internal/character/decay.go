package character

// DecayRates gives the per-world-minute passive drift applied to a
// character's stats when no running action overrides that stat via its
// perMinute effect vector.
type DecayRates struct {
	SatietyPerMinute float64
	EnergyPerMinute  float64
	HygienePerMinute float64
	MoodPerMinute    float64
	BladderPerMinute float64
}

func (r DecayRates) get(stat string) float64 {
	switch stat {
	case "satiety":
		return r.SatietyPerMinute
	case "energy":
		return r.EnergyPerMinute
	case "hygiene":
		return r.HygienePerMinute
	case "mood":
		return r.MoodPerMinute
	case "bladder":
		return r.BladderPerMinute
	default:
		return 0
	}
}

// ApplyDecay advances c's stats by deltaMinutes world-minutes. Any stat name
// present in override is driven by override's rate (added, not subtracted --
// this is the "replace, not superimpose" rule of §4.5/§8 property 7) instead
// of the passive decay rate for that stat; every other stat decays normally.
// All five stats are clamped to [0,100] afterward.
func ApplyDecay(c *Character, rates DecayRates, override map[string]float64, deltaMinutes float64) {
	for _, stat := range []string{"satiety", "energy", "hygiene", "mood", "bladder"} {
		v, _ := c.Stats.Get(stat)

		if rate, ok := override[stat]; ok {
			v += rate * deltaMinutes
		} else {
			v -= rates.get(stat) * deltaMinutes
		}

		c.Stats.Set(stat, v)
	}
	c.Stats.Clamp()
}
