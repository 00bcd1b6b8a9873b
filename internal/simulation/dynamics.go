package simulation

import (
	"math"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

// State holds a subject's observed lifestyle variables.
type State struct {
	Sleep    float64 `json:"sleep_hours"`
	Stress   float64 `json:"stress_level"`
	Activity float64 `json:"activity_minutes"`
	Junk     float64 `json:"junk_food_score"`
	Alcohol  float64 `json:"alcohol_units"`
}

// Hidden holds the latent indices derived from a day's updated state.
type Hidden struct {
	Inflammation       float64 `json:"inflammation_index"`
	ImmuneLoad         float64 `json:"immune_load"`
	HormonalDisruption float64 `json:"hormonal_disruption"`
	OxidativeStress    float64 `json:"oxidative_stress"`
}

// Forcing holds the deterministic periodic terms for one day.
type Forcing struct {
	Weekly float64
	// Seasonal is computed for every day but no update equation reads it.
	Seasonal float64
}

// weekendThreshold is the weekly phase above which the alcohol bump applies.
const weekendThreshold = 0.8

// ForcingAt returns the periodic terms for the given day.
func ForcingAt(day int) Forcing {
	d := float64(day)
	return Forcing{
		Weekly:   math.Sin(2 * math.Pi * d / 7),
		Seasonal: math.Sin(2 * math.Pi * d / 365),
	}
}

// Weekend reports whether the alcohol bump fires.
func (f Forcing) Weekend() bool {
	return f.Weekly > weekendThreshold
}

// Initialize draws an archetype uniformly from the catalog and samples the
// initial state from it. The day-0 draw is not clipped, so initial values
// may lie outside the daily clip bounds.
func Initialize(c archetype.Catalog, src Source) (State, archetype.Archetype) {
	a := c.Pick(src)
	s := State{
		Sleep:    src.Normal(a.Sleep.Mean, a.Sleep.Std),
		Stress:   src.Normal(a.Stress.Mean, a.Stress.Std),
		Activity: src.Normal(a.Activity.Mean, a.Activity.Std),
		Junk:     src.Normal(a.Junk.Mean, a.Junk.Std),
		Alcohol:  src.Normal(a.Alcohol.Mean, a.Alcohol.Std),
	}
	return s, a
}

// Step advances s by one day.
//
// The equations mix previous-day and same-day values on purpose: sleep reads
// the updated stress, while activity and junk read the previous day's stress
// and junk reads the previous day's activity. Noise is drawn in the order
// stress, sleep, activity, junk, alcohol, inflammation, immune load,
// hormonal disruption, oxidative stress.
func Step(s State, day int, src Source) (State, Hidden) {
	f := ForcingAt(day)
	prev := s

	var next State
	next.Stress = trajectory.StressRange.Clip(prev.Stress +
		src.Normal(0, 0.5) -
		0.03*prev.Activity +
		0.02*prev.Junk +
		0.01*prev.Alcohol +
		0.2*(1-prev.Sleep/8) +
		0.5*f.Weekly)

	next.Sleep = trajectory.SleepRange.Clip(prev.Sleep +
		src.Normal(0, 0.4) -
		0.2*(next.Stress/10) -
		0.1*prev.Alcohol +
		0.05*prev.Activity/60)

	next.Activity = trajectory.ActivityRange.Clip(prev.Activity +
		src.Normal(0, 10) -
		0.1*prev.Stress -
		3*(prev.Junk/10) +
		5*f.Weekly)

	next.Junk = trajectory.JunkRange.Clip(prev.Junk +
		src.Normal(0, 0.5) +
		0.05*prev.Stress -
		0.02*prev.Activity)

	bump := 0.0
	if f.Weekend() {
		bump = 0.5
	}
	next.Alcohol = trajectory.AlcoholRange.Clip(prev.Alcohol +
		src.Normal(0, 0.3) +
		bump)

	return next, derive(next, src)
}

// derive computes the hidden indices from an updated state. Inflammation is
// drawn once and feeds both immune load and oxidative stress.
func derive(s State, src Source) Hidden {
	var h Hidden
	h.Inflammation = 0.5*s.Stress +
		0.3*s.Junk +
		0.2*s.Alcohol -
		0.2*s.Activity +
		src.Normal(0, 0.5)
	h.ImmuneLoad = 0.4*h.Inflammation +
		0.3*(10-s.Sleep) +
		0.2*s.Junk +
		src.Normal(0, 0.3)
	h.HormonalDisruption = 0.4*s.Stress +
		0.3*s.Alcohol +
		0.2*(10-s.Sleep) +
		src.Normal(0, 0.4)
	h.OxidativeStress = 0.5*s.Junk +
		0.3*h.Inflammation +
		0.2*s.Alcohol +
		src.Normal(0, 0.3)
	return h
}

// Record builds the day record for a subject's updated state.
func Record(subjectID, day int, s State, h Hidden) trajectory.DayRecord {
	return trajectory.DayRecord{
		SubjectID:          subjectID,
		Day:                day,
		SleepHours:         s.Sleep,
		StressLevel:        s.Stress,
		ActivityMinutes:    s.Activity,
		JunkFoodScore:      s.Junk,
		AlcoholUnits:       s.Alcohol,
		InflammationIndex:  h.Inflammation,
		ImmuneLoad:         h.ImmuneLoad,
		HormonalDisruption: h.HormonalDisruption,
		OxidativeStress:    h.OxidativeStress,
	}
}
