package simulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

const eps = 1e-9

// scripted returns mean + std*z for successive z values, then zero noise.
type scripted struct {
	z    []float64
	pick int
	n    int
}

func (s *scripted) Normal(mean, std float64) float64 {
	var z float64
	if s.n < len(s.z) {
		z = s.z[s.n]
	}
	s.n++
	return mean + std*z
}

func (s *scripted) IntN(n int) int { return s.pick % n }

var balancedDay0 = State{Sleep: 7.0, Stress: 4.5, Activity: 45, Junk: 3.5, Alcohol: 1.0}

func TestForcingAt(t *testing.T) {
	f := ForcingAt(0)
	assert.Equal(t, 0.0, f.Weekly)
	assert.Equal(t, 0.0, f.Seasonal)

	assert.InDelta(t, math.Sin(2*math.Pi*3/7), ForcingAt(3).Weekly, eps)
	assert.InDelta(t, math.Sin(2*math.Pi*100/365), ForcingAt(100).Seasonal, eps)
	assert.InDelta(t, ForcingAt(5).Weekly, ForcingAt(12).Weekly, eps)
}

func TestWeekendFiresOncePerWeek(t *testing.T) {
	for day := 0; day < 21; day++ {
		assert.Equal(t, day%7 == 2, ForcingAt(day).Weekend(), "day %d", day)
	}
}

func TestStep_BalancedExample(t *testing.T) {
	next, h := Step(balancedDay0, 0, ZeroNoise{})

	// stress' = clip(4.5 - 1.35 + 0.07 + 0.01 + 0.175, 1, 10)
	assert.InDelta(t, 3.405, next.Stress, eps)
	// sleep reads the updated stress (old stress would give 6.8475)
	assert.InDelta(t, 6.8694, next.Sleep, eps)
	// activity reads the previous stress (updated stress would give 43.6095)
	assert.InDelta(t, 43.5, next.Activity, eps)
	// junk reads the previous activity (updated activity would give 2.855)
	assert.InDelta(t, 2.825, next.Junk, eps)
	assert.InDelta(t, 1.0, next.Alcohol, eps)

	assert.InDelta(t, -5.95, h.Inflammation, eps)
	assert.InDelta(t, -0.87582, h.ImmuneLoad, eps)
	assert.InDelta(t, 2.28812, h.HormonalDisruption, eps)
	assert.InDelta(t, -0.1725, h.OxidativeStress, eps)
}

func TestStep_NoiseScales(t *testing.T) {
	base, baseH := Step(balancedDay0, 0, ZeroNoise{})

	// One unit of z per equation, in draw order.
	stds := []float64{0.5, 0.4, 10, 0.5, 0.3}
	for i, std := range stds {
		z := make([]float64, 9)
		z[i] = 1
		next, _ := Step(balancedDay0, 0, &scripted{z: z})

		got := []float64{next.Stress, next.Sleep, next.Activity, next.Junk, next.Alcohol}
		want := []float64{base.Stress, base.Sleep, base.Activity, base.Junk, base.Alcohol}
		assert.InDelta(t, std, got[i]-want[i], eps, "equation %d", i)
	}

	// Hidden index noise std devs.
	z := []float64{0, 0, 0, 0, 0, 0, 0, 1, 0}
	_, h := Step(balancedDay0, 0, &scripted{z: z})
	assert.InDelta(t, 0.4, h.HormonalDisruption-baseH.HormonalDisruption, eps)
}

func TestStep_InflammationSharedDownstream(t *testing.T) {
	z := []float64{0.3, -0.2, 0.7, 0.1, -0.4, 0, 0.5, -0.5, 0.25}
	_, h0 := Step(balancedDay0, 4, &scripted{z: z})

	shifted := append([]float64(nil), z...)
	shifted[5] += 1 // inflammation noise only
	_, h1 := Step(balancedDay0, 4, &scripted{z: shifted})

	dInfl := h1.Inflammation - h0.Inflammation
	assert.InDelta(t, 0.5, dInfl, eps)
	assert.InDelta(t, 0.4*dInfl, h1.ImmuneLoad-h0.ImmuneLoad, eps)
	assert.InDelta(t, 0.3*dInfl, h1.OxidativeStress-h0.OxidativeStress, eps)
	assert.InDelta(t, 0, h1.HormonalDisruption-h0.HormonalDisruption, eps)
}

func TestStep_WeekendAlcoholBump(t *testing.T) {
	weekday, _ := Step(balancedDay0, 0, ZeroNoise{})
	weekend, _ := Step(balancedDay0, 2, ZeroNoise{})

	assert.InDelta(t, 0.5, weekend.Alcohol-weekday.Alcohol, eps)
}

func TestStep_Clipping(t *testing.T) {
	extreme := State{Sleep: 3, Stress: 9.9, Activity: 0, Junk: 10, Alcohol: 12}
	next, _ := Step(extreme, 2, ZeroNoise{})

	assert.Equal(t, 10.0, next.Stress)
	assert.Equal(t, 3.0, next.Sleep)
	assert.Equal(t, 12.0, next.Alcohol)
	assert.Equal(t, 10.0, next.Junk)

	low := State{Sleep: 10, Stress: 1, Activity: 120, Junk: 0, Alcohol: 0}
	z := []float64{-10, 10, 10, -10, -10}
	next, _ = Step(low, 0, &scripted{z: z})
	assert.Equal(t, 1.0, next.Stress)
	assert.Equal(t, 10.0, next.Sleep)
	assert.Equal(t, 120.0, next.Activity)
	assert.Equal(t, 0.0, next.Junk)
	assert.Equal(t, 0.0, next.Alcohol)
}

func TestStep_HiddenNotClipped(t *testing.T) {
	_, h := Step(State{Sleep: 3, Stress: 1, Activity: 120, Junk: 0, Alcohol: 0}, 0, ZeroNoise{})
	assert.Less(t, h.Inflammation, 0.0)
}

func TestInitialize_NoDay0Clipping(t *testing.T) {
	c := archetype.Default()
	// Archetype A; sleep 5.5 - 5*0.7 = 2.0 and activity 25 - 3*15 = -20.
	src := &scripted{z: []float64{-5, 0, -3, 0, 0}, pick: 0}
	s, a := Initialize(c, src)

	assert.Equal(t, archetype.StressedLowActivity, a.Name)
	assert.InDelta(t, 2.0, s.Sleep, eps)
	assert.InDelta(t, -20.0, s.Activity, eps)
	assert.InDelta(t, 6.5, s.Stress, eps)
}

func TestInitialize_UsesArchetypeParams(t *testing.T) {
	c := archetype.Default()
	s, a := Initialize(c, &scripted{pick: 1})
	require.Equal(t, archetype.Balanced, a.Name)
	assert.Equal(t, balancedDay0, s)
}

func TestSimulateSubject_ZeroNoise(t *testing.T) {
	out := make([]trajectory.DayRecord, 30)
	a := SimulateSubject(archetype.Default(), 7, ZeroNoise{}, out)
	assert.Equal(t, archetype.StressedLowActivity, a.Name)

	state, _ := Initialize(archetype.Default(), ZeroNoise{})
	for day, rec := range out {
		assert.Equal(t, 7, rec.SubjectID)
		assert.Equal(t, day, rec.Day)

		var h Hidden
		state, h = Step(state, day, ZeroNoise{})
		assert.Equal(t, Record(7, day, state, h), rec, "day %d must fold from day %d", day, day-1)
	}
}

func TestNewSource_Streams(t *testing.T) {
	a := NewSource(42, 0)
	b := NewSource(42, 0)
	c := NewSource(42, 1)

	va, vb, vc := a.Normal(0, 1), b.Normal(0, 1), c.Normal(0, 1)
	assert.Equal(t, va, vb)
	assert.NotEqual(t, va, vc)

	for i := 0; i < 100; i++ {
		n := a.IntN(5)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 5)
	}
}

func TestZeroNoise(t *testing.T) {
	assert.Equal(t, 3.5, ZeroNoise{}.Normal(3.5, 100))
	assert.Equal(t, 0, ZeroNoise{}.IntN(5))
}
