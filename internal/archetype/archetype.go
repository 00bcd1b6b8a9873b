// Package archetype defines the fixed catalog of lifestyle profiles that
// seed each simulated subject's initial state.
package archetype

// Param is the (mean, standard deviation) of a normal distribution.
type Param struct {
	Mean float64 `json:"mean" yaml:"mean"`
	Std  float64 `json:"std" yaml:"std"`
}

// Archetype is a named profile giving the initial distribution of the five
// observed lifestyle variables.
type Archetype struct {
	Name     string `json:"name"`
	Sleep    Param  `json:"sleep"`
	Stress   Param  `json:"stress"`
	Activity Param  `json:"activity"`
	Junk     Param  `json:"junk"`
	Alcohol  Param  `json:"alcohol"`
}

// Archetype names in catalog order.
const (
	StressedLowActivity = "A_stressed_low_activity"
	Balanced            = "B_balanced"
	FitLowStress        = "C_fit_low_stress"
	SleepProblems       = "D_sleep_problems"
	UnhealthyDiet       = "E_unhealthy_diet"
)

// Picker draws a uniform integer in [0, n).
type Picker interface {
	IntN(n int) int
}

// Catalog is an ordered, immutable set of archetypes. The order is part of
// the contract: Pick maps a uniform index onto it, so reordering entries
// changes every seeded run.
type Catalog struct {
	entries []Archetype
}

var defaultEntries = []Archetype{
	{
		Name:     StressedLowActivity,
		Sleep:    Param{5.5, 0.7},
		Stress:   Param{6.5, 1.0},
		Activity: Param{25, 15},
		Junk:     Param{6.0, 1.5},
		Alcohol:  Param{2.0, 1.0},
	},
	{
		Name:     Balanced,
		Sleep:    Param{7.0, 0.5},
		Stress:   Param{4.5, 0.8},
		Activity: Param{45, 20},
		Junk:     Param{3.5, 1.2},
		Alcohol:  Param{1.0, 0.5},
	},
	{
		Name:     FitLowStress,
		Sleep:    Param{7.5, 0.6},
		Stress:   Param{3.5, 0.7},
		Activity: Param{65, 25},
		Junk:     Param{2.0, 1.0},
		Alcohol:  Param{0.5, 0.3},
	},
	{
		Name:     SleepProblems,
		Sleep:    Param{5.0, 1.2},
		Stress:   Param{5.5, 1.2},
		Activity: Param{40, 20},
		Junk:     Param{4.5, 1.5},
		Alcohol:  Param{1.5, 0.8},
	},
	{
		Name:     UnhealthyDiet,
		Sleep:    Param{6.0, 0.8},
		Stress:   Param{5.0, 1.0},
		Activity: Param{35, 20},
		Junk:     Param{7.0, 1.2},
		Alcohol:  Param{2.5, 1.2},
	},
}

// Default returns the built-in five-archetype catalog.
func Default() Catalog {
	return Catalog{entries: defaultEntries}
}

// Len returns the number of archetypes in the catalog.
func (c Catalog) Len() int {
	return len(c.entries)
}

// All returns a copy of the catalog entries in order.
func (c Catalog) All() []Archetype {
	out := make([]Archetype, len(c.entries))
	copy(out, c.entries)
	return out
}

// Names returns the archetype names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, a := range c.entries {
		names[i] = a.Name
	}
	return names
}

// Lookup returns the archetype with the given name.
func (c Catalog) Lookup(name string) (Archetype, bool) {
	for _, a := range c.entries {
		if a.Name == name {
			return a, true
		}
	}
	return Archetype{}, false
}

// Pick draws one archetype uniformly at random.
func (c Catalog) Pick(p Picker) Archetype {
	return c.entries[p.IntN(len(c.entries))]
}
