// Package trajectory holds the day-record table produced by a simulation run
// and its serialized forms (CSV and Parquet through Apache Arrow).
package trajectory

import "fmt"

// Column names in output order. Downstream loaders address columns by these
// exact names; renaming or dropping one breaks them.
const (
	ColSubjectID          = "subject_id"
	ColDay                = "day"
	ColSleepHours         = "sleep_hours"
	ColStressLevel        = "stress_level"
	ColActivityMinutes    = "activity_minutes"
	ColJunkFoodScore      = "junk_food_score"
	ColAlcoholUnits       = "alcohol_units"
	ColInflammationIndex  = "inflammation_index"
	ColImmuneLoad         = "immune_load"
	ColHormonalDisruption = "hormonal_disruption"
	ColOxidativeStress    = "oxidative_stress"
)

// Columns is the fixed output schema.
var Columns = []string{
	ColSubjectID,
	ColDay,
	ColSleepHours,
	ColStressLevel,
	ColActivityMinutes,
	ColJunkFoodScore,
	ColAlcoholUnits,
	ColInflammationIndex,
	ColImmuneLoad,
	ColHormonalDisruption,
	ColOxidativeStress,
}

// FeatureColumns are the numeric columns a downstream loader turns into a
// per-row feature vector.
var FeatureColumns = Columns[2:]

// DayRecord is one subject's snapshot at the end of one simulated day.
type DayRecord struct {
	SubjectID int `json:"subject_id"`
	Day       int `json:"day"`

	SleepHours      float64 `json:"sleep_hours"`
	StressLevel     float64 `json:"stress_level"`
	ActivityMinutes float64 `json:"activity_minutes"`
	JunkFoodScore   float64 `json:"junk_food_score"`
	AlcoholUnits    float64 `json:"alcohol_units"`

	// Hidden indices are derived with noise and are never clipped.
	InflammationIndex  float64 `json:"inflammation_index"`
	ImmuneLoad         float64 `json:"immune_load"`
	HormonalDisruption float64 `json:"hormonal_disruption"`
	OxidativeStress    float64 `json:"oxidative_stress"`
}

// Features returns the record's values for FeatureColumns, in order.
func (r DayRecord) Features() []float64 {
	return []float64{
		r.SleepHours,
		r.StressLevel,
		r.ActivityMinutes,
		r.JunkFoodScore,
		r.AlcoholUnits,
		r.InflammationIndex,
		r.ImmuneLoad,
		r.HormonalDisruption,
		r.OxidativeStress,
	}
}

// Range is a closed interval [Lo, Hi].
type Range struct {
	Lo, Hi float64
}

// Clip saturates v at the bounds of r.
func (r Range) Clip(v float64) float64 {
	if v < r.Lo {
		return r.Lo
	}
	if v > r.Hi {
		return r.Hi
	}
	return v
}

// Contains reports whether v lies in r.
func (r Range) Contains(v float64) bool {
	return v >= r.Lo && v <= r.Hi
}

func (r Range) String() string {
	return fmt.Sprintf("[%g,%g]", r.Lo, r.Hi)
}

// Clip bounds of the observed variables after each daily update.
var (
	SleepRange    = Range{3, 10}
	StressRange   = Range{1, 10}
	ActivityRange = Range{0, 120}
	JunkRange     = Range{0, 10}
	AlcoholRange  = Range{0, 12}
)

// Table is the full trajectory of a run in subject-major, day-minor order.
type Table struct {
	Subjects int
	Days     int
	Records  []DayRecord
}

// NewTable allocates a table with one slot per (subject, day) pair.
func NewTable(subjects, days int) (*Table, error) {
	if subjects < 0 || days < 0 {
		return nil, fmt.Errorf("table dimensions must be non-negative, got %d subjects x %d days", subjects, days)
	}
	return &Table{
		Subjects: subjects,
		Days:     days,
		Records:  make([]DayRecord, subjects*days),
	}, nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Subject returns the slot holding the given subject's records. Writes through
// the returned slice land in the table.
func (t *Table) Subject(id int) []DayRecord {
	start := id * t.Days
	return t.Records[start : start+t.Days : start+t.Days]
}
