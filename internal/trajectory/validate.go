package trajectory

import (
	"fmt"
	"math"
)

// maxViolations caps how many violations a Report collects.
const maxViolations = 100

// Violation is one broken table invariant.
type Violation struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Report is the result of checking a table.
type Report struct {
	Rows       int         `json:"rows"`
	Subjects   int         `json:"subjects"`
	Days       int         `json:"days"`
	Violations []Violation `json:"violations,omitempty"`
	Truncated  bool        `json:"truncated,omitempty"`
}

// OK reports whether no violations were found.
func (r Report) OK() bool {
	return len(r.Violations) == 0
}

// Err returns nil for a clean report and an error summarizing the first
// violation otherwise.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	v := r.Violations[0]
	return fmt.Errorf("table invalid: %d violation(s), first at row %d: %s", len(r.Violations), v.Row, v.Message)
}

func (r *Report) add(row int, format string, args ...any) {
	if len(r.Violations) >= maxViolations {
		r.Truncated = true
		return
	}
	r.Violations = append(r.Violations, Violation{Row: row, Message: fmt.Sprintf(format, args...)})
}

// Validate checks t against its declared dimensions.
func (t *Table) Validate() Report {
	return Check(t.Records, t.Subjects, t.Days)
}

// InferShape derives (subjects, days) from records laid out subject-major:
// subjects is one past the largest subject id, days one past the largest day.
func InferShape(recs []DayRecord) (subjects, days int) {
	for _, r := range recs {
		subjects = max(subjects, r.SubjectID+1)
		days = max(days, r.Day+1)
	}
	return subjects, days
}

// Check verifies the trajectory invariants: exactly subjects*days rows in
// subject-major, day-minor order with contiguous 0-based days, every
// (subject_id, day) pair present once, observed variables inside their
// clip bounds, and finite hidden indices.
func Check(recs []DayRecord, subjects, days int) Report {
	rep := Report{Rows: len(recs), Subjects: subjects, Days: days}

	if want := subjects * days; len(recs) != want {
		rep.add(-1, "row count %d, want %d (%d subjects x %d days)", len(recs), want, subjects, days)
	}

	seen := make(map[[2]int]int, len(recs))
	for i, r := range recs {
		key := [2]int{r.SubjectID, r.Day}
		if prev, dup := seen[key]; dup {
			rep.add(i, "duplicate (subject_id=%d, day=%d), first seen at row %d", r.SubjectID, r.Day, prev)
		} else {
			seen[key] = i
		}

		if days > 0 {
			wantSubject, wantDay := i/days, i%days
			if r.SubjectID != wantSubject || r.Day != wantDay {
				rep.add(i, "got (subject_id=%d, day=%d), want (subject_id=%d, day=%d)", r.SubjectID, r.Day, wantSubject, wantDay)
			}
		}

		checkRange(&rep, i, ColSleepHours, r.SleepHours, SleepRange)
		checkRange(&rep, i, ColStressLevel, r.StressLevel, StressRange)
		checkRange(&rep, i, ColActivityMinutes, r.ActivityMinutes, ActivityRange)
		checkRange(&rep, i, ColJunkFoodScore, r.JunkFoodScore, JunkRange)
		checkRange(&rep, i, ColAlcoholUnits, r.AlcoholUnits, AlcoholRange)

		hidden := []float64{r.InflammationIndex, r.ImmuneLoad, r.HormonalDisruption, r.OxidativeStress}
		for j, v := range hidden {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				rep.add(i, "%s is not finite: %v", Columns[7+j], v)
			}
		}
	}

	return rep
}

func checkRange(rep *Report, row int, col string, v float64, r Range) {
	if !r.Contains(v) {
		rep.add(row, "%s=%g outside %s", col, v, r)
	}
}
