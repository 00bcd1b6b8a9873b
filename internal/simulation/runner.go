package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/logging"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

// Observer receives progress callbacks from Run. Implementations must be
// safe for concurrent use.
type Observer interface {
	SubjectDone(subjectID int, archetype string, days int, elapsed time.Duration)
}

// Params configures a population run.
type Params struct {
	Subjects int
	Days     int
	Seed     uint64

	// Workers bounds how many subjects are simulated concurrently.
	// Zero or negative means GOMAXPROCS.
	Workers int

	// Catalog defaults to archetype.Default().
	Catalog *archetype.Catalog

	Logger   *slog.Logger
	Observer Observer
}

// Result is the outcome of a population run.
type Result struct {
	Table *trajectory.Table

	// Archetypes counts subjects per archetype. It is run metadata only and
	// is never written to the table.
	Archetypes map[string]int

	Elapsed time.Duration
}

// SimulateSubject initializes one subject from src and folds Step over
// len(out) days, writing one record per day into out.
func SimulateSubject(c archetype.Catalog, subjectID int, src Source, out []trajectory.DayRecord) archetype.Archetype {
	state, a := Initialize(c, src)
	for day := range out {
		var hidden Hidden
		state, hidden = Step(state, day, src)
		out[day] = Record(subjectID, day, state, hidden)
	}
	return a
}

// Run simulates every subject and returns the full table. Subjects run in
// parallel; the table is identical for a given (Seed, Subjects, Days)
// regardless of Workers. Cancellation is checked between subjects.
func Run(ctx context.Context, p Params) (*Result, error) {
	if p.Subjects < 0 || p.Days < 0 {
		return nil, fmt.Errorf("subjects and days must be non-negative, got %d and %d", p.Subjects, p.Days)
	}

	catalog := archetype.Default()
	if p.Catalog != nil {
		catalog = *p.Catalog
	}
	if catalog.Len() == 0 {
		return nil, fmt.Errorf("archetype catalog is empty")
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tbl, err := trajectory.NewTable(p.Subjects, p.Days)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger.Info("simulation started",
		"subjects", p.Subjects, "days", p.Days, "seed", p.Seed, "workers", workers)

	picked := make([]string, p.Subjects)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for id := 0; id < p.Subjects; id++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			subjectStart := time.Now()
			src := NewSource(p.Seed, uint64(id))
			a := SimulateSubject(catalog, id, src, tbl.Subject(id))
			picked[id] = a.Name

			elapsed := time.Since(subjectStart)
			logger.Log(gctx, logging.LevelTrace, "subject simulated",
				"subject_id", id, "archetype", a.Name, "elapsed", elapsed)
			if p.Observer != nil {
				p.Observer.SubjectDone(id, a.Name, p.Days, elapsed)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simulation aborted: %w", err)
	}

	counts := make(map[string]int, catalog.Len())
	for _, name := range picked {
		counts[name]++
	}

	elapsed := time.Since(start)
	logger.Info("simulation finished", "rows", tbl.Len(), "elapsed", elapsed)

	return &Result{Table: tbl, Archetypes: counts, Elapsed: elapsed}, nil
}

type multiObserver []Observer

func (m multiObserver) SubjectDone(subjectID int, archetype string, days int, elapsed time.Duration) {
	for _, o := range m {
		o.SubjectDone(subjectID, archetype, days, elapsed)
	}
}

// Observers combines observers into one, skipping nil entries.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}
