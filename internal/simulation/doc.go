// Package simulation generates synthetic lifestyle trajectories.
//
// Each subject starts from a state drawn from a randomly chosen archetype and
// is advanced one day at a time by Step, a coupled stochastic update of five
// observed variables (sleep, stress, activity, junk food, alcohol) under a
// weekly forcing term, followed by the derivation of four hidden indices
// (inflammation, immune load, hormonal disruption, oxidative stress).
//
// Days within a subject are a strict fold over Step. Subjects are
// independent: each draws from its own random stream derived from the run
// seed and its subject id, so a run is reproducible for a given seed no
// matter how many workers execute it.
//
// Usage:
//
//	res, err := simulation.Run(ctx, simulation.Params{
//	    Subjects: 500,
//	    Days:     120,
//	    Seed:     42,
//	})
//	// res.Table holds Subjects*Days records, subject-major.
package simulation
