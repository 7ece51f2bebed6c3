// Package lifecycle implements the phase state machine of spec §4.5:
// graduation detection, phase promotion by age, and flush-cadence tracking,
// evaluated in the fixed order graduation -> promotion -> flush so a
// terminal token never emits a post-terminal metric row.
package lifecycle

import "time"

// Outcome describes what the state machine decided for one token on one
// tick. The flush engine acts on it: terminal tokens are removed from the
// active set and get a terminal write; promoted tokens keep running with
// updated phase/schedule; flush-eligible tokens get a metric row (if their
// aggregator has activity).
type Outcome struct {
	Terminal      bool
	Graduated     bool
	Promoted      bool
	NewPhaseID    int
	NewInterval   time.Duration
	ShouldFlush   bool
	NextFlush     time.Time
}

// Phase mirrors a ref_coin_phases row in the shape the state machine needs.
type Phase struct {
	ID              int
	IntervalSeconds int
	MaxAgeMinutes   int
}

// Reserved terminal phase ids, mirrored from the database package to avoid
// a lifecycle -> database import for two constants.
const (
	PhaseFinished  = 99
	PhaseGraduated = 100
)

const graduationThresholdPct = 99.5

// TokenState is the lifecycle-relevant state the machine needs for one
// token: its current phase, creation time, and next scheduled flush.
type TokenState struct {
	CurrentPhaseID int
	CreatedAt      time.Time
	NextFlush      time.Time
}

// Evaluate runs the three-step transition order of spec §4.5 for a single
// token on a single tick. currentPhase is the token's current phase;
// nextPhase is the real phase immediately following it, or nil if there is
// none. ageOffsetMinutes is AGE_OFFSET_MIN.
func Evaluate(
	now time.Time,
	state TokenState,
	bondingCurvePct float64,
	currentPhase Phase,
	nextPhase *Phase,
	ageOffsetMinutes float64,
) Outcome {
	// 1. Graduation — checked first so a graduating token never falls
	// through to promotion or flush on the same tick.
	if bondingCurvePct >= graduationThresholdPct {
		return Outcome{Terminal: true, Graduated: true}
	}

	outcome := Outcome{NextFlush: state.NextFlush}

	// 2. Phase promotion.
	ageMin := now.Sub(state.CreatedAt).Minutes() - ageOffsetMinutes
	if ageMin < 0 {
		ageMin = 0
	}

	if ageMin > float64(currentPhase.MaxAgeMinutes) {
		if nextPhase != nil && nextPhase.ID < PhaseFinished {
			outcome.Promoted = true
			outcome.NewPhaseID = nextPhase.ID
			outcome.NewInterval = time.Duration(nextPhase.IntervalSeconds) * time.Second
			outcome.NextFlush = now.Add(outcome.NewInterval)
			return finishFlushCheck(now, outcome, outcome.NewInterval)
		}
		return Outcome{Terminal: true, Graduated: false}
	}

	return finishFlushCheck(now, outcome, time.Duration(currentPhase.IntervalSeconds)*time.Second)
}

// finishFlushCheck applies step 3 (flush) once graduation/promotion have
// been ruled out for this tick: when the schedule has elapsed it marks the
// flush and moves NextFlush to now + interval.
func finishFlushCheck(now time.Time, outcome Outcome, interval time.Duration) Outcome {
	if !outcome.NextFlush.After(now) {
		outcome.ShouldFlush = true
		outcome.NextFlush = now.Add(interval)
	}
	return outcome
}
