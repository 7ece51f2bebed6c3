package lifecycle

import (
	"testing"
	"time"
)

// TestS4Graduation mirrors spec scenario S4.
func TestS4Graduation(t *testing.T) {
	now := time.Now()
	state := TokenState{CurrentPhaseID: 1, CreatedAt: now.Add(-time.Minute), NextFlush: now.Add(5 * time.Second)}
	phase := Phase{ID: 1, IntervalSeconds: 5, MaxAgeMinutes: 10}

	// virtual_sol_reserves=84.6, SOL_RESERVES_FULL=85.0 => 99.53% >= 99.5
	bondingCurvePct := 84.6 / 85.0 * 100

	outcome := Evaluate(now, state, bondingCurvePct, phase, nil, 60)

	if !outcome.Terminal || !outcome.Graduated {
		t.Fatalf("expected terminal graduation, got %+v", outcome)
	}
	if outcome.ShouldFlush {
		t.Fatal("graduation must not also flush a partial window")
	}
}

// TestS5PhasePromotion mirrors spec scenario S5.
func TestS5PhasePromotion(t *testing.T) {
	now := time.Now()
	createdAt := now.Add(-75 * time.Minute)
	state := TokenState{CurrentPhaseID: 1, CreatedAt: createdAt, NextFlush: now.Add(2 * time.Second)}
	phase1 := Phase{ID: 1, IntervalSeconds: 5, MaxAgeMinutes: 10}
	phase2 := Phase{ID: 2, IntervalSeconds: 30, MaxAgeMinutes: 60}

	outcome := Evaluate(now, state, 10.0, phase1, &phase2, 60)

	if !outcome.Promoted {
		t.Fatalf("expected promotion, got %+v", outcome)
	}
	if outcome.NewPhaseID != 2 {
		t.Errorf("expected promotion to phase 2, got %d", outcome.NewPhaseID)
	}
	if outcome.NewInterval != 30*time.Second {
		t.Errorf("expected new interval 30s, got %v", outcome.NewInterval)
	}
	if outcome.Terminal {
		t.Fatal("promotion must not also be a terminal transition")
	}
	if outcome.ShouldFlush {
		t.Fatal("a freshly rescheduled flush should not fire the same tick")
	}
}

func TestPromotionToFinishedWhenNoNextPhase(t *testing.T) {
	now := time.Now()
	state := TokenState{CurrentPhaseID: 2, CreatedAt: now.Add(-200 * time.Minute), NextFlush: now}
	phase2 := Phase{ID: 2, IntervalSeconds: 30, MaxAgeMinutes: 60}

	outcome := Evaluate(now, state, 10.0, phase2, nil, 60)

	if !outcome.Terminal || outcome.Graduated {
		t.Fatalf("expected a non-graduated terminal transition to finished, got %+v", outcome)
	}
}

func TestFlushFiresWhenScheduleElapsed(t *testing.T) {
	now := time.Now()
	state := TokenState{CurrentPhaseID: 1, CreatedAt: now.Add(-time.Minute), NextFlush: now.Add(-time.Second)}
	phase := Phase{ID: 1, IntervalSeconds: 5, MaxAgeMinutes: 10}

	outcome := Evaluate(now, state, 10.0, phase, nil, 60)

	if outcome.Terminal || outcome.Promoted {
		t.Fatalf("expected neither terminal nor promotion, got %+v", outcome)
	}
	if !outcome.ShouldFlush {
		t.Fatal("expected flush to fire since next_flush has elapsed")
	}
}

func TestAgeOffsetClampedToZero(t *testing.T) {
	now := time.Now()
	// created_at very recent: age_min - offset would be negative, must clamp to 0.
	state := TokenState{CurrentPhaseID: 1, CreatedAt: now, NextFlush: now.Add(time.Hour)}
	phase := Phase{ID: 1, IntervalSeconds: 5, MaxAgeMinutes: 10}

	outcome := Evaluate(now, state, 10.0, phase, nil, 60)

	if outcome.Terminal || outcome.Promoted {
		t.Fatalf("clamped age must not exceed max_age_minutes=10, got %+v", outcome)
	}
}

func TestGraduationTakesPrecedenceOverPromotion(t *testing.T) {
	now := time.Now()
	// Old enough to promote AND over the graduation threshold: graduation wins.
	state := TokenState{CurrentPhaseID: 1, CreatedAt: now.Add(-200 * time.Minute), NextFlush: now}
	phase1 := Phase{ID: 1, IntervalSeconds: 5, MaxAgeMinutes: 10}
	phase2 := Phase{ID: 2, IntervalSeconds: 30, MaxAgeMinutes: 60}

	outcome := Evaluate(now, state, 99.9, phase1, &phase2, 60)

	if !outcome.Terminal || !outcome.Graduated || outcome.Promoted {
		t.Fatalf("expected graduation to preempt promotion, got %+v", outcome)
	}
}
