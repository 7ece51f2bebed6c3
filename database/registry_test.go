package database

import (
	"errors"
	"testing"
)

func TestIsUndefinedFunctionRecognizesMissingHook(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("pq: function repair_active_coin_streams() does not exist"), true},
		{errors.New("pq: undefined function repair_active_coin_streams"), true},
		{errors.New("pq: SQLSTATE 42883"), true},
		{errors.New("pq: connection refused"), false},
	}

	for _, tc := range cases {
		if got := isUndefinedFunction(tc.err); got != tc.want {
			t.Errorf("isUndefinedFunction(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestPhaseFinishedAndGraduatedAreReservedTerminalIDs(t *testing.T) {
	if PhaseFinished == PhaseGraduated {
		t.Fatal("finished and graduated must be distinct terminal ids")
	}
	if PhaseFinished != 99 || PhaseGraduated != 100 {
		t.Fatalf("unexpected reserved ids: finished=%d graduated=%d", PhaseFinished, PhaseGraduated)
	}
}
