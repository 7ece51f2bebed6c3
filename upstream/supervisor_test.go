package upstream

import (
	"testing"

	"tokentracker/trade"
)

func TestHandleFrameDispatchesParsedTrade(t *testing.T) {
	var got trade.Trade
	called := false
	handlers := Handlers{
		OnTrade: func(tr trade.Trade) {
			got = tr
			called = true
		},
		OnMalformed: func() {
			t.Fatal("should not be called for a well-formed frame")
		},
	}

	payload := []byte(`{"txType":"buy","mint":"T","traderPublicKey":"X","solAmount":0.5,"vSolInBondingCurve":10,"vTokensInBondingCurve":1000}`)
	handleFrame(payload, handlers)

	if !called {
		t.Fatal("expected OnTrade to be called")
	}
	if got.TokenAddress != "T" || got.Kind != trade.Buy {
		t.Fatalf("unexpected parsed trade: %+v", got)
	}
}

func TestHandleFrameDropsMalformedSilently(t *testing.T) {
	malformedCount := 0
	handlers := Handlers{
		OnTrade: func(tr trade.Trade) {
			t.Fatal("should not be called for a malformed frame")
		},
		OnMalformed: func() {
			malformedCount++
		},
	}

	handleFrame([]byte(`not json`), handlers)
	if malformedCount != 1 {
		t.Fatalf("expected malformed counter bumped once, got %d", malformedCount)
	}
}
