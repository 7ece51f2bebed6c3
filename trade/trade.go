// Package trade defines the parsed trade-event record shared by every
// downstream component (buffer, aggregator, upstream client). The upstream
// venue hands over loose JSON; this package is the one place that turns it
// into a closed, typed record and decides what gets dropped.
package trade

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind discriminates a trade direction.
type Kind string

const (
	Buy  Kind = "buy"
	Sell Kind = "sell"
)

// ErrMalformed is returned by Parse when a raw message cannot be turned into
// a usable Trade — missing fields, unusable reserves, or an unrecognized
// txType. Callers must drop the message silently and bump a counter, per
// the malformed-input error class.
var ErrMalformed = errors.New("trade: malformed or unusable trade event")

// Trade is a single parsed buy/sell event as consumed by the aggregator and
// stored in the rolling buffer.
type Trade struct {
	TokenAddress         string
	TraderAddress        string
	Kind                 Kind
	SolAmount            float64
	VirtualSolReserves   float64
	VirtualTokenReserves float64

	// ReceivedAt is the monotonic-ish wall-clock timestamp assigned on
	// arrival at the tracker, not an upstream-reported event time. It is
	// what the rolling buffer indexes on.
	ReceivedAt time.Time
}

// Price returns the derived price for this trade. Callers must only call
// this after confirming VirtualTokenReserves > 0 (Parse already enforces
// this for anything it returns).
func (t Trade) Price() float64 {
	return t.VirtualSolReserves / t.VirtualTokenReserves
}

// rawMessage mirrors the inbound wire shape long enough to validate it.
// txType discriminates create/buy/sell frames; anything else (acks,
// control frames) is ignored upstream before Parse is even called.
type rawMessage struct {
	TxType               string  `json:"txType"`
	Mint                 string  `json:"mint"`
	TraderPublicKey      string  `json:"traderPublicKey"`
	SolAmount            float64 `json:"solAmount"`
	VirtualSolReserves   float64 `json:"vSolInBondingCurve"`
	VirtualTokenReserves float64 `json:"vTokensInBondingCurve"`
}

// Parse turns a raw inbound trade frame into a Trade. It returns
// ErrMalformed for anything that is not a usable buy/sell event: unparseable
// JSON, a missing token/trader address, or zero virtual token reserves.
func Parse(raw []byte, receivedAt time.Time) (Trade, error) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Trade{}, ErrMalformed
	}

	var kind Kind
	switch msg.TxType {
	case "buy":
		kind = Buy
	case "sell":
		kind = Sell
	default:
		return Trade{}, ErrMalformed
	}

	if msg.Mint == "" || msg.TraderPublicKey == "" {
		return Trade{}, ErrMalformed
	}
	if msg.VirtualTokenReserves == 0 {
		return Trade{}, ErrMalformed
	}

	return Trade{
		TokenAddress:         msg.Mint,
		TraderAddress:        msg.TraderPublicKey,
		Kind:                 kind,
		SolAmount:            msg.SolAmount,
		VirtualSolReserves:   msg.VirtualSolReserves,
		VirtualTokenReserves: msg.VirtualTokenReserves,
		ReceivedAt:           receivedAt,
	}, nil
}

// IsNewTokenEvent reports whether a raw frame is a token-creation
// notification (txType "create"), and if so returns the new token address.
func IsNewTokenEvent(raw []byte) (tokenAddress string, ok bool) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	if msg.TxType != "create" || msg.Mint == "" {
		return "", false
	}
	return msg.Mint, true
}
