package upstream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tokentracker/trade"
)

// SubscribeRequest is enqueued by the new-token task onto a channel owned
// by the trade task, which is the sole writer to the upstream trade socket
// (spec §4.1/§5). This models the cyclic new-token/trade task dependency
// named in spec §9 as two independent tasks communicating over a bounded
// channel.
type SubscribeRequest struct {
	TokenAddress string
}

// Handlers bundles the callbacks the trade-stream supervisor invokes as it
// reads frames off the wire. OnTrade receives every parsed trade exactly
// once (spec §4.1's output contract); OnMalformed is called once per frame
// that failed to parse.
type Handlers struct {
	OnTrade     func(trade.Trade)
	OnMalformed func()
}

// RunTradeStream owns the trade-stream connection: it bulk-subscribes to
// activeTokens on connect, drains subscribeCh for incremental subscribes
// from the new-token task, reads frames with a 1s soft timeout, and
// reconnects with capped backoff on disconnect. It runs until ctx is
// cancelled.
func RunTradeStream(
	ctx context.Context,
	client *Client,
	activeTokens []string,
	subscribeCh <-chan SubscribeRequest,
	baseRetry, maxRetry time.Duration,
	handlers Handlers,
) {
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if err := client.Connect(ctx); err != nil {
			delay := BackoffDelay(baseRetry, maxRetry, failures)
			failures++
			logReconnect("trade-stream", failures, delay)
			if !sleepOrDone(ctx, delay) {
				return
			}
			continue
		}

		if err := client.Subscribe("subscribeNewToken", nil); err != nil {
			log.Printf("⚠️  trade-stream: new-token bulk-subscribe failed: %v", err)
		}
		if len(activeTokens) > 0 {
			if err := client.Subscribe("subscribeTokenTrade", activeTokens); err != nil {
				log.Printf("⚠️  trade-stream: bulk-subscribe failed: %v", err)
			}
		}
		failures = 0

		disconnected := readLoop(ctx, client, subscribeCh, handlers)
		client.Close()
		if ctx.Err() != nil {
			return
		}
		if disconnected {
			delay := BackoffDelay(baseRetry, maxRetry, failures)
			failures++
			logReconnect("trade-stream", failures, delay)
			if !sleepOrDone(ctx, delay) {
				return
			}
		}
	}
}

// readLoop reads frames until the connection closes or ctx is cancelled,
// folding in any pending subscribe requests from the new-token task
// between reads. It returns true if the loop exited due to disconnect
// (should reconnect), false if it exited due to ctx cancellation.
func readLoop(ctx context.Context, client *Client, subscribeCh <-chan SubscribeRequest, handlers Handlers) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case req := <-subscribeCh:
			if err := client.Subscribe("subscribeTokenTrade", []string{req.TokenAddress}); err != nil {
				log.Printf("⚠️  trade-stream: incremental subscribe for %s failed: %v", req.TokenAddress, err)
			}
			continue
		default:
		}

		result := client.Read(time.Second)
		switch result.Kind {
		case ReadFrame:
			handleFrame(result.Payload, handlers)
		case ReadIdleTimeout:
			continue
		case ReadClosed:
			return true
		}
	}
}

func handleFrame(payload []byte, handlers Handlers) {
	// Control/ack frames carry no txType; they are ignored, not counted.
	var probe struct {
		TxType string `json:"txType"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.TxType == "" {
		return
	}

	t, err := trade.Parse(payload, time.Now())
	if err != nil {
		if handlers.OnMalformed != nil {
			handlers.OnMalformed()
		}
		return
	}
	if handlers.OnTrade != nil {
		handlers.OnTrade(t)
	}
}

// NewTokenHandlers bundles the callbacks for the new-token stream.
// OnNewToken is invoked once per previously-unseen token address; it
// should record the address as early-subscribed and enqueue a
// SubscribeRequest so its trades start flowing immediately, per spec
// §4.1. OnMessage is invoked on every successfully read frame, including
// duplicates of an already-seen token — it's the connection's liveness
// signal, kept distinct from OnNewToken's business-event semantics so
// /health reflects the socket being alive even during a lull in new
// launches.
type NewTokenHandlers struct {
	OnNewToken  func(tokenAddress string)
	OnMessage   func()
	OnMalformed func()
}

// RunNewTokenStream owns the new-token-stream connection and supervises it
// independently of the trade stream — a failure here never tears down the
// trade connection (spec §4.1). seen deduplicates previously-observed
// token addresses across reconnects.
func RunNewTokenStream(
	ctx context.Context,
	client *Client,
	baseRetry, maxRetry time.Duration,
	handlers NewTokenHandlers,
) {
	failures := 0
	seen := make(map[string]struct{})

	for {
		if ctx.Err() != nil {
			return
		}

		if err := client.Connect(ctx); err != nil {
			delay := BackoffDelay(baseRetry, maxRetry, failures)
			failures++
			logReconnect("new-token-stream", failures, delay)
			if !sleepOrDone(ctx, delay) {
				return
			}
			continue
		}
		if err := client.Subscribe("subscribeNewToken", nil); err != nil {
			log.Printf("⚠️  new-token-stream: subscribe failed: %v", err)
		}
		failures = 0

		disconnected := newTokenReadLoop(ctx, client, seen, handlers)
		client.Close()
		if ctx.Err() != nil {
			return
		}
		if disconnected {
			delay := BackoffDelay(baseRetry, maxRetry, failures)
			failures++
			logReconnect("new-token-stream", failures, delay)
			if !sleepOrDone(ctx, delay) {
				return
			}
		}
	}
}

func newTokenReadLoop(ctx context.Context, client *Client, seen map[string]struct{}, handlers NewTokenHandlers) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		result := client.Read(time.Second)
		switch result.Kind {
		case ReadFrame:
			if handlers.OnMessage != nil {
				handlers.OnMessage()
			}
			tokenAddress, ok := trade.IsNewTokenEvent(result.Payload)
			if !ok {
				continue
			}
			if _, already := seen[tokenAddress]; already {
				continue
			}
			seen[tokenAddress] = struct{}{}
			if handlers.OnNewToken != nil {
				handlers.OnNewToken(tokenAddress)
			}
		case ReadIdleTimeout:
			continue
		case ReadClosed:
			return true
		}
	}
}

// sleepOrDone waits for delay or ctx cancellation, returning false if
// cancelled first.
func sleepOrDone(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
