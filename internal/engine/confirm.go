package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Decision is an external approve/deny signal for a confirmation-gated call.
type Decision struct {
	Approved  bool
	DecidedBy string
	Reason    string
}

type pendingConfirmation struct {
	ch chan Decision
}

// Confirmations matches awaited confirmation-gated tool calls with the
// asynchronous approve/deny signals arriving from the delivery channel.
type Confirmations struct {
	mu      sync.Mutex
	pending map[string]*pendingConfirmation // turnID/callID
}

// NewConfirmations creates an empty coordinator.
func NewConfirmations() *Confirmations {
	return &Confirmations{
		pending: make(map[string]*pendingConfirmation),
	}
}

func confirmationKey(turnID, callID string) string {
	return turnID + "/" + callID
}

// Await blocks until a decision arrives, the timeout elapses, or ctx is
// cancelled. Timeout and cancellation are reported as a denial; the turn is
// never suspended indefinitely.
func (c *Confirmations) Await(ctx context.Context, turnID, callID string, timeout time.Duration) Decision {
	key := confirmationKey(turnID, callID)
	p := &pendingConfirmation{ch: make(chan Decision, 1)}

	c.mu.Lock()
	c.pending[key] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-p.ch:
		return d
	case <-timer.C:
		return Decision{Approved: false, Reason: "confirmation timed out"}
	case <-ctx.Done():
		return Decision{Approved: false, Reason: "turn cancelled"}
	}
}

// Resolve delivers a decision to a waiting call. It errors when nothing is
// waiting under that key (already decided, timed out, or never requested).
func (c *Confirmations) Resolve(turnID, callID string, d Decision) error {
	key := confirmationKey(turnID, callID)

	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending confirmation for turn %s call %s", turnID, callID)
	}
	p.ch <- d
	return nil
}

// PendingRef identifies one call awaiting confirmation.
type PendingRef struct {
	TurnID string
	CallID string
}

// Pending lists every call currently awaiting confirmation.
func (c *Confirmations) Pending() []PendingRef {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []PendingRef
	for key := range c.pending {
		if idx := strings.IndexByte(key, '/'); idx > 0 {
			out = append(out, PendingRef{TurnID: key[:idx], CallID: key[idx+1:]})
		}
	}
	return out
}

// PendingCalls lists the call IDs currently awaiting confirmation for a turn.
func (c *Confirmations) PendingCalls(turnID string) []string {
	prefix := turnID + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for key := range c.pending {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, key[len(prefix):])
		}
	}
	return out
}
