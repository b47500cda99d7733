package wallet

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"
)

var (
	errWaitTimeout = errors.New("no callback before timeout")
	errCancelled   = errors.New("request cancelled")
)

// Correlator matches deep-link callbacks to the request that is waiting for
// them. Every request id has at most one waiter and receives at most one
// callback.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan url.Values
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan url.Values)}
}

// Register starts waiting for id.
func (c *Correlator) Register(id string) <-chan url.Values {
	ch := make(chan url.Values, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// Resolve delivers params to the waiter of id. It reports false for an
// unknown or already answered id.
func (c *Correlator) Resolve(id string, params url.Values) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- params
	return true
}

// Forget drops id without answering it.
func (c *Correlator) Forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// CancelAll wakes every waiter with errCancelled.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan url.Values)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until ch is answered, cancelled, timeout elapses or ctx ends.
func (c *Correlator) Wait(ctx context.Context, id string, ch <-chan url.Values, timeout time.Duration) (url.Values, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case params, ok := <-ch:
		if !ok {
			return nil, errCancelled
		}
		return params, nil
	case <-timer.C:
		c.Forget(id)
		return nil, errWaitTimeout
	case <-ctx.Done():
		c.Forget(id)
		return nil, ctx.Err()
	}
}
