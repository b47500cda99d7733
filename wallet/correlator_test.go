package wallet

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator(t *testing.T) {
	c := NewCorrelator()
	ctx := context.Background()

	ch := c.Register("a")
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Resolve("a", url.Values{"x": {"1"}}))
	assert.False(t, c.Resolve("a", url.Values{"x": {"2"}}), "second answer")
	assert.False(t, c.Resolve("b", nil), "unknown id")

	got, err := c.Wait(ctx, "a", ch, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Get("x"))

	ch = c.Register("slow")
	_, err = c.Wait(ctx, "slow", ch, 10*time.Millisecond)
	assert.ErrorIs(t, err, errWaitTimeout)
	assert.Zero(t, c.Len())

	ch = c.Register("cancelled")
	go c.CancelAll()
	_, err = c.Wait(ctx, "cancelled", ch, time.Second)
	assert.ErrorIs(t, err, errCancelled)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	ch = c.Register("ctx")
	_, err = c.Wait(cctx, "ctx", ch, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Len())
}
