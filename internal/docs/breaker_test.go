package docs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/itemassert/pkg/schema"
)

// fakeClock returns a breaker whose time only moves when advance is called.
func fakeClock(b *Breaker) (advance func(time.Duration)) {
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: 10 * time.Second})
	fakeClock(b)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())

	assert.Equal(t, BreakerOpen, b.RecordFailure())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeTransport))
	nodeErr := schema.AsNodeError(err)
	assert.Equal(t, "open", nodeErr.Details["state"])
	assert.Equal(t, 3, nodeErr.Details["consecutive_failures"])
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second, HalfOpenMax: 1})
	advance := fakeClock(b)

	b.RecordFailure()
	require.Error(t, b.Allow())

	advance(time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Allow(), "first trial allowed")
	assert.Error(t, b.Allow(), "second trial rejected")

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Second})
	advance := fakeClock(b)

	b.RecordFailure()
	b.RecordFailure()
	advance(2 * time.Second)
	require.NoError(t, b.Allow())

	assert.Equal(t, BreakerOpen, b.RecordFailure())
	assert.Error(t, b.Allow())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(42).String())
}

func TestBreaker_ReleaseFreesTrial(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second, HalfOpenMax: 1})
	advance := fakeClock(b)

	b.RecordFailure()
	advance(time.Second)
	require.NoError(t, b.Allow())
	require.Error(t, b.Allow())

	b.Release()
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.NoError(t, b.Allow(), "released slot can be taken again")
}

func TestBreaker_ReleaseWhenClosedIsNoop(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	b.Release()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}
