package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTripsAfterThreshold(t *testing.T) {
	cb := New(true, 3, time.Minute, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	count, tripped := cb.State()
	assert.Equal(t, 3, count)
	assert.True(t, tripped)
}

func TestSuccessClearsFailureCount(t *testing.T) {
	cb := New(true, 3, time.Minute, time.Minute, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestResetTimeoutClosesCircuit(t *testing.T) {
	cb := New(true, 1, time.Minute, 10*time.Millisecond, nil)

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen())
}

func TestManualReset(t *testing.T) {
	cb := New(true, 1, time.Minute, time.Hour, nil)

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())
}

func TestDisabledBreakerNeverOpens(t *testing.T) {
	cb := New(false, 1, time.Minute, time.Minute, nil)

	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.False(t, cb.IsOpen())
}
