package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSystemSleepReturnsOnCancel: a cancelled context cuts the sleep short
// so shutdown never waits out a long pause.
func TestSystemSleepReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	System{}.Sleep(ctx, time.Hour)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSystemSleepWaits(t *testing.T) {
	t.Parallel()

	start := time.Now()
	System{}.Sleep(context.Background(), 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
