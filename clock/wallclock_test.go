package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWallClockRunFiresScheduledClosure(t *testing.T) {
	w := NewWallClock()

	var fired int32
	w.Schedule(5*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, 150*time.Millisecond, time.Millisecond)

	cancel()
	<-done
}

func TestWallClockNowTracksRealTime(t *testing.T) {
	w := NewWallClock()
	before := time.Now()
	require.False(t, w.Now().Before(before))
}
