// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package oneshot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnlyOnePrimaryRunsConcurrently(t *testing.T) {
	var running int32
	var maxConcurrent int32
	release := make(chan struct{})

	g := &Gate{
		Primary: func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxConcurrent)
				if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		},
	}

	var fallbackCount int32
	g.Fallback = func(ctx context.Context) {
		atomic.AddInt32(&fallbackCount, 1)
	}

	handle, started := g.RunInNewThread(context.Background())
	require.True(t, started)

	const attempts = 20
	for i := 0; i < attempts; i++ {
		_, started := g.RunInNewThread(context.Background())
		assert.False(t, started, "no second run should start while first is active")
	}

	close(release)
	handle.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
	assert.Equal(t, int32(attempts), atomic.LoadInt32(&fallbackCount))
	assert.False(t, g.Busy())
}

func TestRunsAgainAfterCompletion(t *testing.T) {
	var count int32
	g := &Gate{
		Primary: func(ctx context.Context) {
			atomic.AddInt32(&count, 1)
		},
	}

	h1, started1 := g.RunInNewThread(context.Background())
	require.True(t, started1)
	h1.Wait()

	h2, started2 := g.RunInNewThread(context.Background())
	require.True(t, started2)
	h2.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestStopCancelsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	g := &Gate{
		Primary: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
		},
	}

	_, ok := g.RunInNewThread(context.Background())
	require.True(t, ok)
	<-started

	stopped := g.Stop(time.Second)
	assert.True(t, stopped)
	assert.False(t, g.Busy())
}

func TestStopWithNoRunIsNoOp(t *testing.T) {
	g := &Gate{Primary: func(ctx context.Context) {}}
	assert.True(t, g.Stop(time.Millisecond))
}
