package filestore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalBarrierEnterLeavePairsCleanly(t *testing.T) {
	t.Parallel()

	b := newSignalBarrier()

	b.enter()
	assert.Equal(t, 1, b.transRunning)
	b.leave()
	assert.Equal(t, 0, b.transRunning)
}

func TestSignalBarrierConcurrentEnterLeave(t *testing.T) {
	t.Parallel()

	b := newSignalBarrier()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.enter()
			b.leave()
		}()
	}
	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 0, b.transRunning)
}
