package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/runbox/config"
)

func TestControllerNew(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("ValidCapacity", func(t *testing.T) {
		ctrl, err := New(logger, 4, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 4, ctrl.Capacity())
	})

	t.Run("InvalidCapacity", func(t *testing.T) {
		_, err := New(logger, 0, time.Second)
		require.Error(t, err)
	})

	t.Run("InvalidQueueWait", func(t *testing.T) {
		_, err := New(logger, 1, 0)
		require.Error(t, err)
	})

	t.Run("FromConfig", func(t *testing.T) {
		cfg := &config.Config{
			Sandbox: config.SandboxConfig{
				MaxConcurrentExecutions: 2,
				QueueWaitSec:            30,
			},
		}
		ctrl, err := NewFromConfig(logger, cfg)
		require.NoError(t, err)
		assert.Equal(t, 2, ctrl.Capacity())
	})
}

func TestControllerAcquireRelease(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("AcquireUpToCapacity", func(t *testing.T) {
		ctrl, err := New(logger, 2, 50*time.Millisecond)
		require.NoError(t, err)

		s1, err := ctrl.Acquire(context.Background())
		require.NoError(t, err)
		s2, err := ctrl.Acquire(context.Background())
		require.NoError(t, err)

		// Third acquire times out while both slots are held.
		_, err = ctrl.Acquire(context.Background())
		assert.ErrorIs(t, err, ErrAdmissionTimeout)

		s1.Release()
		s2.Release()

		// Capacity is restored after release.
		s3, err := ctrl.Acquire(context.Background())
		require.NoError(t, err)
		s3.Release()
	})

	t.Run("ReleaseIsIdempotent", func(t *testing.T) {
		ctrl, err := New(logger, 1, 50*time.Millisecond)
		require.NoError(t, err)

		slot, err := ctrl.Acquire(context.Background())
		require.NoError(t, err)
		slot.Release()
		slot.Release() // must not free a second slot

		s1, err := ctrl.Acquire(context.Background())
		require.NoError(t, err)
		_, err = ctrl.Acquire(context.Background())
		assert.ErrorIs(t, err, ErrAdmissionTimeout)
		s1.Release()
	})

	t.Run("CallerCancellationIsNotAdmissionTimeout", func(t *testing.T) {
		ctrl, err := New(logger, 1, time.Minute)
		require.NoError(t, err)

		slot, err := ctrl.Acquire(context.Background())
		require.NoError(t, err)
		defer slot.Release()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err = ctrl.Acquire(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAdmissionTimeout)
	})
}

func TestControllerFIFOOrdering(t *testing.T) {
	logger := zaptest.NewLogger(t)
	const capacity = 2

	ctrl, err := New(logger, capacity, time.Minute)
	require.NoError(t, err)

	// Fill all slots.
	held := make([]*Slot, 0, capacity)
	for i := 0; i < capacity; i++ {
		slot, acqErr := ctrl.Acquire(context.Background())
		require.NoError(t, acqErr)
		held = append(held, slot)
	}

	// Queue three waiters one at a time so their arrival order is fixed.
	var mu sync.Mutex
	admitted := []int{}
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			slot, acqErr := ctrl.Acquire(context.Background())
			if !assert.NoError(t, acqErr) {
				return
			}
			mu.Lock()
			admitted = append(admitted, id)
			mu.Unlock()
			slot.Release()
		}(i)
		time.Sleep(20 * time.Millisecond)
	}

	// Release held slots one by one; waiters must be admitted in
	// arrival order.
	for _, slot := range held {
		slot.Release()
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, admitted)
}
