package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerSpawnWait(t *testing.T) {
	s := New()
	ran := false
	s.Spawn(context.Background(), "worker", 0, func(ctx context.Context, tk *Task) {
		ran = true
	})
	s.Wait()
	assert.True(t, ran)
	assert.Equal(t, 0, s.NumRunning())
}

func TestSchedulerSpawnPanicRecovered(t *testing.T) {
	s := New()
	tk := s.Spawn(context.Background(), "panicker", 0, func(ctx context.Context, tk *Task) {
		panic("boom")
	})
	<-tk.Done()
	s.Wait()
	require.Error(t, tk.Err())
	assert.Contains(t, tk.Err().Error(), "boom")
}

func TestRendezvousWakeupWakesOneWaiter(t *testing.T) {
	r := NewRendezvous("test")
	woke := make(chan int, 2)

	for i := 0; i < 2; i++ {
		i := i
		go func() {
			if err := r.Sleep(context.Background()); err == nil {
				woke <- i
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	ok := r.Wakeup()
	assert.True(t, ok)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("no waiter woke up")
	}

	// second waiter must still be parked.
	select {
	case <-woke:
		t.Fatal("second waiter should not have woken")
	case <-time.After(20 * time.Millisecond):
	}

	r.WakeupAll()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("WakeupAll did not wake remaining waiter")
	}
}

func TestRendezvousSleepCancelledByContext(t *testing.T) {
	r := NewRendezvous("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Sleep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRendezvousWakeupNoWaitersIsNoop(t *testing.T) {
	r := NewRendezvous("empty")
	assert.False(t, r.Wakeup())
}

func TestSchedulerDrainReturnsWhenNoTasksRunning(t *testing.T) {
	s := New()
	s.Drain()
	assert.Equal(t, 0, s.NumRunning())
}

func TestSchedulerDrainWaitsOutShortLivedTasks(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		s.Spawn(context.Background(), "worker", 0, func(ctx context.Context, tk *Task) {
			tk.Yield()
		})
	}
	s.Drain()
	s.Wait()
	assert.Equal(t, 0, s.NumRunning())
}
