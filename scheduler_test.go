package slava

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunSingleThreaded_drainsOnClose(t *testing.T) {
	sched := NewScheduler()

	var ran atomic.Bool
	require.NoError(t, sched.Spawn(func(aw *Awaiter) {
		ran.Store(true)
	}))
	sched.Close()

	done := make(chan struct{})
	go func() {
		sched.RunSingleThreaded()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSingleThreaded did not return once the queue drained")
	}

	assert.True(t, ran.Load())
}

func TestScheduler_Run_multipleWorkers(t *testing.T) {
	sched := NewScheduler()

	const n = 50
	var count atomic.Int64
	for i := 0; i < n; i++ {
		require.NoError(t, sched.Spawn(func(aw *Awaiter) {
			count.Add(1)
		}))
	}
	sched.Close()

	done := make(chan struct{})
	go func() {
		sched.Run(4)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run(4) did not return once the queue drained")
	}

	assert.EqualValues(t, n, count.Load())
}

func TestScheduler_Workers_reflectsActiveRun(t *testing.T) {
	sched := NewScheduler()
	assert.Equal(t, 0, sched.Workers(), "no worker pool active yet")

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, sched.Spawn(func(aw *Awaiter) {
		close(started)
		<-block
	}))

	done := make(chan struct{})
	go func() {
		sched.Run(3)
		close(done)
	}()

	<-started
	assert.Equal(t, 3, sched.Workers())

	close(block)
	sched.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run(3) did not return once the queue drained")
	}
	assert.Equal(t, 0, sched.Workers(), "worker count resets once Run returns")
}

func TestScheduler_Spawn_afterCloseFails(t *testing.T) {
	sched := NewScheduler()
	sched.Close()

	err := sched.Spawn(func(aw *Awaiter) {})
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestScheduler_Spawn_nilComputation(t *testing.T) {
	sched := NewScheduler()
	err := sched.Spawn(nil)
	assert.ErrorIs(t, err, ErrEmptyComputation)
}

func TestScheduler_wakeReEnqueuesTask(t *testing.T) {
	sched := NewScheduler()

	resume := make(chan *Waker, 1)

	require.NoError(t, sched.Spawn(func(aw *Awaiter) {
		// Hand our own waker out, then suspend exactly the way an I/O
		// await point would, without touching a real socket.
		resume <- newWaker(aw.task)
		aw.park()
	}))

	done := make(chan struct{})
	go func() {
		sched.Run(1)
		close(done)
	}()

	w := <-resume
	w.Wake()
	sched.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("woken task never completed")
	}
}
