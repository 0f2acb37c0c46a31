package slava

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTask_pollIsIdempotentOnceDone(t *testing.T) {
	sched := NewScheduler()
	var runs int
	task := newTask(sched, func(aw *Awaiter) {
		runs++
	})

	task.poll()
	task.poll() // a duplicate wake delivered after completion must be a no-op
	assert.Equal(t, 1, runs)
}

func TestTask_ID_isStablePerTask(t *testing.T) {
	sched := NewScheduler()
	task := newTask(sched, func(aw *Awaiter) {})
	id1 := task.ID()
	id2 := task.ID()
	assert.Equal(t, id1, id2)
}

func TestWaker_wakeReenqueuesTask(t *testing.T) {
	sched := NewScheduler()
	task := newTask(sched, func(aw *Awaiter) {})

	w := newWaker(task)
	w.Wake()

	assert.Equal(t, 1, sched.Pending())
}
