package slava

import (
	"sync"

	"github.com/google/uuid"
)

// Computation is a suspendable unit of work submitted to a Scheduler. It
// runs on a dedicated goroutine managed by its Task, and may suspend at an
// explicit I/O await point by calling one of TcpListener.Accept,
// TcpStream.ReadBytes, or TcpStream.WriteBytes with the Awaiter it is
// handed. Everything else in a Computation runs to completion between
// suspensions: a CPU-bound loop blocks whichever worker is currently
// driving it.
type Computation func(aw *Awaiter)

// Task wraps a Computation with the bookkeeping needed to drive it forward
// one suspension at a time from the Scheduler's worker pool. A Task is
// polled by at most one worker at any instant: mu is held for the entire
// duration of a poll step, including while the call blocks waiting for the
// backing goroutine to park or finish, so a concurrent re-poll (from a
// duplicate wake) simply queues behind it rather than racing it.
type Task struct {
	id    uuid.UUID
	sched *Scheduler

	mu      sync.Mutex
	started bool
	done    bool

	fn     Computation
	resume chan struct{}
	parked chan struct{}
}

func newTask(sched *Scheduler, fn Computation) *Task {
	return &Task{
		id:     uuid.New(),
		sched:  sched,
		fn:     fn,
		resume: make(chan struct{}),
		parked: make(chan struct{}),
	}
}

// ID returns a stable identifier for logging and metrics correlation. It
// plays no part in scheduling decisions.
func (t *Task) ID() uuid.UUID {
	return t.id
}

// poll drives the task forward exactly one step: either to its next
// suspension point or to completion. An await point registers its waker
// before parking, so a wake can re-enqueue the task while this step is still
// running; a second poll of the same task then blocks on mu until the
// current step has finished.
func (t *Task) poll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}

	if !t.started {
		t.started = true
		go t.run()
	} else {
		t.resume <- struct{}{}
	}

	<-t.parked
}

func (t *Task) run() {
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger().Error().
					Stringer("task", t.id).
					Interface("panic", r).
					Msg("task panicked; recovered to keep the worker pool alive")
			}
		}()
		t.fn(&Awaiter{task: t})
	}()

	t.done = true
	t.parked <- struct{}{}
}

// Waker is the capability a suspended Task's await point hands to the
// reactor (or to any other readiness source). Invoking it re-enqueues a
// fresh reference to the task onto its scheduler's submission queue. There
// is no optimized wake_by_ref path: both methods do the same thing.
type Waker struct {
	task *Task
}

func newWaker(t *Task) *Waker {
	return &Waker{task: t}
}

// Wake re-enqueues the owning task. Safe to call from any goroutine,
// including the reactor's background loop and a task's own body.
func (w *Waker) Wake() {
	w.task.sched.enqueue(w.task)
	defaultReactor().wakesTotal.Add(1)
}

// WakeByRef behaves identically to Wake; it exists alongside Wake for
// callers that only hold a borrowed reference to the waker.
func (w *Waker) WakeByRef() {
	w.task.sched.enqueue(w.task)
	defaultReactor().wakesTotal.Add(1)
}

// Awaiter is the suspension-point gateway handed to a Computation: code
// holding an Awaiter may register interest in FD readiness and block until
// woken, which is precisely what
// TcpListener.Accept/TcpStream.ReadBytes/TcpStream.WriteBytes do for the
// caller.
type Awaiter struct {
	task *Task
}

// suspendRead registers the current task as the sole read-awaiter for fd
// and parks until woken.
func (aw *Awaiter) suspendRead(fd int) {
	defaultReactor().registerRead(fd, newWaker(aw.task))
	aw.park()
}

// suspendWrite registers the current task as the sole write-awaiter for fd
// and parks until woken.
func (aw *Awaiter) suspendWrite(fd int) {
	defaultReactor().registerWrite(fd, newWaker(aw.task))
	aw.park()
}

// park blocks the task's backing goroutine until its owning Scheduler
// worker polls it again. It is the one place a Computation actually
// suspends.
func (aw *Awaiter) park() {
	aw.task.parked <- struct{}{}
	<-aw.task.resume
}
