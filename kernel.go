package microkern

import (
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// Hook receives scheduling callbacks from the kernel. All methods are called
// while the kernel lock is held: implementations must return promptly and
// must not call back into the kernel or into the locking Task accessors.
// Implementations may read the immutable Task accessors (ID, Name,
// BasePriority).
type Hook interface {
	// OnContextSwitch is called when the current task changes. Either task
	// may be the idle task.
	OnContextSwitch(prev, next *Task)

	// OnStateChange is called when a task's lifecycle state changes.
	OnStateChange(t *Task, from, to State)

	// OnPriorityChange is called when a task's effective priority changes,
	// in either direction.
	OnPriorityChange(t *Task, from, to Priority)
}

// Kernel is a simulated single-CPU preemptive kernel. All exported methods
// are safe for concurrent use; internally a single lock serialises every
// scheduling decision.
type Kernel struct {
	mu sync.Mutex

	log  *logiface.Logger[logiface.Event]
	hook Hook

	tickPeriod       time.Duration
	quantum          Tick
	maxTasks         int
	maxMutexes       int
	inheritanceDepth int

	// Everything below is guarded by mu.
	tasks       []*Task
	mutexCount  int
	seq         int64
	tick        Tick
	quantumLeft Tick
	ready       readyQueue
	sleepers    delayQueue
	current     *Task
	idle        *Task

	// deferred counts nested SuspendAll sections; deferAttempt records
	// that a reschedule was requested while deferred, and yieldPending
	// that the current task yielded while deferred.
	deferred     int
	deferAttempt bool
	yieldPending bool

	started bool
	stopped bool
	done    chan struct{}
}

// New creates a kernel with an idle task installed as the current task. The
// kernel does not schedule created tasks until [Kernel.Start] is called.
func New(opts ...Option) *Kernel {
	o := Options{
		TickPeriod:       time.Millisecond,
		Quantum:          1,
		MaxTasks:         32,
		MaxMutexes:       16,
		InheritanceDepth: 8,
	}
	for _, opt := range opts {
		opt(&o)
	}

	k := &Kernel{
		log:              o.Logger,
		hook:             o.Hook,
		tickPeriod:       o.TickPeriod,
		quantum:          o.Quantum,
		maxTasks:         o.MaxTasks,
		maxMutexes:       o.MaxMutexes,
		inheritanceDepth: o.InheritanceDepth,
		done:             make(chan struct{}),
	}
	k.quantumLeft = k.quantum

	// The idle task exists only as a scheduling placeholder: it has no
	// goroutine, never enters a queue, and runs whenever nothing else can.
	k.idle = &Task{
		id:         0,
		name:       "idle",
		k:          k,
		state:      StateRunning,
		readyIndex: -1,
		delayIndex: -1,
	}
	k.tasks = append(k.tasks, k.idle)
	k.current = k.idle
	return k
}

// CreateTask registers a task and makes it Ready. The body runs on its own
// goroutine but only proceeds while the task is the kernel's current task; a
// body that returns leaves the task permanently suspended. CreateTask may be
// called before or after Start; before Start the task simply waits in the
// ready queue. stackBudget is recorded for observability and does not
// constrain the goroutine.
func (k *Kernel) CreateTask(name string, prio Priority, stackBudget int, body func(*Context)) (*Task, error) {
	if body == nil {
		panic("microkern: CreateTask with nil body")
	}

	k.mu.Lock()
	if len(k.tasks) >= k.maxTasks {
		k.mu.Unlock()
		return nil, ErrTooManyTasks
	}

	t := &Task{
		id:          TaskID(len(k.tasks)),
		name:        name,
		base:        prio,
		effective:   prio,
		stackBudget: stackBudget,
		body:        body,
		k:           k,
		gate:        make(chan struct{}, 1),
		state:       StateReady,
		readyIndex:  -1,
		delayIndex:  -1,
	}
	k.tasks = append(k.tasks, t)

	k.logEvent(logiface.LevelDebug, t).
		Uint64("priority", uint64(prio)).
		Log("task created")

	t.seqNo = k.nextSeq()
	k.ready.push(t)
	k.rescheduleLocked()
	k.mu.Unlock()

	go t.run()
	return t, nil
}

// Task returns the task with the given id, or nil if no such task exists.
func (k *Kernel) Task(id TaskID) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	if int(id) >= len(k.tasks) {
		return nil
	}
	return k.tasks[id]
}

// Current returns the task currently running, which may be the idle task.
func (k *Kernel) Current() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Start enables scheduling. The highest-priority Ready task is dispatched
// immediately.
func (k *Kernel) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started || k.stopped {
		return
	}
	k.started = true
	k.rescheduleLocked()
}

// Stop shuts the kernel down. All task goroutines unwind the next time they
// reach a kernel entry point; tasks parked at one unwind immediately. Stop is
// idempotent and safe to call from a host goroutine at any time.
func (k *Kernel) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.stopped = true
	close(k.done)
}

// Suspend removes a task from scheduling entirely. Any delay, timed wait,
// mutex wait or notification wait the task was in is cancelled; a cancelled
// mutex wait withdraws the waiter's priority boost from the owner. Suspending
// the current task forces an immediate context switch (recorded now, taken at
// the goroutine's next kernel entry point). Suspending an already suspended
// task, the idle task, or nil is a no-op.
func (k *Kernel) Suspend(t *Task) {
	if t == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if t == k.idle || t.state == StateSuspended {
		return
	}

	switch t.state {
	case StateReady:
		k.ready.remove(t)
	case StateBlocked:
		k.sleepers.remove(t)
		if m := t.blockedOn; m != nil {
			m.removeWaiter(t)
			t.blockedOn = nil
			t.timedOut = true
			k.refreshInheritanceLocked(m)
		}
		if t.notifyWait {
			t.notifyWait = false
			t.timedOut = true
		}
	}

	k.setStateLocked(t, StateSuspended)
	k.logEvent(logiface.LevelDebug, t).Log("task suspended")
	k.rescheduleLocked()
}

// Resume returns a suspended task to the ready queue. Whatever wait the task
// was in when suspended is not re-entered: a resumed delay ends early and a
// resumed timed wait reports a timeout. Resuming a task that is not
// suspended, or whose body has returned, is a no-op.
func (k *Kernel) Resume(t *Task) {
	if t == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.state != StateSuspended || t.exited {
		return
	}
	k.makeReadyLocked(t)
	k.logEvent(logiface.LevelDebug, t).Log("task resumed")
	k.rescheduleLocked()
}

// SuspendAll defers context switches until a matching [Kernel.ResumeAll].
// Ticks, wakeups and priority changes are still recorded while deferred; only
// the dispatch decision is postponed. Calls nest.
func (k *Kernel) SuspendAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deferred++
}

// ResumeAll ends a [Kernel.SuspendAll] section. When the outermost section
// ends, any reschedule requested while deferred is performed. ResumeAll
// without a matching SuspendAll panics.
func (k *Kernel) ResumeAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.deferred == 0 {
		panic("microkern: ResumeAll without SuspendAll")
	}
	k.deferred--
	if k.deferred > 0 {
		return
	}
	if k.yieldPending {
		k.yieldPending = false
		k.yieldLocked()
		k.deferAttempt = true
	}
	if k.deferAttempt {
		k.deferAttempt = false
		k.rescheduleLocked()
	}
}

// awaitDispatch parks the calling task's goroutine until the task is the
// kernel's current task, or unwinds it if the kernel has stopped. It must be
// called without the kernel lock held.
func (k *Kernel) awaitDispatch(t *Task) {
	for {
		k.mu.Lock()
		if k.stopped {
			k.mu.Unlock()
			panic(errTaskExit)
		}
		if k.current == t {
			k.mu.Unlock()
			return
		}
		k.mu.Unlock()

		select {
		case <-t.gate:
		case <-k.done:
		}
	}
}

// exitTask retires a task whose body returned. The task is left suspended so
// its identity stays inspectable; Resume would re-run nothing, as the body
// has already completed, so exited tasks are never made ready again.
func (k *Kernel) exitTask(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.logEvent(logiface.LevelDebug, t).Log("task exited")
	t.exited = true
	k.ready.remove(t) // the body may have returned while preempted
	k.setStateLocked(t, StateSuspended)
	t.body = nil
	k.rescheduleLocked()
}

// logEvent starts a structured log event annotated with the kernel tick and a
// task, when one is relevant. The logiface builder chain is nil-safe, so a
// kernel without a logger pays only the call overhead.
func (k *Kernel) logEvent(level logiface.Level, t *Task) *logiface.Builder[logiface.Event] {
	b := k.log.Build(level).
		Uint64("tick", uint64(k.tick))
	if t != nil {
		b = b.Str("task", t.name)
	}
	return b
}
