package microkern

// TaskID identifies a task within its kernel. The idle task is always id 0.
type TaskID uint32

// Task is a schedulable unit of work. All exported accessors are safe to call
// from any goroutine; fields that the scheduler mutates are guarded by the
// kernel lock.
type Task struct {
	id          TaskID
	name        string
	base        Priority
	stackBudget int
	body        func(*Context)
	k           *Kernel

	// gate carries at most one dispatch token; the task's goroutine parks
	// on it whenever it is not the current task.
	gate chan struct{}

	// Everything below is guarded by k.mu.
	effective  Priority
	state      State
	seqNo      int64
	readyIndex int
	wakeTick   Tick
	delayIndex int
	timedOut   bool
	blockedOn  *Mutex
	waitSeq    int64
	notifyWait bool
	exited     bool

	// notifyPending is the task's single-slot notification counter.
	notifyPending uint32

	// owned lists the mutexes this task currently holds, in acquisition
	// order.
	owned []*Mutex
}

// ID returns the task's kernel-assigned identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the task's name, as given at creation.
func (t *Task) Name() string { return t.name }

// BasePriority returns the priority the task was created with. It never
// changes.
func (t *Task) BasePriority() Priority { return t.base }

// StackBudget returns the nominal stack size requested at creation. The
// kernel records it for observability only; goroutine stacks grow on demand.
func (t *Task) StackBudget() int { return t.stackBudget }

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

// EffectivePriority returns the priority the scheduler currently ranks the
// task at, including any boost inherited from mutex waiters.
func (t *Task) EffectivePriority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.effective
}

// run is the task goroutine's main loop. It parks until first dispatched,
// executes the body, and retires the task. A body that returns is permanently
// suspended rather than reaped, so its identity (and any held state) remains
// inspectable.
func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil && r != errTaskExit {
			panic(r)
		}
	}()
	t.k.awaitDispatch(t)
	t.body(&Context{k: t.k, t: t})
	t.k.exitTask(t)
}
