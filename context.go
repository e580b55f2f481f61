package microkern

// Context is a task body's handle on the kernel. Every method must be called
// from the body's own goroutine; methods that can block park the goroutine
// until the task is dispatched again.
type Context struct {
	k *Kernel
	t *Task
}

// Task returns the task this context belongs to.
func (c *Context) Task() *Task { return c.t }

// Kernel returns the owning kernel.
func (c *Context) Kernel() *Kernel { return c.k }

// CurrentTick returns the kernel's current tick.
func (c *Context) CurrentTick() Tick { return c.k.CurrentTick() }

// Delay blocks the task for n ticks. Delay(0) is equivalent to [Context.Yield].
func (c *Context) Delay(n Tick) {
	if n == 0 {
		c.Yield()
		return
	}
	k := c.k
	k.awaitDispatch(c.t)

	k.mu.Lock()
	k.blockLocked(c.t)
	c.t.wakeTick = k.tick + n
	k.sleepers.push(c.t)
	k.rescheduleLocked()
	k.mu.Unlock()

	k.awaitDispatch(c.t)
}

// Yield moves the task to the tail of its effective priority level and lets
// the scheduler pick again. With no equal-or-higher priority task Ready, the
// caller continues immediately. Inside a [Kernel.SuspendAll] section the
// rotation is postponed until the matching [Kernel.ResumeAll] and the caller
// keeps the CPU.
func (c *Context) Yield() {
	k := c.k
	k.mu.Lock()
	if k.current == c.t && c.t.state == StateRunning {
		if k.deferred > 0 {
			k.yieldPending = true
		} else {
			k.yieldLocked()
			k.rescheduleLocked()
		}
	}
	k.mu.Unlock()

	k.awaitDispatch(c.t)
}

// Take acquires m, blocking up to timeout ticks. A timeout of 0 is a try-take
// that never blocks; [Forever] waits indefinitely. Taking a mutex the task
// already owns panics.
func (c *Context) Take(m *Mutex, timeout Tick) TakeResult {
	return c.k.take(c.t, m, timeout)
}

// Give releases m. Only the owner may give; anyone else gets [ErrNotOwner].
func (c *Context) Give(m *Mutex) error {
	return c.k.give(c.t, m)
}

// Wait blocks until a notification is pending or timeout ticks elapse. With
// clear set, a successful wait consumes the entire pending count; otherwise
// exactly one.
func (c *Context) Wait(timeout Tick, clear bool) WaitResult {
	return c.k.waitNotify(c.t, timeout, clear)
}

// Notify notifies another task. Unlike [Kernel.Notify], a notification that
// wakes a higher-priority task preempts the caller here and now.
func (c *Context) Notify(t *Task) {
	c.k.Notify(t)
	c.k.awaitDispatch(c.t)
}
