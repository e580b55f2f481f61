package microkern

import "github.com/joeycumines/logiface"

// WaitResult reports the outcome of a notification wait.
type WaitResult uint8

const (
	// Signaled means a notification was consumed.
	Signaled WaitResult = iota
	// WaitTimedOut means the timeout expired (or the task was resumed from
	// suspension) with no notification pending.
	WaitTimedOut
)

func (r WaitResult) String() string {
	switch r {
	case Signaled:
		return "signaled"
	case WaitTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Notify increments the target task's pending-notification count and wakes it
// if it is blocked waiting for one. Notifications coalesce: the count is a
// single per-task slot, not a queue, so notifying a task twice before it
// waits can be observed as a count of two but never as two distinct messages.
// Notify may be called from any goroutine, including outside any task.
func (k *Kernel) Notify(t *Task) {
	if t == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	t.notifyPending++
	k.logEvent(logiface.LevelTrace, t).
		Uint64("pending", uint64(t.notifyPending)).
		Log("notified")

	if !t.notifyWait {
		return
	}
	t.notifyWait = false
	t.timedOut = false
	k.sleepers.remove(t)
	k.makeReadyLocked(t)
	k.rescheduleLocked()
}

// NotifyPending returns the task's current pending-notification count, or
// zero for nil.
func (k *Kernel) NotifyPending(t *Task) uint32 {
	if t == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.notifyPending
}

// waitNotify blocks t until a notification is pending or timeout ticks
// elapse. With clear set, a successful wait consumes the whole pending count;
// otherwise it consumes exactly one. Entered from the task's own goroutine
// via [Context.Wait].
func (k *Kernel) waitNotify(t *Task, timeout Tick, clear bool) WaitResult {
	// A displaced goroutine stops here: even a consume that would not
	// block may only run while t is the current task.
	k.awaitDispatch(t)

	k.mu.Lock()

	if t.notifyPending > 0 {
		k.consumeNotifyLocked(t, clear)
		k.mu.Unlock()
		return Signaled
	}
	if timeout == 0 {
		k.mu.Unlock()
		return WaitTimedOut
	}

	k.blockLocked(t)
	t.notifyWait = true
	t.timedOut = false
	if timeout != Forever {
		t.wakeTick = k.tick + timeout
		k.sleepers.push(t)
	}
	k.rescheduleLocked()
	k.mu.Unlock()

	k.awaitDispatch(t)

	k.mu.Lock()
	defer k.mu.Unlock()
	if t.timedOut {
		t.timedOut = false
		return WaitTimedOut
	}
	k.consumeNotifyLocked(t, clear)
	return Signaled
}

func (k *Kernel) consumeNotifyLocked(t *Task, clear bool) {
	if clear {
		t.notifyPending = 0
	} else {
		t.notifyPending--
	}
}
