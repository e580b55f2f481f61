package microkern

import (
	"container/heap"
	"time"
)

// Tick is the kernel's discrete unit of elapsed time. The counter is
// monotonic and advanced only by [Kernel.Tick].
type Tick uint64

// Forever is the timeout value that never expires. A take or wait with
// Forever blocks until the awaited resource arrives (or the task is resumed
// externally).
const Forever Tick = ^Tick(0)

// CurrentTick returns the number of ticks elapsed since the kernel was
// created.
func (k *Kernel) CurrentTick() Tick {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

// TickPeriod returns the wall-clock duration the kernel attributes to a
// single tick. It is informational: the kernel never reads a real clock.
func (k *Kernel) TickPeriod() time.Duration {
	return k.tickPeriod
}

// TicksFor converts a duration to ticks, rounding up so that a non-zero
// duration never converts to a zero (non-blocking) tick count.
func (k *Kernel) TicksFor(d time.Duration) Tick {
	if d <= 0 {
		return 0
	}
	return Tick((d + k.tickPeriod - 1) / k.tickPeriod)
}

// DurationFor converts a tick count to its nominal wall-clock duration.
func (k *Kernel) DurationFor(n Tick) time.Duration {
	return time.Duration(n) * k.tickPeriod
}

// Tick advances the clock by one tick. All delay-queue entries that have come
// due are made Ready in wake order, timed-out mutex and notification waits
// are cancelled, and once per scheduling quantum the current task is rotated
// behind Ready tasks of equal effective priority. The scheduler is
// invoked exactly once after all expirations are processed, so a tick that
// wakes several tasks causes at most one context switch.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.tick++

	woke := false
	for {
		t := k.sleepers.peek()
		if t == nil || t.wakeTick > k.tick {
			break
		}
		heap.Pop(&k.sleepers)
		k.wakeExpiredLocked(t)
		woke = true
	}

	if k.started {
		if k.quantumLeft > 0 {
			k.quantumLeft--
		}
		if k.quantumLeft == 0 {
			k.quantumLeft = k.quantum
			k.rotateLocked()
		}
	}

	if woke || k.started {
		k.rescheduleLocked()
	}
}

// wakeExpiredLocked readies a task whose delay-queue entry has come due. For
// a plain delay that is the whole story; for a timed mutex take or
// notification wait the expiry also cancels the wait and flags the outcome as
// a timeout. Cancelling a mutex wait deliberately does not undo any priority
// boost the waiter granted: de-boosting happens only on release.
func (k *Kernel) wakeExpiredLocked(t *Task) {
	if m := t.blockedOn; m != nil {
		m.removeWaiter(t)
		t.blockedOn = nil
		t.timedOut = true
	}
	if t.notifyWait {
		t.notifyWait = false
		t.timedOut = true
	}
	k.makeReadyLocked(t)
}

// rotateLocked implements round-robin rotation: if another Ready task shares
// the current task's effective priority, the current task is moved to the
// tail of its level and the scheduler will pick the longest-waiting equal.
func (k *Kernel) rotateLocked() {
	cur := k.current
	if k.deferred > 0 || cur == k.idle || cur.state != StateRunning {
		return
	}
	top := k.ready.peek()
	if top == nil || top.effective != cur.effective {
		return
	}
	k.yieldLocked()
}
