package microkern

import "github.com/joeycumines/logiface"

// TakeResult reports the outcome of a mutex take.
type TakeResult uint8

const (
	// Acquired means the caller now owns the mutex.
	Acquired TakeResult = iota
	// TimedOut means the timeout expired (or the caller was resumed from
	// suspension) before ownership transferred.
	TimedOut
)

func (r TakeResult) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Mutex is a kernel mutex with priority inheritance. Ownership is exclusive
// and tracked by task: only the owner may give. While tasks wait, the owner's
// effective priority is raised to the highest effective priority among the
// waiters, and the boost propagates through the owner's own blocked-on chain.
//
// All fields are guarded by the kernel lock.
type Mutex struct {
	k       *Kernel
	owner   *Task
	waiters []*Task
}

// NewMutex creates a mutex. The configured mutex limit applies.
func (k *Kernel) NewMutex() (*Mutex, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.mutexCount >= k.maxMutexes {
		return nil, ErrTooManyMutexes
	}
	k.mutexCount++
	return &Mutex{k: k}, nil
}

// Owner returns the task currently holding the mutex, or nil.
func (m *Mutex) Owner() *Task {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.owner
}

// removeWaiter drops t from the wait set if present.
func (m *Mutex) removeWaiter(t *Task) {
	for i, w := range m.waiters {
		if w == t {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// bestWaiter returns the waiter that should receive ownership next: highest
// base priority first, FIFO among equals. Base priority is used deliberately;
// a waiter's inherited boost reflects work it is indirectly doing for someone
// else and does not entitle it to this mutex sooner.
func (m *Mutex) bestWaiter() *Task {
	var best *Task
	for _, w := range m.waiters {
		if best == nil || w.base > best.base || (w.base == best.base && w.waitSeq < best.waitSeq) {
			best = w
		}
	}
	return best
}

// maxWaiterEffective returns the highest effective priority in the wait set,
// or zero when the set is empty.
func (m *Mutex) maxWaiterEffective() Priority {
	var p Priority
	for _, w := range m.waiters {
		if w.effective > p {
			p = w.effective
		}
	}
	return p
}

// take acquires the mutex on behalf of t, blocking up to timeout ticks. It is
// entered from the task's own goroutine via [Context.Take].
func (k *Kernel) take(t *Task, m *Mutex, timeout Tick) TakeResult {
	// A displaced goroutine stops here: even the uncontended fast path may
	// only run while t is the current task.
	k.awaitDispatch(t)

	k.mu.Lock()

	if m.owner == t {
		k.mu.Unlock()
		panic("microkern: recursive mutex take")
	}
	if m.owner == nil {
		m.owner = t
		t.owned = append(t.owned, m)
		k.logEvent(logiface.LevelTrace, t).Log("mutex acquired")
		k.mu.Unlock()
		return Acquired
	}
	if timeout == 0 {
		k.mu.Unlock()
		return TimedOut
	}

	k.blockLocked(t)
	t.blockedOn = m
	t.timedOut = false
	t.waitSeq = k.nextSeq()
	m.waiters = append(m.waiters, t)
	k.inheritLocked(m, t.effective)
	if timeout != Forever {
		t.wakeTick = k.tick + timeout
		k.sleepers.push(t)
	}
	k.logEvent(logiface.LevelTrace, t).
		Str("owner", m.owner.name).
		Log("mutex contended")
	k.rescheduleLocked()
	k.mu.Unlock()

	k.awaitDispatch(t)

	k.mu.Lock()
	defer k.mu.Unlock()
	if t.timedOut {
		t.timedOut = false
		return TimedOut
	}
	return Acquired
}

// give releases the mutex held by t, transferring ownership to the best
// waiter if any, and restores t's effective priority to its remaining
// inherited floor. give yields the CPU if the transfer readied a higher
// priority task.
func (k *Kernel) give(t *Task, m *Mutex) error {
	k.awaitDispatch(t)

	k.mu.Lock()
	if m.owner != t {
		k.mu.Unlock()
		return ErrNotOwner
	}

	for i, o := range t.owned {
		if o == m {
			t.owned = append(t.owned[:i], t.owned[i+1:]...)
			break
		}
	}
	k.setEffectiveLocked(t, k.inheritedFloorLocked(t))

	if w := m.bestWaiter(); w != nil {
		m.removeWaiter(w)
		w.blockedOn = nil
		w.timedOut = false
		k.sleepers.remove(w)
		m.owner = w
		w.owned = append(w.owned, m)
		k.makeReadyLocked(w)
		// Remaining waiters keep boosting the new owner.
		if p := m.maxWaiterEffective(); p > 0 {
			k.inheritLocked(m, p)
		}
		k.logEvent(logiface.LevelTrace, t).
			Str("to", w.name).
			Log("mutex handed over")
	} else {
		m.owner = nil
		k.logEvent(logiface.LevelTrace, t).Log("mutex released")
	}

	k.rescheduleLocked()
	k.mu.Unlock()

	k.awaitDispatch(t)
	return nil
}
