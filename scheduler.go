package microkern

import "github.com/joeycumines/logiface"

// nextSeq returns a fresh scheduling sequence number. Sequence numbers order
// equal-priority tasks FIFO and order waiters within a mutex wait set.
func (k *Kernel) nextSeq() int64 {
	k.seq++
	return k.seq
}

// setStateLocked transitions a task's lifecycle state and notifies the hook.
func (k *Kernel) setStateLocked(t *Task, s State) {
	if t.state == s {
		return
	}
	from := t.state
	t.state = s
	if k.hook != nil {
		k.hook.OnStateChange(t, from, s)
	}
}

// makeReadyLocked places a task at the tail of its effective priority level.
func (k *Kernel) makeReadyLocked(t *Task) {
	k.setStateLocked(t, StateReady)
	t.seqNo = k.nextSeq()
	k.ready.push(t)
}

// yieldLocked moves the current task to the tail of its effective priority
// level so the next scheduling decision picks the longest-waiting equal. The
// idle task and a current task that is no longer Running stay put.
func (k *Kernel) yieldLocked() {
	cur := k.current
	if cur == k.idle || cur.state != StateRunning {
		return
	}
	k.setStateLocked(cur, StateReady)
	cur.seqNo = k.nextSeq()
	k.ready.push(cur)
}

// blockLocked marks the current task Blocked and removes it from the ready
// queue if it was queued.
func (k *Kernel) blockLocked(t *Task) {
	k.ready.remove(t)
	k.setStateLocked(t, StateBlocked)
}

// setEffectiveLocked changes a task's effective priority, notifying the hook
// and repositioning the task within the ready queue if it is queued.
func (k *Kernel) setEffectiveLocked(t *Task, p Priority) {
	if t.effective == p {
		return
	}
	from := t.effective
	t.effective = p
	if k.hook != nil {
		k.hook.OnPriorityChange(t, from, p)
	}
	k.logEvent(logiface.LevelTrace, t).
		Uint64("from", uint64(from)).
		Uint64("to", uint64(p)).
		Log("priority change")
	k.ready.fix(t)
}

// inheritedFloorLocked computes the lowest effective priority a task may hold:
// its base priority, raised by the highest effective priority among the
// waiters of every mutex it still owns.
func (k *Kernel) inheritedFloorLocked(t *Task) Priority {
	p := t.base
	for _, m := range t.owned {
		for _, w := range m.waiters {
			if w.effective > p {
				p = w.effective
			}
		}
	}
	return p
}

// inheritLocked propagates a waiter's effective priority up the ownership
// chain: the owner of m is raised to at least p, and if that owner is itself
// blocked on another mutex the boost carries through, up to the configured
// chain depth.
func (k *Kernel) inheritLocked(m *Mutex, p Priority) {
	for depth := 0; m != nil && depth < k.inheritanceDepth; depth++ {
		owner := m.owner
		if owner == nil || owner.effective >= p {
			return
		}
		k.setEffectiveLocked(owner, p)
		m = owner.blockedOn
	}
}

// refreshInheritanceLocked recomputes the owner's effective priority after
// m's wait set shrank without a release (a waiter was suspended). The
// recomputation cascades up the chain in case the departed waiter's boost had
// propagated through nested mutexes.
func (k *Kernel) refreshInheritanceLocked(m *Mutex) {
	for depth := 0; m != nil && depth < k.inheritanceDepth; depth++ {
		owner := m.owner
		if owner == nil {
			return
		}
		p := k.inheritedFloorLocked(owner)
		if owner.effective == p {
			return
		}
		k.setEffectiveLocked(owner, p)
		m = owner.blockedOn
	}
}

// rescheduleLocked is the single scheduling decision point. It compares the
// current task against the head of the ready queue and performs a context
// switch when the kernel is running, switches are not deferred, and either
// the current task can no longer run or a strictly higher effective priority
// task is ready. Equal priority never preempts; rotation among equals happens
// only on quantum expiry.
func (k *Kernel) rescheduleLocked() {
	if !k.started || k.stopped {
		return
	}

	cur := k.current
	if k.deferred > 0 {
		// A SuspendAll section defers voluntary switches, but a current
		// task that blocked or suspended itself cannot keep the CPU.
		if cur == k.idle || cur.state == StateRunning {
			k.deferAttempt = true
			return
		}
	}

	if cur != k.idle && cur.state == StateRunning {
		top := k.ready.peek()
		if top == nil || top.effective <= cur.effective {
			return
		}
		k.setStateLocked(cur, StateReady)
		cur.seqNo = k.nextSeq()
		k.ready.push(cur)
	} else if cur == k.idle && k.ready.peek() == nil {
		return
	}

	next := k.ready.pop()
	if next == nil {
		next = k.idle
	}
	k.switchToLocked(next)
}

// switchToLocked installs next as the current task and hands its goroutine
// the dispatch token. The displaced goroutine keeps executing until its next
// kernel entry point; logically the switch has already happened.
func (k *Kernel) switchToLocked(next *Task) {
	prev := k.current
	k.current = next
	k.quantumLeft = k.quantum
	k.yieldPending = false
	k.setStateLocked(next, StateRunning)
	if prev == next {
		// A yield with nothing better ready dispatches the same task.
		return
	}
	if prev == k.idle {
		k.setStateLocked(prev, StateReady)
	}
	if k.hook != nil {
		k.hook.OnContextSwitch(prev, next)
	}
	k.log.Trace().
		Uint64("tick", uint64(k.tick)).
		Str("from", prev.name).
		Str("to", next.name).
		Log("context switch")
	if next != k.idle {
		select {
		case next.gate <- struct{}{}:
		default:
		}
	}
}
