package microkern

import "strconv"

// Priority is a discrete scheduling priority level. Higher values are
// scheduled first. A task's base priority is fixed at creation; its effective
// priority may be raised above the base by mutex priority inheritance, and is
// restored when the inheritance-granting mutex is released.
type Priority uint8

func (p Priority) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// State describes where a task currently sits in its lifecycle. A task is in
// exactly one place at a time: a ready queue, the delay queue, a mutex wait
// set, a notification wait, or running on the CPU.
type State uint8

const (
	// StateReady means the task is runnable and queued for the CPU.
	StateReady State = iota
	// StateRunning means the task is the kernel's current task.
	StateRunning
	// StateBlocked means the task is waiting on a delay, a mutex or a
	// notification.
	StateBlocked
	// StateSuspended means the task has been removed from scheduling
	// entirely and is invisible to the scheduler and to timeouts.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}
