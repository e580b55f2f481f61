package microkern

import "errors"

var (
	// ErrTooManyTasks is returned by [Kernel.CreateTask] when the task table
	// is full.
	ErrTooManyTasks = errors.New("microkern: task table full")

	// ErrTooManyMutexes is returned by [Kernel.NewMutex] when the mutex table
	// is full.
	ErrTooManyMutexes = errors.New("microkern: mutex table full")

	// ErrNotOwner is returned by [Context.Give] when the calling task does
	// not own the mutex. Giving a mutex you do not hold is a programming
	// error; it is reported rather than silently ignored because ignoring it
	// would corrupt the inheritance bookkeeping.
	ErrNotOwner = errors.New("microkern: mutex given by non-owner")
)

// errTaskExit is the sentinel panic used to unwind task goroutines when the
// kernel stops. It is recovered by the task run loop and never escapes.
var errTaskExit = errors.New("microkern: task exit")
