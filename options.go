package microkern

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Options configure a [Kernel]. The zero value is usable; New applies
// defaults for anything left unset.
type Options struct {
	// Logger receives structured trace output from the kernel. A nil
	// logger is valid and disables logging.
	Logger *logiface.Logger[logiface.Event]

	// Hook receives scheduling callbacks. See [Hook] for the reentrancy
	// rules.
	Hook Hook

	// TickPeriod is the nominal wall-clock duration of one tick, used only
	// for duration conversions. Defaults to one millisecond.
	TickPeriod time.Duration

	// Quantum is the number of ticks a task may run before it is rotated
	// behind Ready tasks of equal effective priority. Defaults to 1, which
	// matches per-tick round-robin.
	Quantum Tick

	// MaxTasks bounds the number of tasks, including the idle task.
	// Defaults to 32.
	MaxTasks int

	// MaxMutexes bounds the number of mutexes. Defaults to 16.
	MaxMutexes int

	// InheritanceDepth bounds the length of the ownership chain walked
	// when propagating a priority boost. Defaults to 8.
	InheritanceDepth int
}

// Option mutates Options. Options are applied in order, so later options win.
type Option func(*Options)

// WithLogger sets the kernel's structured logger.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithHook sets the kernel's scheduling hook.
func WithHook(h Hook) Option {
	return func(o *Options) {
		o.Hook = h
	}
}

// WithTickPeriod sets the nominal duration of one tick. Non-positive values
// are ignored.
func WithTickPeriod(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TickPeriod = d
		}
	}
}

// WithQuantum sets the round-robin quantum in ticks. Zero is ignored.
func WithQuantum(n Tick) Option {
	return func(o *Options) {
		if n > 0 {
			o.Quantum = n
		}
	}
}

// WithMaxTasks sets the task limit, including the idle task. Non-positive
// values are ignored.
func WithMaxTasks(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTasks = n
		}
	}
}

// WithMaxMutexes sets the mutex limit. Non-positive values are ignored.
func WithMaxMutexes(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxMutexes = n
		}
	}
}

// WithInheritanceDepth bounds the ownership chain walked when a priority
// boost propagates through nested mutexes. Non-positive values are ignored.
func WithInheritanceDepth(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.InheritanceDepth = n
		}
	}
}
