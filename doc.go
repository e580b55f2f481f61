// Package microkern implements a simulated fixed-priority preemptive kernel
// with priority-inheritance mutexes, timed delays and lightweight task
// notifications.
//
// The kernel models a single logical CPU: exactly one task is Running at any
// instant, the highest effective priority Ready task always wins, and a task
// holding a mutex is temporarily boosted to the highest priority among its
// waiters so that unrelated medium-priority work cannot starve it. This is the
// classic defence against unbounded priority inversion.
//
// Time is discrete. The host drives the clock by calling [Kernel.Tick] from a
// periodic source of its choosing; all delays and timeouts are expressed in
// ticks. Task bodies run on ordinary goroutines, but may only proceed past a
// kernel entry point (delay, take, give, wait, yield) while they are the
// kernel's current task. Preemption is recorded immediately in kernel state;
// the displaced goroutine physically pauses at its next kernel entry point.
package microkern
