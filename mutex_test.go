package microkern_test

import (
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/microkern"
)

func TestMutex_UncontendedTakeGive(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		task, err := k.CreateTask("worker", 1, 0, func(c *microkern.Context) {
			rec.add("take=%s", c.Take(m, microkern.Forever))
			rec.add("owner=%s", m.Owner().Name())
			require.NoError(t, c.Give(m))
			rec.add("released")
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{
			"take=acquired",
			"owner=worker",
			"released",
		})
		require.Nil(t, m.Owner())
		require.Equal(t, microkern.StateSuspended, task.State())
	})
}

func TestMutex_LimitExceeded(t *testing.T) {
	t.Parallel()

	k := microkern.New(microkern.WithMaxMutexes(1))
	defer k.Stop()

	_, err := k.NewMutex()
	require.NoError(t, err)
	_, err = k.NewMutex()
	require.ErrorIs(t, err, microkern.ErrTooManyMutexes)
}

func TestMutex_GiveByNonOwner(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("owner", 2, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			c.Delay(100)
		})
		require.NoError(t, err)

		_, err = k.CreateTask("other", 1, 0, func(c *microkern.Context) {
			rec.add("give=%v", c.Give(m))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{
			"give=microkern: mutex given by non-owner",
		})
	})
}

func TestMutex_RecursiveTakePanics(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("worker", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			func() {
				defer func() {
					rec.add("panicked=%v", recover() != nil)
				}()
				c.Take(m, microkern.Forever)
			}()
			require.NoError(t, c.Give(m))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{"panicked=true"})
	})
}

func TestMutex_TryTake(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("holder", 2, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			c.Delay(100)
		})
		require.NoError(t, err)

		_, err = k.CreateTask("poller", 1, 0, func(c *microkern.Context) {
			rec.add("try=%s", c.Take(m, 0))

			// An uncontended try-take succeeds without blocking.
			m2, err := c.Kernel().NewMutex()
			if err != nil {
				rec.add("new mutex: %v", err)
				return
			}
			rec.add("free=%s", c.Take(m2, 0))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{"try=timed out", "free=acquired"})
	})
}

func TestMutex_TakeTimesOut(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		hold := make(chan struct{})

		k := microkern.New()
		defer k.Stop()
		defer close(hold)

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("holder", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			rec.add("holder:locked")
			<-hold
		})
		require.NoError(t, err)

		_, err = k.CreateTask("waiter", 2, 0, func(c *microkern.Context) {
			c.Delay(1)
			rec.add("waiter:take@%d", c.CurrentTick())
			rec.add("waiter:%s@%d", c.Take(m, 3), c.CurrentTick())
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		for range 4 {
			k.Tick()
			synctest.Wait()
		}

		assertEvents(t, rec.snapshot(), []string{
			"holder:locked",
			"waiter:take@1",
			"waiter:timed out@4",
		})
	})
}

func TestMutex_PreemptedTaskParksAtTake(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		goLow := make(chan struct{})
		goHigh := make(chan struct{})

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		low, err := k.CreateTask("low", 1, 0, func(c *microkern.Context) {
			rec.add("low:run")
			<-goLow
			rec.add("low:take=%s", c.Take(m, 0))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		// Creating high preempts low while low is mid-body.
		_, err = k.CreateTask("high", 2, 0, func(c *microkern.Context) {
			<-goHigh
			rec.add("high:take=%s", c.Take(m, microkern.Forever))
			require.NoError(t, c.Give(m))
		})
		require.NoError(t, err)

		// The displaced goroutine reaches its try-take but must park there:
		// even a non-blocking take may only run once low is dispatched again.
		close(goLow)
		synctest.Wait()

		require.Nil(t, m.Owner())
		require.Equal(t, microkern.StateReady, low.State())
		assertEvents(t, rec.snapshot(), []string{"low:run"})

		close(goHigh)
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{
			"low:run",
			"high:take=acquired",
			"low:take=acquired",
		})
	})
}

func TestMutex_PriorityInheritance(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		holdLow := make(chan struct{})

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		low, err := k.CreateTask("low", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			rec.add("low:locked")
			<-holdLow
			rec.add("low:release")
			require.NoError(t, c.Give(m))
			rec.add("low:done")
		})
		require.NoError(t, err)

		med, err := k.CreateTask("med", 2, 0, func(c *microkern.Context) {
			c.Delay(2)
			rec.add("med:run")
		})
		require.NoError(t, err)

		high, err := k.CreateTask("high", 3, 0, func(c *microkern.Context) {
			c.Delay(1)
			rec.add("high:take")
			rec.add("high:%s", c.Take(m, microkern.Forever))
			require.NoError(t, c.Give(m))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		// Tick 1: high wakes and blocks on the mutex, boosting low.
		k.Tick()
		synctest.Wait()
		require.Equal(t, microkern.Priority(3), low.EffectivePriority())
		require.Equal(t, microkern.StateRunning, low.State())

		// Tick 2: med wakes but cannot preempt the boosted owner.
		k.Tick()
		synctest.Wait()
		require.Equal(t, microkern.StateRunning, low.State())
		require.Equal(t, microkern.StateReady, med.State())

		// Low releases: the mutex hands over to high, and low drops back
		// to its base priority.
		close(holdLow)
		synctest.Wait()

		require.Equal(t, microkern.Priority(1), low.EffectivePriority())
		require.Equal(t, microkern.StateSuspended, high.State())

		assertEvents(t, rec.snapshot(), []string{
			"low:locked",
			"high:take",
			"low:release",
			"high:acquired",
			"med:run",
			"low:done",
		})
	})
}

func TestMutex_TransitiveInheritance(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		holdA := make(chan struct{})

		k := microkern.New()
		defer k.Stop()

		m1, err := k.NewMutex()
		require.NoError(t, err)
		m2, err := k.NewMutex()
		require.NoError(t, err)

		a, err := k.CreateTask("a", 1, 0, func(c *microkern.Context) {
			c.Take(m1, microkern.Forever)
			rec.add("a:locked")
			<-holdA
			require.NoError(t, c.Give(m1))
		})
		require.NoError(t, err)

		b, err := k.CreateTask("b", 2, 0, func(c *microkern.Context) {
			c.Delay(1)
			c.Take(m2, microkern.Forever)
			c.Take(m1, microkern.Forever)
			rec.add("b:locked")
			require.NoError(t, c.Give(m1))
			require.NoError(t, c.Give(m2))
		})
		require.NoError(t, err)

		_, err = k.CreateTask("c", 3, 0, func(c *microkern.Context) {
			c.Delay(2)
			c.Take(m2, microkern.Forever)
			rec.add("c:locked")
			require.NoError(t, c.Give(m2))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()

		// Tick 1: b takes m2 and blocks on m1, boosting a to 2.
		k.Tick()
		synctest.Wait()
		require.Equal(t, microkern.Priority(2), a.EffectivePriority())

		// Tick 2: c blocks on m2; the boost propagates through b to a.
		k.Tick()
		synctest.Wait()
		require.Equal(t, microkern.Priority(3), b.EffectivePriority())
		require.Equal(t, microkern.Priority(3), a.EffectivePriority())

		close(holdA)
		synctest.Wait()

		require.Equal(t, microkern.Priority(1), a.EffectivePriority())
		require.Equal(t, microkern.Priority(2), b.EffectivePriority())

		assertEvents(t, rec.snapshot(), []string{
			"a:locked",
			"b:locked",
			"c:locked",
		})
	})
}

func TestMutex_HandoverPrefersHighestBase(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		holdOwner := make(chan struct{})

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("owner", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			<-holdOwner
			require.NoError(t, c.Give(m))
		})
		require.NoError(t, err)

		for _, tt := range []struct {
			name  string
			prio  microkern.Priority
			delay microkern.Tick
		}{
			{"waiter-low", 2, 1},
			{"waiter-high", 3, 2},
		} {
			name := tt.name
			delay := tt.delay
			if _, err := k.CreateTask(name, tt.prio, 0, func(c *microkern.Context) {
				c.Delay(delay)
				c.Take(m, microkern.Forever)
				rec.add("%s", name)
				require.NoError(t, c.Give(m))
			}); err != nil {
				t.Fatalf("CreateTask(%s) error: %v", name, err)
			}
		}

		k.Start()
		synctest.Wait()
		k.Tick()
		synctest.Wait()
		k.Tick()
		synctest.Wait()

		// Both waiters are queued; the later, higher-priority one wins.
		close(holdOwner)
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{"waiter-high", "waiter-low"})
	})
}

func TestMutex_HandoverFIFOAmongEqualBases(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		holdOwner := make(chan struct{})

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("owner", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			<-holdOwner
			require.NoError(t, c.Give(m))
		})
		require.NoError(t, err)

		for i, name := range []string{"first", "second"} {
			delay := microkern.Tick(i + 1)
			if _, err := k.CreateTask(name, 2, 0, func(c *microkern.Context) {
				c.Delay(delay)
				c.Take(m, microkern.Forever)
				rec.add("%s", name)
				require.NoError(t, c.Give(m))
			}); err != nil {
				t.Fatalf("CreateTask(%s) error: %v", name, err)
			}
		}

		k.Start()
		synctest.Wait()
		k.Tick()
		synctest.Wait()
		k.Tick()
		synctest.Wait()

		close(holdOwner)
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{"first", "second"})
	})
}

func TestMutex_OwnershipExclusive(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder

		k := microkern.New()
		defer k.Stop()

		m, err := k.NewMutex()
		require.NoError(t, err)

		// inside is only ever touched between Take and Give, so kernel
		// ordering is the sole thing keeping it consistent.
		var inside int
		tasks := make([]*microkern.Task, 0, 3)
		for _, name := range []string{"a", "b", "c"} {
			task, err := k.CreateTask(name, 2, 0, func(c *microkern.Context) {
				for range 3 {
					c.Take(m, microkern.Forever)
					inside++
					if inside != 1 {
						rec.add("overlap: %d holders", inside)
					}
					c.Delay(1)
					inside--
					if err := c.Give(m); err != nil {
						rec.add("give: %v", err)
						return
					}
					c.Delay(1)
				}
			})
			require.NoError(t, err)
			tasks = append(tasks, task)
		}

		k.Start()
		synctest.Wait()

		for range 30 {
			k.Tick()
			synctest.Wait()
		}

		assertEvents(t, rec.snapshot(), nil)
		for _, task := range tasks {
			require.Equal(t, microkern.StateSuspended, task.State(), task.Name())
		}
		require.Nil(t, m.Owner())
	})
}

func TestMutex_SuspendedWaiterWithdrawsBoost(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		hold := make(chan struct{})

		k := microkern.New()
		defer k.Stop()
		defer close(hold)

		m, err := k.NewMutex()
		require.NoError(t, err)

		low, err := k.CreateTask("low", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			<-hold
		})
		require.NoError(t, err)

		high, err := k.CreateTask("high", 3, 0, func(c *microkern.Context) {
			c.Delay(1)
			c.Take(m, microkern.Forever)
			<-hold
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()
		k.Tick()
		synctest.Wait()

		require.Equal(t, microkern.Priority(3), low.EffectivePriority())

		k.Suspend(high)
		synctest.Wait()

		require.Equal(t, microkern.Priority(1), low.EffectivePriority())
	})
}

func TestMutex_ResumedWaiterReportsTimeout(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var rec recorder
		hold := make(chan struct{})

		k := microkern.New()
		defer k.Stop()
		defer close(hold)

		m, err := k.NewMutex()
		require.NoError(t, err)

		_, err = k.CreateTask("holder", 1, 0, func(c *microkern.Context) {
			c.Take(m, microkern.Forever)
			<-hold
		})
		require.NoError(t, err)

		waiter, err := k.CreateTask("waiter", 2, 0, func(c *microkern.Context) {
			c.Delay(1)
			rec.add("take=%s", c.Take(m, microkern.Forever))
		})
		require.NoError(t, err)

		k.Start()
		synctest.Wait()
		k.Tick()
		synctest.Wait()

		// The waiter never re-enters the wait it was suspended out of.
		k.Suspend(waiter)
		k.Resume(waiter)
		synctest.Wait()

		assertEvents(t, rec.snapshot(), []string{"take=timed out"})
	})
}
