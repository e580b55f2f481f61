package microkern

import "container/heap"

// Ensure both queues implement [heap.Interface].
var (
	_ heap.Interface = (*readyQueue)(nil)
	_ heap.Interface = (*delayQueue)(nil)
)

// readyQueue holds all runnable tasks, ordered by effective priority with
// FIFO order (via seqNo) among equals. A single heap keyed on
// (priority, seqNo) is equivalent to one FIFO list per priority level, and
// gives the scheduler its pick in O(log n).
type readyQueue struct {
	tasks []*Task
}

func (q *readyQueue) Len() int { return len(q.tasks) }

// Less orders tasks by descending effective priority, breaking ties by
// ascending seqNo so that the task that has waited longest at a level runs
// first.
func (q *readyQueue) Less(i, j int) bool {
	a, b := q.tasks[i], q.tasks[j]
	if a.effective != b.effective {
		return a.effective > b.effective
	}
	return a.seqNo < b.seqNo
}

func (q *readyQueue) Swap(i, j int) {
	q.tasks[i], q.tasks[j] = q.tasks[j], q.tasks[i]
	q.tasks[i].readyIndex = i
	q.tasks[j].readyIndex = j
}

func (q *readyQueue) Push(x any) {
	t := x.(*Task)
	t.readyIndex = len(q.tasks)
	q.tasks = append(q.tasks, t)
}

func (q *readyQueue) Pop() any {
	old := q.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil    // avoid memory leak
	t.readyIndex = -1 // for safety
	q.tasks = old[0 : n-1]
	return t
}

func (q *readyQueue) push(t *Task) {
	heap.Push(q, t)
}

func (q *readyQueue) pop() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	return heap.Pop(q).(*Task)
}

func (q *readyQueue) peek() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[0]
}

func (q *readyQueue) remove(t *Task) {
	if t.readyIndex >= 0 {
		heap.Remove(q, t.readyIndex)
	}
}

// fix restores heap order after a task's effective priority changed in place.
func (q *readyQueue) fix(t *Task) {
	if t.readyIndex >= 0 {
		heap.Fix(q, t.readyIndex)
	}
}

// delayQueue holds sleeping tasks and timed waiters ordered by wake tick,
// breaking ties by task identity for a stable expiry order. A task appears at
// most once.
type delayQueue struct {
	tasks []*Task
}

func (q *delayQueue) Len() int { return len(q.tasks) }

func (q *delayQueue) Less(i, j int) bool {
	a, b := q.tasks[i], q.tasks[j]
	if a.wakeTick != b.wakeTick {
		return a.wakeTick < b.wakeTick
	}
	return a.id < b.id
}

func (q *delayQueue) Swap(i, j int) {
	q.tasks[i], q.tasks[j] = q.tasks[j], q.tasks[i]
	q.tasks[i].delayIndex = i
	q.tasks[j].delayIndex = j
}

func (q *delayQueue) Push(x any) {
	t := x.(*Task)
	t.delayIndex = len(q.tasks)
	q.tasks = append(q.tasks, t)
}

func (q *delayQueue) Pop() any {
	old := q.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.delayIndex = -1
	q.tasks = old[0 : n-1]
	return t
}

func (q *delayQueue) push(t *Task) {
	heap.Push(q, t)
}

func (q *delayQueue) peek() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[0]
}

func (q *delayQueue) remove(t *Task) {
	if t.delayIndex >= 0 {
		heap.Remove(q, t.delayIndex)
	}
}
