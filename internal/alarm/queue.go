package alarm

import "container/heap"

// queued is a task while it sits in the dispatcher heap.
type queued struct {
	task  Task
	index int
}

// taskQueue is a min-heap ordered by fire time, then task id.
type taskQueue []*queued

var _ heap.Interface = (*taskQueue)(nil)

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].task.FireAt.Equal(q[j].task.FireAt) {
		return q[i].task.ID < q[j].task.ID
	}
	return q[i].task.FireAt.Before(q[j].task.FireAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	item := x.(*queued)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func (q taskQueue) peek() *queued {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
