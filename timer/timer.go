// Package timer provides a heap-based scheduler for cancellable deadline
// tasks, used for per-turn countdowns.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type Task struct {
	ID       int64
	Deadline time.Time
	Callback func()
	index    int
}

type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].Deadline.Before(q[j].Deadline)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	task := x.(*Task)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Manager fires one-shot tasks at their deadline. Cancelling a task before
// it fires guarantees the callback never runs, which is what keeps a stale
// turn timeout from resolving a turn twice.
type Manager struct {
	queue     taskQueue
	mutex     sync.Mutex
	nextID    int64
	closeOnce sync.Once
	closeChan chan struct{}
}

func NewManager() *Manager {
	m := &Manager{
		queue:     make(taskQueue, 0),
		nextID:    1,
		closeChan: make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.process()
	return m
}

// Schedule registers a one-shot callback after delay and returns its id.
func (m *Manager) Schedule(delay time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &Task{
		ID:       m.nextID,
		Deadline: time.Now().Add(delay),
		Callback: callback,
	}
	m.nextID++
	heap.Push(&m.queue, task)
	return task.ID
}

// Cancel removes a pending task. Cancelling an already-fired or unknown id
// is a no-op.
func (m *Manager) Cancel(taskID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.ID == taskID {
			heap.Remove(&m.queue, i)
			break
		}
	}
}

// Stop shuts down the scheduler loop. Pending tasks never fire.
func (m *Manager) Stop() {
	m.closeOnce.Do(func() {
		close(m.closeChan)
	})
}

func (m *Manager) process() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			var due []*Task

			m.mutex.Lock()
			for m.queue.Len() > 0 {
				task := m.queue[0]
				if task.Deadline.After(now) {
					break
				}
				heap.Pop(&m.queue)
				due = append(due, task)
			}
			m.mutex.Unlock()

			for _, task := range due {
				go task.Callback()
			}

		case <-m.closeChan:
			return
		}
	}
}
