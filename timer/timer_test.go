package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedule_Fires(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	var fired atomic.Int32
	m.Schedule(50*time.Millisecond, func() {
		fired.Add(1)
	})

	time.Sleep(400 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("Expected callback to fire once, fired %d times", got)
	}
}

func TestCancel_PreventsFiring(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	var fired atomic.Int32
	id := m.Schedule(150*time.Millisecond, func() {
		fired.Add(1)
	})
	m.Cancel(id)

	time.Sleep(500 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("Cancelled task fired %d times", got)
	}
}

func TestCancel_UnknownIDIsNoop(t *testing.T) {
	m := NewManager()
	defer m.Stop()
	m.Cancel(12345)
}

func TestSchedule_OrderByDeadline(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	done := make(chan int, 2)
	m.Schedule(300*time.Millisecond, func() { done <- 2 })
	m.Schedule(50*time.Millisecond, func() { done <- 1 })

	first := <-done
	second := <-done
	if first != 1 || second != 2 {
		t.Errorf("Tasks fired out of order: %d then %d", first, second)
	}
}

func TestStop_DropsPendingTasks(t *testing.T) {
	m := NewManager()

	var fired atomic.Int32
	m.Schedule(150*time.Millisecond, func() {
		fired.Add(1)
	})
	m.Stop()

	time.Sleep(500 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("Task fired %d times after Stop", got)
	}
}
