package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_AdvanceFiresInOrder(t *testing.T) {
	c := NewManual(epoch)

	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("after 2s order = %v, want [1 2]", order)
	}

	c.Advance(time.Second)
	if len(order) != 3 || order[2] != 3 {
		t.Fatalf("after 3s order = %v, want [1 2 3]", order)
	}
	if got := c.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(3*time.Second))
	}
}

func TestManual_ZeroDelayRunsImmediately(t *testing.T) {
	c := NewManual(epoch)

	ran := false
	timer := c.AfterFunc(0, func() { ran = true })
	if !ran {
		t.Fatal("AfterFunc(0) should run synchronously")
	}
	if timer.Stop() {
		t.Error("Stop() on fired timer should return false")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestManual_Stop(t *testing.T) {
	c := NewManual(epoch)

	ran := false
	timer := c.AfterFunc(time.Second, func() { ran = true })
	if !timer.Stop() {
		t.Fatal("Stop() on pending timer should return true")
	}
	if timer.Stop() {
		t.Error("second Stop() should return false")
	}

	c.Advance(time.Minute)
	if ran {
		t.Error("stopped timer fired")
	}
}

// TestManual_Rearm verifies that a callback re-arming itself inside the
// advance window fires again, which is how the polling loop reschedules.
func TestManual_Rearm(t *testing.T) {
	c := NewManual(epoch)

	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(5*time.Second, tick)
	}
	c.AfterFunc(5*time.Second, tick)

	c.Advance(30 * time.Second)
	if count != 6 {
		t.Errorf("count = %d, want 6", count)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}

func TestSystem_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	System.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
}
