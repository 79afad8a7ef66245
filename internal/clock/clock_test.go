package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualAfterFunc(t *testing.T) {
	c := NewManual(epoch)
	fired := 0
	c.AfterFunc(2*time.Second, func() { fired++ })

	c.Advance(1999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected 1 firing, got %d", fired)
	}
	if !c.Now().Equal(epoch.Add(2 * time.Second)) {
		t.Errorf("unexpected now %v", c.Now())
	}
}

func TestManualStop(t *testing.T) {
	c := NewManual(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("expected Stop to cancel pending task")
	}
	if timer.Stop() {
		t.Error("expected second Stop to report nothing cancelled")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped task fired")
	}
}

func TestManualOrdersByDeadline(t *testing.T) {
	c := NewManual(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	c.Advance(5 * time.Second)
	if got := order[0] + order[1] + order[2]; got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}
}

func TestEveryFiresEachPeriodUntilStopped(t *testing.T) {
	c := NewManual(epoch)
	var n int32
	timer := Every(c, 30*time.Second, func() { atomic.AddInt32(&n, 1) })

	c.Advance(29 * time.Second)
	if atomic.LoadInt32(&n) != 0 {
		t.Fatalf("fired before first period")
	}
	c.Advance(time.Second)
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("expected 1 firing at P, got %d", n)
	}
	c.Advance(60 * time.Second)
	if atomic.LoadInt32(&n) != 3 {
		t.Fatalf("expected 3 firings at 3P, got %d", n)
	}

	timer.Stop()
	c.Advance(5 * time.Minute)
	if atomic.LoadInt32(&n) != 3 {
		t.Errorf("expected no firings after stop, got %d", n)
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending tasks after stop, got %d", c.Pending())
	}
}

func TestRealAfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer never fired")
	}
}
