// Package clock schedules deferred work. Timers are cancellable and the
// Manual clock fires them synchronously so timing-sensitive code can be
// tested without sleeping.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled task that can be cancelled before it fires.
type Timer interface {
	// Stop cancels the task. It reports whether the call prevented a firing.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Every runs f every d until the returned timer is stopped. The next firing
// is scheduled before f runs, so a slow f does not stretch the period.
func Every(c Clock, d time.Duration, f func()) Timer {
	p := &periodic{c: c, d: d, f: f}
	p.mu.Lock()
	p.t = c.AfterFunc(d, p.fire)
	p.mu.Unlock()
	return p
}

type periodic struct {
	mu      sync.Mutex
	c       Clock
	d       time.Duration
	f       func()
	t       Timer
	stopped bool
}

func (p *periodic) fire() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.t = p.c.AfterFunc(p.d, p.fire)
	p.mu.Unlock()
	p.f()
}

func (p *periodic) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	return p.t.Stop()
}

// Manual is a clock that only moves when Advance is called.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	m   *Manual
	due time.Time
	seq int
	f   func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, due: m.now.Add(d), seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *manualTask) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, task := range t.m.tasks {
		if task == t {
			t.m.tasks = append(t.m.tasks[:i], t.m.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves time forward by d, running every task that falls due in
// deadline order on the calling goroutine. Tasks scheduled by a running
// task fire in the same call if they fall due before the new time.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		sort.Slice(m.tasks, func(i, j int) bool {
			if m.tasks[i].due.Equal(m.tasks[j].due) {
				return m.tasks[i].seq < m.tasks[j].seq
			}
			return m.tasks[i].due.Before(m.tasks[j].due)
		})
		if len(m.tasks) == 0 || m.tasks[0].due.After(target) {
			break
		}
		next := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.now = next.due
		m.mu.Unlock()
		next.f()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Pending returns the number of scheduled tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
