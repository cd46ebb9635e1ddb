package node

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// TimerEvent describes one firing.
type TimerEvent struct {
	// CurrentReal is when the callback was actually invoked.
	CurrentReal time.Time
	// LastReal is when the previous callback was invoked.
	LastReal time.Time
	// ExpectedReal is when this firing was scheduled to happen.
	ExpectedReal time.Time
	// LastDuration is how long the previous callback ran.
	LastDuration time.Duration
}

// TimerCallback runs on the timer's goroutine. A panic inside the
// callback is recovered and logged; the timer keeps firing.
type TimerCallback func(TimerEvent)

// Timer is a one-shot or periodic timer in the spirit of ROS timers.
type Timer struct {
	clk clock.Clock
	cb  TimerCallback
	log *zap.SugaredLogger

	mu           sync.Mutex
	period       time.Duration
	oneshot      bool
	running      bool
	paused       bool
	stopCh       chan struct{}
	expected     time.Time
	lastReal     time.Time
	lastDuration time.Duration
}

func newTimer(clk clock.Clock, period time.Duration, cb TimerCallback, oneshot bool) *Timer {
	return &Timer{
		clk:     clk,
		cb:      cb,
		log:     zap.S().Named("timer"),
		period:  period,
		oneshot: oneshot,
	}
}

// Start begins firing. It is a no-op on a running or paused timer.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.paused {
		return
	}
	t.startLocked(t.period)
}

func (t *Timer) startLocked(initialDelay time.Duration) {
	t.running = true
	t.paused = false
	t.expected = t.clk.Now().Add(initialDelay)
	t.stopCh = make(chan struct{})
	go t.loop(t.stopCh, initialDelay)
}

func (t *Timer) loop(stop chan struct{}, initialDelay time.Duration) {
	delay := initialDelay
	for {
		timer := t.clk.Timer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		t.fire()

		t.mu.Lock()
		if t.oneshot {
			t.running = false
			t.mu.Unlock()
			return
		}
		delay = t.period
		t.mu.Unlock()
	}
}

func (t *Timer) fire() {
	start := t.clk.Now()

	t.mu.Lock()
	ev := TimerEvent{
		CurrentReal:  start,
		LastReal:     t.lastReal,
		ExpectedReal: t.expected,
		LastDuration: t.lastDuration,
	}
	t.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Errorw("timer callback panicked", "panic", r)
			}
		}()
		t.cb(ev)
	}()

	end := t.clk.Now()
	t.mu.Lock()
	t.lastDuration = end.Sub(start)
	t.lastReal = start
	t.expected = ev.ExpectedReal.Add(t.period)
	t.mu.Unlock()
}

// Stop cancels the timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		close(t.stopCh)
	}
	t.running = false
	t.paused = false
}

// Pause stops firing but remembers phase so Resume can pick up where
// the schedule left off.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.paused {
		return
	}
	close(t.stopCh)
	t.running = false
	t.paused = true
}

// Resume restarts a paused timer, firing after the remainder of the
// current period.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || !t.paused {
		return
	}

	remaining := t.period
	if !t.lastReal.IsZero() {
		elapsed := t.clk.Now().Sub(t.lastReal)
		if t.period > 0 {
			remaining = t.period - elapsed%t.period
		}
		if remaining < 0 {
			remaining = 0
		}
	}
	t.startLocked(remaining)
}

// Period returns the current period.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// SetPeriod changes the period, restarting a running timer.
func (t *Timer) SetPeriod(period time.Duration) {
	t.mu.Lock()
	wasRunning := t.running
	if wasRunning {
		close(t.stopCh)
		t.running = false
	}
	t.period = period
	if wasRunning {
		t.startLocked(period)
	}
	t.mu.Unlock()
}

// SetOneShot toggles one-shot mode, restarting a running timer.
func (t *Timer) SetOneShot(oneshot bool) {
	t.mu.Lock()
	wasRunning := t.running
	if wasRunning {
		close(t.stopCh)
		t.running = false
	}
	t.oneshot = oneshot
	if wasRunning {
		t.startLocked(t.period)
	}
	t.mu.Unlock()
}
