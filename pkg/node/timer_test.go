package node

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type firings struct {
	mu     sync.Mutex
	events []TimerEvent
}

func (f *firings) record(ev TimerEvent) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *firings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *firings) at(i int) TimerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[i]
}

// settle gives the timer goroutine time to register its next clock
// timer before the mock clock advances.
func settle() {
	time.Sleep(10 * time.Millisecond)
}

func waitCount(t *testing.T, f *firings, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() >= want }, 2*time.Second, time.Millisecond)
	// Let the timer goroutine re-arm before the caller advances the
	// mock clock again.
	time.Sleep(10 * time.Millisecond)
}

func TestPeriodicTimerFires(t *testing.T) {
	mock := clock.NewMock()
	f := &firings{}

	tm := newTimer(mock, time.Second, f.record, false)
	tm.Start()
	defer tm.Stop()
	settle()

	mock.Add(time.Second)
	waitCount(t, f, 1)
	mock.Add(time.Second)
	waitCount(t, f, 2)

	second := f.at(1)
	require.Equal(t, f.at(0).CurrentReal, second.LastReal)
	require.Equal(t, f.at(0).ExpectedReal.Add(time.Second), second.ExpectedReal)
}

func TestOneShotTimerFiresOnce(t *testing.T) {
	mock := clock.NewMock()
	f := &firings{}

	tm := newTimer(mock, time.Second, f.record, true)
	tm.Start()
	settle()

	mock.Add(time.Second)
	waitCount(t, f, 1)

	mock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, f.count())
}

func TestTimerCallbackPanicIsRecovered(t *testing.T) {
	mock := clock.NewMock()
	f := &firings{}

	tm := newTimer(mock, time.Second, func(ev TimerEvent) {
		f.record(ev)
		panic("boom")
	}, false)
	tm.Start()
	defer tm.Stop()
	settle()

	mock.Add(time.Second)
	waitCount(t, f, 1)

	// The panic does not tear the timer down.
	mock.Add(time.Second)
	waitCount(t, f, 2)
}

func TestTimerStopIdempotent(t *testing.T) {
	mock := clock.NewMock()
	f := &firings{}

	tm := newTimer(mock, time.Second, f.record, false)
	tm.Start()
	tm.Stop()
	tm.Stop()

	mock.Add(3 * time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, f.count())
}

func TestTimerPauseResume(t *testing.T) {
	mock := clock.NewMock()
	f := &firings{}

	tm := newTimer(mock, time.Second, f.record, false)
	tm.Start()
	defer tm.Stop()
	settle()

	mock.Add(time.Second)
	waitCount(t, f, 1)

	tm.Pause()
	mock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, f.count())

	tm.Resume()
	settle()
	mock.Add(time.Second)
	waitCount(t, f, 2)
}

func TestSetPeriodRestartsSchedule(t *testing.T) {
	mock := clock.NewMock()
	f := &firings{}

	tm := newTimer(mock, time.Minute, f.record, false)
	tm.Start()
	defer tm.Stop()
	settle()
	require.Equal(t, time.Minute, tm.Period())

	tm.SetPeriod(time.Second)
	settle()
	mock.Add(time.Second)
	waitCount(t, f, 1)
}
