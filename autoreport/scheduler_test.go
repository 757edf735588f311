package autoreport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeIntervals struct {
	mu          sync.Mutex
	temperature int
	position    int
	printStatus int
}

func (f *fakeIntervals) Temperature() int { f.mu.Lock(); defer f.mu.Unlock(); return f.temperature }
func (f *fakeIntervals) Position() int    { f.mu.Lock(); defer f.mu.Unlock(); return f.position }
func (f *fakeIntervals) PrintStatus() int { f.mu.Lock(); defer f.mu.Unlock(); return f.printStatus }

type fakeRenderer struct{}

func (fakeRenderer) ReportTemperature() string { return "ok T:0 /0 B:0 /0 @:0 B@:0" }
func (fakeRenderer) ReportPosition() string    { return "X:0 Y:0 Z:0 E:0" }
func (fakeRenderer) ReportPrintStatus() string { return "SD printing byte 0/0" }

type fakeWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *fakeWriter) Write(lines ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, lines...)
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lines)
}

func TestScheduler_ZeroIntervalNeverEmits(t *testing.T) {
	intervals := &fakeIntervals{}
	w := &fakeWriter{}
	s := New(intervals, fakeRenderer{}, w, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.Equal(t, 0, w.count())
}

func TestScheduler_NonzeroIntervalEmitsAfterElapsed(t *testing.T) {
	intervals := &fakeIntervals{temperature: 1}
	w := &fakeWriter{}
	s := New(intervals, fakeRenderer{}, w, nil)
	s.temperature.lastEmit = time.Now().Add(-2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.GreaterOrEqual(t, w.count(), 1)
}
