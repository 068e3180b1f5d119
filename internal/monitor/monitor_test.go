package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/session"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu     sync.Mutex
	status core.Status
}

func (f *fakeEngine) Status() core.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
func (f *fakeEngine) Pending() int      { return 3 }
func (f *fakeEngine) TickCount() uint64 { return 42 }

type perfSample struct {
	pending int
	ticks   uint64
	queues  map[string]int
}

type fakePerf struct {
	mu      sync.Mutex
	samples []perfSample
	err     error
}

func (f *fakePerf) RecordPerformance(_ time.Time, pending int, ticks uint64, queues map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, perfSample{pending, ticks, queues})
	return f.err
}

func (f *fakePerf) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

type fakeQueues map[string]int

func (q fakeQueues) QueueLengths() map[string]int { return q }

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name string
		st   core.Status
		want string
	}{
		{"no anchor", core.Status{Hour: 9.5, AnchorID: "none"}, "09:30 - no anchor (waiting, idle)"},
		{"empty anchor", core.Status{Hour: 0}, "00:00 - no anchor (waiting, idle)"},
		{"moving", core.Status{Hour: 18.25, AnchorID: "bench", Matched: true, Moving: true}, "18:15 - bench (matched, moving)"},
		{"following", core.Status{Hour: 23.99, AnchorID: "door", Matched: true, Following: true}, "23:59 - door (matched, following)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatStatus(tt.st))
		})
	}
}

func TestWriteStatus_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	eng := &fakeEngine{status: core.Status{Hour: 8, AnchorID: "bench", Matched: true}}
	s := NewService(Dependencies{Engine: eng, StatusPath: path})

	require.NoError(t, s.WriteStatus())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "08:00 - bench (matched, idle)\n", string(data))

	// the file is truncated, not appended
	eng.status.Matched = false
	require.NoError(t, s.WriteStatus())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "08:00 - bench (waiting, idle)\n", string(data))
	assert.Equal(t, "08:00 - bench (waiting, idle)", s.LastLine())
}

func TestWriteStatus_Performance(t *testing.T) {
	perf := &fakePerf{}
	sess := session.NewContext()
	s := NewService(Dependencies{
		Engine:      &fakeEngine{},
		Session:     sess,
		Queues:      fakeQueues{"pose_samples": 7},
		Performance: perf,
	})

	require.NoError(t, s.WriteStatus())
	assert.Equal(t, 0, perf.count(), "no samples before a session starts")

	sess.Start(core.Session{ID: 1})
	require.NoError(t, s.WriteStatus())
	require.Equal(t, 1, perf.count())
	assert.Equal(t, perfSample{3, 42, map[string]int{"pose_samples": 7}}, perf.samples[0])

	perf.err = errors.New("boom")
	assert.Error(t, s.WriteStatus())
}

func TestService_StartStop(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "status.txt")
	s := NewService(Dependencies{
		Engine:     &fakeEngine{status: core.Status{Hour: 12, AnchorID: "bench"}},
		Clock:      fake,
		StatusPath: path,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return fake.PendingTickers() == 1 }, time.Second, time.Millisecond)
	fake.Advance(time.Second)
	require.Eventually(t, func() bool { return s.LastLine() != "" }, time.Second, time.Millisecond)
	assert.Equal(t, "12:00 - bench (waiting, idle)", s.LastLine())

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestService_StartWithoutEngine(t *testing.T) {
	s := NewService(Dependencies{})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
