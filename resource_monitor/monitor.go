package resourcemonitor

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// A Monitor samples CPU and memory usage of one process at a fixed interval
// on a background goroutine. The sample series is owned by the loop and is
// handed off by Stop; a Monitor must not be reused across runs.
type Monitor struct {
	pid      int
	interval time.Duration
	stop     *atomic.Bool
	wg       *sync.WaitGroup
	samples  []Sample
}

func New(pid int, interval time.Duration) *Monitor {
	return &Monitor{
		pid:      pid,
		interval: interval,
		stop:     &atomic.Bool{},
		wg:       &sync.WaitGroup{},
	}
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop signals the sampling loop, waits for it to acknowledge, and returns
// the accumulated series. Call it exactly once per Start.
func (m *Monitor) Stop() []Sample {
	m.stop.Store(true)
	m.wg.Wait()
	return m.samples
}

// SignalStop asks the loop to exit without waiting for it. Shutdown paths
// use this so an orphaned sampler cannot block process exit.
func (m *Monitor) SignalStop() {
	m.stop.Store(true)
}

var maxJitter = 1 * time.Second

func (m *Monitor) run() {
	defer m.wg.Done()
	pageSize := os.Getpagesize()
	var prev *procStat
	var prevTime time.Time
	lastWakeTime := time.Now()
	for {
		if m.stop.Load() {
			break // we deferred wg.Done
		}

		jitterMs := time.Since(lastWakeTime).Milliseconds() - m.interval.Milliseconds()
		if jitterMs > maxJitter.Milliseconds() {
			slog.Warn("Monitor: jitter exceeded maximum", slog.Int64("jitterMs", jitterMs), slog.Int("pid", m.pid))
		}
		lastWakeTime = time.Now()

		curr, err := readProcStat(m.pid)
		now := time.Now()
		if err != nil {
			// The process may not exist yet or may have exited; drop the tick.
			prev = nil
		} else if prev != nil {
			elapsed := now.Sub(prevTime).Seconds()
			if elapsed > 0 {
				m.samples = append(m.samples, Sample{
					Time:       now,
					CPUPercent: float64(curr.cpuTicks()-prev.cpuTicks()) / clkTck / elapsed * 100,
					RSSMb:      float64(curr.rssPages*pageSize) / 1e6,
					VSZMb:      float64(curr.vsizeBytes) / 1e6,
				})
			}
		}
		if err == nil {
			prev = curr
			prevTime = now
		}

		time.Sleep(m.interval)
	}
	slog.Debug("Monitor: stopped", slog.Int("pid", m.pid), slog.Int("samples", len(m.samples)))
}
