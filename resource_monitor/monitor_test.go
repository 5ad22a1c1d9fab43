package resourcemonitor

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseProcStat(t *testing.T) {
	// A real stat line; comm can contain spaces and parens.
	line := []byte("1234 (fio worker) S 1 1234 1234 0 -1 4194560 1000 0 0 0 250 150 0 0 20 0 4 0 100 104857600 2560 18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 3 0 0 0 0 0 0 0 0 0 0 0 0 0")
	s, err := parseProcStat(line)
	if err != nil {
		t.Fatal(err)
	}
	if s.utimeTicks != 250 || s.stimeTicks != 150 {
		t.Fatalf("got utime %d stime %d", s.utimeTicks, s.stimeTicks)
	}
	if s.cpuTicks() != 400 {
		t.Fatalf("got %d cpu ticks", s.cpuTicks())
	}
	if s.vsizeBytes != 104857600 {
		t.Fatalf("got vsize %d", s.vsizeBytes)
	}
	if s.rssPages != 2560 {
		t.Fatalf("got rss %d", s.rssPages)
	}

	t.Run("no comm field", func(t *testing.T) {
		_, err := parseProcStat([]byte("1234 fio S 1"))
		if err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := parseProcStat([]byte("1234 (fio) S 1 2 3"))
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestReduce(t *testing.T) {
	t.Run("empty series yields zeros", func(t *testing.T) {
		usage := Reduce(nil)
		if usage != (AggregatedUsage{}) {
			t.Fatalf("got %+v, want zeros", usage)
		}
	})

	t.Run("averages and peaks", func(t *testing.T) {
		usage := Reduce([]Sample{
			{CPUPercent: 10, RSSMb: 100},
			{CPUPercent: 30, RSSMb: 300},
			{CPUPercent: 20, RSSMb: 200},
		})
		if usage.AvgCPU != 20 {
			t.Fatalf("got avg cpu %f", usage.AvgCPU)
		}
		if usage.PeakCPU != 30 {
			t.Fatalf("got peak cpu %f", usage.PeakCPU)
		}
		if usage.AvgRSSMb != 200 {
			t.Fatalf("got avg rss %f", usage.AvgRSSMb)
		}
		if usage.PeakRSSMb != 300 {
			t.Fatalf("got peak rss %f", usage.PeakRSSMb)
		}
	})
}

func TestMonitorSamplesLiveProcess(t *testing.T) {
	m := New(os.Getpid(), 10*time.Millisecond)
	m.Start()
	time.Sleep(100 * time.Millisecond)
	samples := m.Stop()

	if len(samples) == 0 {
		t.Fatal("expected samples from a live process")
	}
	for i, s := range samples {
		if s.CPUPercent < 0 {
			t.Fatalf("sample %d has negative CPU", i)
		}
		if s.RSSMb <= 0 || s.VSZMb <= 0 {
			t.Fatalf("sample %d has empty memory: %+v", i, s)
		}
	}
}

func TestMonitorShorterThanTwoIntervals(t *testing.T) {
	// The first tick only primes the CPU counters, so a run stopped before
	// the second tick has an empty series, which reduces to zeros.
	m := New(os.Getpid(), 200*time.Millisecond)
	m.Start()
	time.Sleep(50 * time.Millisecond)
	samples := m.Stop()
	if len(samples) != 0 {
		t.Fatalf("got %d samples before a second tick", len(samples))
	}
	if Reduce(samples) != (AggregatedUsage{}) {
		t.Fatal("empty series must reduce to zeros")
	}
}

func TestMonitorDropsUnreadablePID(t *testing.T) {
	// PID 0 never has a /proc entry; every tick must be dropped, not zeroed.
	m := New(0, 5*time.Millisecond)
	m.Start()
	time.Sleep(50 * time.Millisecond)
	samples := m.Stop()
	if len(samples) != 0 {
		t.Fatalf("got %d samples for an unreadable pid", len(samples))
	}
}

func TestEncodeCSV(t *testing.T) {
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	buf := EncodeCSV([]Sample{{Time: at, CPUPercent: 12.345, RSSMb: 256.7, VSZMb: 1024}})
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0] != "timestamp,cpu_percent,rss_mb,vsz_mb" {
		t.Fatalf("got header %q", lines[0])
	}
	if lines[1] != "2026-08-26T10:00:00Z,12.35,256.70,1024.00" {
		t.Fatalf("got row %q", lines[1])
	}
}
