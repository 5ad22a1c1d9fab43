package resourcemonitor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Ticks of CPU time per second as reported in /proc/<pid>/stat (USER_HZ).
const clkTck = 100

type procStat struct {
	utimeTicks int
	stimeTicks int
	vsizeBytes int
	rssPages   int
}

func (s *procStat) cpuTicks() int {
	return s.utimeTicks + s.stimeTicks
}

func readProcStat(pid int) (*procStat, error) {
	buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return nil, err
	}
	return parseProcStat(buf)
}

func parseProcStat(buf []byte) (*procStat, error) {
	// The comm field is parenthesized and may contain spaces, so split only
	// what comes after the closing paren. In the remainder, state is field 0,
	// utime/stime are 11/12 and vsize/rss are 20/21.
	s := string(buf)
	i := strings.LastIndex(s, ")")
	if i < 0 {
		return nil, fmt.Errorf("malformed stat line: no comm field")
	}
	parts := strings.Fields(s[i+1:])
	if len(parts) < 22 {
		return nil, fmt.Errorf("malformed stat line: %d fields", len(parts))
	}
	utime, err := strconv.Atoi(parts[11])
	if err != nil {
		return nil, fmt.Errorf("bad utime %q: %w", parts[11], err)
	}
	stime, err := strconv.Atoi(parts[12])
	if err != nil {
		return nil, fmt.Errorf("bad stime %q: %w", parts[12], err)
	}
	vsize, err := strconv.Atoi(parts[20])
	if err != nil {
		return nil, fmt.Errorf("bad vsize %q: %w", parts[20], err)
	}
	rss, err := strconv.Atoi(parts[21])
	if err != nil {
		return nil, fmt.Errorf("bad rss %q: %w", parts[21], err)
	}
	return &procStat{
		utimeTicks: utime,
		stimeTicks: stime,
		vsizeBytes: vsize,
		rssPages:   rss,
	}, nil
}
