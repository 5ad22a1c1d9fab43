package fiobench

import (
	"encoding/json"
	"fmt"
)

// Metrics are the headline numbers pulled from one fio JSON output.
type Metrics struct {
	ReadBandwidthMBps  float64
	WriteBandwidthMBps float64
	ReadIOPS           float64
	WriteIOPS          float64
	MeanReadLatMs      float64
	MeanWriteLatMs     float64
}

type fioOpStats struct {
	BW    float64 `json:"bw"` // KiB/s
	IOPS  float64 `json:"iops"`
	LatNs struct {
		Mean float64 `json:"mean"`
	} `json:"lat_ns"`
}

type fioOutput struct {
	Jobs []struct {
		Jobname string     `json:"jobname"`
		Read    fioOpStats `json:"read"`
		Write   fioOpStats `json:"write"`
	} `json:"jobs"`
}

// ParseOutput extracts metrics from one fio JSON output. Bandwidth and IOPS
// are summed across jobs (total node throughput); latency is averaged over
// the jobs that performed I/O in that direction.
func ParseOutput(buf []byte) (*Metrics, error) {
	out := fioOutput{}
	err := json.Unmarshal(buf, &out)
	if err != nil {
		return nil, fmt.Errorf("parsing fio output failed: %w", err)
	}
	if len(out.Jobs) == 0 {
		return nil, fmt.Errorf("fio output has no jobs")
	}

	m := &Metrics{}
	nRead, nWrite := 0, 0
	for _, job := range out.Jobs {
		if job.Read.BW > 0 {
			m.ReadBandwidthMBps += job.Read.BW / 1000.0
			m.ReadIOPS += job.Read.IOPS
			m.MeanReadLatMs += job.Read.LatNs.Mean / 1e6
			nRead++
		}
		if job.Write.BW > 0 {
			m.WriteBandwidthMBps += job.Write.BW / 1000.0
			m.WriteIOPS += job.Write.IOPS
			m.MeanWriteLatMs += job.Write.LatNs.Mean / 1e6
			nWrite++
		}
	}
	if nRead > 0 {
		m.MeanReadLatMs /= float64(nRead)
	}
	if nWrite > 0 {
		m.MeanWriteLatMs /= float64(nWrite)
	}
	return m, nil
}
