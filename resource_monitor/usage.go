package resourcemonitor

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// A Sample is one timestamped reading of the driver process.
type Sample struct {
	Time       time.Time
	CPUPercent float64
	RSSMb      float64
	VSZMb      float64
}

// AggregatedUsage reduces a sample series for one test case.
type AggregatedUsage struct {
	AvgCPU    float64 `json:"avg_cpu"`
	PeakCPU   float64 `json:"peak_cpu"`
	AvgRSSMb  float64 `json:"avg_rss_mb"`
	PeakRSSMb float64 `json:"peak_rss_mb"`
}

// Reduce aggregates a series. An empty series yields zeros, never NaN.
func Reduce(samples []Sample) AggregatedUsage {
	if len(samples) == 0 {
		return AggregatedUsage{}
	}
	usage := AggregatedUsage{}
	for _, s := range samples {
		usage.AvgCPU += s.CPUPercent
		usage.AvgRSSMb += s.RSSMb
		usage.PeakCPU = max(usage.PeakCPU, s.CPUPercent)
		usage.PeakRSSMb = max(usage.PeakRSSMb, s.RSSMb)
	}
	usage.AvgCPU /= float64(len(samples))
	usage.AvgRSSMb /= float64(len(samples))
	return usage
}

// EncodeCSV renders a series as the resource_usage.csv artifact.
func EncodeCSV(samples []Sample) []byte {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	w.Write([]string{"timestamp", "cpu_percent", "rss_mb", "vsz_mb"})
	for _, s := range samples {
		w.Write([]string{
			s.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.CPUPercent, 'f', 2, 64),
			strconv.FormatFloat(s.RSSMb, 'f', 2, 64),
			strconv.FormatFloat(s.VSZMb, 'f', 2, 64),
		})
	}
	w.Flush()
	return buf.Bytes()
}
