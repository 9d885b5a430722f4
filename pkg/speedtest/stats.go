package speedtest

import (
	"fmt"
	"time"
)

// Summarize computes statistics over results taken at or after since. A zero
// since includes everything. It returns nil when no result qualifies.
func Summarize(results []Result, since time.Time) *Stats {
	var s *Stats
	for _, r := range results {
		if r.Timestamp.Before(since) {
			continue
		}
		if s == nil {
			s = &Stats{
				MinDownload: r.DownloadMbps, MaxDownload: r.DownloadMbps,
				MinPing: r.PingMs, MaxPing: r.PingMs,
				First: r.Timestamp, Last: r.Timestamp,
			}
		}
		s.Count++
		s.AvgDownload += r.DownloadMbps
		s.AvgUpload += r.UploadMbps
		s.AvgPing += r.PingMs
		s.MinDownload = min(s.MinDownload, r.DownloadMbps)
		s.MaxDownload = max(s.MaxDownload, r.DownloadMbps)
		s.MinPing = min(s.MinPing, r.PingMs)
		s.MaxPing = max(s.MaxPing, r.PingMs)
		if r.Timestamp.Before(s.First) {
			s.First = r.Timestamp
		}
		if r.Timestamp.After(s.Last) {
			s.Last = r.Timestamp
		}
	}
	if s == nil {
		return nil
	}
	n := float64(s.Count)
	s.AvgDownload /= n
	s.AvgUpload /= n
	s.AvgPing /= n
	return s
}

// Summary is a one-line rendering of r.
func (r *Result) Summary() string {
	return fmt.Sprintf("↓ %.1f Mbps ↑ %.1f Mbps ping %.0f ms via %s (%s)",
		r.DownloadMbps, r.UploadMbps, r.PingMs, r.ServerName, r.ServerCountry)
}
