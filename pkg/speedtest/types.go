package speedtest

import "time"

// Result is a single speedtest measurement.
//
// JSON tags are stable: results are kept in job data and written to run
// history details.
type Result struct {
	Timestamp     time.Time `json:"timestamp"`
	DownloadMbps  float64   `json:"download_mbps"`
	UploadMbps    float64   `json:"upload_mbps"`
	PingMs        float64   `json:"ping_ms"`
	JitterMs      float64   `json:"jitter_ms"`
	PacketLoss    float64   `json:"packet_loss"`
	ISP           string    `json:"isp"`
	ServerName    string    `json:"server_name"`
	ServerCountry string    `json:"server_country"`

	Duration       time.Duration `json:"-"`
	CandidateCount int           `json:"-"`
	FullTestCount  int           `json:"-"`
}

// Stats summarizes a series of results.
type Stats struct {
	Count       int       `json:"count"`
	AvgDownload float64   `json:"avg_download_mbps"`
	AvgUpload   float64   `json:"avg_upload_mbps"`
	AvgPing     float64   `json:"avg_ping_ms"`
	MaxDownload float64   `json:"max_download_mbps"`
	MinDownload float64   `json:"min_download_mbps"`
	MaxPing     float64   `json:"max_ping_ms"`
	MinPing     float64   `json:"min_ping_ms"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
}
