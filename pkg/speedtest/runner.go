package speedtest

import (
	"context"
	"math"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	st "github.com/showwin/speedtest-go/speedtest"
)

// RunConfig controls how a speedtest run is executed.
type RunConfig struct {
	// ServerCount is how many of the nearest servers are pinged.
	ServerCount int
	// FullTestServers is how many of the lowest-latency servers get a full
	// download and upload test. They run sequentially.
	FullTestServers int

	SavingMode     bool
	MaxConnections int

	// PingConcurrency caps how many ping tests run concurrently.
	PingConcurrency int

	// SkipUpload measures download and latency only.
	SkipUpload bool

	PacketLossEnabled bool
	PacketLossTimeout time.Duration
}

func (c RunConfig) withDefaults() RunConfig {
	if c.ServerCount <= 0 {
		c.ServerCount = 5
	}
	if c.FullTestServers <= 0 {
		c.FullTestServers = 1
	}
	c.FullTestServers = min(c.FullTestServers, c.ServerCount)
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	if c.PingConcurrency <= 0 {
		c.PingConcurrency = 4
	}
	if c.PacketLossTimeout <= 0 {
		c.PacketLossTimeout = 3 * time.Second
	}
	return c
}

// Runner executes speedtests.
type Runner struct {
	cfg RunConfig
}

func NewRunner(cfg RunConfig) *Runner {
	return &Runner{cfg: cfg.withDefaults()}
}

// Run executes a single speedtest run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := r.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()

	// A dedicated transport lets us drop every connection when the run ends.
	tr := newTransport(cfg)
	defer tr.CloseIdleConnections()

	// Avoid package-level speedtest helpers; speedtest-go keeps state there.
	stc := st.New(
		st.WithUserConfig(&st.UserConfig{SavingMode: cfg.SavingMode, MaxConnections: cfg.MaxConnections}),
		st.WithDoer(&http.Client{Transport: tr}),
	)
	stc.SetNThread(cfg.MaxConnections)
	defer func() {
		stc.Snapshots().Clean()
		stc.Reset()
	}()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch user info")
	}
	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch server list")
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return nil, errors.New("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	candidates := servers[:min(cfg.ServerCount, len(servers))]

	pinged := pingCandidates(ctx, candidates, cfg.PingConcurrency)
	if len(pinged) == 0 {
		return nil, errors.New("all latency tests failed")
	}
	sort.Slice(pinged, func(i, j int) bool { return pinged[i].Latency < pinged[j].Latency })

	var full []serverResult
	for _, s := range pinged[:min(cfg.FullTestServers, len(pinged))] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.DownloadTestContext(ctx); err != nil {
			continue
		}
		res := serverResult{server: s, download: s.DLSpeed.Mbps(), ping: s.Latency}
		if !cfg.SkipUpload {
			if err := s.UploadTestContext(ctx); err != nil {
				continue
			}
			res.upload = s.ULSpeed.Mbps()
		}
		full = append(full, res)
		stc.Snapshots().Clean()
		stc.Reset()
	}
	if len(full) == 0 {
		return nil, errors.New("full test failed for all servers")
	}

	avg := average(full)
	chosen := best(full)

	loss := 0.0
	if cfg.PacketLossEnabled {
		host := chosen.server.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		plCtx, cancel := context.WithTimeout(ctx, cfg.PacketLossTimeout)
		loss = packetLoss(plCtx, host)
		cancel()
	}

	// Prefer jitter from the chosen server; fall back to a rough estimate.
	jitter := float64(chosen.server.Jitter.Milliseconds())
	if jitter <= 0 {
		jitter = math.Max(0.1, float64(avg.ping.Milliseconds())*0.1)
	}

	return &Result{
		Timestamp:      time.Now(),
		DownloadMbps:   avg.download,
		UploadMbps:     avg.upload,
		PingMs:         float64(avg.ping.Milliseconds()),
		JitterMs:       jitter,
		PacketLoss:     loss,
		ISP:            user.Isp,
		ServerName:     chosen.server.Sponsor,
		ServerCountry:  chosen.server.Country,
		Duration:       time.Since(start),
		CandidateCount: len(candidates),
		FullTestCount:  len(full),
	}, nil
}

func pingCandidates(ctx context.Context, servers []*st.Server, limit int) []*st.Server {
	sem := make(chan struct{}, limit)
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		pinged = make([]*st.Server, 0, len(servers))
	)
	for _, s := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			if err := s.PingTestContext(ctx, nil); err != nil || s.Latency <= 0 {
				return
			}
			mu.Lock()
			pinged = append(pinged, s)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return pinged
}

type serverResult struct {
	server   *st.Server
	download float64
	upload   float64
	ping     time.Duration
}

func average(results []serverResult) serverResult {
	if len(results) == 0 {
		return serverResult{}
	}
	var out serverResult
	for _, r := range results {
		out.download += r.download
		out.upload += r.upload
		out.ping += r.ping
	}
	n := len(results)
	out.download /= float64(n)
	out.upload /= float64(n)
	out.ping /= time.Duration(n)
	return out
}

// best prefers lower ping, then higher download speed.
func best(results []serverResult) serverResult {
	b := results[0]
	for _, r := range results[1:] {
		if r.ping < b.ping || (r.ping == b.ping && r.download > b.download) {
			b = r
		}
	}
	return b
}

func packetLoss(ctx context.Context, host string) float64 {
	if host == "" {
		return 0
	}
	pla := st.NewPacketLossAnalyzer(nil)
	pl, err := pla.RunMultiWithContext(ctx, []string{host})
	if err != nil || pl == nil {
		return 0
	}
	return pl.LossPercent()
}

func newTransport(cfg RunConfig) *http.Transport {
	d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   max(cfg.MaxConnections, 2),
		IdleConnTimeout:       10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
}
