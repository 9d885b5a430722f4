// Package speedtest measures link throughput and latency against speedtest.net
// servers using showwin/speedtest-go.
package speedtest
