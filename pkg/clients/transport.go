package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTransport caps connections per host so a stalled upstream cannot
// pile up unbounded dials during an outage. Idle connections stay warm for
// the steady drip of token refreshes and webhook posts.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     100,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
