package tamshai

import (
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the gateway base address, e.g. "https://gateway.internal".
// If not set, defaults to the TAMSHAI_GATEWAY_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithToken sets the bearer token for authenticating with the gateway.
// If not set, defaults to the TAMSHAI_GATEWAY_TOKEN environment variable.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithPollInterval sets how often WaitForResolution re-checks a pending
// confirmation. If not set, defaults to 2 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithMaxPolls bounds how many times WaitForResolution re-checks before
// giving up. If not set, defaults to 150 (5 minutes at the default interval,
// matching the gateway's confirmation timeout).
func WithMaxPolls(n int) Option {
	return func(c *Client) {
		c.maxPolls = n
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}
