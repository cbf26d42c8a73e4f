package httpclient

import (
	"net/http"
	"time"
)

// userAgentTransport stamps every request with a fixed User-Agent
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewDefaultHTTPClient creates a simple HTTP client with a timeout.
// A non-empty userAgent is sent on requests that do not set one.
func NewDefaultHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}
	if userAgent != "" {
		client.Transport = &userAgentTransport{base: http.DefaultTransport, userAgent: userAgent}
	}
	return client
}
