package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; many sessions usually target the same export host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the result of a single status request made by a [Fetcher].
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if the request failed before
	// a response was received.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred while performing the request.
	// A non-2xx status is not an error at this layer.
	Error error
}

// Fetcher performs a single status request.
//
// Fetch always returns a Response; failures are reported in Response.Error.
type Fetcher interface {
	Fetch(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Response
}

// Client is an HTTP client wrapper tuned for polling export status endpoints.
//
// Client uses per-request timeouts via context rather than a global timeout
// so that sessions with different request timeouts can share one pool.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with its own pooled transport.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Transport: newTransport()}}
}

// NewClientFrom wraps an existing http.Client. A nil client yields [NewClient].
func NewClientFrom(hc *http.Client) *Client {
	if hc == nil {
		return NewClient()
	}
	return &Client{httpClient: hc}
}

// NewProxyClient creates a [Client] that sends every request through the
// proxy at rawURL. Supported schemes are socks5, socks5h, http and https.
func NewProxyClient(rawURL string) (*Client, error) {
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	transport := newTransport()

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := newSocksDialer(proxyURL)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dialer.DialContext
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "":
		return nil, errors.New("proxy url must have a scheme (socks5://, http:// or https://)")
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}

	return &Client{httpClient: &http.Client{Transport: transport}}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DialContext:         (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}
}

// newSocksDialer builds a SOCKS5 context dialer, forwarding credentials
// embedded in the proxy url.
func newSocksDialer(proxyURL *url.URL) (proxy.ContextDialer, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil && proxyURL.User.Username() != "" {
		auth = &proxy.Auth{User: proxyURL.User.Username()}
		if pass, has := proxyURL.User.Password(); has {
			auth.Password = pass
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}

	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}
	return cd, nil
}

// Fetch performs an HTTP request and returns a structured [Response].
//
// If method is empty, GET is used. The timeout is applied via context
// cancellation; a non-positive timeout leaves only ctx in control.
func (c *Client) Fetch(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. The client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
