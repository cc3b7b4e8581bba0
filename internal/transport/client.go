package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake done by CheckConnection.
const checkProxyTimeout = 2 * time.Second

// maxRedirects is the number of redirects followed before giving up.
const maxRedirects = 10

// Client creates HTTP clients that reach write-up blogs either directly or
// through a SOCKS5 proxy.
//
// Design decision: We don't connect to the proxy in the constructor because:
//  1. A client can be built before the proxy is up
//  2. Object creation stays separate from network operations
type Client struct {
	// proxyAddress is the SOCKS5 proxy in "host:port" form. Empty means direct.
	proxyAddress string

	// dialer is the SOCKS5 dialer, nil for direct connections.
	dialer proxy.Dialer

	// timeout is the request timeout of the HTTP clients built by this client.
	timeout time.Duration
}

// NewDirectClient creates a client that connects without a proxy.
func NewDirectClient(timeout time.Duration) *Client {
	return &Client{timeout: timeout}
}

// NewProxyClient creates a client that routes every connection through the
// SOCKS5 proxy at proxyAddress ("host:port"). The proxy is not contacted
// here; call CheckConnection to verify it.
func NewProxyClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, proxyAddress)
	}

	// Local SOCKS ports (Tor included) don't require authentication.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

// isValidProxyAddress checks that address is "host:port" with a non-empty
// host and a port between 1 and 65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address, or "" for direct clients.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// UsesProxy reports whether connections go through a SOCKS5 proxy.
func (c *Client) UsesProxy() bool {
	return c.dialer != nil
}

// Timeout returns the request timeout of the HTTP clients built by c.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// DialContext opens a TCP connection, through the proxy when one is set.
//
// The SOCKS5 dialer from x/net supports contexts directly; if a dialer that
// doesn't is ever plugged in, the dial runs in a goroutine and the context
// only stops the wait, not the dial itself.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if c.dialer == nil {
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	}
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HTTPClient returns an HTTP client that injects cookie and headers into
// requests to the host of siteURL. Requests to other hosts, redirects
// included, are sent untouched. An empty cookie and nil headers leave every
// request untouched.
//
// Design decision: We inject through a RoundTripper rather than on each
// request so that redirects within the site carry the same values.
func (c *Client) HTTPClient(siteURL, cookie string, headers map[string]string) *http.Client {
	var rt http.RoundTripper = c.newTransport()
	if cookie != "" || len(headers) > 0 {
		rt = &headerInjectingTransport{
			base:    rt,
			host:    siteHost(siteURL),
			cookie:  cookie,
			headers: headers,
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: rt,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// newTransport builds the round tripper. Proxied connections use a smaller
// pool because every connection holds a circuit on the proxy side.
func (c *Client) newTransport() *http.Transport {
	if c.dialer == nil {
		t, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return &http.Transport{Proxy: http.ProxyFromEnvironment}
		}
		return t.Clone()
	}

	return &http.Transport{
		DialContext:         c.DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 30 * time.Second,
	}
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into requests for one host.
type headerInjectingTransport struct {
	base http.RoundTripper
	// host is the lower-cased "host[:port]" of the site. Empty matches nothing.
	host    string
	cookie  string
	headers map[string]string
}

// siteHost returns the lower-cased host of rawURL, or "" when it has none.
func siteHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.host == "" || !strings.EqualFold(req.URL.Host, t.host) {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}

// SOCKS5 greeting constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// CheckConnection verifies that the proxy speaks SOCKS5 and accepts
// clients without authentication. Direct clients always report OK.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	if c.dialer == nil {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, one method offered, "no authentication"
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
