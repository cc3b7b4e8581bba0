// Package transport builds the HTTP clients used to crawl write-up blogs.
//
// A Client either dials the blog directly or routes every connection through
// a SOCKS5 proxy (golang.org/x/net/proxy). The proxy can be an external one,
// such as a local Tor daemon, or an embedded Tor daemon started with
// EmbeddedTor (github.com/nao1215/tornago).
//
// Every HTTP client carries a cookie jar and can inject a per-site cookie
// and extra headers into each request, including redirects.
//
// The package is designed to be used with dependency injection: build one
// Client per site and hand its HTTP client to the crawler.
package transport
