// Package crawler discovers write-up URLs on a write-up blog.
//
// # Architecture
//
// The package is built around the Spider type, which walks the pages
// reachable from a set of seed URLs and collects the links that look like
// write-ups. It keeps a FIFO frontier of pages to explore and a visited set,
// so every URL is fetched at most once per traversal.
//
// Links are filtered in three stages:
//  1. Links outside the base URL are ignored
//  2. Links matching the write-up pattern are collected and never explored
//  3. Other links are explored only when they contain one of the seed URLs
//
// # Components
//
//   - Spider: frontier traversal and page fetching
//   - Parser: anchor extraction from HTML (goquery)
//   - RobotsPolicy: optional robots.txt compliance (temoto/robotstxt)
//
// # Failure handling
//
// A page that cannot be fetched (network error, timeout, non-2xx status) is
// logged and recorded as a failure; its links are lost for the run but the
// traversal carries on. Only invalid seeds and context cancellation are
// returned as errors.
//
// # Usage
//
//	spider := crawler.NewSpider(httpClient, "https://writeups.example.com")
//	urls, err := spider.Traverse(ctx, seeds)
package crawler
