// Package main provides the entry point for the ctfindex CLI.
//
// ctfindex crawls CTF write-up blogs, collects every write-up URL and
// classifies it by year, competition, category and title.
//
// Usage:
//
//	ctfindex crawl
//	ctfindex crawl --base-url https://writeups.example.com --seed https://writeups.example.com/2024/
//	ctfindex compare ayweth20
//
// See --help for all available options.
package main

// main is the entry point for ctfindex.
func main() {
	Execute()
}
