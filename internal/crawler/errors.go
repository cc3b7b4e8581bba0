package crawler

import "errors"

var (
	// ErrInvalidBaseURL is returned when the base URL is not an absolute
	// http or https URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http(s) URL")

	// ErrNoSeeds is returned when a traversal is started without seed URLs.
	ErrNoSeeds = errors.New("no seed URLs given")

	// ErrInvalidSeed is returned when a seed URL is malformed or outside the
	// base URL.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrUnexpectedStatus is returned by page fetches answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)
