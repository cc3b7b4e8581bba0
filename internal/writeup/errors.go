package writeup

import "errors"

var (
	// ErrInvalidURL is returned when the write-up URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid write-up URL")

	// ErrTooFewSegments is returned when the URL path is too short for the
	// matched rule to extract a year, competition or category.
	ErrTooFewSegments = errors.New("write-up URL path has too few segments")
)
