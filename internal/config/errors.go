package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate, SiteConfig.Validate and
// Config.ResolveSites.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling; dynamic details are added by
// wrapping with fmt.Errorf and %w.
var (
	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	// Use 0 for no limit.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidFormat is returned for an unknown report format.
	ErrInvalidFormat = errors.New("invalid report format: must be one of text, json, markdown, xlsx")

	// ErrConflictingProxy is returned when both --proxy and --tor are given.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --proxy and --tor cannot be used together")

	// ErrSeedsWithoutBaseURL is returned when --seed is given without --base-url.
	ErrSeedsWithoutBaseURL = errors.New("seed URLs given without a base URL: use --base-url")

	// ErrInvalidBaseURL is returned when a site's base URL is not an
	// absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http(s) URL")

	// ErrNoSeeds is returned when a site has no seed URLs.
	ErrNoSeeds = errors.New("no seed URLs")

	// ErrSeedOutsideBaseURL is returned when a seed does not start with the
	// site's base URL.
	ErrSeedOutsideBaseURL = errors.New("seed URL is outside the base URL")

	// ErrUnknownSite is returned when a site name is not in the configuration file.
	ErrUnknownSite = errors.New("unknown site")
)
