// Package config provides configuration structures and utilities for ctfindex.
// It defines the crawl settings, the write-up sites to index (from flags or
// the .ctfindex YAML file) and the report preferences.
package config
