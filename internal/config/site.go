package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// DefaultSiteName is the name of the built-in site crawled when neither
// flags nor a configuration file name one.
const DefaultSiteName = "ayweth20"

// DefaultSite returns the built-in site: the write-up blog this tool was
// first written for, with one seed per competition section.
func DefaultSite() Site {
	const base = "https://writeups.ayweth20.com"
	return Site{
		Name: DefaultSiteName,
		SiteConfig: SiteConfig{
			BaseURL: base,
			Seeds: []string{
				base + "/2021/dvctf-to-join-davincicode",
				base + "/2022/dvctf-2022",
				base + "/2022/404ctf",
				base + "/2022/operation-kernel",
				base + "/2023/404ctf-2023",
			},
		},
	}
}

// Site is a named SiteConfig.
type Site struct {
	Name string
	SiteConfig
}

// SiteConfig holds the configuration of one write-up blog.
type SiteConfig struct {
	// BaseURL is the prefix every crawled and collected URL must share,
	// e.g. "https://writeups.example.com".
	BaseURL string `yaml:"baseURL,omitempty"`

	// Seeds are the pages the traversal starts from. Only links containing
	// one of them are explored.
	Seeds []string `yaml:"seeds,omitempty"`

	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxPages caps the pages fetched for this site. 0 means no limit.
	MaxPages int `yaml:"maxPages,omitempty"`

	// RespectRobots makes the crawler honour the site's robots.txt.
	RespectRobots bool `yaml:"respectRobots,omitempty"`
}

// Validate checks that the site can be crawled.
func (sc SiteConfig) Validate() error {
	u, err := url.Parse(sc.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, sc.BaseURL)
	}
	if len(sc.Seeds) == 0 {
		return ErrNoSeeds
	}
	for _, seed := range sc.Seeds {
		if !strings.HasPrefix(seed, sc.BaseURL) {
			return fmt.Errorf("%w: %q", ErrSeedOutsideBaseURL, seed)
		}
	}
	if sc.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	return nil
}

// clone returns a deep copy of sc.
func (sc SiteConfig) clone() SiteConfig {
	sc.Seeds = slices.Clone(sc.Seeds)
	sc.Headers = maps.Clone(sc.Headers)
	return sc
}

// mergeFrom fills the unset fields of sc from defaults. Headers are merged,
// with sc's values taking precedence.
func (sc *SiteConfig) mergeFrom(defaults SiteConfig) {
	if sc.BaseURL == "" {
		sc.BaseURL = defaults.BaseURL
	}
	if len(sc.Seeds) == 0 {
		sc.Seeds = slices.Clone(defaults.Seeds)
	}
	if sc.Cookie == "" {
		sc.Cookie = defaults.Cookie
	}
	if sc.MaxPages == 0 {
		sc.MaxPages = defaults.MaxPages
	}
	if defaults.RespectRobots {
		sc.RespectRobots = true
	}
	if len(defaults.Headers) > 0 {
		merged := maps.Clone(defaults.Headers)
		maps.Copy(merged, sc.Headers)
		sc.Headers = merged
	}
}

// File represents the structure of the .ctfindex configuration file.
type File struct {
	// Sites maps site names to their configurations.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a site, merged with defaults.
// Unknown names get the defaults alone.
func (cf *File) GetSiteConfig(name string) SiteConfig {
	result := cf.Sites[name].clone()
	result.mergeFrom(cf.Defaults)
	return result
}

// Lookup returns the merged configuration for name and whether the name is
// known. The built-in default site is always known, and a file entry with
// the same name overrides its fields.
func (cf *File) Lookup(name string) (SiteConfig, bool) {
	_, inFile := cf.Sites[name]
	switch {
	case inFile:
		sc := cf.GetSiteConfig(name)
		if name == DefaultSiteName {
			sc.mergeFrom(DefaultSite().SiteConfig)
		}
		return sc, true
	case name == DefaultSiteName:
		sc := DefaultSite().SiteConfig
		sc.mergeFrom(cf.Defaults)
		return sc, true
	default:
		return SiteConfig{}, false
	}
}

// SiteNames returns the names of the configured sites, sorted.
func (cf *File) SiteNames() []string {
	return slices.Sorted(maps.Keys(cf.Sites))
}
