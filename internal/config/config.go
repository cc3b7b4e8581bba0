package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "ctfindex"

	// DefaultTimeout is the per-request timeout. Blogs are static sites,
	// so this only needs to cover slow hosts and proxies.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of sites crawled at the same time.
	DefaultBatchSize = 4

	// DefaultMaxPages of 0 means a traversal runs until its frontier is empty.
	DefaultMaxPages = 0

	// DefaultUserAgent identifies ctfindex in HTTP requests.
	DefaultUserAgent = "ctfindex/1.0 (+https://github.com/nao1215/ctfindex)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultOutputFile is where the spreadsheet is written when no output
	// file is given.
	DefaultOutputFile = "ctf_collection.xlsx"
)

// Report formats accepted by --format.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatXLSX     = "xlsx"
)

// Formats lists the supported report formats.
var Formats = []string{FormatText, FormatJSON, FormatMarkdown, FormatXLSX}

// Config holds all configuration options for a crawl.
// This struct is populated from CLI flags and passed through the
// application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. Site-specific settings live in SiteConfig.
type Config struct {
	// Sites are the site names (keys of the config file) to crawl.
	// Empty means every configured site, or the built-in default site.
	Sites []string

	// BaseURL and Seeds describe an ad hoc site given on the command line.
	// When BaseURL is set, Sites and the config file sites are ignored.
	BaseURL string
	Seeds   []string

	// Timeout is the timeout of each HTTP request.
	Timeout time.Duration

	// MaxPages caps the pages fetched per site. 0 keeps the site's own
	// setting, which defaults to no limit.
	MaxPages int

	// RespectRobots makes every site honour robots.txt.
	RespectRobots bool

	// BatchSize is the number of sites crawled concurrently.
	BatchSize int

	// ProxyAddress is a SOCKS5 proxy in "host:port" format. Empty means direct.
	ProxyAddress string

	// UseEmbeddedTor starts a private Tor daemon and crawls through it.
	UseEmbeddedTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon. Only used when UseEmbeddedTor is true.
	TorStartupTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .ctfindex is searched in the current directory, then in
	// the user's home directory, then config.yaml in the XDG config directory.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file, nil when there is none.
	SiteConfigs *File

	// Format is the report format, one of Formats.
	Format string

	// ReportFile is the output file. Empty writes text, JSON and Markdown to
	// stdout and the spreadsheet to DefaultOutputFile.
	ReportFile string

	// DBDir is the directory of the run history database.
	// Defaults to the XDG data directory (~/.local/share/ctfindex on Linux).
	DBDir string

	// SaveToDB indicates whether runs are stored for later comparison.
	SaveToDB bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeout, batch size).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		MaxPages:          DefaultMaxPages,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Format:            FormatXLSX,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for ctfindex.
// On Linux: ~/.local/share/ctfindex
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for ctfindex.
// On Linux: ~/.config/ctfindex
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// OutputPath returns the file the report is written to, or "" for stdout.
func (c *Config) OutputPath() string {
	if c.ReportFile == "" && c.Format == FormatXLSX {
		return DefaultOutputFile
	}
	return c.ReportFile
}

// Validate checks if the configuration is valid.
// It returns the first problem found; sites are validated by ResolveSites.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast, before any request is sent.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}
	if c.ProxyAddress != "" && c.UseEmbeddedTor {
		return ErrConflictingProxy
	}
	if len(c.Seeds) > 0 && c.BaseURL == "" {
		return ErrSeedsWithoutBaseURL
	}
	return nil
}

// ResolveSites returns the sites to crawl, in a stable order:
//  1. The ad hoc site from BaseURL and Seeds, if BaseURL is set
//  2. The named Sites, looked up in the configuration file
//  3. Every site of the configuration file, sorted by name
//  4. The built-in default site
//
// Defaults from the configuration file apply to every site, and the
// MaxPages and RespectRobots flags override per-site settings.
func (c *Config) ResolveSites() ([]Site, error) {
	file := c.SiteConfigs
	if file == nil {
		file = &File{}
	}

	var sites []Site
	switch {
	case c.BaseURL != "":
		sc := file.Defaults.clone()
		sc.BaseURL = c.BaseURL
		sc.Seeds = slices.Clone(c.Seeds)
		if len(sc.Seeds) == 0 {
			sc.Seeds = []string{c.BaseURL}
		}
		sites = append(sites, Site{Name: siteNameFromURL(c.BaseURL), SiteConfig: sc})
	case len(c.Sites) > 0:
		for _, name := range c.Sites {
			sc, ok := file.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSite, name)
			}
			sites = append(sites, Site{Name: name, SiteConfig: sc})
		}
	case len(file.Sites) > 0:
		for _, name := range file.SiteNames() {
			sc, _ := file.Lookup(name)
			sites = append(sites, Site{Name: name, SiteConfig: sc})
		}
	default:
		sc := DefaultSite().SiteConfig
		sc.mergeFrom(file.Defaults)
		sites = append(sites, Site{Name: DefaultSiteName, SiteConfig: sc})
	}

	for i := range sites {
		if c.MaxPages > 0 {
			sites[i].MaxPages = c.MaxPages
		}
		if c.RespectRobots {
			sites[i].RespectRobots = true
		}
		if err := sites[i].Validate(); err != nil {
			return nil, fmt.Errorf("site %s: %w", sites[i].Name, err)
		}
	}
	return sites, nil
}

// siteNameFromURL names an ad hoc site after its host.
func siteNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
