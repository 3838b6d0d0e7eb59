package crawler

import (
	"context"
	"net/http"
	"time"

	"campusinfo/internal/config"
	"campusinfo/internal/hostman"
	"campusinfo/internal/logging"
)

// Options is everything one crawl run needs to know.
type Options struct {
	SeedURL string
	// AllowedOrigin confines the crawl. Empty means the seed's own origin.
	AllowedOrigin   string
	MaxDepth        int
	MaxPages        int // 0 = unbounded
	Delay           time.Duration
	Timeout         time.Duration
	UserAgent       string
	RequestsPerHost float64
	RespectRobots   bool
	RobotsTimeout   time.Duration
}

// OptionsFromConfig maps the crawl settings onto Options. maxPages overrides the
// configured cap so that demo runs can reuse everything else.
func OptionsFromConfig(c config.Crawl, maxPages int) Options {
	return Options{
		SeedURL:         c.SeedURL,
		AllowedOrigin:   c.AllowedOrigin,
		MaxDepth:        c.MaxDepth,
		MaxPages:        maxPages,
		Delay:           c.Delay,
		Timeout:         c.FetchTimeout,
		UserAgent:       c.UserAgent,
		RequestsPerHost: c.MaxPerHost,
		RespectRobots:   c.RespectRobots,
		RobotsTimeout:   5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "CampusInfoBot/1.0"
	}
	if o.RobotsTimeout <= 0 {
		o.RobotsTimeout = 5 * time.Second
	}
	if o.AllowedOrigin == "" {
		o.AllowedOrigin = o.SeedURL
	}
	return o
}

// Embedder turns page text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Option func(*Crawler)

func WithEmbedder(e Embedder) Option {
	return func(c *Crawler) { c.embedder = e }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Crawler) { c.log = l }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) { c.client = hc }
}

func WithHostManager(m *hostman.Manager) Option {
	return func(c *Crawler) { c.hosts = m }
}

// WithSleep replaces the politeness wait. Tests use it to avoid real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Crawler) { c.sleep = fn }
}
