package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"campusinfo/internal/frontier"
	"campusinfo/internal/hostman"
	"campusinfo/internal/logging"
	"campusinfo/internal/metrics"
	"campusinfo/internal/parser"
	"campusinfo/internal/storage"
)

// Stats summarises one crawl run.
type Stats struct {
	Visited    int       `json:"visited"`
	Stored     int       `json:"stored"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Disallowed int       `json:"disallowed"`
	Queued     int       `json:"queued"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s Stats) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

// Crawler walks one site depth-first and stores every page it reads. A Crawler
// is good for a single Run; build a new one per run so the visited set starts empty.
type Crawler struct {
	opts     Options
	store    storage.Store
	embedder Embedder
	client   *http.Client
	hosts    *hostman.Manager
	log      logging.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	stack   *frontier.Stack
	visited *frontier.Visited
}

func New(opts Options, store storage.Store, options ...Option) *Crawler {
	c := &Crawler{
		opts:    opts.withDefaults(),
		store:   store,
		sleep:   sleepCtx,
		stack:   frontier.NewStack(),
		visited: frontier.NewVisited(),
	}
	for _, o := range options {
		o(c)
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.opts.Timeout}
	}
	if c.hosts == nil {
		c.hosts = hostman.New(hostman.Config{
			UserAgent:       c.opts.UserAgent,
			RequestsPerHost: c.opts.RequestsPerHost,
			RespectRobots:   c.opts.RespectRobots,
			RobotsTimeout:   c.opts.RobotsTimeout,
			Client:          c.client,
			Logger:          c.log,
		})
	}
	return c
}

// Run crawls from the seed until the stack drains, MaxPages pages have been
// claimed, or ctx is cancelled. Page-level failures are logged and skipped.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	stats := Stats{StartedAt: time.Now()}
	log := c.log.WithFields(logrus.Fields{"seed": c.opts.SeedURL, "max_depth": c.opts.MaxDepth, "max_pages": c.opts.MaxPages})

	origin, err := parser.ParseOrigin(c.opts.AllowedOrigin)
	if err != nil {
		return stats, fmt.Errorf("allowed origin %q: %w", c.opts.AllowedOrigin, err)
	}
	if !origin.Contains(c.opts.SeedURL) {
		log.WithField("origin", origin.String()).Warn("seed outside allowed origin, nothing to crawl")
		stats.FinishedAt = time.Now()
		return stats, nil
	}

	seedURL, err := url.Parse(c.opts.SeedURL)
	if err != nil {
		return stats, fmt.Errorf("seed %q: %w", c.opts.SeedURL, err)
	}
	// Same normalisation as discovered links, so "https://host" and a later "/" share one visited entry.
	seed := parser.ResolveLink(seedURL, c.opts.SeedURL)
	if seed == "" {
		return stats, fmt.Errorf("seed %q is not an http(s) URL", c.opts.SeedURL)
	}

	log.Info("crawl started")
	fetcher := NewFetcher(c.client, c.opts.UserAgent)
	c.stack.Push(frontier.Item{URL: seed, Depth: 0})
	fetched := 0

	for {
		if err := ctx.Err(); err != nil {
			stats.FinishedAt = time.Now()
			log.WithField("visited", stats.Visited).Warn("crawl cancelled")
			return stats, err
		}
		it, ok := c.stack.Pop()
		if !ok {
			break
		}
		if c.visited.Has(it.URL) {
			continue
		}
		if !origin.Contains(it.URL) || it.Depth > c.opts.MaxDepth {
			stats.Skipped++
			continue
		}
		if c.opts.MaxPages > 0 && c.visited.Size() >= c.opts.MaxPages {
			log.WithField("visited", c.visited.Size()).Info("page limit reached")
			break
		}
		c.visited.Add(it.URL)
		stats.Visited++

		pageLog := c.log.WithFields(logrus.Fields{"url": it.URL, "depth": it.Depth})

		u, err := url.Parse(it.URL)
		if err != nil {
			stats.Failed++
			pageLog.WithError(err).Warn("unparseable url")
			continue
		}
		allowed, wait := c.hosts.Check(ctx, u)
		if !allowed {
			stats.Disallowed++
			pageLog.Debug("disallowed by robots.txt")
			continue
		}
		if fetched > 0 {
			if err := c.sleep(ctx, c.opts.Delay); err != nil {
				continue
			}
		}
		if err := wait(ctx); err != nil {
			continue
		}
		fetched++

		body, err := fetcher.Fetch(ctx, it.URL)
		if err != nil {
			stats.Failed++
			metrics.FetchFailures.Inc()
			var fe *FetchError
			if errors.As(err, &fe) && fe.StatusCode != 0 {
				pageLog = pageLog.WithField("status", fe.StatusCode)
			}
			pageLog.WithError(err).Warn("fetch failed")
			continue
		}

		if c.storePage(ctx, it.URL, body, pageLog) {
			stats.Stored++
		}

		if it.Depth+1 > c.opts.MaxDepth {
			continue
		}
		var next []string
		for _, link := range parser.DiscoverLinks(body, it.URL, origin) {
			if !c.visited.Has(link) {
				next = append(next, link)
			}
		}
		c.stack.PushChildren(next, it.Depth+1)
	}

	stats.Queued = c.stack.TotalPushed()
	stats.FinishedAt = time.Now()
	log.WithFields(logrus.Fields{
		"visited":    stats.Visited,
		"stored":     stats.Stored,
		"failed":     stats.Failed,
		"skipped":    stats.Skipped,
		"disallowed": stats.Disallowed,
		"queued":     stats.Queued,
		"duration":   stats.Duration().String(),
	}).Info("crawl finished")
	return stats, nil
}

func (c *Crawler) storePage(ctx context.Context, pageURL string, body []byte, log *logrus.Entry) bool {
	page := parser.Extract(body)
	if page.Title == "" {
		page.Title = pageURL
	}
	doc := &storage.Document{
		Title:      page.Title,
		Content:    page.Content,
		Category:   storage.CategoryAuto,
		URL:        storage.StringPtr(pageURL),
		SourceType: storage.SourceAutoCrawl,
		Status:     storage.StatusSuccess,
		WordCount:  storage.WordCount(page.Content),
	}

	if c.embedder != nil && page.Content != "" {
		vec, err := c.embedder.Embed(ctx, page.Content)
		if err != nil {
			log.WithError(err).Warn("embedding failed, storing without vector")
		} else {
			doc.Embedding = vec
		}
	}

	if err := c.store.Insert(ctx, doc); err != nil {
		log.WithError(err).Error("store page failed")
		return false
	}
	metrics.DocumentsStored.WithLabelValues(string(storage.SourceAutoCrawl)).Inc()
	log.WithField("words", *doc.WordCount).Debug("page stored")
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
