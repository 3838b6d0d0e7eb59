package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campusinfo/internal/config"
	"campusinfo/internal/crawler"
	"campusinfo/internal/logging"
	"campusinfo/internal/metrics"
	"campusinfo/internal/storage"
)

var ErrAlreadyRunning = errors.New("crawling already in progress")

// RunFunc performs one crawl of the given kind.
type RunFunc func(ctx context.Context, kind Kind) (crawler.Stats, error)

// CrawlerRun returns a RunFunc that builds a fresh Crawler for every run. Demo
// runs are capped at cfg.DemoPages; full runs use cfg.MaxPages.
func CrawlerRun(cfg config.Crawl, store storage.Store, opts ...crawler.Option) RunFunc {
	return func(ctx context.Context, kind Kind) (crawler.Stats, error) {
		maxPages := cfg.MaxPages
		if kind == Demo {
			maxPages = cfg.DemoPages
		}
		return crawler.New(crawler.OptionsFromConfig(cfg, maxPages), store, opts...).Run(ctx)
	}
}

// Trigger starts crawl runs in the background, one at a time.
type Trigger struct {
	base  context.Context
	run   RunFunc
	state *RunState
	log   logging.Logger
	wg    sync.WaitGroup
}

// NewTrigger returns a Trigger whose runs inherit base. Cancelling base stops
// the active run.
func NewTrigger(base context.Context, run RunFunc, log logging.Logger) *Trigger {
	if log == nil {
		log = logging.Discard()
	}
	return &Trigger{base: base, run: run, state: &RunState{}, log: log}
}

func (t *Trigger) State() *RunState { return t.state }

// Start launches a run of kind and returns at once, or returns
// ErrAlreadyRunning when a run is active.
func (t *Trigger) Start(kind Kind) error {
	if !t.state.TryStart(kind) {
		return ErrAlreadyRunning
	}
	metrics.CrawlRunning.Set(1)
	t.wg.Add(1)
	go t.execute(kind)
	return nil
}

func (t *Trigger) execute(kind Kind) {
	defer t.wg.Done()
	log := t.log.WithField("kind", kind)
	info := RunInfo{Kind: kind, StartedAt: time.Now()}
	log.Info("crawl run started")

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("crawl run panicked")
			info.Error = "panic"
			t.finish(info, "panic")
		}
	}()

	stats, err := t.run(t.base, kind)
	info.Stats = stats
	info.FinishedAt = time.Now()
	outcome := "ok"
	if err != nil {
		info.Error = err.Error()
		outcome = "error"
		log.WithError(err).Error("crawl run failed")
	} else {
		log.WithFields(logrus.Fields{"stored": stats.Stored, "visited": stats.Visited}).Info("crawl run finished")
	}
	t.finish(info, outcome)
}

func (t *Trigger) finish(info RunInfo, outcome string) {
	if info.FinishedAt.IsZero() {
		info.FinishedAt = time.Now()
	}
	metrics.CrawlRuns.WithLabelValues(string(info.Kind), outcome).Inc()
	metrics.CrawlRunning.Set(0)
	t.state.Done(info)
}

// Wait blocks until every started run has finished.
func (t *Trigger) Wait() { t.wg.Wait() }
