package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"campusinfo/internal/logging"
)

var cronSpecs = map[string]string{
	"3h":    "0 */3 * * *",
	"3jam":  "0 */3 * * *",
	"6h":    "0 */6 * * *",
	"6jam":  "0 */6 * * *",
	"24h":   "0 0 * * *",
	"24jam": "0 0 * * *",
}

// CronSpec maps an interval selector (3h, 6h, 24h or 3jam, 6jam, 24jam) to a
// five-field cron expression.
func CronSpec(interval string) (string, error) {
	spec, ok := cronSpecs[strings.ToLower(strings.TrimSpace(interval))]
	if !ok {
		return "", fmt.Errorf("unsupported crawl interval %q (want 3h, 6h or 24h)", interval)
	}
	return spec, nil
}

// Cron starts a full crawl through the Trigger on every tick.
type Cron struct {
	cron    *cron.Cron
	trigger *Trigger
	spec    string
	log     logging.Logger
}

func NewCron(trigger *Trigger, interval string, log logging.Logger) (*Cron, error) {
	spec, err := CronSpec(interval)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	c := &Cron{cron: cron.New(), trigger: trigger, spec: spec, log: log}
	if _, err := c.cron.AddFunc(spec, c.tick); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return c, nil
}

func (c *Cron) Spec() string { return c.spec }

func (c *Cron) Start() {
	c.cron.Start()
	c.log.WithField("spec", c.spec).Info("crawl schedule started")
}

// Stop halts the schedule. The returned context is done once a tick in progress returns.
func (c *Cron) Stop() context.Context {
	return c.cron.Stop()
}

func (c *Cron) tick() {
	err := c.trigger.Start(Full)
	if errors.Is(err, ErrAlreadyRunning) {
		c.log.Info("scheduled crawl skipped, previous run still active")
		return
	}
	if err != nil {
		c.log.WithError(err).Error("scheduled crawl failed to start")
	}
}
