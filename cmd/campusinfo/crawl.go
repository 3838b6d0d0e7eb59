package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"campusinfo/internal/config"
	"campusinfo/internal/scheduler"
)

var crawlDemo bool

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the campus site once and store every page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		kind := scheduler.Full
		if crawlDemo {
			kind = scheduler.Demo
		}
		stats, err := scheduler.CrawlerRun(a.cfg.Crawl, a.store, a.crawlerOptions()...)(ctx, kind)
		if err != nil {
			return err
		}
		a.log.WithField("kind", kind).WithField("stored", stats.Stored).Info("crawl complete")
		return nil
	},
}

func init() {
	crawlCmd.Flags().BoolVar(&crawlDemo, "demo", false, "stop after the demo page budget")
	crawlCmd.Flags().String("seed", "", "seed URL")
	crawlCmd.Flags().Int("max-depth", 0, "maximum link depth from the seed")
	crawlCmd.Flags().Int("max-pages", 0, "stop after N pages (0 = unbounded)")
	crawlCmd.Flags().Duration("delay", 0, "pause between fetches")
	mustBind(v.BindPFlag(config.KeySeedURL, crawlCmd.Flags().Lookup("seed")))
	mustBind(v.BindPFlag(config.KeyCrawlMaxDepth, crawlCmd.Flags().Lookup("max-depth")))
	mustBind(v.BindPFlag(config.KeyCrawlMaxPages, crawlCmd.Flags().Lookup("max-pages")))
	mustBind(v.BindPFlag(config.KeyCrawlDelay, crawlCmd.Flags().Lookup("delay")))
	rootCmd.AddCommand(crawlCmd)
}
