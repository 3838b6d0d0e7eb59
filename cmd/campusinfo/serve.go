package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"campusinfo/internal/chat"
	"campusinfo/internal/config"
	"campusinfo/internal/crawler"
	"campusinfo/internal/documents"
	"campusinfo/internal/scheduler"
	"campusinfo/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the crawl trigger and schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		switch a.cfg.GinMode {
		case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
			gin.SetMode(a.cfg.GinMode)
		default:
			gin.SetMode(gin.ReleaseMode)
		}

		trigger := scheduler.NewTrigger(ctx, scheduler.CrawlerRun(a.cfg.Crawl, a.store, a.crawlerOptions()...), a.log)

		interval := strings.ToLower(strings.TrimSpace(a.cfg.Crawl.Interval))
		if interval != "" && interval != "off" {
			c, err := scheduler.NewCron(trigger, interval, a.log)
			if err != nil {
				return err
			}
			c.Start()
			defer func() {
				select {
				case <-c.Stop().Done():
				case <-time.After(5 * time.Second):
				}
			}()
		}
		if a.cfg.Crawl.OnStart {
			if err := trigger.Start(scheduler.Full); err != nil {
				a.log.WithError(err).Warn("initial crawl not started")
			}
		}

		router := server.NewRouter(server.Deps{
			Trigger:   trigger,
			Chat:      a.chatService(),
			Documents: documents.New(a.store, a.blobs, a.documentEmbedder(), a.log),
			Logger:    a.log,
			Service:   serviceName,
		})
		err = server.Run(ctx, server.DefaultConfig(a.cfg.Port), router, a.log)

		stop()
		trigger.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP listen port")
	serveCmd.Flags().String("interval", "", "crawl schedule: 3h, 6h, 24h or off")
	serveCmd.Flags().Bool("crawl-on-start", false, "start a full crawl when the server boots")
	mustBind(v.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port")))
	mustBind(v.BindPFlag(config.KeyCrawlInterval, serveCmd.Flags().Lookup("interval")))
	mustBind(v.BindPFlag(config.KeyCrawlOnStart, serveCmd.Flags().Lookup("crawl-on-start")))
	rootCmd.AddCommand(serveCmd)
}

func (a *app) crawlerOptions() []crawler.Option {
	opts := []crawler.Option{crawler.WithLogger(a.log)}
	if a.cfg.Crawl.Embed && a.llm != nil {
		opts = append(opts, crawler.WithEmbedder(a.llm))
	}
	return opts
}

func (a *app) chatService() *chat.Service {
	var (
		model    chat.Model
		embedder chat.Embedder
	)
	if a.llm != nil {
		model = a.llm
		embedder = a.llm
	}
	return chat.NewService(
		chat.NewRetriever(a.store, model, embedder, a.cfg.Chat, a.log),
		chat.NewComposer(model, a.cfg.LLM.MaxTokens, a.log),
		a.log,
	)
}

func (a *app) documentEmbedder() documents.Embedder {
	if a.llm == nil || !a.cfg.Crawl.Embed {
		return nil
	}
	return a.llm
}
