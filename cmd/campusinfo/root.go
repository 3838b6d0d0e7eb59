package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"campusinfo/internal/blob"
	"campusinfo/internal/config"
	"campusinfo/internal/llm"
	"campusinfo/internal/logging"
	"campusinfo/internal/storage"
)

const serviceName = "campusinfo"

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Campus information crawler and question answering service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "document store driver (mongo, postgres, memory)")
	mustBind(v.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level")))
	mustBind(v.BindPFlag(config.KeyStoreDriver, rootCmd.PersistentFlags().Lookup("store")))
}

// app holds what every subcommand needs.
type app struct {
	cfg   config.Config
	log   *logrus.Logger
	store storage.Store
	llm   *llm.Client
	blobs blob.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.NewWithService(serviceName, cfg.LogLevel)

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: store}

	client, err := llm.New(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		log.Warn("OPENAI_API_KEY not set, chat answers and embeddings are disabled")
	case err != nil:
		return nil, err
	default:
		a.llm = client
	}

	if cfg.Blob.Enabled() {
		b, err := blob.NewMinio(ctx, cfg.Blob)
		if err != nil {
			log.WithError(err).Warn("blob store unavailable, uploads are stored without files")
		} else {
			a.blobs = b
		}
	}
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		a.log.WithError(err).Warn("closing store")
	}
}

func mustBind(err error) {
	if err != nil {
		panic(err)
	}
}
