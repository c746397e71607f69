package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/AppachchiCodes/The-Human-Monument/internal/blobstore"
	"github.com/AppachchiCodes/The-Human-Monument/internal/config"
	"github.com/AppachchiCodes/The-Human-Monument/internal/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	blobs, err := blobstore.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("init blob store")
	}
	if err := blobs.EnsureBucket(context.Background()); err != nil {
		log.WithError(err).Fatal("ensure bucket")
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{Concurrency: 5},
	)
	processor := worker.NewProcessor(blobs, log)

	log.WithField("redis", cfg.RedisAddr).Info("cleanup worker starting")
	if err := srv.Run(processor.Handler()); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
}
