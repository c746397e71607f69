package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/AppachchiCodes/The-Human-Monument/internal/admission"
	"github.com/AppachchiCodes/The-Human-Monument/internal/api"
	"github.com/AppachchiCodes/The-Human-Monument/internal/blobstore"
	"github.com/AppachchiCodes/The-Human-Monument/internal/config"
	"github.com/AppachchiCodes/The-Human-Monument/internal/database"
	"github.com/AppachchiCodes/The-Human-Monument/internal/queue"
	"github.com/AppachchiCodes/The-Human-Monument/internal/ratelimit"
	"github.com/AppachchiCodes/The-Human-Monument/internal/repository"
	"github.com/AppachchiCodes/The-Human-Monument/internal/storage"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store       storage.Store
		blobs       *blobstore.Store
		media       api.MediaSigner
		cleanup     admission.CleanupEnqueuer
		submitLimit *ratelimit.Limiter
		readLimit   *ratelimit.Limiter
	)

	if cfg.RequireDatabase() != nil {
		// Database-less dev mode: everything in memory, text tiles only.
		log.Warn("MONUMENT_DATABASE_URL not set, running with the in-memory store")
		store = storage.NewMemoryStore()
	} else {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("connect database")
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.WithError(err).Fatal("ensure schema")
		}
		store = repository.New(pool)

		blobs, err = blobstore.New(cfg)
		if err != nil {
			log.WithError(err).Fatal("init blob store")
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.WithError(err).Fatal("ensure bucket")
		}
		media = blobs

		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer asynqClient.Close()
		cleanup = queue.NewCleaner(asynqClient)

		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		submitLimit = ratelimit.New(rdb, "ratelimit:submit", cfg.SubmitWindow, cfg.SubmitMax)
		readLimit = ratelimit.New(rdb, "ratelimit:read", time.Minute, cfg.ReadMax)
	}

	var blobStore admission.BlobStore
	if blobs != nil {
		blobStore = blobs
	} else {
		blobStore = noBlobs{}
	}
	svc := admission.New(store, blobStore, cleanup, cfg, log)
	srv := api.New(cfg, store, svc, media, submitLimit, readLimit, log)

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// noBlobs rejects blob payloads in database-less dev mode.
type noBlobs struct{}

func (noBlobs) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("blob storage not configured")
}

func (noBlobs) Delete(context.Context, string) error { return nil }
