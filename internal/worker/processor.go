package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/AppachchiCodes/The-Human-Monument/internal/queue"
)

// BlobDeleter is the slice of the blob store the worker needs.
type BlobDeleter interface {
	Delete(ctx context.Context, objectKey string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	blobs BlobDeleter
	log   *logrus.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(blobs BlobDeleter, log *logrus.Logger) *Processor {
	return &Processor{blobs: blobs, log: log}
}

// Handler registers the cleanup job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.CleanupBlobTask, p.handleCleanup)
	return mux
}

func (p *Processor) handleCleanup(ctx context.Context, task *asynq.Task) error {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := p.blobs.Delete(ctx, payload.ObjectKey); err != nil {
		p.log.WithFields(logrus.Fields{
			"object_key": payload.ObjectKey,
			"error":      err,
		}).Warn("blob cleanup failed, will retry")
		return err
	}
	p.log.WithField("object_key", payload.ObjectKey).Info("orphaned blob removed")
	return nil
}
