package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// CleanupBlobTask is scheduled when a compensating blob delete fails
	// during admission, so an orphaned payload is eventually removed.
	CleanupBlobTask = "blob:cleanup"
)

// CleanupPayload identifies the orphaned object to delete.
type CleanupPayload struct {
	ObjectKey string `json:"object_key"`
}

// Cleaner adapts an asynq client to the admission layer's CleanupEnqueuer.
type Cleaner struct {
	client *asynq.Client
}

// NewCleaner wraps an asynq client.
func NewCleaner(client *asynq.Client) *Cleaner {
	return &Cleaner{client: client}
}

// EnqueueCleanup schedules deletion of an orphaned payload blob.
func (c *Cleaner) EnqueueCleanup(ctx context.Context, objectKey string) error {
	return EnqueueCleanup(ctx, c.client, CleanupPayload{ObjectKey: objectKey})
}

// EnqueueCleanup enqueues a blob cleanup job with a generous retry budget;
// the object store being briefly unreachable is the main reason the inline
// delete failed in the first place.
func EnqueueCleanup(ctx context.Context, client *asynq.Client, payload CleanupPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(CleanupBlobTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(10)); err != nil {
		return fmt.Errorf("enqueue cleanup task: %w", err)
	}
	return nil
}
