// Package worker implements the task scheduler: it claims tasks from the
// queue, dispatches them to the pipeline under the task concurrency
// ceiling, and settles each delivery according to the failure class.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	"github.com/dallisoft/ingest-backend/pkg/queue"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// TaskRunner is the pipeline surface the scheduler drives. Narrowed to one
// method so tests can substitute the whole pipeline.
type TaskRunner interface {
	Run(ctx context.Context, task types.Task) error
}

// TaskQueue is the queue surface the scheduler consumes.
type TaskQueue interface {
	ClaimNext(ctx context.Context) (*queue.Message, error)
	Ack(ctx context.Context, messageID string) error
	Nack(ctx context.Context, messageID string, permanent bool) error
}

// Worker is the claim-and-dispatch loop.
type Worker struct {
	queue    TaskQueue
	pipeline TaskRunner
	// taskSem is the number of tasks processed simultaneously.
	taskSem *semaphore.Weighted
	log     *zap.Logger

	wg sync.WaitGroup
}

// NewWorker creates a scheduler with the given task concurrency ceiling.
func NewWorker(q TaskQueue, p TaskRunner, taskConcurrency int64, log *zap.Logger) *Worker {
	if taskConcurrency <= 0 {
		taskConcurrency = 5
	}
	return &Worker{
		queue:    q,
		pipeline: p,
		taskSem:  semaphore.NewWeighted(taskConcurrency),
		log:      log,
	}
}

// Run claims and dispatches tasks until ctx is cancelled, then drains:
// tasks already dispatched run to completion before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	defer w.wg.Wait()

	for {
		if err := w.taskSem.Acquire(ctx, 1); err != nil {
			return nil
		}

		msg, err := w.queue.ClaimNext(ctx)
		if err != nil {
			w.taskSem.Release(1)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.log.Error("Claiming next task failed", zap.Error(err))
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.taskSem.Release(1)
			w.handle(ctx, msg)
		}()
	}
}

// handle runs one delivery and settles it. A successful task is
// acknowledged; a failed one is nacked with its failure class, which
// either leaves it for visibility-timeout redelivery or retires it.
func (w *Worker) handle(ctx context.Context, msg *queue.Message) {
	log := w.log.With(
		zap.String("messageID", msg.ID),
		zap.String("taskUID", msg.Task.UID.String()))
	log.Info("Task claimed")

	// Settle with a fresh context so shutdown cannot drop the ack or nack
	// of a task that already ran.
	settleCtx := context.WithoutCancel(ctx)

	err := w.pipeline.Run(ctx, msg.Task)
	if err == nil {
		if ackErr := w.queue.Ack(settleCtx, msg.ID); ackErr != nil {
			log.Error("Failed to ack completed task", zap.Error(ackErr))
		}
		return
	}

	// A delivery interrupted by shutdown is not a task failure: leave it
	// pending so another worker picks it up after the visibility timeout.
	if errors.Is(err, context.Canceled) {
		log.Info("Task interrupted by shutdown, leaving for redelivery")
		return
	}

	permanent := errorsx.IsPermanent(err)
	log.Warn("Task failed", zap.Bool("permanent", permanent), zap.Error(err))
	if nackErr := w.queue.Nack(settleCtx, msg.ID, permanent); nackErr != nil {
		log.Error("Failed to nack task", zap.Error(nackErr))
	}
}
