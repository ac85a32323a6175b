package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	"github.com/dallisoft/ingest-backend/pkg/queue"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

// fakeQueue serves a fixed list of messages and records settlements.
type fakeQueue struct {
	mu       sync.Mutex
	messages []*queue.Message
	acked    []string
	nacked   map[string]bool // messageID -> permanent
}

func newFakeQueue(messages ...*queue.Message) *fakeQueue {
	return &fakeQueue{messages: messages, nacked: map[string]bool{}}
}

func (f *fakeQueue) ClaimNext(ctx context.Context) (*queue.Message, error) {
	f.mu.Lock()
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	// Drained: block until the worker shuts down, like a quiet stream.
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeQueue) Ack(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageID)
	return nil
}

func (f *fakeQueue) Nack(ctx context.Context, messageID string, permanent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked[messageID] = permanent
	return nil
}

// fakeRunner fails the task UIDs it is told to and records concurrency.
type fakeRunner struct {
	mu         sync.Mutex
	running    int
	maxRunning int
	processed  []types.TaskUIDType
	errFor     map[types.TaskUIDType]error
	block      time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, task types.Task) error {
	f.mu.Lock()
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()

	if f.block > 0 {
		time.Sleep(f.block)
	}

	f.mu.Lock()
	f.running--
	f.processed = append(f.processed, task.UID)
	err := f.errFor[task.UID]
	f.mu.Unlock()
	return err
}

func newMessage() *queue.Message {
	taskUID := uuid.Must(uuid.NewV4())
	return &queue.Message{
		ID:   taskUID.String(),
		Task: types.Task{UID: taskUID},
	}
}

// runUntilSettled runs the worker until fn reports all settlements arrived.
func runUntilSettled(t *testing.T, w *Worker, settled func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for !settled() {
		select {
		case <-deadline:
			t.Fatal("worker did not settle all messages in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestWorkerSettlement(t *testing.T) {
	c := qt.New(t)

	success := newMessage()
	transient := newMessage()
	permanent := newMessage()

	q := newFakeQueue(success, transient, permanent)
	runner := &fakeRunner{errFor: map[types.TaskUIDType]error{
		transient.Task.UID: fmt.Errorf("%w: flaky", errorsx.ErrEmbeddingService),
		permanent.Task.UID: fmt.Errorf("%w: bad file", errorsx.ErrUnsupportedFormat),
	}}

	w := NewWorker(q, runner, 5, zap.NewNop())
	runUntilSettled(t, w, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.acked)+len(q.nacked) == 3
	})

	c.Assert(q.acked, qt.DeepEquals, []string{success.ID})
	c.Assert(q.nacked[transient.ID], qt.IsFalse)
	c.Assert(q.nacked[permanent.ID], qt.IsTrue)
}

func TestWorkerConcurrencyCeiling(t *testing.T) {
	c := qt.New(t)

	messages := make([]*queue.Message, 8)
	for i := range messages {
		messages[i] = newMessage()
	}
	q := newFakeQueue(messages...)
	runner := &fakeRunner{block: 50 * time.Millisecond}

	w := NewWorker(q, runner, 2, zap.NewNop())
	runUntilSettled(t, w, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.acked) == len(messages)
	})

	c.Assert(runner.maxRunning <= 2, qt.IsTrue)
	c.Assert(runner.processed, qt.HasLen, len(messages))
}

func TestWorkerDrainsInFlightTasks(t *testing.T) {
	c := qt.New(t)

	msg := newMessage()
	q := newFakeQueue(msg)
	runner := &fakeRunner{block: 100 * time.Millisecond}
	w := NewWorker(q, runner, 5, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Cancel while the task is still running; Run must wait for it.
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	c.Assert(runner.processed, qt.DeepEquals, []types.TaskUIDType{msg.Task.UID})
}
