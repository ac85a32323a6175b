// Package queue implements the durable task queue on top of a Redis Stream
// with consumer-group semantics: at-least-once delivery, manual ack, and
// visibility-timeout redelivery of tasks whose worker crashed mid-flight.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

const payloadField = "payload"

// Message is a claimed task together with its stream delivery id. The id is
// what Ack/Nack operate on; the task stays owned by this worker until then.
type Message struct {
	ID   string
	Task types.Task
}

// Config carries the stream coordinates and delivery timing.
type Config struct {
	Stream        string
	ConsumerGroup string
	Consumer      string
	// VisibilityTimeout is the idle period after which another worker may
	// reclaim an unacknowledged task.
	VisibilityTimeout time.Duration
	// BlockTimeout bounds a single blocking read so the caller can observe
	// context cancellation between reads.
	BlockTimeout time.Duration
}

// Queue is the Redis Streams task queue.
type Queue struct {
	rdb *redis.Client
	cfg Config
	log *zap.Logger
}

// New creates the queue and its consumer group. Creating a group that
// already exists is not an error.
func New(ctx context.Context, rdb *redis.Client, cfg Config, log *zap.Logger) (*Queue, error) {
	if err := rdb.XGroupCreateMkStream(ctx, cfg.Stream, cfg.ConsumerGroup, "0").Err(); err != nil {
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("creating consumer group: %w", err)
		}
	}
	return &Queue{rdb: rdb, cfg: cfg, log: log}, nil
}

// Publish enqueues a task as an opaque serialized message.
func (q *Queue) Publish(ctx context.Context, task types.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{payloadField: payload},
	}).Err()
}

// ClaimNext blocks cooperatively until a task is available or ctx is
// cancelled. Tasks whose previous consumer has been idle longer than the
// visibility timeout are reclaimed before fresh entries are read, so a
// crashed worker's task becomes eligible for redelivery here.
func (q *Queue) ClaimNext(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if msg, ok, err := q.reclaimStale(ctx); err != nil {
			return nil, err
		} else if ok {
			return msg, nil
		}

		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.ConsumerGroup,
			Consumer: q.cfg.Consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    1,
			Block:    q.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // block timed out, loop to re-check stale entries
			}
			return nil, fmt.Errorf("reading task stream: %w", err)
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				msg, err := q.decode(entry)
				if err != nil {
					// Poison message: drop it so it does not wedge the group.
					q.log.Error("Dropping undecodable task message",
						zap.String("messageID", entry.ID), zap.Error(err))
					_ = q.Ack(ctx, entry.ID)
					continue
				}
				return msg, nil
			}
		}
	}
}

// reclaimStale transfers ownership of one pending entry whose consumer has
// exceeded the visibility timeout.
func (q *Queue) reclaimStale(ctx context.Context) (*Message, bool, error) {
	entries, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.ConsumerGroup,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.VisibilityTimeout,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("reclaiming stale tasks: %w", err)
	}
	for _, entry := range entries {
		msg, err := q.decode(entry)
		if err != nil {
			q.log.Error("Dropping undecodable reclaimed message",
				zap.String("messageID", entry.ID), zap.Error(err))
			_ = q.Ack(ctx, entry.ID)
			continue
		}
		q.log.Info("Reclaimed task past visibility timeout",
			zap.String("messageID", msg.ID),
			zap.String("taskUID", msg.Task.UID.String()))
		return msg, true, nil
	}
	return nil, false, nil
}

// Ack acknowledges a delivered task so it is never redelivered. Idempotent.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	if err := q.rdb.XAck(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("acking task: %w", err)
	}
	return q.rdb.XDel(ctx, q.cfg.Stream, messageID).Err()
}

// Nack reports a failed task. Transient failures leave the entry pending so
// that it is redelivered once the visibility timeout elapses; permanent
// failures acknowledge the entry so it reaches a terminal failed state
// without further deliveries. Idempotent either way.
func (q *Queue) Nack(ctx context.Context, messageID string, permanent bool) error {
	if !permanent {
		return nil
	}
	return q.Ack(ctx, messageID)
}

func (q *Queue) decode(entry redis.XMessage) (*Message, error) {
	raw, ok := entry.Values[payloadField]
	if !ok {
		return nil, fmt.Errorf("message %s has no %s field", entry.ID, payloadField)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("message %s payload is %T, want string", entry.ID, raw)
	}
	var task types.Task
	if err := json.Unmarshal([]byte(s), &task); err != nil {
		return nil, fmt.Errorf("decoding task payload: %w", err)
	}
	return &Message{ID: entry.ID, Task: task}, nil
}
