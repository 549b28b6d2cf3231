package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue interface {
	Enqueue(ctx context.Context, lane string, payload string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (Claim, error)
	Ack(ctx context.Context, payload string) error
	RequeueStale(ctx context.Context, maxPerLane int64) (int64, error)
}

type Lane struct {
	Name          string
	QueueKey      string
	ProcessingKey string
}

// Claim is one payload moved into a lane's processing list.
type Claim struct {
	Lane    string
	Payload string
}

var ErrUnknownLane = errors.New("unknown lane")

// NamedLanes derives lane keys from a base queue key and a base processing key.
func NamedLanes(queueKey, processingKey string, names ...string) []Lane {
	lanes := make([]Lane, 0, len(names))
	for _, n := range names {
		lanes = append(lanes, Lane{
			Name:          n,
			QueueKey:      queueKey + ":" + n,
			ProcessingKey: processingKey + ":" + n,
		})
	}
	return lanes
}

// redisLaneQueue is a reliable queue over Redis lists with ordered lanes.
// Claim: BRPOPLPUSH lane.queue -> lane.processing, first lane first.
// Ack:   LREM from the processing list recorded in processingMapKey.
type redisLaneQueue struct {
	rdb              *redis.Client
	processingMapKey string
	lanes            []Lane
	byName           map[string]Lane
}

// NewRedisLaneQueue builds a queue whose claim order follows the lanes order.
func NewRedisLaneQueue(rdb *redis.Client, processingMapKey string, lanes ...Lane) Queue {
	byName := make(map[string]Lane, len(lanes))
	for _, ln := range lanes {
		byName[ln.Name] = ln
	}
	return &redisLaneQueue{
		rdb:              rdb,
		processingMapKey: processingMapKey,
		lanes:            lanes,
		byName:           byName,
	}
}

func (q *redisLaneQueue) Enqueue(ctx context.Context, lane string, payload string) error {
	ln, ok := q.byName[lane]
	if !ok {
		return ErrUnknownLane
	}
	return q.rdb.LPush(ctx, ln.QueueKey, payload).Err()
}

// blockSlot is the shortest wait Redis accepts for a blocking pop; shorter
// waits are rounded up by the client.
const blockSlot = time.Second

// pollInterval paces sweeps when less than one blockSlot remains.
const pollInterval = 50 * time.Millisecond

// ClaimBlocking sweeps the lanes in order without blocking and returns the
// first payload found. When every lane is empty it blocks on the first lane
// for one slot, or polls when the deadline is closer than a slot, then sweeps
// again. timeout <= 0 waits until ctx ends.
func (q *redisLaneQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (Claim, error) {
	if len(q.lanes) == 0 {
		return Claim{}, ErrUnknownLane
	}
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return Claim{}, err
		}

		c, ok, err := q.sweep(ctx)
		if err != nil {
			return Claim{}, err
		}
		if ok {
			return c, nil
		}

		remain := blockSlot
		if !forever {
			remain = time.Until(deadline)
			if remain <= 0 {
				return Claim{}, redis.Nil
			}
		}

		if remain < blockSlot {
			wait := pollInterval
			if remain < wait {
				wait = remain
			}
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return Claim{}, ctx.Err()
			case <-t.C:
			}
			continue
		}

		first := q.lanes[0]
		payload, err := q.rdb.BRPopLPush(ctx, first.QueueKey, first.ProcessingKey, blockSlot).Result()
		switch {
		case err == nil:
			return q.claimed(ctx, first, payload)
		case errors.Is(err, redis.Nil):
			continue
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Claim{}, ctxErr
			}
			return Claim{}, err
		}
	}
}

// sweep moves at most one payload, taking lanes in priority order.
func (q *redisLaneQueue) sweep(ctx context.Context) (Claim, bool, error) {
	for _, ln := range q.lanes {
		payload, err := q.rdb.RPopLPush(ctx, ln.QueueKey, ln.ProcessingKey).Result()
		if err == nil {
			c, err := q.claimed(ctx, ln, payload)
			return c, err == nil, err
		}
		if !errors.Is(err, redis.Nil) {
			return Claim{}, false, err
		}
	}
	return Claim{}, false, nil
}

func (q *redisLaneQueue) claimed(ctx context.Context, ln Lane, payload string) (Claim, error) {
	if err := q.rdb.HSet(ctx, q.processingMapKey, payload, ln.ProcessingKey).Err(); err != nil {
		return Claim{}, err
	}
	return Claim{Lane: ln.Name, Payload: payload}, nil
}

func (q *redisLaneQueue) Ack(ctx context.Context, payload string) error {
	processingKey, err := q.rdb.HGet(ctx, q.processingMapKey, payload).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// mapping lost: sweep every processing list
			for _, ln := range q.lanes {
				_ = q.rdb.LRem(ctx, ln.ProcessingKey, 1, payload).Err()
			}
			return nil
		}
		return err
	}

	if err := q.rdb.LRem(ctx, processingKey, 1, payload).Err(); err != nil {
		return err
	}
	_ = q.rdb.HDel(ctx, q.processingMapKey, payload).Err()
	return nil
}

// RequeueStale moves payloads left in processing back onto their lane.
// Delivery is at-least-once.
func (q *redisLaneQueue) RequeueStale(ctx context.Context, maxPerLane int64) (int64, error) {
	var moved int64

	for _, ln := range q.lanes {
		for i := int64(0); i < maxPerLane; i++ {
			payload, err := q.rdb.RPopLPush(ctx, ln.ProcessingKey, ln.QueueKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					break
				}
				return moved, err
			}
			if payload != "" {
				moved++
				_ = q.rdb.HDel(ctx, q.processingMapKey, payload).Err()
			}
		}
	}

	return moved, nil
}
