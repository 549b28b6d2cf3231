package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
	"tag-bridge/internal/service"
)

// NotificationPool drains the triage queue and hands archive notifications
// to a Notifier. Other lanes are logged and acknowledged.
type NotificationPool struct {
	queue      service.Queue
	notifier   Notifier
	workers    int
	claimDelay time.Duration
	errBackoff time.Duration
	warnEvery  time.Duration
	log        *logger.Logger
}

func NewNotificationPool(queue service.Queue, notifier Notifier, workers int, log *logger.Logger) *NotificationPool {
	if workers <= 0 {
		workers = 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationPool{
		queue:      queue,
		notifier:   notifier,
		workers:    workers,
		claimDelay: 5 * time.Second,
		errBackoff: time.Second,
		warnEvery:  30 * time.Second,
		log:        log.With("component", "notification_pool"),
	}
}

// Run blocks until ctx is cancelled and all workers have drained.
func (p *NotificationPool) Run(ctx context.Context) {
	p.log.Info("notification pool started", "workers", p.workers)

	claims := make(chan service.Claim)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for c := range claims {
				p.handle(ctx, n, c)

				// Always ack: a notification is best-effort and must not loop.
				// Payloads orphaned by a crash are returned by RequeueStale.
				if err := p.queue.Ack(ctx, c.Payload); err != nil {
					p.log.Error("ack failed", "worker", n, "error", err)
				}
			}
		}(i + 1)
	}

	defer func() {
		close(claims)
		wg.Wait()
		p.log.Info("notification pool stopped")
	}()

	var (
		lastWarn   time.Time
		suppressed int
	)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			c, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				if time.Since(lastWarn) >= p.warnEvery {
					p.log.Warn("claim failed, backing off", "error", err, "backoff", p.errBackoff, "suppressed", suppressed)
					lastWarn = time.Now()
					suppressed = 0
				} else {
					suppressed++
				}
				if !sleepCtx(ctx, p.errBackoff) {
					return
				}
				continue
			}
			select {
			case claims <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *NotificationPool) handle(ctx context.Context, worker int, c service.Claim) {
	n, err := service.DecodeNotification(c.Payload)
	if err != nil {
		p.log.Warn("drop undecodable notification", "worker", worker, "lane", c.Lane, "error", err)
		return
	}
	if n.Disposition != entity.DispositionArchive {
		p.log.Info("triage event", "worker", worker, "lane", c.Lane, "item_id", n.ItemID, "score", n.Score)
		return
	}
	decision := entity.PriorityDecision{Score: n.Score, Disposition: n.Disposition}
	if err := p.notifier.Notify(ctx, n.ItemID, decision); err != nil {
		p.log.Warn("notification failed", "worker", worker, "item_id", n.ItemID, "error", err)
	}
}
