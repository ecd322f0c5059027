package events

import (
	"context"
	"errors"
	"time"

	"machine_monitor/internal/logger"
	"machine_monitor/internal/models"
	"machine_monitor/internal/repository"
)

const defaultBatchSize = 100

// Sink is a durable destination. Events are marked published only after it accepts them.
type Sink interface {
	Deliver(ctx context.Context, batch []models.OutboxEvent) error
}

// Broadcaster receives a best-effort copy of every delivered event.
type Broadcaster interface {
	Broadcast(machineID string, payload []byte)
}

// Dispatcher drains the outbox table. Delivery is at-least-once: a batch that
// fails is left pending and retried on the next poll.
type Dispatcher struct {
	outbox       repository.OutboxRepo
	sink         Sink
	live         Broadcaster
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
	log          *logger.Logger
}

// NewDispatcher builds a dispatcher. sink and live may be nil.
func NewDispatcher(outbox repository.OutboxRepo, sink Sink, live Broadcaster, pollInterval time.Duration, batchSize int, log *logger.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		outbox:       outbox,
		sink:         sink,
		live:         live,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
		log:          log.Named("outbox"),
	}
}

// Run polls until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Warnw("outbox_dispatch_failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain delivers pending batches until the outbox is empty or a batch fails.
// It returns the number of events published.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := d.processBatch(ctx)
		total += n
		if err != nil || n < d.batchSize {
			return total, err
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) (int, error) {
	start := time.Now()

	batch, err := d.outbox.Pending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if d.sink != nil {
		if err := d.sink.Deliver(ctx, batch); err != nil {
			failedCounter.Add(float64(len(batch)))
			return 0, err
		}
	}

	if d.live != nil {
		for _, ev := range batch {
			d.live.Broadcast(ev.MachineID, ev.Payload)
		}
	}

	ids := make([]int64, 0, len(batch))
	for _, ev := range batch {
		ids = append(ids, ev.ID)
	}
	if err := d.outbox.MarkPublished(ctx, ids, d.now()); err != nil {
		return 0, err
	}
	deliveredCounter.Add(float64(len(batch)))
	return len(batch), nil
}
