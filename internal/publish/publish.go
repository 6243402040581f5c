// Package publish drains queued batches to the sink on a single long-lived
// worker, decoupled from the ingestion rate by a bounded channel.
package publish

import (
	"time"

	"github.com/tuna-f1sh/cantools/internal/domain"
	"github.com/tuna-f1sh/cantools/internal/ports"
)

// DefaultQueueDepth is how many batches may be outstanding before the
// ingestion side blocks. Small on purpose: it smooths rate mismatch without
// letting a slow sink grow memory unboundedly.
const DefaultQueueDepth = 4

// Publisher owns the sink. Batches are written strictly in the order they
// were enqueued; a failed write is handed to the failure policy and the
// worker moves on to the next batch.
type Publisher struct {
	sink   ports.Sink
	policy ports.WriteFailurePolicy
	obs    ports.Observability

	queue chan []domain.Point
	done  chan struct{}

	// Worker-local state, read by others only after done is closed.
	seq       int
	published int
	failed    int
	stopErr   error
}

func New(sink ports.Sink, policy ports.WriteFailurePolicy, obs ports.Observability, queueDepth int) *Publisher {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if policy == nil {
		policy = DropPolicy{Obs: obs}
	}
	return &Publisher{
		sink:   sink,
		policy: policy,
		obs:    obs,
		queue:  make(chan []domain.Point, queueDepth),
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (p *Publisher) Start() {
	go p.run()
}

// Enqueue hands a batch to the worker, blocking while the queue is at
// capacity. This is the pipeline's backpressure point.
func (p *Publisher) Enqueue(points []domain.Point) {
	if len(points) == 0 {
		return
	}
	p.queue <- points
}

// QueueLen reports how many batches are waiting for the worker.
func (p *Publisher) QueueLen() int {
	return len(p.queue)
}

// Stop closes the queue and waits for the worker to drain every batch that
// was enqueued before the call. It returns the error that stopped the worker
// early, if any.
func (p *Publisher) Stop() error {
	close(p.queue)
	<-p.done
	return p.stopErr
}

// Published and Failed report batch counts; valid after Stop returns.
func (p *Publisher) Published() int { return p.published }
func (p *Publisher) Failed() int    { return p.failed }

func (p *Publisher) run() {
	defer close(p.done)
	for points := range p.queue {
		p.seq++
		if p.stopErr != nil {
			// Policy stopped the worker; keep draining so Stop never
			// deadlocks, but count the batches as failed.
			p.failed++
			p.obs.LogError("batch_discarded_after_stop", p.stopErr,
				ports.Field{Key: "batch", Value: p.seq})
			continue
		}

		start := time.Now()
		err := p.sink.WriteBatch(points)
		p.obs.ObserveLatency("cantools_sink_write_seconds", time.Since(start).Seconds())
		if err != nil {
			p.failed++
			p.obs.IncCounter("cantools_batches_failed_total", 1)
			if perr := p.policy.HandleWriteFailure(p.seq, points, err); perr != nil {
				p.stopErr = perr
			}
			continue
		}
		p.published++
		p.obs.IncCounter("cantools_batches_published_total", 1)
		p.obs.IncCounter("cantools_points_published_total", float64(len(points)))
	}
}

// DropPolicy is the default failure policy: log the batch's position and size,
// accept the loss, continue. Stronger modes (retry, dead-letter) can replace
// it without touching the worker loop.
type DropPolicy struct {
	Obs ports.Observability
}

func (d DropPolicy) HandleWriteFailure(seq int, points []domain.Point, err error) error {
	d.Obs.LogError("sink_write_failed", err,
		ports.Field{Key: "batch", Value: seq},
		ports.Field{Key: "points", Value: len(points)})
	return nil
}
