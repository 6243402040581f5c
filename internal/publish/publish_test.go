package publish

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tuna-f1sh/cantools/internal/domain"
	"github.com/tuna-f1sh/cantools/internal/ports"
)

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)        {}
func (nopObs) LogWarn(string, ...ports.Field)        {}
func (nopObs) LogError(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)            {}
func (nopObs) SetGauge(string, float64)              {}
func (nopObs) ObserveLatency(string, float64)        {}

// stubSink records written batches; failOn makes the n-th write fail and
// gate, when set, blocks every write until it is released.
type stubSink struct {
	mu      sync.Mutex
	batches [][]domain.Point
	calls   int
	failOn  int
	gate    chan struct{}
}

func (s *stubSink) WriteBatch(points []domain.Point) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn != 0 && s.calls == s.failOn {
		return errors.New("sink unavailable")
	}
	s.batches = append(s.batches, points)
	return nil
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) written() [][]domain.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.Point, len(s.batches))
	copy(out, s.batches)
	return out
}

func batchOf(ts ...int64) []domain.Point {
	points := make([]domain.Point, len(ts))
	for i, t := range ts {
		points[i] = domain.Point{Measurement: "m", Timestamp: t}
	}
	return points
}

func TestPublisherWritesInOrder(t *testing.T) {
	sink := &stubSink{}
	p := New(sink, nil, nopObs{}, 4)
	p.Start()

	p.Enqueue(batchOf(1, 2))
	p.Enqueue(batchOf(3))
	p.Enqueue(batchOf(4, 5, 6))

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := sink.written()
	if len(got) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(got))
	}
	var flat []int64
	for _, b := range got {
		for _, pt := range b {
			flat = append(flat, pt.Timestamp)
		}
	}
	for i, ts := range flat {
		if ts != int64(i+1) {
			t.Fatalf("batches reordered: %v", flat)
		}
	}
	if p.Published() != 3 || p.Failed() != 0 {
		t.Fatalf("published=%d failed=%d", p.Published(), p.Failed())
	}
}

func TestPublisherContinuesAfterWriteFailure(t *testing.T) {
	sink := &stubSink{failOn: 2}
	p := New(sink, nil, nopObs{}, 4)
	p.Start()

	p.Enqueue(batchOf(1))
	p.Enqueue(batchOf(2))
	p.Enqueue(batchOf(3))

	if err := p.Stop(); err != nil {
		t.Fatalf("a failed batch must not stop the worker: %v", err)
	}

	got := sink.written()
	if len(got) != 2 {
		t.Fatalf("expected batches 1 and 3 to persist, got %d", len(got))
	}
	if got[0][0].Timestamp != 1 || got[1][0].Timestamp != 3 {
		t.Fatalf("wrong surviving batches: %v", got)
	}
	if p.Published() != 2 || p.Failed() != 1 {
		t.Fatalf("published=%d failed=%d", p.Published(), p.Failed())
	}
}

func TestPublisherBackpressureBlocks(t *testing.T) {
	sink := &stubSink{gate: make(chan struct{})}
	p := New(sink, nil, nopObs{}, 1)
	p.Start()

	p.Enqueue(batchOf(1)) // taken by the worker, now blocked in WriteBatch
	p.Enqueue(batchOf(2)) // fills the single queue slot

	blocked := make(chan struct{})
	go func() {
		p.Enqueue(batchOf(3)) // must block until the worker drains a slot
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatalf("enqueue returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatalf("enqueue never unblocked after the sink drained")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(sink.written()) != 3 {
		t.Fatalf("expected all 3 batches written, got %d", len(sink.written()))
	}
}

func TestPublisherStopDrainsQueue(t *testing.T) {
	sink := &stubSink{}
	p := New(sink, nil, nopObs{}, 8)
	p.Start()

	for i := 0; i < 5; i++ {
		p.Enqueue(batchOf(int64(i)))
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(sink.written()) != 5 {
		t.Fatalf("stop must drain every enqueued batch, got %d of 5", len(sink.written()))
	}
}

func TestPublisherIgnoresEmptyBatch(t *testing.T) {
	sink := &stubSink{}
	p := New(sink, nil, nopObs{}, 2)
	p.Start()

	p.Enqueue(nil)
	p.Enqueue(batchOf(1))

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(sink.written()) != 1 {
		t.Fatalf("empty batches must never reach the sink")
	}
}

// stopPolicy aborts the worker on the first failure.
type stopPolicy struct{}

func (stopPolicy) HandleWriteFailure(seq int, points []domain.Point, err error) error {
	return err
}

func TestPublisherPolicyCanStopWorker(t *testing.T) {
	sink := &stubSink{failOn: 1}
	p := New(sink, stopPolicy{}, nopObs{}, 4)
	p.Start()

	p.Enqueue(batchOf(1))
	p.Enqueue(batchOf(2))

	err := p.Stop()
	if err == nil {
		t.Fatalf("expected the policy's error from Stop")
	}
	if len(sink.written()) != 0 {
		t.Fatalf("no batch should persist after the policy stopped the worker")
	}
	if p.Failed() != 2 {
		t.Fatalf("remaining batches should count as failed, got %d", p.Failed())
	}
}
