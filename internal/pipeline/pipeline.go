// Package pipeline wires parser, filter, decoder, accumulator and publisher
// into the single-producer/single-consumer decode pipeline and owns its
// shutdown semantics.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tuna-f1sh/cantools/internal/batch"
	"github.com/tuna-f1sh/cantools/internal/decode"
	"github.com/tuna-f1sh/cantools/internal/filter"
	"github.com/tuna-f1sh/cantools/internal/parse"
	"github.com/tuna-f1sh/cantools/internal/ports"
	"github.com/tuna-f1sh/cantools/internal/publish"
)

// ErrInterrupted reports that the run was cut short by the context but still
// drained cleanly. Callers map it to the interrupted exit code.
var ErrInterrupted = errors.New("interrupted")

// State is the coordinator's lifecycle position. Transitions run strictly
// Idle -> Running -> Draining -> Stopped, exactly once per run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Pipeline runs one decode session. The publisher may be nil, in which case
// records are echoed but nothing is accumulated or published.
type Pipeline struct {
	parser  *parse.Parser
	policy  parse.MismatchPolicy
	ids     filter.IDFilter
	adapter *decode.Adapter
	acc     *batch.Accumulator
	pub     *publish.Publisher
	obs     ports.Observability

	out   io.Writer
	quiet bool

	state atomic.Int32
}

func New(parser *parse.Parser, policy parse.MismatchPolicy, ids filter.IDFilter,
	adapter *decode.Adapter, acc *batch.Accumulator, pub *publish.Publisher,
	obs ports.Observability, out io.Writer, quiet bool) *Pipeline {
	return &Pipeline{
		parser:  parser,
		policy:  policy,
		ids:     ids,
		adapter: adapter,
		acc:     acc,
		pub:     pub,
		obs:     obs,
		out:     out,
		quiet:   quiet,
	}
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Run ingests lines from in until EOF, a stop-policy mismatch, or context
// cancellation, then drains. Every batch accumulated before draining began is
// handed to the sink before Run returns; an interrupt never loses points.
func (p *Pipeline) Run(ctx context.Context, in io.Reader) error {
	p.state.Store(int32(StateRunning))

	gaugeStop := make(chan struct{})
	if p.pub != nil {
		p.pub.Start()
		go p.recordQueueGauge(gaugeStop, time.Second)
	}

	// The reader goroutine may stay blocked in a read after cancellation;
	// it is abandoned, never joined. It can no longer reach the queue once
	// draining starts because only this goroutine enqueues.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			p.obs.LogError("input_read_failed", err)
		}
	}()

	interrupted := false

ingest:
	for {
		select {
		case <-ctx.Done():
			interrupted = true
			break ingest
		case line, ok := <-lines:
			if !ok {
				break ingest
			}
			if stop := p.handleLine(line); stop {
				break ingest
			}
		}
	}

	p.state.Store(int32(StateDraining))

	var err error
	if p.pub != nil {
		if rem := p.acc.Flush(); len(rem) > 0 {
			p.pub.Enqueue(rem)
		}
		err = p.pub.Stop()
		close(gaugeStop)
	}

	p.state.Store(int32(StateStopped))

	if err != nil {
		return err
	}
	if interrupted {
		return ErrInterrupted
	}
	return nil
}

// handleLine runs one line through parse -> filter -> decode -> accumulate.
// The returned bool asks the ingest loop to stop (live-mode mismatch policy).
func (p *Pipeline) handleLine(line string) bool {
	rec, ok := p.parser.Parse(line)
	if !ok {
		p.obs.IncCounter("cantools_lines_skipped_total", 1)
		return p.policy == parse.StopOnMismatch
	}
	p.obs.IncCounter("cantools_frames_parsed_total", 1)

	if !p.ids.Pass(rec.FrameID) {
		// Filtered records are skipped silently: no echo, no log line.
		p.obs.IncCounter("cantools_frames_filtered_total", 1)
		return false
	}

	res, err := p.adapter.Decode(rec)
	if err != nil {
		p.obs.LogError("decode_failed", err,
			ports.Field{Key: "frame_id", Value: fmt.Sprintf("0x%X", rec.FrameID)})
		return false
	}

	switch res.Status {
	case decode.StatusUnknownFrame:
		p.obs.IncCounter("cantools_frames_unknown_total", 1)
		if !p.quiet {
			fmt.Fprintf(p.out, "%s :: unable to decode frame 0x%X\n", line, rec.FrameID)
		}
		return false
	case decode.StatusNameFiltered:
		p.obs.IncCounter("cantools_frames_filtered_total", 1)
	case decode.StatusDecoded:
		p.obs.IncCounter("cantools_points_decoded_total", 1)
	}

	if !p.quiet && res.Echo != "" {
		fmt.Fprintf(p.out, "%s ::%s\n", line, res.Echo)
	}

	if res.Point != nil && p.pub != nil {
		if !p.quiet {
			fmt.Fprintf(p.out, "%s\n", res.Point)
		}
		if full, ok := p.acc.Add(*res.Point); ok {
			p.pub.Enqueue(full)
		}
	}
	return false
}

func (p *Pipeline) recordQueueGauge(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.obs.SetGauge("cantools_publish_queue_depth", float64(p.pub.QueueLen()))
		}
	}
}
