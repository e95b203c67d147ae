package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Options tune buffering and delivery.
type Options struct {
	Capacity    int           // ring buffer size
	BatchSize   int           // records per delivery attempt
	SendTimeout time.Duration // per-attempt deadline
	BaseBackoff time.Duration // delay after the first failure
	MaxBackoff  time.Duration // backoff cap

	// Clock measures in-flight time for abandoning pushes that ignore
	// their deadline. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns options sized for an hour of outage at a 15s
// telemetry interval.
func DefaultOptions() Options {
	return Options{
		Capacity:    240,
		BatchSize:   20,
		SendTimeout: 5 * time.Second,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  5 * time.Minute,
	}
}

// Stats is a point-in-time view of the reporter.
type Stats struct {
	Buffered    int
	Capacity    int
	Delivered   uint64
	Dropped     uint64
	Failures    uint64
	InFlight    bool
	Backoff     time.Duration
	LastError   error
	LastSuccess time.Time
}

type batch struct {
	gen     uint64
	records []Record
}

type result struct {
	gen  uint64
	last uint64
	err  error
}

// Reporter samples records on the telemetry interval, buffers them and
// hands batches to a background worker. All methods except Close must be
// called from the control loop goroutine.
type Reporter struct {
	sink Sink
	opts Options
	buf  *ringBuffer

	seq        uint64
	lastSample time.Time
	sampled    bool

	requests chan batch
	results  chan result
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	inFlight      bool
	gen           uint64
	inFlightSince time.Time // wall clock, from opts.Clock
	failures      int
	backoff       time.Duration
	nextAttempt   time.Time

	stats Stats
}

// NewReporter starts the delivery worker.
func NewReporter(sink Sink, opts Options) *Reporter {
	def := DefaultOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reporter{
		sink:     sink,
		opts:     opts,
		buf:      newRingBuffer(opts.Capacity),
		requests: make(chan batch, 1),
		results:  make(chan result, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.stats.Capacity = opts.Capacity
	go r.work()
	return r
}

// Due reports whether a new record should be sampled at now, and if so
// marks the interval as started.
func (r *Reporter) Due(now time.Time, interval time.Duration) bool {
	if r.sampled && now.Sub(r.lastSample) < interval {
		return false
	}
	r.sampled = true
	r.lastSample = now
	return true
}

// Record assigns a sequence number and buffers rec, evicting the oldest
// record when the buffer is full.
func (r *Reporter) Record(rec Record) {
	r.seq++
	rec.Seq = r.seq
	if r.buf.push(rec) {
		if r.stats.Dropped == 0 {
			log.Printf("telemetry: buffer full (%d records), dropping oldest", r.opts.Capacity)
		}
		r.stats.Dropped++
	}
}

// Poll collects a finished delivery, abandons a stuck one, and starts the
// next attempt when the backoff allows. It never blocks.
func (r *Reporter) Poll(now time.Time) {
	select {
	case res := <-r.results:
		r.complete(now, res)
	default:
	}

	if r.inFlight && r.opts.Clock().Sub(r.inFlightSince) > 2*r.opts.SendTimeout {
		log.Printf("telemetry: abandoning push after %v", r.opts.SendTimeout)
		r.inFlight = false
		r.gen++ // late results are treated as stale
		r.fail(now, fmt.Errorf("%w: push abandoned", ErrDelivery))
	}

	if r.inFlight || r.buf.len() == 0 || now.Before(r.nextAttempt) {
		return
	}

	records := r.buf.peek(make([]Record, 0, r.opts.BatchSize), r.opts.BatchSize)
	r.gen++
	select {
	case r.requests <- batch{gen: r.gen, records: records}:
		r.inFlight = true
		r.inFlightSince = r.opts.Clock()
	default:
		// Worker still busy with an abandoned push.
	}
}

func (r *Reporter) complete(now time.Time, res result) {
	stale := res.gen != r.gen
	if res.err == nil {
		// Even a stale success means these records reached the sink.
		r.stats.Delivered += uint64(r.buf.dropThrough(res.last))
		r.stats.LastSuccess = now
		if !stale {
			r.inFlight = false
			r.failures = 0
			r.backoff = 0
			r.nextAttempt = now
			r.stats.LastError = nil
		}
		return
	}
	if stale {
		return
	}
	r.inFlight = false
	r.fail(now, fmt.Errorf("%w: %v", ErrDelivery, res.err))
}

func (r *Reporter) fail(now time.Time, err error) {
	r.failures++
	r.stats.Failures++
	r.stats.LastError = err

	r.backoff = r.opts.BaseBackoff
	for i := 1; i < r.failures && r.backoff < r.opts.MaxBackoff; i++ {
		r.backoff *= 2
	}
	if r.backoff > r.opts.MaxBackoff {
		r.backoff = r.opts.MaxBackoff
	}
	r.nextAttempt = now.Add(r.backoff)

	if r.failures == 1 {
		log.Printf("telemetry: %v (retrying in %v)", err, r.backoff)
	}
}

func (r *Reporter) work() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case b := <-r.requests:
			ctx, cancel := context.WithTimeout(r.ctx, r.opts.SendTimeout)
			err := r.sink.Send(ctx, b.records)
			cancel()

			res := result{gen: b.gen, err: err}
			if len(b.records) > 0 {
				res.last = b.records[len(b.records)-1].Seq
			}
			select {
			case r.results <- res:
			case <-r.ctx.Done():
				return
			}
		}
	}
}

// Buffered returns a copy of the buffered records, oldest first.
func (r *Reporter) Buffered() []Record {
	return r.buf.peek(nil, r.buf.len())
}

// Stats returns the current delivery statistics.
func (r *Reporter) Stats() Stats {
	s := r.stats
	s.Buffered = r.buf.len()
	s.InFlight = r.inFlight
	s.Backoff = r.backoff
	return s
}

// Close stops the worker, cancelling any in-flight push. Buffered records
// are discarded.
func (r *Reporter) Close() {
	r.cancel()
	<-r.done
}
