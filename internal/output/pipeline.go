// Package output persists radar snapshots atomically: serialize, write a
// temporary sibling file, rename it over the target. Rename is the
// atomicity boundary — a reader at any instant sees a complete previous
// snapshot or a complete new one, never a partial write.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/teramod/radar/internal/metrics"
	"github.com/teramod/radar/internal/snapshot"
)

// Config are the static pipeline parameters.
type Config struct {
	Path          string        // target snapshot file
	HistoryPath   string        // NDJSON append stream, "" = disabled
	RetryCeiling  int           // retries after the first failure
	RetryBase     time.Duration // exponential backoff base delay
	LatencyBudget time.Duration // usually the tick interval; 0 = untracked
}

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	Writes        uint64
	Retries       uint64
	Dropped       uint64
	Coalesced     uint64
	OverBudget    uint64
	HistoryErrors uint64
	AvgLatency    time.Duration
	MaxLatency    time.Duration
}

// Pipeline is the single-writer snapshot persister. A write requested
// while one is in flight replaces the pending snapshot instead of
// queueing: the pipeline promises eventual delivery of the most recent
// snapshot, not delivery of every tick's snapshot. That replacement is
// the back-pressure mechanism — nothing ever queues unboundedly.
type Pipeline struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	pending *snapshot.Snapshot

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	history *os.File

	// onWritten runs on the writer goroutine after each successful
	// rename, with the snapshot and its serialized form.
	onWritten func(*snapshot.Snapshot, []byte)

	writes        uint64
	retries       uint64
	dropped       uint64
	coalesced     uint64
	overBudget    uint64
	historyErrors uint64
	avgLatencyNs  int64
	maxLatencyNs  int64

	// test seams
	writeFile func(string, []byte, os.FileMode) error
	rename    func(string, string) error
}

func NewPipeline(cfg Config, log *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		log:       log,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		writeFile: os.WriteFile,
		rename:    os.Rename,
	}
}

// SetOnWritten installs a post-write callback (e.g. the archive insert).
// Must be called before Start.
func (p *Pipeline) SetOnWritten(fn func(*snapshot.Snapshot, []byte)) {
	p.onWritten = fn
}

// Start launches the writer goroutine.
func (p *Pipeline) Start() {
	go p.run()
}

// Request hands a snapshot to the pipeline. Never blocks: if a previous
// snapshot is still pending it is replaced (coalesced), not queued.
func (p *Pipeline) Request(snap *snapshot.Snapshot) {
	p.mu.Lock()
	if p.pending != nil {
		p.coalesced++
		metrics.RecordCoalesced()
	}
	p.pending = snap
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
			p.drain(context.Background())
		}
	}
}

// drain writes pending snapshots until the slot is empty. Each take is
// the newest requested snapshot; anything replaced in between was
// coalesced away.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		p.mu.Lock()
		snap := p.pending
		p.pending = nil
		p.mu.Unlock()
		if snap == nil {
			return
		}
		p.writeOne(ctx, snap)
	}
}

// writeOne serializes and persists a single snapshot, retrying the same
// snapshot with exponential backoff up to the ceiling. Exceeding the
// ceiling drops it — stale data for one interval, never fatal.
func (p *Pipeline) writeOne(ctx context.Context, snap *snapshot.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		// Snapshot values are plain structs; this is unreachable short
		// of a programming error in the schema types.
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		metrics.RecordDrop()
		p.log.Error("snapshot serialization failed", zap.Error(err))
		return
	}

	tmp := p.cfg.Path + ".tmp"
	start := time.Now()
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(p.cfg.RetryCeiling), retry.NewExponential(p.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			p.mu.Lock()
			p.retries++
			p.mu.Unlock()
			metrics.RecordRetry()
		}
		attempt++
		if err := p.writeFile(tmp, data, 0o644); err != nil {
			os.Remove(tmp)
			return retry.RetryableError(fmt.Errorf("write temp: %w", err))
		}
		if err := p.rename(tmp, p.cfg.Path); err != nil {
			os.Remove(tmp)
			return retry.RetryableError(fmt.Errorf("rename: %w", err))
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		metrics.RecordDrop()
		p.log.Warn("snapshot dropped after retry ceiling",
			zap.Int("attempts", attempt),
			zap.Error(err))
		return
	}

	p.recordLatency(elapsed)
	metrics.RecordWrite(elapsed)

	if p.cfg.HistoryPath != "" {
		p.appendHistory(data)
	}
	if p.onWritten != nil {
		p.onWritten(snap, data)
	}
}

func (p *Pipeline) recordLatency(elapsed time.Duration) {
	p.mu.Lock()
	p.writes++
	// exponential moving average over recent writes
	if p.avgLatencyNs == 0 {
		p.avgLatencyNs = elapsed.Nanoseconds()
	} else {
		p.avgLatencyNs = (p.avgLatencyNs*9 + elapsed.Nanoseconds()) / 10
	}
	if elapsed.Nanoseconds() > p.maxLatencyNs {
		p.maxLatencyNs = elapsed.Nanoseconds()
	}
	over := p.cfg.LatencyBudget > 0 && elapsed > p.cfg.LatencyBudget
	if over {
		p.overBudget++
	}
	p.mu.Unlock()

	if over {
		metrics.RecordOverBudget()
		p.log.Warn("snapshot write exceeded latency budget",
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", p.cfg.LatencyBudget))
	}
}

// appendHistory adds one NDJSON line to the history stream. History
// failures are counted and logged but never retried — the atomic target
// file is the contract, history is best-effort.
func (p *Pipeline) appendHistory(data []byte) {
	if p.history == nil {
		f, err := os.OpenFile(p.cfg.HistoryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			p.countHistoryError(err)
			return
		}
		p.history = f
	}
	if _, err := p.history.Write(append(data, '\n')); err != nil {
		p.countHistoryError(err)
	}
}

func (p *Pipeline) countHistoryError(err error) {
	p.mu.Lock()
	p.historyErrors++
	first := p.historyErrors == 1
	p.mu.Unlock()
	if first {
		p.log.Warn("history append failing", zap.Error(err))
	}
}

// Flush stops the writer, waits for any in-flight write to finish, and
// performs one final write of a still-pending snapshot. Nothing is
// silently lost on a controlled shutdown.
func (p *Pipeline) Flush(ctx context.Context) {
	close(p.stop)
	<-p.done

	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.mu.Unlock()
	if snap != nil {
		p.writeOne(ctx, snap)
	}

	if p.history != nil {
		p.history.Close()
		p.history = nil
	}
}

// Stats returns a copy of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Writes:        p.writes,
		Retries:       p.retries,
		Dropped:       p.dropped,
		Coalesced:     p.coalesced,
		OverBudget:    p.overBudget,
		HistoryErrors: p.historyErrors,
		AvgLatency:    time.Duration(p.avgLatencyNs),
		MaxLatency:    time.Duration(p.maxLatencyNs),
	}
}
