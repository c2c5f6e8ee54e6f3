package output

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teramod/radar/internal/snapshot"
	"github.com/teramod/radar/internal/world"
)

func testSnap(tag int) *snapshot.Snapshot {
	return snapshot.Assemble(world.Observer{}, nil, float64(tag), tag, time.Now())
}

func testConfig(dir string) Config {
	return Config{
		Path:         filepath.Join(dir, "radar_output.json"),
		RetryCeiling: 3,
		RetryBase:    time.Millisecond,
	}
}

func readTarget(t *testing.T, path string) snapshot.Snapshot {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("target not valid JSON: %v", err)
	}
	return s
}

func TestWriteProducesTargetAtomically(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), zap.NewNop())
	p.Start()

	p.Request(testSnap(7))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Flush(ctx)

	got := readTarget(t, p.cfg.Path)
	if got.Metadata.TotalEntitiesTracked != 7 {
		t.Fatalf("wrong snapshot on disk: %+v", got.Metadata)
	}
	if _, err := os.Stat(p.cfg.Path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("temp file left behind after successful write")
	}
	if st := p.Stats(); st.Writes != 1 || st.Dropped != 0 {
		t.Fatalf("unexpected counters: %+v", st)
	}
}

func TestBurstCoalescesToMostRecent(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), zap.NewNop())
	p.Start()

	const n = 50
	for i := 1; i <= n; i++ {
		p.Request(testSnap(i))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Flush(ctx)

	got := readTarget(t, p.cfg.Path)
	if got.Metadata.TotalEntitiesTracked != n {
		t.Fatalf("target must hold the most recent snapshot, got tag %d",
			got.Metadata.TotalEntitiesTracked)
	}
	st := p.Stats()
	if st.Dropped != 0 {
		t.Fatalf("no write should drop: %+v", st)
	}
	// Every requested snapshot was either written or coalesced away.
	if st.Writes+st.Coalesced != n {
		t.Fatalf("writes (%d) + coalesced (%d) != requests (%d)",
			st.Writes, st.Coalesced, n)
	}
	if st.Writes < 1 {
		t.Fatal("at least the final snapshot must be written")
	}
}

func TestRequestReplacesPendingSlot(t *testing.T) {
	// No writer running: both requests land in the slot, the second
	// replacing the first.
	p := NewPipeline(testConfig(t.TempDir()), zap.NewNop())

	p.Request(testSnap(1))
	p.Request(testSnap(2))

	if st := p.Stats(); st.Coalesced != 1 {
		t.Fatalf("expected 1 coalesce, got %d", st.Coalesced)
	}
	p.mu.Lock()
	pending := p.pending
	p.mu.Unlock()
	if pending == nil || pending.Metadata.TotalEntitiesTracked != 2 {
		t.Fatal("pending slot must hold the newest snapshot")
	}
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), zap.NewNop())

	fails := 2
	p.writeFile = func(name string, data []byte, perm os.FileMode) error {
		if fails > 0 {
			fails--
			return fmt.Errorf("disk busy")
		}
		return os.WriteFile(name, data, perm)
	}

	p.writeOne(context.Background(), testSnap(9))

	st := p.Stats()
	if st.Writes != 1 || st.Retries != 2 || st.Dropped != 0 {
		t.Fatalf("expected writes=1 retries=2 dropped=0, got %+v", st)
	}
	got := readTarget(t, p.cfg.Path)
	if got.Metadata.TotalEntitiesTracked != 9 {
		t.Fatalf("wrong snapshot on disk: %+v", got.Metadata)
	}
}

func TestDropAfterRetryCeiling(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), zap.NewNop())

	attempts := 0
	p.writeFile = func(string, []byte, os.FileMode) error {
		attempts++
		return fmt.Errorf("disk gone")
	}

	p.writeOne(context.Background(), testSnap(1))

	st := p.Stats()
	if st.Writes != 0 || st.Dropped != 1 {
		t.Fatalf("expected drop after ceiling, got %+v", st)
	}
	// first attempt plus RetryCeiling retries
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	if st.Retries != 3 {
		t.Fatalf("expected 3 retries counted, got %d", st.Retries)
	}
	if _, err := os.Stat(p.cfg.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("target must not exist after a fully failed write")
	}
}

func TestRenameFailureIsRetriedToo(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), zap.NewNop())

	fails := 1
	p.rename = func(oldpath, newpath string) error {
		if fails > 0 {
			fails--
			return fmt.Errorf("target busy")
		}
		return os.Rename(oldpath, newpath)
	}

	p.writeOne(context.Background(), testSnap(3))

	st := p.Stats()
	if st.Writes != 1 || st.Retries != 1 || st.Dropped != 0 {
		t.Fatalf("expected writes=1 retries=1, got %+v", st)
	}
	readTarget(t, p.cfg.Path)
}

func TestFlushWritesFinalPending(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), zap.NewNop())
	p.Start()

	p.Request(testSnap(1))
	p.Request(testSnap(2))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Flush(ctx)

	got := readTarget(t, p.cfg.Path)
	if got.Metadata.TotalEntitiesTracked != 2 {
		t.Fatalf("flush must leave the newest snapshot on disk, got tag %d",
			got.Metadata.TotalEntitiesTracked)
	}
}

func TestHistoryStreamAppendsOneLinePerWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.HistoryPath = filepath.Join(dir, "radar_output.ndjson")
	p := NewPipeline(cfg, zap.NewNop())

	p.writeOne(context.Background(), testSnap(1))
	p.writeOne(context.Background(), testSnap(2))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Start()
	p.Flush(ctx)

	f, err := os.Open(cfg.HistoryPath)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		var s snapshot.Snapshot
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			t.Fatalf("history line %d not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 history lines, got %d", lines)
	}
	if st := p.Stats(); st.HistoryErrors != 0 {
		t.Fatalf("unexpected history errors: %d", st.HistoryErrors)
	}
}

func TestLatencyTracking(t *testing.T) {
	p := NewPipeline(Config{
		Path:          filepath.Join(t.TempDir(), "out.json"),
		RetryCeiling:  1,
		RetryBase:     time.Millisecond,
		LatencyBudget: time.Nanosecond, // everything is over budget
	}, zap.NewNop())

	p.writeOne(context.Background(), testSnap(1))

	st := p.Stats()
	if st.AvgLatency <= 0 || st.MaxLatency <= 0 {
		t.Fatalf("latency not recorded: %+v", st)
	}
	if st.OverBudget != 1 {
		t.Fatalf("expected over-budget count 1, got %d", st.OverBudget)
	}
}
