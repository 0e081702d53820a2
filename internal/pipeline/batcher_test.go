package pipeline

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/dedupe"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/metrics"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawLog(block uint64, index uint) types.RawSwapLog {
	return types.RawSwapLog{
		BlockNumber:     block,
		TransactionHash: common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		LogIndex:        index,
	}
}

type recordingHandler struct {
	blocks chan Block
	active atomic.Int32
	peak   atomic.Int32
	hold   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{blocks: make(chan Block, 16)}
}

func (h *recordingHandler) ProcessBlock(ctx context.Context, block Block) error {
	n := h.active.Add(1)
	for {
		peak := h.peak.Load()
		if n <= peak || h.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if h.hold != nil {
		<-h.hold
	}
	h.active.Add(-1)
	h.blocks <- block
	return nil
}

func nextBlock(t *testing.T, h *recordingHandler) Block {
	t.Helper()
	select {
	case b := <-h.blocks:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a processed block")
		return Block{}
	}
}

func startBatcher(t *testing.T, b *Batcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- b.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return cancel, done
}

func TestBatcherProcessesLowestBlockFirst(t *testing.T) {
	h := newRecordingHandler()
	b := NewBatcher(h, nil, BatcherConfig{QuietPeriod: 30 * time.Millisecond})
	ctx := context.Background()

	for _, l := range []types.RawSwapLog{rawLog(11, 0), rawLog(10, 0), rawLog(11, 1), rawLog(10, 1)} {
		require.NoError(t, b.Enqueue(ctx, l))
	}
	startBatcher(t, b)

	first := nextBlock(t, h)
	assert.Equal(t, uint64(10), first.Number)
	require.Len(t, first.Logs, 2)
	assert.False(t, first.ArrivedAt.IsZero())

	// block 11 is picked up without further traffic
	second := nextBlock(t, h)
	assert.Equal(t, uint64(11), second.Number)
	assert.Len(t, second.Logs, 2)

	assert.Eventually(t, func() bool {
		s := b.Snapshot()
		return s.Processed == 2 && s.Pending == 0 && !s.Parsing
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(11), b.Snapshot().LastBlock)
}

func TestBatcherWaitsForQuietPeriod(t *testing.T) {
	h := newRecordingHandler()
	b := NewBatcher(h, nil, BatcherConfig{QuietPeriod: 150 * time.Millisecond})
	startBatcher(t, b)
	ctx := context.Background()

	for i := uint(0); i < 5; i++ {
		require.NoError(t, b.Enqueue(ctx, rawLog(20, i)))
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, b.Snapshot().Arriving)

	block := nextBlock(t, h)
	assert.Equal(t, uint64(20), block.Number)
	assert.Len(t, block.Logs, 5)
}

func TestBatcherSerializesPasses(t *testing.T) {
	h := newRecordingHandler()
	h.hold = make(chan struct{})
	b := NewBatcher(h, nil, BatcherConfig{QuietPeriod: 10 * time.Millisecond})
	startBatcher(t, b)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, rawLog(30, 0)))
	assert.Eventually(t, func() bool { return b.Snapshot().Parsing }, time.Second, time.Millisecond)

	require.NoError(t, b.Enqueue(ctx, rawLog(31, 0)))
	require.NoError(t, b.Enqueue(ctx, rawLog(29, 0)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, b.Snapshot().Pending)

	h.hold <- struct{}{}
	assert.Equal(t, uint64(30), nextBlock(t, h).Number)
	h.hold <- struct{}{}
	assert.Equal(t, uint64(29), nextBlock(t, h).Number)
	h.hold <- struct{}{}
	assert.Equal(t, uint64(31), nextBlock(t, h).Number)

	assert.Equal(t, int32(1), h.peak.Load())
}

func TestBatcherDropsDuplicates(t *testing.T) {
	h := newRecordingHandler()
	d := dedupe.NewMemoryDedupe(time.Minute, 0)
	defer d.Close()
	b := NewBatcher(h, d, BatcherConfig{QuietPeriod: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, rawLog(40, 3)))
	require.NoError(t, b.Enqueue(ctx, rawLog(40, 3)))
	require.NoError(t, b.Enqueue(ctx, rawLog(40, 4)))
	startBatcher(t, b)

	block := nextBlock(t, h)
	assert.Len(t, block.Logs, 2)
	assert.Equal(t, uint64(1), b.Snapshot().Duplicates)
}

func TestBatcherMaxPending(t *testing.T) {
	h := newRecordingHandler()
	b := NewBatcher(h, nil, BatcherConfig{QuietPeriod: 50 * time.Millisecond, MaxPending: 2})
	ctx := context.Background()

	for i := uint(0); i < 3; i++ {
		require.NoError(t, b.Enqueue(ctx, rawLog(50, i)))
	}
	startBatcher(t, b)

	block := nextBlock(t, h)
	require.Len(t, block.Logs, 2)
	assert.Equal(t, uint(0), block.Logs[0].LogIndex)
	assert.Equal(t, uint(1), block.Logs[1].LogIndex)
	assert.Equal(t, uint64(1), b.Snapshot().Dropped)
}

func TestBatcherMaxPendingAcceptsRedelivery(t *testing.T) {
	h := newRecordingHandler()
	d := dedupe.NewMemoryDedupe(time.Minute, 0)
	defer d.Close()
	b := NewBatcher(h, d, BatcherConfig{QuietPeriod: 20 * time.Millisecond, MaxPending: 1})
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, rawLog(60, 0)))
	require.NoError(t, b.Enqueue(ctx, rawLog(60, 1)))
	startBatcher(t, b)

	first := nextBlock(t, h)
	require.Len(t, first.Logs, 1)
	assert.Equal(t, uint(0), first.Logs[0].LogIndex)
	assert.Eventually(t, func() bool { return b.Snapshot().Dropped == 1 }, time.Second, 5*time.Millisecond)

	// the transport redelivers the dropped log
	require.NoError(t, b.Enqueue(ctx, rawLog(60, 1)))
	second := nextBlock(t, h)
	require.Len(t, second.Logs, 1)
	assert.Equal(t, uint(1), second.Logs[0].LogIndex)
	assert.Equal(t, uint64(0), b.Snapshot().Duplicates)

	// a log that did make it into the buffer is still a duplicate
	require.NoError(t, b.Enqueue(ctx, rawLog(60, 0)))
	assert.Equal(t, uint64(1), b.Snapshot().Duplicates)
}

func TestBatcherArrivalIsPerBlock(t *testing.T) {
	h := newRecordingHandler()
	b := NewBatcher(h, nil, BatcherConfig{QuietPeriod: 20 * time.Millisecond})
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	b.now = func() time.Time { return base.Add(time.Duration(ticks.Add(1)) * time.Second) }
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, rawLog(70, 0)))
	require.NoError(t, b.Enqueue(ctx, rawLog(71, 0)))
	require.NoError(t, b.Enqueue(ctx, rawLog(70, 1)))
	startBatcher(t, b)

	first := nextBlock(t, h)
	assert.Equal(t, uint64(70), first.Number)
	assert.Equal(t, base.Add(time.Second), first.ArrivedAt)

	second := nextBlock(t, h)
	assert.Equal(t, uint64(71), second.Number)
	assert.Equal(t, base.Add(2*time.Second), second.ArrivedAt)
}

func TestBatcherMetrics(t *testing.T) {
	h := newRecordingHandler()
	d := dedupe.NewMemoryDedupe(time.Minute, 0)
	defer d.Close()
	m := metrics.New(prometheus.NewRegistry())
	b := NewBatcher(h, d, BatcherConfig{QuietPeriod: 20 * time.Millisecond, MaxPending: 2, Metrics: m})
	ctx := context.Background()

	for _, l := range []types.RawSwapLog{rawLog(90, 0), rawLog(90, 0), rawLog(90, 1), rawLog(90, 2)} {
		require.NoError(t, b.Enqueue(ctx, l))
	}
	startBatcher(t, b)
	nextBlock(t, h)

	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.ProcessedBlocks) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DuplicateLogs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DroppedLogs))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PendingLogs))
}

func TestBatcherStopsOnCancel(t *testing.T) {
	b := NewBatcher(newRecordingHandler(), nil, BatcherConfig{})
	cancel, done := startBatcher(t, b)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestEnqueueHonoursContext(t *testing.T) {
	b := NewBatcher(newRecordingHandler(), nil, BatcherConfig{QueueSize: 1})
	require.NoError(t, b.Enqueue(context.Background(), rawLog(1, 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Enqueue(ctx, rawLog(1, 1)), context.DeadlineExceeded)
}
