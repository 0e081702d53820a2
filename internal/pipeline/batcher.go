package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/dedupe"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/metrics"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
)

const (
	DefaultQuietPeriod = 300 * time.Millisecond
	defaultQueueSize   = 1024
)

// Block is every buffered log of one block number.
type Block struct {
	Number uint64
	Logs   []types.RawSwapLog
	// ArrivedAt is when the first log of this block was buffered.
	ArrivedAt time.Time
}

type BlockHandler interface {
	ProcessBlock(ctx context.Context, block Block) error
}

type BlockHandlerFunc func(ctx context.Context, block Block) error

func (f BlockHandlerFunc) ProcessBlock(ctx context.Context, block Block) error { return f(ctx, block) }

type BatcherConfig struct {
	QuietPeriod time.Duration
	// MaxPending caps buffered logs; further logs are dropped. 0 means unbounded.
	MaxPending int
	QueueSize  int
	// Metrics defaults to an unregistered set.
	Metrics *metrics.Metrics
}

// Status is a point-in-time view of the batcher.
type Status struct {
	Pending       int       `json:"pending"`
	PendingBlocks int       `json:"pending_blocks"`
	Arriving      bool      `json:"arriving"`
	Parsing       bool      `json:"parsing"`
	LastArrival   time.Time `json:"last_arrival"`
	LastBlock     uint64    `json:"last_block"`
	Processed     uint64    `json:"processed_blocks"`
	Dropped       uint64    `json:"dropped_logs"`
	Duplicates    uint64    `json:"duplicate_logs"`
}

// Batcher buffers raw logs and, once no log has arrived for the quiet period,
// hands the lowest buffered block to the handler. One pass runs at a time.
type Batcher struct {
	handler    BlockHandler
	deduper    dedupe.Deduper
	quiet      time.Duration
	maxPending int
	incoming   chan types.RawSwapLog
	now        func() time.Time
	metrics    *metrics.Metrics

	mu     sync.Mutex
	status Status
}

// NewBatcher builds a batcher; deduper may be nil.
func NewBatcher(handler BlockHandler, deduper dedupe.Deduper, cfg BatcherConfig) *Batcher {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	return &Batcher{
		handler:    handler,
		deduper:    deduper,
		quiet:      cfg.QuietPeriod,
		maxPending: cfg.MaxPending,
		incoming:   make(chan types.RawSwapLog, cfg.QueueSize),
		now:        time.Now,
		metrics:    cfg.Metrics,
	}
}

// Enqueue submits a log. Logs already seen by the deduper are discarded.
// A failing deduper lets the log through. A log later dropped for lack of
// buffer space is forgotten again so a redelivery is accepted.
func (b *Batcher) Enqueue(ctx context.Context, log types.RawSwapLog) error {
	if b.deduper != nil {
		seen, err := b.deduper.Seen(ctx, log.Key())
		if err != nil {
			logger.Warn("Dedupe check for %s failed: %v", log.Key(), err)
		} else if seen {
			b.update(func(s *Status) { s.Duplicates++ })
			b.metrics.DuplicateLogs.Inc()
			return nil
		}
	}

	select {
	case b.incoming <- log:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Run owns the pending buffer until ctx is cancelled. An in-flight pass is
// waited for before Run returns.
func (b *Batcher) Run(ctx context.Context) error {
	pending := map[uint64][]types.RawSwapLog{}
	arrivals := map[uint64]time.Time{}
	count := 0

	timer := time.NewTimer(b.quiet)
	if !timer.Stop() {
		<-timer.C
	}
	var fire <-chan time.Time
	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.quiet)
		fire = timer.C
	}
	defer timer.Stop()

	type result struct {
		number uint64
		err    error
	}
	done := make(chan result, 1)
	parsing := false

	start := func() {
		number := lowestBlock(pending)
		logs := pending[number]
		block := Block{Number: number, Logs: logs, ArrivedAt: arrivals[number]}
		delete(pending, number)
		delete(arrivals, number)
		count -= len(logs)
		b.metrics.PendingLogs.Set(float64(count))

		parsing = true
		b.update(func(s *Status) {
			s.Parsing = true
			s.Arriving = false
			s.Pending = count
			s.PendingBlocks = len(pending)
		})

		go func() {
			done <- result{number: number, err: b.handler.ProcessBlock(ctx, block)}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if parsing {
				<-done
			}
			return ctx.Err()

		case log := <-b.incoming:
			if b.maxPending > 0 && count >= b.maxPending {
				logger.Warn("Pending buffer full (%d logs), dropping log %s of block %d", count, log.Key(), log.BlockNumber)
				b.forget(ctx, log)
				b.update(func(s *Status) { s.Dropped++ })
				b.metrics.DroppedLogs.Inc()
				continue
			}
			now := b.now()
			if _, ok := arrivals[log.BlockNumber]; !ok {
				arrivals[log.BlockNumber] = now
			}
			pending[log.BlockNumber] = append(pending[log.BlockNumber], log)
			count++
			b.metrics.PendingLogs.Set(float64(count))

			first := false
			b.update(func(s *Status) {
				if !s.Arriving {
					first = true
					s.Arriving = true
					s.LastArrival = now
				}
				s.Pending = count
				s.PendingBlocks = len(pending)
			})
			if first {
				logger.Debug("Arrived block %d", log.BlockNumber)
			}
			arm()

		case <-fire:
			fire = nil
			if count == 0 {
				continue
			}
			// A pass is running; the fire is picked up when it completes.
			if parsing {
				continue
			}
			start()

		case res := <-done:
			parsing = false
			b.update(func(s *Status) {
				s.Parsing = false
				s.Processed++
				s.LastBlock = res.number
			})
			b.metrics.ProcessedBlocks.Inc()
			if res.err != nil {
				logger.Error("Processing block %d failed: %v", res.number, res.err)
			}
			if count > 0 && fire == nil {
				arm()
			}
		}
	}
}

func (b *Batcher) forget(ctx context.Context, log types.RawSwapLog) {
	if b.deduper == nil {
		return
	}
	if err := b.deduper.Forget(ctx, log.Key()); err != nil {
		logger.Warn("Forgetting dropped log %s failed: %v", log.Key(), err)
	}
}

func (b *Batcher) update(fn func(*Status)) {
	b.mu.Lock()
	fn(&b.status)
	b.mu.Unlock()
}

func lowestBlock(pending map[uint64][]types.RawSwapLog) uint64 {
	var (
		lowest uint64
		found  bool
	)
	for n := range pending {
		if !found || n < lowest {
			lowest, found = n, true
		}
	}
	return lowest
}
