package ethereum

import (
	"context"
	"time"

	customtypes "github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	defaultIdleTimeout = 15 * time.Second
	defaultRetryDelay  = 2 * time.Second
)

// SubscriberDialer opens a fresh websocket connection.
type SubscriberDialer func(ctx context.Context) (LogSubscriber, error)

// LogStream follows swap logs over eth_subscribe. When no log arrives for
// IdleTimeout, or the subscription errors, it tears the connection down and
// subscribes again.
type LogStream struct {
	dial        SubscriberDialer
	query       ethereum.FilterQuery
	IdleTimeout time.Duration
	RetryDelay  time.Duration
}

func NewLogStream(dial SubscriberDialer, idleTimeout time.Duration) *LogStream {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &LogStream{
		dial:        dial,
		query:       ethereum.FilterQuery{Topics: SwapTopics()},
		IdleTimeout: idleTimeout,
		RetryDelay:  defaultRetryDelay,
	}
}

// Run delivers logs to sink until ctx is cancelled. Removed (reorged) logs are skipped.
func (s *LogStream) Run(ctx context.Context, sink func(customtypes.RawSwapLog)) error {
	for {
		err := s.follow(ctx, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warn("Log subscription interrupted: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryDelay):
		}
		logger.Info("Resubscribing to swap logs")
	}
}

// follow runs one connection. It returns nil on an idle timeout.
func (s *LogStream) follow(ctx context.Context, sink func(customtypes.RawSwapLog)) error {
	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	logs := make(chan types.Log, 256)
	sub, err := client.SubscribeFilterLogs(ctx, s.query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	logger.Info("Subscribed to swap logs")

	idle := time.NewTimer(s.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case <-idle.C:
			logger.Warn("No swap logs for %s, reconnecting", s.IdleTimeout)
			return nil
		case vLog := <-logs:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.IdleTimeout)
			if vLog.Removed {
				continue
			}
			sink(customtypes.RawSwapLogFromEthLog(vLog))
		}
	}
}
