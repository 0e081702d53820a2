package pubsub

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix; the block number is appended.
const DefaultSubject = "swap_events"

// BlockMessage is the payload published for each persisted block.
type BlockMessage struct {
	Block  uint64            `json:"block"`
	Events []types.SwapEvent `json:"events"`
}

// NATSPublisher publishes persisted swaps on "<subject>.<block>".
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, stderrors.New("nats url is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url,
		nats.Name("eth-swap-tracker"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS at %s, publishing on %s.<block>", url, subject)
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Subject returns the subject a block is published on.
func (p *NATSPublisher) Subject(block uint64) string {
	return p.subject + "." + strconv.FormatUint(block, 10)
}

func (p *NATSPublisher) PublishSwaps(ctx context.Context, block uint64, events []types.SwapEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(BlockMessage{Block: block, Events: events})
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", block, err)
	}
	if err := p.nc.Publish(p.Subject(block), data); err != nil {
		return fmt.Errorf("publish block %d: %w", block, err)
	}
	return nil
}

// Ready reports whether the NATS connection is up.
func (p *NATSPublisher) Ready() bool {
	return p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// Close drains pending publishes before closing. Safe to call more than once.
func (p *NATSPublisher) Close() error {
	if p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		logger.Error("Failed to drain NATS connection: %v", err)
		p.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}
	// Drain is asynchronous; wait for it so Close returns after the flush.
	for i := 0; i < 50 && !p.nc.IsClosed(); i++ {
		time.Sleep(20 * time.Millisecond)
	}
	logger.Info("NATS connection closed")
	return nil
}
