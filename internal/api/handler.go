package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/pipeline"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const healthTimeout = 3 * time.Second

// Batcher is the ingestion side the webhook feeds and /status reports on.
type Batcher interface {
	Enqueue(ctx context.Context, log types.RawSwapLog) error
	Snapshot() pipeline.Status
}

// Store is the read side of the persister.
type Store interface {
	LatestBlock(ctx context.Context) (uint64, error)
	Ping(ctx context.Context) error
}

type AnchorStatus interface {
	Latest() (decimal.Decimal, uint64, bool)
}

// TopicFilter drops webhook logs that are not swaps before they are buffered.
type TopicFilter interface {
	Recognizes(topic common.Hash) bool
}

// Broker is an optional fan-out connection; nil when none is configured.
type Broker interface {
	Ready() bool
}

type Handler struct {
	Batcher Batcher
	Store   Store
	Anchor  AnchorStatus
	Filter  TopicFilter
	Broker  Broker
}

// Webhook accepts an Alchemy block notification and buffers its swap logs.
func (h *Handler) Webhook(c *gin.Context) {
	var event AlchemyWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.Error(&errors.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid webhook payload", Err: err})
		return
	}

	logs, err := event.Event.Data.Block.RawLogs()
	if err != nil {
		c.Error(&errors.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid webhook payload", Err: err})
		return
	}

	accepted := 0
	for _, l := range logs {
		if h.Filter != nil && !h.Filter.Recognizes(l.PrimaryTopic()) {
			continue
		}
		if err := h.Batcher.Enqueue(c.Request.Context(), l); err != nil {
			c.Error(&errors.APIError{StatusCode: http.StatusServiceUnavailable, Message: "Pipeline unavailable", Err: err})
			return
		}
		accepted++
	}

	logger.Debug("Webhook %s block %d: %d logs, %d accepted", event.ID, event.Event.Data.Block.Number, len(logs), accepted)
	c.JSON(http.StatusOK, gin.H{"received": len(logs), "accepted": accepted})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		logger.Warn("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
		return
	}

	// Publishing is best effort, so a lost broker degrades the service
	// without failing it.
	if h.Broker != nil && !h.Broker.Ready() {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "broker": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports the batcher state, the last persisted block, the anchor price
// and the broker connection.
func (h *Handler) Status(c *gin.Context) {
	latest, err := h.Store.LatestBlock(c.Request.Context())
	if err != nil {
		c.Error(&errors.DatabaseError{Operation: "read latest block", Err: err})
		return
	}

	anchor := gin.H{"known": false}
	if h.Anchor != nil {
		if price, block, ok := h.Anchor.Latest(); ok {
			anchor = gin.H{"known": true, "price_usd": price, "block": block}
		}
	}

	broker := gin.H{"configured": h.Broker != nil}
	if h.Broker != nil {
		broker["connected"] = h.Broker.Ready()
	}

	c.JSON(http.StatusOK, gin.H{
		"batcher":         h.Batcher.Snapshot(),
		"persisted_block": latest,
		"anchor":          anchor,
		"broker":          broker,
	})
}
