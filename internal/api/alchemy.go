package api

import (
	"fmt"
	"strings"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AlchemyWebhookEvent is the envelope of an Alchemy custom (GraphQL) webhook.
type AlchemyWebhookEvent struct {
	WebhookID string `json:"webhookId"`
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	Type      string `json:"type"`
	Event     struct {
		Data struct {
			Block AlchemyBlock `json:"block"`
		} `json:"data"`
	} `json:"event"`
}

type AlchemyBlock struct {
	Hash      string       `json:"hash"`
	Number    uint64       `json:"number"`
	Timestamp uint64       `json:"timestamp"`
	Logs      []AlchemyLog `json:"logs"`
}

type AlchemyLog struct {
	Data    string   `json:"data"`
	Topics  []string `json:"topics"`
	Index   uint     `json:"index"`
	Account struct {
		Address string `json:"address"`
	} `json:"account"`
	Transaction *AlchemyTransaction `json:"transaction"`
}

type AlchemyTransaction struct {
	Hash string `json:"hash"`
	From struct {
		Address string `json:"address"`
	} `json:"from"`
	// Status is 1 for success; absent when the query did not select it.
	Status *int         `json:"status"`
	Logs   []AlchemyLog `json:"logs"`
}

// RawLogs flattens the block into raw logs. A log whose transaction also
// lists its own logs is expanded into those, once per transaction; failed
// transactions are skipped.
func (b AlchemyBlock) RawLogs() ([]types.RawSwapLog, error) {
	if b.Number == 0 {
		return nil, fmt.Errorf("webhook payload has no block number")
	}

	out := make([]types.RawSwapLog, 0, len(b.Logs))
	expanded := map[string]bool{}
	for i, l := range b.Logs {
		tx := l.Transaction
		if tx == nil {
			return nil, fmt.Errorf("log %d has no transaction", i)
		}
		if tx.Status != nil && *tx.Status != 1 {
			continue
		}

		nested := tx.Logs
		if len(nested) == 0 {
			nested = []AlchemyLog{l}
		} else {
			hash := strings.ToLower(tx.Hash)
			if expanded[hash] {
				continue
			}
			expanded[hash] = true
		}
		for _, n := range nested {
			raw, err := b.rawLog(n, tx)
			if err != nil {
				return nil, fmt.Errorf("log %d: %w", i, err)
			}
			out = append(out, raw)
		}
	}
	return out, nil
}

func (b AlchemyBlock) rawLog(l AlchemyLog, tx *AlchemyTransaction) (types.RawSwapLog, error) {
	var data []byte
	if l.Data != "" {
		decoded, err := hexutil.Decode(l.Data)
		if err != nil {
			return types.RawSwapLog{}, fmt.Errorf("invalid data: %w", err)
		}
		data = decoded
	}

	topics := make([]common.Hash, 0, len(l.Topics))
	for _, t := range l.Topics {
		raw, err := hexutil.Decode(t)
		if err != nil || len(raw) != common.HashLength {
			return types.RawSwapLog{}, fmt.Errorf("invalid topic %q", t)
		}
		topics = append(topics, common.BytesToHash(raw))
	}

	return types.RawSwapLog{
		BlockNumber:     b.Number,
		BlockHash:       common.HexToHash(b.Hash),
		TransactionHash: common.HexToHash(tx.Hash),
		LogIndex:        l.Index,
		PoolAddress:     common.HexToAddress(l.Account.Address),
		Topics:          topics,
		Data:            data,
		FromAddress:     common.HexToAddress(tx.From.Address),
		BlockTimestamp:  b.Timestamp,
	}, nil
}
