package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	coingeckoAPIURL     = "https://api.coingecko.com/api/v3"
	coingeckoTimeout    = 10 * time.Second
	coingeckoRetryDelay = time.Second
	coingeckoMaxRetries = 2
)

// CoinGeckoClient looks up token prices by Ethereum contract address.
type CoinGeckoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
}

// NewCoinGeckoClient builds a client; empty baseURL and zero timeout select the defaults.
func NewCoinGeckoClient(baseURL, apiKey string, timeout time.Duration) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoAPIURL
	}
	if timeout <= 0 {
		timeout = coingeckoTimeout
	}
	return &CoinGeckoClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxRetries: coingeckoMaxRetries,
		retryDelay: coingeckoRetryDelay,
	}
}

type contractResponse struct {
	MarketData struct {
		CurrentPrice struct {
			USD decimal.NullDecimal `json:"usd"`
		} `json:"current_price"`
	} `json:"market_data"`
}

// USDPrice implements Oracle. Any failure is logged and reported as zero.
func (c *CoinGeckoClient) USDPrice(ctx context.Context, tokenID string) decimal.Decimal {
	price, err := c.FetchContractUSD(ctx, tokenID)
	if err != nil {
		logger.Warn("CoinGecko price for %s unavailable: %v", tokenID, err)
		return decimal.Zero
	}
	return price
}

// FetchContractUSD returns market_data.current_price.usd for an ERC-20 contract.
func (c *CoinGeckoClient) FetchContractUSD(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/coins/ethereum/contract/%s", c.baseURL, strings.ToLower(tokenID))

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("create request to %s: %w", url, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, c.maxRetries, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d (attempt %d/%d)", resp.StatusCode, attempt+1, c.maxRetries)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return decimal.Zero, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var result contractResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return decimal.Zero, fmt.Errorf("decode response: %w", err)
		}

		usd := result.MarketData.CurrentPrice.USD
		if !usd.Valid || !usd.Decimal.IsPositive() {
			return decimal.Zero, fmt.Errorf("no usd price for %s", tokenID)
		}
		return usd.Decimal, nil
	}

	return decimal.Zero, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}
