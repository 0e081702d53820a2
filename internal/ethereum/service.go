package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ChainlinkETHUSDAddress is the mainnet ETH/USD aggregator.
const ChainlinkETHUSDAddress = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"

// EthereumServiceImpl implements the EthereumService interface
type EthereumServiceImpl struct {
	client         EthereumClient
	pairABI        abi.ABI
	erc20ABI       abi.ABI
	erc20LegacyABI abi.ABI
	aggregatorABI  abi.ABI
	priceFeed      common.Address
}

// NewEthereumService wraps a connected client. An empty priceFeed selects the mainnet ETH/USD feed.
func NewEthereumService(client EthereumClient, priceFeed string) (*EthereumServiceImpl, error) {
	if priceFeed == "" {
		priceFeed = ChainlinkETHUSDAddress
	}
	if !common.IsHexAddress(priceFeed) {
		return nil, fmt.Errorf("invalid price feed address %q", priceFeed)
	}

	s := &EthereumServiceImpl{client: client, priceFeed: common.HexToAddress(priceFeed)}
	for _, parsed := range []struct {
		dst  *abi.ABI
		name string
		json string
	}{
		{&s.pairABI, "Uniswap V2 Pair", UniswapV2PairABI},
		{&s.erc20ABI, "ERC20", erc20ABI},
		{&s.erc20LegacyABI, "ERC20 bytes32", erc20Bytes32ABI},
		{&s.aggregatorABI, "Chainlink aggregator", aggregatorV3ABI},
	} {
		a, err := abi.JSON(strings.NewReader(parsed.json))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", parsed.name, err)
		}
		*parsed.dst = a
	}
	return s, nil
}

// Close closes the Ethereum client connection
func (s *EthereumServiceImpl) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

const erc20ABI = `[{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"}]`

// Some early tokens (MKR, SAI) return symbol as bytes32.
const erc20Bytes32ABI = `[{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"bytes32"}],"payable":false,"stateMutability":"view","type":"function"}]`

const aggregatorV3ABI = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`
