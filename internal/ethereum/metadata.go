package ethereum

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PairTokens reads token0() and token1() from a Uniswap pool.
func (s *EthereumServiceImpl) PairTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	token0, err := s.callAddress(ctx, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := s.callAddress(ctx, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

// TokenMetadata reads symbol() and decimals() from an ERC-20 contract.
func (s *EthereumServiceImpl) TokenMetadata(ctx context.Context, token common.Address) (types.Token, error) {
	symbol, err := s.tokenSymbol(ctx, token)
	if err != nil {
		return types.Token{}, err
	}

	out, err := s.call(ctx, s.erc20ABI, token, "decimals")
	if err != nil {
		return types.Token{}, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return types.Token{}, &errors.EthereumError{Operation: "decimals", Err: fmt.Errorf("unexpected type %T", out[0])}
	}

	return types.Token{
		ID:       strings.ToLower(token.Hex()),
		Symbol:   symbol,
		Decimals: decimals,
	}, nil
}

func (s *EthereumServiceImpl) tokenSymbol(ctx context.Context, token common.Address) (string, error) {
	out, err := s.call(ctx, s.erc20ABI, token, "symbol")
	if err == nil {
		if symbol, ok := out[0].(string); ok {
			return symbol, nil
		}
	}

	legacy, legacyErr := s.call(ctx, s.erc20LegacyABI, token, "symbol")
	if legacyErr != nil {
		if err != nil {
			return "", err
		}
		return "", legacyErr
	}
	raw, ok := legacy[0].([32]byte)
	if !ok {
		return "", &errors.EthereumError{Operation: "symbol", Err: fmt.Errorf("unexpected type %T", legacy[0])}
	}
	return string(bytes.TrimRight(raw[:], "\x00")), nil
}

func (s *EthereumServiceImpl) callAddress(ctx context.Context, contract common.Address, method string) (common.Address, error) {
	out, err := s.call(ctx, s.pairABI, contract, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, &errors.EthereumError{Operation: method, Err: fmt.Errorf("unexpected type %T", out[0])}
	}
	return addr, nil
}

// call packs a no-argument view method and unpacks its outputs.
// An empty return means there is no such contract or method.
func (s *EthereumServiceImpl) call(ctx context.Context, contract abi.ABI, to common.Address, method string) ([]interface{}, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, &errors.EthereumError{Operation: "pack " + method, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, &errors.EthereumError{Operation: method, Err: err}
	}
	if len(result) == 0 {
		return nil, &errors.NotFoundError{Resource: method, Identifier: strings.ToLower(to.Hex())}
	}

	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, &errors.EthereumError{Operation: "unpack " + method, Err: err}
	}
	if len(out) == 0 {
		return nil, &errors.NotFoundError{Resource: method, Identifier: strings.ToLower(to.Hex())}
	}
	return out, nil
}
