// Package chain wraps the JSON-RPC endpoint behind typed contract reads and
// the write primitives (single transactions and EIP-5792 call bundles) the
// orchestrator drives.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
)

// Caller is the read half of an ethclient.Client.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client performs typed contract reads. It is safe for concurrent use.
type Client struct {
	caller Caller
	set    *contracts.Set
	logger *slog.Logger

	mu       sync.Mutex
	decimals *uint8
	symbol   string
}

// NewClient creates a Client reading the contracts in set through caller.
func NewClient(caller Caller, set *contracts.Set, logger *slog.Logger) *Client {
	return &Client{
		caller: caller,
		set:    set,
		logger: logger.With(slog.String("component", "chain_client")),
	}
}

// Contracts returns the descriptor set the client was built with.
func (c *Client) Contracts() *contracts.Set { return c.set }

// ReadContract packs method with args, performs an eth_call against the
// latest block and returns the decoded outputs. Reverts are decoded against
// every known contract error.
func (c *Client) ReadContract(ctx context.Context, desc contracts.Descriptor, method string, args ...any) ([]any, error) {
	if desc.Address == (common.Address{}) {
		return nil, fmt.Errorf("chain/client: %s has no address configured", desc.Name)
	}
	data, err := desc.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := desc.Address
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if rev := DecodeError(c.set, err); rev != nil {
			return nil, fmt.Errorf("chain/client: %s.%s: %w", desc.Name, method, rev)
		}
		return nil, fmt.Errorf("chain/client: %s.%s: %w", desc.Name, method, err)
	}
	return desc.Unpack(method, raw)
}

// TokenBalance returns the token balance of owner in base units.
func (c *Client) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := c.ReadContract(ctx, c.set.Token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](out, "balanceOf")
}

// Allowance returns how much spender may transfer on behalf of owner.
func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := c.ReadContract(ctx, c.set.Token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](out, "allowance")
}

// TokenDecimals returns the token's declared decimals. The value is read
// once and remembered for the life of the client.
func (c *Client) TokenDecimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	if c.decimals != nil {
		d := *c.decimals
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	out, err := c.ReadContract(ctx, c.set.Token, "decimals")
	if err != nil {
		return 0, err
	}
	d, err := single[uint8](out, "decimals")
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.decimals = &d
	c.mu.Unlock()
	return d, nil
}

// TokenSymbol returns the token symbol, cached after the first read.
func (c *Client) TokenSymbol(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.symbol != "" {
		s := c.symbol
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	out, err := c.ReadContract(ctx, c.set.Token, "symbol")
	if err != nil {
		return "", err
	}
	s, err := single[string](out, "symbol")
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.symbol = s
	c.mu.Unlock()
	return s, nil
}

// QuoteBuy asks the V2 market what buying quantity shares of an option
// currently costs.
func (c *Client) QuoteBuy(ctx context.Context, marketID, optionID uint64, quantity *big.Int) (*big.Int, error) {
	out, err := c.ReadContract(ctx, c.set.MarketV2, "calculateBuyCost",
		new(big.Int).SetUint64(marketID), new(big.Int).SetUint64(optionID), quantity)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](out, "calculateBuyCost")
}

// QuoteSell asks the V2 market what selling quantity shares returns.
func (c *Client) QuoteSell(ctx context.Context, marketID, optionID uint64, quantity *big.Int) (*big.Int, error) {
	out, err := c.ReadContract(ctx, c.set.MarketV2, "calculateSellPrice",
		new(big.Int).SetUint64(marketID), new(big.Int).SetUint64(optionID), quantity)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](out, "calculateSellPrice")
}

// HasRole reports whether account holds role on the V2 market contract.
func (c *Client) HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error) {
	out, err := c.ReadContract(ctx, c.set.MarketV2, "hasRole", role, account)
	if err != nil {
		return false, err
	}
	return single[bool](out, "hasRole")
}

// Owner returns the owner of the market contract for version.
func (c *Client) Owner(ctx context.Context, version domain.MarketVersion) (common.Address, error) {
	desc, err := c.market(version)
	if err != nil {
		return common.Address{}, err
	}
	out, err := c.ReadContract(ctx, desc, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return single[common.Address](out, "owner")
}

// MarketInfo returns the raw getMarketInfo tuple for the mappers.
func (c *Client) MarketInfo(ctx context.Context, version domain.MarketVersion, id uint64) ([]any, error) {
	desc, err := c.market(version)
	if err != nil {
		return nil, err
	}
	return c.ReadContract(ctx, desc, "getMarketInfo", new(big.Int).SetUint64(id))
}

// MarketOption returns the raw getMarketOption tuple of a V2 option.
func (c *Client) MarketOption(ctx context.Context, marketID, optionID uint64) ([]any, error) {
	return c.ReadContract(ctx, c.set.MarketV2, "getMarketOption",
		new(big.Int).SetUint64(marketID), new(big.Int).SetUint64(optionID))
}

// MarketOdds returns the odds array from the views contract, scaled so 1e18
// is 100%. It returns nil without error when no views contract is
// configured.
func (c *Client) MarketOdds(ctx context.Context, id uint64) ([]*big.Int, error) {
	if c.set.Views.Address == (common.Address{}) {
		return nil, nil
	}
	out, err := c.ReadContract(ctx, c.set.Views, "getMarketOdds", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return single[[]*big.Int](out, "getMarketOdds")
}

func (c *Client) market(version domain.MarketVersion) (contracts.Descriptor, error) {
	switch version {
	case domain.MarketV1:
		return c.set.MarketV1, nil
	case domain.MarketV2:
		return c.set.MarketV2, nil
	default:
		return contracts.Descriptor{}, domain.Invalid("version", "unknown market version %q", version)
	}
}

// single asserts that out holds exactly one value of type T.
func single[T any](out []any, method string) (T, error) {
	var zero T
	if len(out) != 1 {
		return zero, fmt.Errorf("chain/client: %s: %w: want 1 output, got %d", method, domain.ErrMalformedTuple, len(out))
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("chain/client: %s: %w: unexpected output type %T", method, domain.ErrMalformedTuple, out[0])
	}
	return v, nil
}
