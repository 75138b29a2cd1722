package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/policast/internal/domain"
)

// TokenReader reads token state for an owner.
type TokenReader interface {
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context) (uint8, error)
	TokenSymbol(ctx context.Context) (string, error)
}

// AccountView is the balance and allowances of one owner against every
// market contract.
type AccountView struct {
	Owner      string                  `json:"owner"`
	Allowances []domain.AllowanceState `json:"allowances"`
}

// AccountService reads allowance and balance state. The orchestrator never
// uses these reads for decisions; they feed the API and the watcher.
type AccountService struct {
	token    TokenReader
	cache    domain.AccountCache
	spenders []common.Address
	logger   *slog.Logger
}

// NewAccountService creates an AccountService reporting allowances for the
// given spenders. cache may be nil.
func NewAccountService(token TokenReader, cache domain.AccountCache, spenders []common.Address, logger *slog.Logger) *AccountService {
	return &AccountService{
		token:    token,
		cache:    cache,
		spenders: spenders,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// State returns cached state when every spender is cached, otherwise it
// refreshes from the chain.
func (s *AccountService) State(ctx context.Context, owner string) (AccountView, error) {
	if !common.IsHexAddress(owner) {
		return AccountView{}, domain.Invalid("address", "%q is not an address", owner)
	}
	if s.cache != nil {
		view := AccountView{Owner: common.HexToAddress(owner).Hex()}
		for _, sp := range s.spenders {
			st, err := s.cache.GetAllowance(ctx, view.Owner, sp.Hex())
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					s.logger.WarnContext(ctx, "account cache read failed", slog.String("error", err.Error()))
				}
				return s.Refresh(ctx, owner)
			}
			view.Allowances = append(view.Allowances, st)
		}
		return view, nil
	}
	return s.Refresh(ctx, owner)
}

// Refresh reads balance and allowances from the chain and caches them.
func (s *AccountService) Refresh(ctx context.Context, owner string) (AccountView, error) {
	if !common.IsHexAddress(owner) {
		return AccountView{}, domain.Invalid("address", "%q is not an address", owner)
	}
	addr := common.HexToAddress(owner)

	balance, err := s.token.TokenBalance(ctx, addr)
	if err != nil {
		return AccountView{}, fmt.Errorf("account_service: balance: %w", err)
	}
	decimals, err := s.token.TokenDecimals(ctx)
	if err != nil {
		return AccountView{}, fmt.Errorf("account_service: decimals: %w", err)
	}
	symbol, err := s.token.TokenSymbol(ctx)
	if err != nil {
		symbol = ""
	}

	now := time.Now().UTC()
	view := AccountView{Owner: addr.Hex()}
	for _, sp := range s.spenders {
		allowance, err := s.token.Allowance(ctx, addr, sp)
		if err != nil {
			return AccountView{}, fmt.Errorf("account_service: allowance for %s: %w", sp.Hex(), err)
		}
		st := domain.AllowanceState{
			Owner:            addr.Hex(),
			Spender:          sp.Hex(),
			CurrentAllowance: allowance,
			Balance:          balance,
			Decimals:         decimals,
			Symbol:           symbol,
			ReadAt:           now,
		}
		if s.cache != nil {
			if err := s.cache.SetAllowance(ctx, st); err != nil {
				s.logger.WarnContext(ctx, "account cache write failed", slog.String("error", err.Error()))
			}
		}
		view.Allowances = append(view.Allowances, st)
	}
	return view, nil
}

// RefreshAccount is Refresh for callers that only need the cache warmed.
func (s *AccountService) RefreshAccount(ctx context.Context, owner string) error {
	_, err := s.Refresh(ctx, owner)
	return err
}

// Invalidate drops every cached read of owner.
func (s *AccountService) Invalidate(ctx context.Context, owner string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateAccount(ctx, owner)
}
