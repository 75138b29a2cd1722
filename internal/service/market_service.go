package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/mapper"
)

// MarketReader is the chain surface the market views are built from.
type MarketReader interface {
	MarketInfo(ctx context.Context, version domain.MarketVersion, id uint64) ([]any, error)
	MarketOption(ctx context.Context, marketID, optionID uint64) ([]any, error)
	MarketOdds(ctx context.Context, id uint64) ([]*big.Int, error)
}

const optionFetchConcurrency = 8

// MarketService builds market views from chain reads, caching them for the
// API. The cache is only a read-through convenience; views are never
// mutated locally.
type MarketService struct {
	chain  MarketReader
	cache  domain.MarketViewCache
	now    func() time.Time
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(chain MarketReader, cache domain.MarketViewCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		chain:  chain,
		cache:  cache,
		now:    time.Now,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// Market returns the view of a market, from the cache when possible.
func (s *MarketService) Market(ctx context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, error) {
	if !version.Valid() {
		return domain.MarketView{}, domain.Invalid("version", "unknown market version %q", version)
	}
	if s.cache != nil {
		view, err := s.cache.Get(ctx, version, id)
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market cache read failed",
				slog.String("version", string(version)),
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	view, err := s.Fetch(ctx, version, id)
	if err != nil {
		return domain.MarketView{}, err
	}
	s.store(ctx, view)
	return view, nil
}

// Refresh re-reads a market, caches it and reports whether it differs from
// the previously cached view.
func (s *MarketService) Refresh(ctx context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, bool, error) {
	var prev *domain.MarketView
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, version, id); err == nil {
			prev = &v
		}
	}
	view, err := s.Fetch(ctx, version, id)
	if err != nil {
		return domain.MarketView{}, false, err
	}
	s.store(ctx, view)
	return view, prev == nil || !sameView(*prev, view), nil
}

// Fetch builds a view straight from the chain. V2 options are read
// concurrently and the views contract odds applied when available.
func (s *MarketService) Fetch(ctx context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, error) {
	raw, err := s.chain.MarketInfo(ctx, version, id)
	if err != nil {
		return domain.MarketView{}, fmt.Errorf("market_service: read market %s/%d: %w", version, id, err)
	}
	now := s.now().UTC()

	if version == domain.MarketV1 {
		view, err := mapper.MarketV1(id, raw, now)
		if err != nil {
			return domain.MarketView{}, err
		}
		view.FetchedAt = now
		return view, nil
	}

	view, err := mapper.MarketV2(id, raw, now)
	if err != nil {
		return domain.MarketView{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(optionFetchConcurrency)
	for i := range view.Options {
		g.Go(func() error {
			opt, err := s.Option(gctx, id, uint64(i))
			if err != nil {
				return err
			}
			view.Options[i] = opt
			return nil
		})
	}
	var odds []*big.Int
	g.Go(func() error {
		var err error
		odds, err = s.chain.MarketOdds(gctx, id)
		if err != nil {
			// Share proportions are an acceptable fallback.
			s.logger.WarnContext(gctx, "market odds unavailable",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
			odds = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.MarketView{}, err
	}

	view = mapper.ApplyOdds(view, odds)
	view.FetchedAt = now
	return view, nil
}

// Option returns one V2 option.
func (s *MarketService) Option(ctx context.Context, marketID, optionID uint64) (domain.OptionView, error) {
	raw, err := s.chain.MarketOption(ctx, marketID, optionID)
	if err != nil {
		return domain.OptionView{}, fmt.Errorf("market_service: read option %d/%d: %w", marketID, optionID, err)
	}
	return mapper.OptionV2(marketID, optionID, raw)
}

// Invalidate drops a cached view so the next read goes to the chain.
func (s *MarketService) Invalidate(ctx context.Context, version domain.MarketVersion, id uint64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, version, id)
}

func (s *MarketService) store(ctx context.Context, view domain.MarketView) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, view); err != nil {
		s.logger.WarnContext(ctx, "market cache write failed",
			slog.Uint64("market_id", view.ID),
			slog.String("error", err.Error()),
		)
	}
}

// sameView compares two views ignoring when they were fetched.
func sameView(a, b domain.MarketView) bool {
	a.FetchedAt, b.FetchedAt = time.Time{}, time.Time{}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
