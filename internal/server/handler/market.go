package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Market(ctx context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, error)
	Option(ctx context.Context, marketID, optionID uint64) (domain.OptionView, error)
}

// AccountService reads allowance and balance state.
type AccountService interface {
	State(ctx context.Context, owner string) (service.AccountView, error)
}

// MarketHandler serves market and account read endpoints.
type MarketHandler struct {
	markets  MarketService
	accounts AccountService
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, accounts AccountService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:  markets,
		accounts: accounts,
		logger:   logHandler(logger, "market"),
	}
}

// GetMarket returns a single market view.
// GET /api/markets/{version}/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	version, err := versionParam(r, "version")
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}

	view, err := h.markets.Market(r.Context(), version, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetOption returns one V2 market option.
// GET /api/markets/v2/{id}/options/{optionId}
func (h *MarketHandler) GetOption(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	optionID, err := uintParam(r, "optionId")
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}

	opt, err := h.markets.Option(r.Context(), id, optionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, opt)
}

// GetAccount returns balance and allowances of an address.
// GET /api/accounts/{address}
func (h *MarketHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	view, err := h.accounts.State(r.Context(), r.PathValue("address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
