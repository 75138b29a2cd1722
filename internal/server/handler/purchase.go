package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
	"github.com/alanyoungcy/policast/internal/service"
)

// PurchaseService runs submissions for the signing account.
type PurchaseService interface {
	Quote(ctx context.Context, req orchestrator.PurchaseRequest) (domain.PurchaseIntent, error)
	Purchase(ctx context.Context, req orchestrator.PurchaseRequest) (service.Submission, error)
	Retry(ctx context.Context, id string) (service.Submission, error)
	Sell(ctx context.Context, req orchestrator.SellRequest) (service.Submission, error)
	Claim(ctx context.Context, req orchestrator.ClaimRequest) (service.Submission, error)
	Get(ctx context.Context, id string) (domain.PurchaseRecord, error)
	History(ctx context.Context, account string, opts domain.ListOpts) ([]domain.PurchaseRecord, error)
}

// PurchaseHandler serves the trading endpoints.
type PurchaseHandler struct {
	purchases PurchaseService
	logger    *slog.Logger
}

// NewPurchaseHandler creates a PurchaseHandler.
func NewPurchaseHandler(purchases PurchaseService, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, logger: logHandler(logger, "purchase")}
}

// Quote prepares a purchase and returns the cost and slippage bounds
// without submitting.
// POST /api/purchases/quote
func (h *PurchaseHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.PurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	intent, err := h.purchases.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// Purchase prepares and submits a purchase. A partial success is a 200
// whose result carries retry_available.
// POST /api/purchases
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.PurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	req.ID = intentID(r, req.ID)
	sub, err := h.purchases.Purchase(r.Context(), req)
	h.writeSubmission(w, r, sub, err)
}

// Retry re-sends the action of a partially successful purchase.
// POST /api/purchases/{id}/retry
func (h *PurchaseHandler) Retry(w http.ResponseWriter, r *http.Request) {
	sub, err := h.purchases.Retry(r.Context(), r.PathValue("id"))
	h.writeSubmission(w, r, sub, err)
}

// Sell submits a V2 sell.
// POST /api/sells
func (h *PurchaseHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	req.ID = intentID(r, req.ID)
	sub, err := h.purchases.Sell(r.Context(), req)
	h.writeSubmission(w, r, sub, err)
}

// Claim submits a claim of free tokens or winnings.
// POST /api/claims
func (h *PurchaseHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	req.ID = intentID(r, req.ID)
	sub, err := h.purchases.Claim(r.Context(), req)
	h.writeSubmission(w, r, sub, err)
}

// List returns the purchase history of an account.
// GET /api/purchases?account=0x...&limit=50&offset=0
func (h *PurchaseHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	recs, err := h.purchases.History(r.Context(), r.URL.Query().Get("account"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	if recs == nil {
		recs = []domain.PurchaseRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"purchases": recs,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// Get returns one history record.
// GET /api/purchases/{id}
func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.purchases.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *PurchaseHandler) writeSubmission(w http.ResponseWriter, r *http.Request, sub service.Submission, err error) {
	if err != nil {
		var attached any
		if sub.Record.ID != "" {
			attached = sub
		}
		writeServiceError(w, r, h.logger, err, attached)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
