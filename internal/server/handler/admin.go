package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/service"
)

// AdminService runs the admin dashboard actions.
type AdminService interface {
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (service.Submission, error)
	MarketAction(ctx context.Context, req service.MarketActionRequest) (service.Submission, error)
	Discover(ctx context.Context) (json.RawMessage, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ArchiveLister lists the history archives in object storage.
type ArchiveLister interface {
	Archives(ctx context.Context) ([]domain.BlobInfo, error)
}

// LeaderboardSource proxies the leaderboard document.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, query url.Values) (json.RawMessage, error)
}

// AdminHandler serves the admin and passthrough endpoints.
type AdminHandler struct {
	admin       AdminService
	leaderboard LeaderboardSource
	archives    ArchiveLister
	logger      *slog.Logger
}

// NewAdminHandler creates an AdminHandler. leaderboard and archives may be
// nil.
func NewAdminHandler(admin AdminService, leaderboard LeaderboardSource, archives ArchiveLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, leaderboard: leaderboard, archives: archives, logger: logHandler(logger, "admin")}
}

// CreateMarket submits a createMarket transaction.
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	if req.Version == "" {
		req.Version = domain.MarketV2
	}
	req.ID = intentID(r, req.ID)
	sub, err := h.admin.CreateMarket(r.Context(), req)
	h.writeSubmission(w, r, sub, err)
}

// MarketAction resolves, validates, invalidates or disputes a market.
// POST /api/admin/markets/{id}/{action}
func (h *AdminHandler) MarketAction(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	action, ok := adminActions[r.PathValue("action")]
	if !ok {
		writeServiceError(w, r, h.logger, domain.Invalid("action", "unknown admin action %q", r.PathValue("action")), nil)
		return
	}

	var req service.MarketActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, h.logger, err, nil)
			return
		}
	}
	if req.Version == "" {
		req.Version = domain.MarketVersion(r.URL.Query().Get("version"))
	}
	if req.Version == "" {
		req.Version = domain.MarketV2
	}
	req.MarketID = id
	req.Action = action
	req.ID = intentID(r, req.ID)

	sub, err := h.admin.MarketAction(r.Context(), req)
	h.writeSubmission(w, r, sub, err)
}

var adminActions = map[string]domain.ActionKind{
	"resolve":    domain.ActionResolveMarket,
	"validate":   domain.ActionValidate,
	"invalidate": domain.ActionInvalidate,
	"dispute":    domain.ActionDispute,
}

// Discover proxies the admin auto-discover document.
// GET /api/admin/discover
func (h *AdminHandler) Discover(w http.ResponseWriter, r *http.Request) {
	body, err := h.admin.Discover(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeRaw(w, body)
}

// AuditLog lists recorded admin actions.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	entries, err := h.admin.AuditLog(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Archives lists the purchase history archives.
// GET /api/admin/archives
func (h *AdminHandler) Archives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archive storage not configured")
		return
	}
	blobs, err := h.archives.Archives(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	if blobs == nil {
		blobs = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": blobs})
}

// Leaderboard proxies the leaderboard.
// GET /api/leaderboard
func (h *AdminHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if h.leaderboard == nil {
		writeError(w, http.StatusNotFound, "leaderboard not configured")
		return
	}
	body, err := h.leaderboard.Leaderboard(r.Context(), r.URL.Query())
	if err != nil {
		writeServiceError(w, r, h.logger, err, nil)
		return
	}
	writeRaw(w, body)
}

func (h *AdminHandler) writeSubmission(w http.ResponseWriter, r *http.Request, sub service.Submission, err error) {
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

func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
