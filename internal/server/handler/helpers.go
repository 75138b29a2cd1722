package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
)

// maxBodyBytes caps request bodies; the largest is a market creation form.
const maxBodyBytes = 64 << 10

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
	// Required and Available are set for insufficient balance errors.
	Required  string `json:"required,omitempty"`
	Available string `json:"available,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	// Submission is attached when the failure happened after the calls
	// reached the wallet.
	Submission any `json:"submission,omitempty"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps err onto a status code and a message the UI can
// show inline. Unknown errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, submission any) {
	status, body := classify(err)
	body.Submission = submission
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		ibe *domain.InsufficientBalanceError
		ve  *domain.ValidationError
		rev *domain.RevertError
	)
	switch {
	case errors.As(err, &ibe):
		return http.StatusUnprocessableEntity, errorBody{
			Error:     ibe.Error(),
			Code:      "insufficient_balance",
			Required:  ibe.RequiredDisplay,
			Available: ibe.AvailableDisplay,
			Symbol:    ibe.Symbol,
		}
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: ve.Reason, Code: "validation", Field: ve.Field}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation"}
	case errors.Is(err, domain.ErrWalletRejected):
		return http.StatusConflict, errorBody{Error: "request rejected in wallet", Code: "rejected"}
	case errors.As(err, &rev):
		return http.StatusBadGateway, errorBody{Error: rev.Message, Code: "reverted"}
	case errors.Is(err, domain.ErrReverted):
		return http.StatusBadGateway, errorBody{Error: "transaction failed on-chain", Code: "reverted"}
	case errors.Is(err, domain.ErrAllowanceTooLow):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "allowance"}
	case errors.Is(err, domain.ErrDuplicateIntent):
		return http.StatusConflict, errorBody{Error: "intent already submitted", Code: "duplicate"}
	case errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict, errorBody{Error: "another submission is in progress", Code: "busy"}
	case errors.Is(err, domain.ErrNotRetryable):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "not_retryable"}
	case errors.Is(err, domain.ErrMissingPermission):
		return http.StatusForbidden, errorBody{Error: err.Error(), Code: "forbidden"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: "upstream rate limited", Code: "rate_limited"}
	case errors.Is(err, domain.ErrMalformedTuple):
		return http.StatusBadGateway, errorBody{Error: "contract returned unexpected data", Code: "malformed"}
	default:
		return http.StatusInternalServerError, errorBody{Error: err.Error()}
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid("body", "request body is empty")
		}
		return domain.Invalid("body", "%v", err)
	}
	return nil
}

// intentID prefers the id in the body and falls back to the
// Idempotency-Key header.
func intentID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 200), offset=0. since and until are RFC 3339.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{Limit: limit, Offset: offset}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, domain.Invalid(name, "must be an RFC 3339 timestamp")
		}
		*dst = &t
	}
	return opts, nil
}

// uintParam parses a non-negative integer path parameter.
func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, domain.Invalid(name, "must be a non-negative integer")
	}
	return v, nil
}

// versionParam parses a market version path parameter.
func versionParam(r *http.Request, name string) (domain.MarketVersion, error) {
	v := domain.MarketVersion(strings.ToLower(r.PathValue(name)))
	if !v.Valid() {
		return "", domain.Invalid(name, "unknown market version %q", v)
	}
	return v, nil
}
