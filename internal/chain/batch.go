package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/policast/internal/domain"
)

// BatchVersion is the EIP-5792 request version sent with wallet_sendCalls.
const BatchVersion = "2.0.0"

type bundleCall struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

type sendCallsRequest struct {
	Version        string         `json:"version"`
	ChainID        *hexutil.Big   `json:"chainId"`
	From           common.Address `json:"from"`
	AtomicRequired bool           `json:"atomicRequired"`
	Calls          []bundleCall   `json:"calls"`
}

// SendCalls submits calls as one atomic wallet_sendCalls bundle and returns
// the bundle id. Errors are returned as-is so the caller can tell
// capability errors from rejections.
func (w *Wallet) SendCalls(ctx context.Context, calls []Call) (string, error) {
	if w.batch == nil {
		return "", fmt.Errorf("chain/batch: %w: no batch endpoint", domain.ErrBatchUnsupported)
	}
	req := sendCallsRequest{
		Version:        BatchVersion,
		ChainID:        (*hexutil.Big)(w.cfg.ChainID),
		From:           w.from,
		AtomicRequired: true,
		Calls:          make([]bundleCall, 0, len(calls)),
	}
	labels := make([]string, 0, len(calls))
	for _, c := range calls {
		v := c.Value
		if v == nil {
			v = new(big.Int)
		}
		req.Calls = append(req.Calls, bundleCall{To: c.To, Data: c.Data, Value: (*hexutil.Big)(v)})
		labels = append(labels, c.Label)
	}

	var raw json.RawMessage
	if err := w.batch.CallContext(ctx, &raw, "wallet_sendCalls", req); err != nil {
		return "", err
	}
	id, err := parseCallsID(raw)
	if err != nil {
		return "", fmt.Errorf("chain/batch: wallet_sendCalls: %w", err)
	}

	w.logger.InfoContext(ctx, "call bundle submitted",
		slog.String("calls_id", id),
		slog.String("calls", strings.Join(labels, ",")),
	)
	return id, nil
}

// parseCallsID accepts both the {"id": "..."} object of EIP-5792 v2 and the
// bare string returned by older wallets.
func parseCallsID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode calls id: %w", err)
	}
	if obj.ID == "" {
		return "", fmt.Errorf("empty calls id in %s", string(raw))
	}
	return obj.ID, nil
}

type callsStatusResponse struct {
	ID       string          `json:"id"`
	Status   json.RawMessage `json:"status"`
	Receipts []struct {
		Status          string         `json:"status"`
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
		TransactionHash common.Hash    `json:"transactionHash"`
	} `json:"receipts"`
}

// CallsStatus fetches the current state of a submitted bundle.
func (w *Wallet) CallsStatus(ctx context.Context, id string) (domain.BatchSubmissionResult, error) {
	if w.batch == nil {
		return domain.BatchSubmissionResult{}, fmt.Errorf("chain/batch: %w: no batch endpoint", domain.ErrBatchUnsupported)
	}
	var resp callsStatusResponse
	if err := w.batch.CallContext(ctx, &resp, "wallet_getCallsStatus", id); err != nil {
		return domain.BatchSubmissionResult{}, fmt.Errorf("chain/batch: wallet_getCallsStatus %s: %w", id, err)
	}
	state, err := parseBatchState(resp.Status)
	if err != nil {
		return domain.BatchSubmissionResult{}, fmt.Errorf("chain/batch: calls %s: %w", id, err)
	}

	out := domain.BatchSubmissionResult{CallsID: id, Status: state}
	for _, r := range resp.Receipts {
		out.Receipts = append(out.Receipts, domain.BatchReceipt{
			TxHash:    r.TransactionHash,
			Succeeded: receiptOK(r.Status),
			BlockNum:  uint64(r.BlockNumber),
		})
	}
	return out, nil
}

// parseBatchState maps EIP-5792 numeric codes (1xx pending, 2xx confirmed,
// 4xx-6xx failed) and legacy string statuses onto BatchState.
func parseBatchState(raw json.RawMessage) (domain.BatchState, error) {
	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		switch {
		case code >= 100 && code < 200:
			return domain.BatchPending, nil
		case code >= 200 && code < 300:
			return domain.BatchSuccess, nil
		case code >= 400 && code < 700:
			return domain.BatchFailure, nil
		default:
			return "", fmt.Errorf("unknown status code %d", code)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decode status %s: %w", string(raw), err)
	}
	switch strings.ToUpper(s) {
	case "PENDING":
		return domain.BatchPending, nil
	case "CONFIRMED", "SUCCESS":
		return domain.BatchSuccess, nil
	case "FAILED", "FAILURE", "REVERTED":
		return domain.BatchFailure, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func receiptOK(status string) bool {
	switch strings.ToLower(status) {
	case "0x1", "1", "success":
		return true
	default:
		return false
	}
}

type capability struct {
	Status    string `json:"status"`
	Supported bool   `json:"supported"`
}

// probeCapabilities asks the wallet whether it executes bundles atomically
// on the configured chain.
func (w *Wallet) probeCapabilities(ctx context.Context) (bool, error) {
	chainHex := hexutil.EncodeBig(w.cfg.ChainID)
	var resp map[string]map[string]capability
	if err := w.batch.CallContext(ctx, &resp, "wallet_getCapabilities", w.from, []string{chainHex}); err != nil {
		return false, err
	}
	caps, ok := resp[chainHex]
	if !ok {
		caps = resp["0x0"]
	}
	if c, ok := caps["atomic"]; ok {
		return c.Status == "supported" || c.Status == "ready", nil
	}
	if c, ok := caps["atomicBatch"]; ok {
		return c.Supported, nil
	}
	return false, nil
}
