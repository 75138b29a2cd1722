package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
)

// Call is one contract call to be sent as a transaction or bundle entry.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	// Label names the call in logs ("approve", "buyShares", ...).
	Label string
}

// Receipt is the outcome of one mined transaction.
type Receipt struct {
	TxHash      common.Hash
	Succeeded   bool
	BlockNumber uint64
	GasUsed     uint64
	// Revert carries the decoded reason when Succeeded is false and the
	// call could be replayed.
	Revert *domain.RevertError
}

// Backend is the subset of ethclient.Client needed to send transactions.
type Backend interface {
	Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RPCCaller issues raw JSON-RPC requests; *rpc.Client satisfies it.
type RPCCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// WalletConfig tunes transaction building and batch detection.
type WalletConfig struct {
	ChainID             *big.Int
	GasHeadroomPct      uint64
	ReceiptPollInterval time.Duration
	// Connector identifies the wallet behind the batch RPC endpoint.
	Connector string
	// IncompatibleConnectors lists connectors known to mishandle bundles.
	IncompatibleConnectors []string
	BatchEnabled           bool
	// ProbeCapabilities confirms batch support with wallet_getCapabilities.
	ProbeCapabilities bool
}

// Wallet signs and broadcasts transactions for one account and, when a
// batch endpoint is configured, submits EIP-5792 call bundles.
type Wallet struct {
	backend Backend
	batch   RPCCaller
	key     *ecdsa.PrivateKey
	from    common.Address
	signer  types.Signer
	set     *contracts.Set
	cfg     WalletConfig
	logger  *slog.Logger

	// sendMu serializes nonce allocation.
	sendMu sync.Mutex

	sentMu sync.Mutex
	sent   map[common.Hash]Call

	capMu    sync.Mutex
	capProbe *bool
}

// NewWallet creates a Wallet. batch may be nil, in which case bundles are
// never attempted.
func NewWallet(backend Backend, batch RPCCaller, key *ecdsa.PrivateKey, set *contracts.Set, cfg WalletConfig, logger *slog.Logger) *Wallet {
	if cfg.GasHeadroomPct == 0 {
		cfg.GasHeadroomPct = 20
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	return &Wallet{
		backend: backend,
		batch:   batch,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(cfg.ChainID),
		set:     set,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "wallet")),
		sent:    make(map[common.Hash]Call),
	}
}

// Address returns the account the wallet signs for.
func (w *Wallet) Address() common.Address { return w.from }

// SendCall builds, signs and broadcasts an EIP-1559 transaction for call.
// A call that would revert is rejected at gas estimation with the decoded
// reason and never broadcast.
func (w *Wallet) SendCall(ctx context.Context, call Call) (common.Hash, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	msg := ethereum.CallMsg{From: w.from, To: &call.To, Data: call.Data, Value: call.Value}
	gas, err := w.backend.EstimateGas(ctx, msg)
	if err != nil {
		if rev := DecodeError(w.set, err); rev != nil {
			return common.Hash{}, fmt.Errorf("chain/wallet: %s: %w", call.Label, rev)
		}
		return common.Hash{}, fmt.Errorf("chain/wallet: estimate gas for %s: %w", call.Label, err)
	}
	gas += gas * w.cfg.GasHeadroomPct / 100

	nonce, err := w.backend.PendingNonceAt(ctx, w.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain/wallet: nonce: %w", err)
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain/wallet: tip cap: %w", err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain/wallet: latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &call.To,
		Value:     value,
		Data:      call.Data,
	})
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain/wallet: sign %s: %w", call.Label, err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain/wallet: send %s: %w", call.Label, err)
	}

	hash := signed.Hash()
	w.sentMu.Lock()
	w.sent[hash] = call
	w.sentMu.Unlock()

	w.logger.InfoContext(ctx, "transaction sent",
		slog.String("label", call.Label),
		slog.String("tx", hash.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return hash, nil
}

// WaitReceipt polls for the receipt of hash until it is mined or ctx ends.
// For a failed transaction the call is replayed against the inclusion
// block to recover the revert reason.
func (w *Wallet) WaitReceipt(ctx context.Context, hash common.Hash) (Receipt, error) {
	ticker := time.NewTicker(w.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		r, err := w.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return w.finish(ctx, hash, r), nil
		case errors.Is(err, ethereum.NotFound):
		default:
			return Receipt{}, fmt.Errorf("chain/wallet: receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Wallet) finish(ctx context.Context, hash common.Hash, r *types.Receipt) Receipt {
	w.sentMu.Lock()
	call, known := w.sent[hash]
	delete(w.sent, hash)
	w.sentMu.Unlock()

	out := Receipt{
		TxHash:    hash,
		Succeeded: r.Status == types.ReceiptStatusSuccessful,
		GasUsed:   r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if !out.Succeeded && known {
		out.Revert = w.replay(ctx, call, r.BlockNumber)
	}
	return out
}

// Explain simulates call from the wallet account at the latest block and
// returns the decoded revert, or nil when the call would succeed or the
// failure carries no reason.
func (w *Wallet) Explain(ctx context.Context, call Call) *domain.RevertError {
	return w.replay(ctx, call, nil)
}

func (w *Wallet) replay(ctx context.Context, call Call, block *big.Int) *domain.RevertError {
	msg := ethereum.CallMsg{From: w.from, To: &call.To, Data: call.Data, Value: call.Value}
	_, err := w.backend.CallContract(ctx, msg, block)
	if err == nil {
		return nil
	}
	rev := DecodeError(w.set, err)
	if rev == nil {
		w.logger.DebugContext(ctx, "replay failed without revert data",
			slog.String("label", call.Label),
			slog.String("error", err.Error()),
		)
	}
	return rev
}

// SupportsBatch reports whether bundles should be attempted. Batch must be
// enabled with an endpoint configured and the connector must not be on the
// incompatible list. When probing is on, wallet_getCapabilities must also
// report atomic support; the probe result is remembered.
func (w *Wallet) SupportsBatch(ctx context.Context) bool {
	if !w.cfg.BatchEnabled || w.batch == nil {
		return false
	}
	if slices.ContainsFunc(w.cfg.IncompatibleConnectors, func(c string) bool {
		return strings.EqualFold(c, w.cfg.Connector)
	}) {
		return false
	}
	if !w.cfg.ProbeCapabilities {
		return true
	}

	w.capMu.Lock()
	defer w.capMu.Unlock()
	if w.capProbe != nil {
		return *w.capProbe
	}
	ok, err := w.probeCapabilities(ctx)
	if err != nil && !IsCapabilityError(err) {
		// Transient probe failure: let SendCalls decide and probe again later.
		w.logger.WarnContext(ctx, "capability probe failed", slog.String("error", err.Error()))
		return true
	}
	w.capProbe = &ok
	return ok
}
