package chain

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
)

// GenericRevertMessage is shown when a revert carries no decodable reason.
const GenericRevertMessage = "transaction failed on-chain"

// revertMessages maps contract custom error names to user-facing text.
var revertMessages = map[string]string{
	"MarketNotValidated":               "this market has not been validated yet",
	"MarketEnded":                      "this market has already ended",
	"MarketNotEnded":                   "this market has not ended yet",
	"MarketAlreadyResolved":            "this market is already resolved",
	"MarketIsInvalidated":              "this market was invalidated",
	"InvalidMarket":                    "market does not exist",
	"InvalidOption":                    "option does not exist",
	"AmountMustBePositive":             "amount must be greater than zero",
	"PriceTooHigh":                     "price moved above your slippage limit, try again",
	"PriceTooLow":                      "price moved below your slippage limit, try again",
	"MaxCostExceeded":                  "cost moved above your maximum, try again",
	"InsufficientBalance":              "insufficient token balance",
	"InsufficientShares":               "you do not hold enough shares",
	"InsufficientLiquidity":            "not enough liquidity in this market",
	"AlreadyClaimed":                   "already claimed",
	"NoWinningsToClaim":                "nothing to claim",
	"TransferFailed":                   "token transfer failed",
	"AccessControlUnauthorizedAccount": "your account lacks the required role",
	"OwnableUnauthorizedAccount":       "only the contract owner can do this",
	"ERC20InsufficientBalance":         "insufficient token balance",
	"ERC20InsufficientAllowance":       "token allowance too low, approve first",
}

// HumanMessage returns the display text for a custom error name.
func HumanMessage(name string) string {
	if msg, ok := revertMessages[name]; ok {
		return msg
	}
	return GenericRevertMessage
}

// DecodeRevert turns raw revert data into a RevertError. Solidity
// Error(string) reasons are returned verbatim; custom errors are matched by
// selector against every contract in set. It returns nil for data that
// matches nothing.
func DecodeRevert(set *contracts.Set, data []byte) *domain.RevertError {
	if len(data) < 4 {
		return nil
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return &domain.RevertError{Message: reason}
	}
	if set == nil {
		return nil
	}
	for _, desc := range set.All() {
		for name, e := range desc.ABI.Errors {
			if bytes.Equal(e.ID[:4], data[:4]) {
				return &domain.RevertError{Name: name, Message: HumanMessage(name)}
			}
		}
	}
	return nil
}

// DecodeError extracts revert data from an RPC error and decodes it. A
// revert without recognizable data yields a generic RevertError; errors
// that are not reverts return nil.
func DecodeError(set *contracts.Set, err error) *domain.RevertError {
	if err == nil {
		return nil
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if data := revertData(de.ErrorData()); data != nil {
			if rev := DecodeRevert(set, data); rev != nil {
				return rev
			}
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return &domain.RevertError{Message: GenericRevertMessage}
	}
	return nil
}

func revertData(v any) []byte {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil
	}
	return data
}

// Wallet error codes (EIP-1193 and EIP-5792).
const (
	codeUserRejected          = 4001
	codeUnsupportedMethod     = 4200
	codeMethodNotFound        = -32601
	codeUnsupportedNonOptCap  = 5700
	codeAtomicityNotSupported = 5710
)

// IsUserRejection reports whether err is the wallet refusing to sign.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrWalletRejected) {
		return true
	}
	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == codeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

// IsCapabilityError reports whether err means the wallet cannot process a
// call bundle at all, as opposed to a bundle that reverted.
func IsCapabilityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrBatchUnsupported) {
		return true
	}
	var re rpc.Error
	if errors.As(err, &re) {
		switch re.ErrorCode() {
		case codeMethodNotFound, codeUnsupportedMethod, codeUnsupportedNonOptCap, codeAtomicityNotSupported:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "does not exist/is not available")
}
