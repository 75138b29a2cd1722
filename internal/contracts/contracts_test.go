package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenAddr = "0x1111111111111111111111111111111111111111"
	v1Addr    = "0x2222222222222222222222222222222222222222"
	v2Addr    = "0x3333333333333333333333333333333333333333"
)

func TestLoad(t *testing.T) {
	set, err := Load(Addresses{Token: tokenAddr, MarketV1: v1Addr, MarketV2: v2Addr})
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(tokenAddr), set.Token.Address)
	assert.Equal(t, common.HexToAddress(v2Addr), set.MarketV2.Address)
	assert.Equal(t, common.Address{}, set.Views.Address)
	assert.Len(t, set.All(), 3)

	for _, name := range []string{"balanceOf", "allowance", "approve", "decimals", "symbol"} {
		_, ok := set.Token.ABI.Methods[name]
		assert.True(t, ok, "token method %s", name)
	}
	for _, name := range []string{"MarketNotValidated", "MarketEnded", "PriceTooHigh", "InsufficientBalance"} {
		_, ok := set.MarketV2.ABI.Errors[name]
		assert.True(t, ok, "v2 error %s", name)
	}
}

func TestLoadRejectsMissingAndInvalid(t *testing.T) {
	_, err := Load(Addresses{Token: "not-an-address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token: invalid address")
	assert.Contains(t, err.Error(), "market_v2: address is required")
}

func TestPackBuySharesV2(t *testing.T) {
	set, err := Load(Addresses{Token: tokenAddr, MarketV2: v2Addr})
	require.NoError(t, err)

	data, err := set.MarketV2.Pack("buyShares",
		big.NewInt(7), big.NewInt(1), big.NewInt(100), big.NewInt(55), big.NewInt(51))
	require.NoError(t, err)
	assert.Len(t, data, 4+5*32)
	assert.Equal(t, set.MarketV2.ABI.Methods["buyShares"].ID, data[:4])

	_, err = set.MarketV2.Pack("buyShares", big.NewInt(7))
	assert.Error(t, err)
}

func TestRoleID(t *testing.T) {
	assert.Equal(t, [32]byte{}, DefaultAdminRole)
	assert.NotEqual(t, QuestionCreatorRole, QuestionResolveRole)
	assert.Equal(t, RoleID("MARKET_VALIDATOR_ROLE"), MarketValidatorRole)
}
