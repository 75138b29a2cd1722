package contracts

// TokenABI is the ERC-20 surface the app touches, including the OpenZeppelin
// v5 custom errors so token reverts decode to names.
const TokenABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"error","name":"ERC20InsufficientBalance","inputs":[{"name":"sender","type":"address"},{"name":"balance","type":"uint256"},{"name":"needed","type":"uint256"}]},
	{"type":"error","name":"ERC20InsufficientAllowance","inputs":[{"name":"spender","type":"address"},{"name":"allowance","type":"uint256"},{"name":"needed","type":"uint256"}]}
]`

// MarketV1ABI is the binary-outcome market contract.
const MarketV1ABI = `[
	{"type":"function","name":"buyShares","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_isOptionA","type":"bool"},{"name":"_amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"createMarket","stateMutability":"nonpayable","inputs":[{"name":"_question","type":"string"},{"name":"_optionA","type":"string"},{"name":"_optionB","type":"string"},{"name":"_duration","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"resolveMarket","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"claimWinnings","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimFreeShares","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"getMarketInfo","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[
		{"name":"question","type":"string"},
		{"name":"optionA","type":"string"},
		{"name":"optionB","type":"string"},
		{"name":"endTime","type":"uint256"},
		{"name":"outcome","type":"uint8"},
		{"name":"totalOptionAShares","type":"uint256"},
		{"name":"totalOptionBShares","type":"uint256"},
		{"name":"resolved","type":"bool"}
	]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// MarketV2ABI is the multi-option LMSR market contract.
const MarketV2ABI = `[
	{"type":"function","name":"buyShares","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_optionId","type":"uint256"},{"name":"_quantity","type":"uint256"},{"name":"_maxPricePerShare","type":"uint256"},{"name":"_maxTotalCost","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"sellShares","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_optionId","type":"uint256"},{"name":"_quantity","type":"uint256"},{"name":"_minPricePerShare","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"createMarket","stateMutability":"nonpayable","inputs":[
		{"name":"_question","type":"string"},
		{"name":"_description","type":"string"},
		{"name":"_optionNames","type":"string[]"},
		{"name":"_optionDescriptions","type":"string[]"},
		{"name":"_duration","type":"uint256"},
		{"name":"_category","type":"uint8"},
		{"name":"_marketType","type":"uint8"},
		{"name":"_initialLiquidity","type":"uint256"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"resolveMarket","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_winningOptionId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"validateMarket","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"invalidateMarket","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"disputeMarket","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_reason","type":"string"}],"outputs":[]},
	{"type":"function","name":"claimFreeTokens","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimWinnings","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"calculateBuyCost","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_optionId","type":"uint256"},{"name":"_quantity","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"calculateSellPrice","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_optionId","type":"uint256"},{"name":"_quantity","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getMarketInfo","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[
		{"name":"question","type":"string"},
		{"name":"description","type":"string"},
		{"name":"endTime","type":"uint256"},
		{"name":"category","type":"uint8"},
		{"name":"optionCount","type":"uint256"},
		{"name":"resolved","type":"bool"},
		{"name":"disputed","type":"bool"},
		{"name":"marketType","type":"uint8"},
		{"name":"invalidated","type":"bool"},
		{"name":"winningOptionId","type":"uint256"},
		{"name":"creator","type":"address"},
		{"name":"validated","type":"bool"}
	]},
	{"type":"function","name":"getMarketOption","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_optionId","type":"uint256"}],"outputs":[
		{"name":"name","type":"string"},
		{"name":"description","type":"string"},
		{"name":"totalShares","type":"uint256"},
		{"name":"totalVolume","type":"uint256"},
		{"name":"currentPrice","type":"uint256"},
		{"name":"isActive","type":"bool"}
	]},
	{"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"error","name":"MarketNotValidated","inputs":[]},
	{"type":"error","name":"MarketEnded","inputs":[]},
	{"type":"error","name":"MarketNotEnded","inputs":[]},
	{"type":"error","name":"MarketAlreadyResolved","inputs":[]},
	{"type":"error","name":"MarketIsInvalidated","inputs":[]},
	{"type":"error","name":"InvalidMarket","inputs":[]},
	{"type":"error","name":"InvalidOption","inputs":[]},
	{"type":"error","name":"AmountMustBePositive","inputs":[]},
	{"type":"error","name":"PriceTooHigh","inputs":[]},
	{"type":"error","name":"PriceTooLow","inputs":[]},
	{"type":"error","name":"MaxCostExceeded","inputs":[]},
	{"type":"error","name":"InsufficientBalance","inputs":[]},
	{"type":"error","name":"InsufficientShares","inputs":[]},
	{"type":"error","name":"InsufficientLiquidity","inputs":[]},
	{"type":"error","name":"AlreadyClaimed","inputs":[]},
	{"type":"error","name":"NoWinningsToClaim","inputs":[]},
	{"type":"error","name":"TransferFailed","inputs":[]},
	{"type":"error","name":"AccessControlUnauthorizedAccount","inputs":[{"name":"account","type":"address"},{"name":"neededRole","type":"bytes32"}]},
	{"type":"error","name":"OwnableUnauthorizedAccount","inputs":[{"name":"account","type":"address"}]}
]`

// ViewsABI is the read-only helper contract.
const ViewsABI = `[
	{"type":"function","name":"getMarketOdds","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[{"name":"","type":"uint256[]"}]}
]`
