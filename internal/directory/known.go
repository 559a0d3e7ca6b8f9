package directory

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

func factory(label, address string) types.Factory {
	return types.Factory{Label: label, Address: common.HexToAddress(address)}
}

func group(addresses ...string) types.AddressGroup {
	g := make(types.AddressGroup, 0, len(addresses))
	for _, a := range addresses {
		g = append(g, common.HexToAddress(a))
	}
	return g
}

// BalancerV2 uses a single vault on every chain; swaps are emitted by it.
const balancerV2Vault = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"

const uniswapV3Factory = "0x1F98431c8aD98523631AE4a59f267346ea31F984"

var knownChains = map[types.ChainID]Chain{
	types.ChainEthereum: {
		NativeAsset: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		SwapFactories: map[types.Protocol][]types.Factory{
			types.ProtocolUniswapV2: {
				factory("Uniswap", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
				factory("Sushiswap", "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"),
				factory("Shibaswap", "0x115934131916C8b277DD010Ee02de363c09d037c"),
				factory("Mooniswap", "0x71CD6666064C3A1354a3B4dca5fA1E2D3ee7D303"),
				factory("DefiSwap", "0x9DEB29c9a4c7A88a3C0257393b7f3335338D9A9D"),
				factory("SashimiSwap", "0xF028F723ED1D0fE01cC59973C49298AA95c57472"),
				factory("LuaSwap", "0x0388C1E0f210AbAe597B7DE712B9510C6C36C857"),
				factory("FraxSwap", "0x54F454D747e037Da288dB568D4121117EAb34e79"),
				factory("SakeSwap", "0x75e48C954594d64ef9613AeEF97Ad85370F13807"),
			},
			types.ProtocolUniswapV3: {
				factory("Uniswap", uniswapV3Factory),
			},
			types.ProtocolBalancerV1: {
				factory("Balancer", "0x9424B1412450D0f8Fc2255FAf6046b98213B76Bd"),
			},
			types.ProtocolBalancerV2: {
				factory("Balancer", balancerV2Vault),
			},
		},
		LendingPools: map[types.Protocol][]types.AddressGroup{
			types.ProtocolCompoundV2: {
				group("0x3d9819210A31b4961b30EF54bE2aeD79B9c9Cd3B"),
			},
			types.ProtocolAaveV2: {
				group("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9", "0x7937D4799803FbBe595ed57278Bc4cA21f3bFfCB"),
			},
			types.ProtocolAaveV3: {},
		},
	},
	types.ChainPolygon: {
		NativeAsset: common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
		SwapFactories: map[types.Protocol][]types.Factory{
			types.ProtocolUniswapV2: {
				factory("QuickSwap", "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"),
				factory("Sushiswap", "0xc35DADB65012eC5796536bD9864eD8773aBc74C4"),
			},
			types.ProtocolUniswapV3: {
				factory("Uniswap", uniswapV3Factory),
			},
			types.ProtocolBalancerV2: {
				factory("Balancer", balancerV2Vault),
			},
		},
		LendingPools: map[types.Protocol][]types.AddressGroup{
			types.ProtocolAaveV2: {
				group("0x8dFf5E27EA6b7AC08EbFdf9eB090F32ee9a30fcf", "0x7551b5D2763519d4e37e8B81929D336De671d46d"),
			},
			types.ProtocolAaveV3: {
				group("0x794a61358D6845594F94dc1DB02A252b5b4814aD", "0x69FA688f1Dc47d4B5d8029D5a35FB7a548310654"),
			},
		},
	},
	types.ChainArbitrum: {
		NativeAsset: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		SwapFactories: map[types.Protocol][]types.Factory{
			types.ProtocolUniswapV2: {
				factory("Sushiswap", "0xc35DADB65012eC5796536bD9864eD8773aBc74C4"),
			},
			types.ProtocolUniswapV3: {
				factory("Uniswap", uniswapV3Factory),
			},
			types.ProtocolBalancerV2: {
				factory("Balancer", balancerV2Vault),
			},
		},
		LendingPools: map[types.Protocol][]types.AddressGroup{
			types.ProtocolAaveV3: {
				group("0x794a61358D6845594F94dc1DB02A252b5b4814aD", "0x69FA688f1Dc47d4B5d8029D5a35FB7a548310654"),
			},
		},
	},
}
