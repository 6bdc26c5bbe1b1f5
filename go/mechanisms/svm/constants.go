package svm

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// SchemeExact is the scheme identifier for exact payments.
	SchemeExact = "exact"

	// DefaultDecimals is the decimal count for USDC, the only asset wired
	// into the default network table.
	DefaultDecimals = 6

	// DefaultComputeUnitPriceMicrolamports is the priority fee a client
	// attaches by default.
	DefaultComputeUnitPriceMicrolamports = 1

	// MaxComputeUnitPriceMicrolamports bounds what a facilitator will accept
	// at verify time: 5 lamports/CU.
	MaxComputeUnitPriceMicrolamports = 5_000_000

	// DefaultComputeUnitLimit covers a three-instruction transfer with room
	// to spare.
	DefaultComputeUnitLimit uint32 = 8000

	// DistributionComputeUnitLimit covers a single-instruction distribution
	// transfer issued per recipient during split settlement.
	DistributionComputeUnitLimit uint32 = 4000

	DefaultCommitment = rpc.CommitmentConfirmed

	MaxConfirmAttempts = 30
	ConfirmRetryDelay  = 1 * time.Second

	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"

	USDCMainnetAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetAddress  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

var (
	// NetworkConfigs maps a CAIP-2 network id to its RPC endpoint and the
	// assets this module knows how to price and settle on it.
	NetworkConfigs = map[string]NetworkConfig{
		SolanaMainnetCAIP2: {
			Name:   "Solana Mainnet",
			CAIP2:  SolanaMainnetCAIP2,
			RPCURL: "https://api.mainnet-beta.solana.com",
			DefaultAsset: AssetInfo{
				Address:  USDCMainnetAddress,
				Symbol:   "USDC",
				Decimals: DefaultDecimals,
			},
		},
		SolanaDevnetCAIP2: {
			Name:   "Solana Devnet",
			CAIP2:  SolanaDevnetCAIP2,
			RPCURL: "https://api.devnet.solana.com",
			DefaultAsset: AssetInfo{
				Address:  USDCDevnetAddress,
				Symbol:   "USDC",
				Decimals: DefaultDecimals,
			},
		},
	}
)
