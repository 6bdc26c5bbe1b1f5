package evm

import "math/big"

const (
	// DefaultDecimals is the decimal count for USDC, the only asset wired
	// into the default network table.
	DefaultDecimals = 6

	// FunctionTransferWithAuthorization is the EIP-3009 entry point every
	// exact-scheme settlement calls.
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionAuthorizationState        = "authorizationState"

	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// DefaultValidityPeriod is how long a client-signed authorization stays
	// redeemable, in seconds.
	DefaultValidityPeriod = 3600

	// EIP1271MagicValue is the bytes4 returned by isValidSignature on success.
	EIP1271MagicValue = "0x1626ba7e"

	ErrInvalidSignature            = "invalid_exact_evm_payload_signature"
	ErrUndeployedSmartWallet       = "invalid_exact_evm_payload_undeployed_smart_wallet"
	ErrSmartWalletDeploymentFailed = "smart_wallet_deployment_failed"
)

var (
	ChainIDMainnet     = big.NewInt(1)
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)

	// NetworkConfigs maps a CAIP-2 network id to its chain id and the assets
	// this module knows how to price and settle on it.
	NetworkConfigs = map[string]NetworkConfig{
		"eip155:1": {
			ChainID: ChainIDMainnet,
			DefaultAsset: AssetInfo{
				Address:         "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				Name:            "USD Coin",
				Version:         "2",
				Decimals:        DefaultDecimals,
				SupportsEIP3009: true,
			},
			SupportedAssets: map[string]AssetInfo{
				"USDC": {
					Address:         "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
					Name:            "USD Coin",
					Version:         "2",
					Decimals:        DefaultDecimals,
					SupportsEIP3009: true,
				},
			},
		},
		"eip155:8453": {
			ChainID: ChainIDBase,
			DefaultAsset: AssetInfo{
				Address:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				Name:            "USD Coin",
				Version:         "2",
				Decimals:        DefaultDecimals,
				SupportsEIP3009: true,
			},
			SupportedAssets: map[string]AssetInfo{
				"USDC": {
					Address:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
					Name:            "USD Coin",
					Version:         "2",
					Decimals:        DefaultDecimals,
					SupportsEIP3009: true,
				},
			},
		},
		"eip155:84532": {
			ChainID: ChainIDBaseSepolia,
			DefaultAsset: AssetInfo{
				Address:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				Name:            "USDC",
				Version:         "2",
				Decimals:        DefaultDecimals,
				SupportsEIP3009: true,
			},
			SupportedAssets: map[string]AssetInfo{
				"USDC": {
					Address:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
					Name:            "USDC",
					Version:         "2",
					Decimals:        DefaultDecimals,
					SupportsEIP3009: true,
				},
			},
		},
	}

	// TransferWithAuthorizationVRSABI is used for EOA-signed authorizations
	// where the signature is split into v, r, s.
	TransferWithAuthorizationVRSABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// TransferWithAuthorizationBytesABI is used for smart-wallet (EIP-1271 /
	// ERC-6492) signatures, which are passed through as a single bytes blob.
	TransferWithAuthorizationBytesABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "signature", "type": "bytes"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// AuthorizationStateABI lets a facilitator check whether a nonce has
	// already been redeemed before it attempts settlement.
	AuthorizationStateABI = []byte(`[
		{
			"inputs": [
				{"name": "authorizer", "type": "address"},
				{"name": "nonce", "type": "bytes32"}
			],
			"name": "authorizationState",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20ABI covers the read needed to confirm settlement balance movement
	// when a facilitator wants to double check a transfer beyond the receipt.
	ERC20ABI = []byte(`[
		{
			"constant": true,
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"name": "allowance",
			"outputs": [{"name": "", "type": "uint256"}],
			"payable": false,
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)
