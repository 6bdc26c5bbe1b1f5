package stellar

import "time"

const (
	SchemeExact = "exact"
	SchemeSplit = "split"

	DefaultTokenDecimals = 7

	DefaultTimeoutSeconds = 60
	DefaultMaxFeeStroops  = int64(1_000_000)

	DefaultEstimatedLedgerSeconds = 5
	RPCLedgersSampleSize          = 5

	StellarTestnetCAIP2 = "stellar:testnet"
	StellarPubnetCAIP2  = "stellar:pubnet"

	DefaultTestnetRPCURL = "https://soroban-testnet.stellar.org"

	TestnetPassphrase = "Test SDF Network ; September 2015"
	PubnetPassphrase  = "Public Global Stellar Network ; September 2015"

	SettleConfirmPollInterval = 2 * time.Second
)

// NetworkToPassphrase maps a CAIP-2 Stellar network id to the network
// passphrase used to sign transaction envelopes.
var NetworkToPassphrase = map[string]string{
	StellarTestnetCAIP2: TestnetPassphrase,
	StellarPubnetCAIP2:  PubnetPassphrase,
}
