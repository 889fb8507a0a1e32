package exchange

import "github.com/ethereum/go-ethereum/common"

// Asset identifies a fungible asset held on the exchange.
// The native coin uses the reserved zero address; every other asset is
// identified by its token contract address.
type Asset = common.Address

// NativeAsset is the sentinel address for the platform's base currency.
var NativeAsset = common.Address{}

// IsNative reports whether an asset is the native-coin sentinel.
func IsNative(asset Asset) bool {
	return asset == NativeAsset
}
