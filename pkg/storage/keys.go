package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so each state family is one range scan,
// with zero-padded numeric components for lexicographic ordering.
const (
	prefixBalance = "bal:"  // bal:{asset}:{user} -> amount
	prefixOrder   = "ord:"  // ord:{id} -> order JSON
	prefixFilled  = "fill:" // fill:{id} -> 1
	prefixCancel  = "cxl:"  // cxl:{id} -> 1
	prefixEvent   = "evt:"  // evt:{seq} -> event record JSON
	keyOrderCount = "meta:ordercount"
	keySeq        = "meta:seq"
)

func balanceKey(asset, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), user.Hex()))
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func filledKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixFilled, id))
}

func cancelledKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixCancel, id))
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
