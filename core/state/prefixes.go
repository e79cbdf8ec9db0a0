package state

import "fmt"

// State key namespaces. Every persisted record lives under one of these
// prefixes so module data cannot collide.
var (
	accountPrefix       = "accounts/"
	lendingMarketKey    = []byte("lending/market")
	lendingPosPrefix    = "lending/position/"
	creditRecordPrefix  = "credit/record/"
	liquidityPosPrefix  = "liquidity/position/"
	creditScorePrefix   = "credit/score/"
	lendingAllowListKey = []byte("lending/allowlist")
)

func accountKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", accountPrefix, addr))
}

func lendingPositionKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", lendingPosPrefix, addr))
}

func creditRecordKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", creditRecordPrefix, addr))
}

func creditScoreKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", creditScorePrefix, addr))
}

func liquidityPositionKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", liquidityPosPrefix, addr))
}
