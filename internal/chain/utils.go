package chain

import (
	"encoding/hex"
	"strconv"
)

func uintToStr(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func int64ToStr(n int64) string {
	return strconv.FormatInt(n, 10)
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
