package misc

import "math"

// CKKSMsgRound 把 CKKS 解码得到的近似值还原为整数金额
func CKKSMsgRound(v float64) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(math.Round(v))
}
