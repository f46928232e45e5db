package clientlib

import (
	"crypto/rand"
	"encoding/binary"
)

// GenNonce 生成随机的工资单 nonce，配合 payroll.NewID 使用
func GenNonce() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}
