package misc

import (
	"github.com/tuneinsight/lattigo/v4/ckks"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// GetCKKSParams 返回方案中查看密钥使用的 CKKS 安全参数
func GetCKKSParams() ckks.Parameters {
	p, _ := ckks.NewParametersFromLiteral(ckks.PN12QP109)
	return p
}

// NewCiphertext 创建新的密文
func NewCiphertext() *rlwe.Ciphertext {
	params := GetCKKSParams()
	ct := ckks.NewCiphertext(params, 1, params.MaxLevel())
	return ct
}
