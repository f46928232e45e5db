package serverlib

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/CamberLoid/Chimata-Payroll/internal/misc"
	"github.com/tuneinsight/lattigo/v4/ckks"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// --- 签名部分 ---

// ValidateSignatureBase 验证 msg 的 sha256 摘要上的 ASN.1 ECDSA 签名
func ValidateSignatureBase(msg []byte, sig []byte, pk *ecdsa.PublicKey) (isValid bool) {
	if pk == nil || len(sig) == 0 {
		return false
	}
	hash := sha256.Sum256(msg)
	return ecdsa.VerifyASN1(pk, hash[:], sig)
}

// --- 查看密钥部分 ---

// SealAmountsForViewer 使用查看者提供的 CKKS 公钥重新加密一组金额
// 输入：金额，公钥（rlwe.PublicKey.MarshalBinary 的输出）
// 输出：密文（rlwe.Ciphertext.MarshalBinary 的输出），各金额依次占据一个 slot
func SealAmountsForViewer(amounts []uint64, viewingKey []byte) (ctOut []byte, err error) {
	if len(viewingKey) == 0 {
		return nil, fmt.Errorf("no viewing key supplied")
	}
	params := misc.GetCKKSParams()
	if len(amounts) == 0 || len(amounts) > params.Slots() {
		return nil, fmt.Errorf("cannot seal %d amounts into %d slots", len(amounts), params.Slots())
	}

	// 处理接下来可能出现的 panic，畸形的公钥在解析时也可能 panic
	defer func() {
		if p := recover(); p != nil {
			ctOut = nil
			err = fmt.Errorf("sealing for viewer failed, got panic: %v", p)
		}
	}()

	pk := rlwe.NewPublicKey(params.Parameters)
	if err = pk.UnmarshalBinary(viewingKey); err != nil {
		return nil, fmt.Errorf("viewing key parse failed: %w", err)
	}

	values := make([]float64, len(amounts))
	for i, a := range amounts {
		values[i] = float64(a)
	}
	pt := ckks.NewEncoder(params).EncodeNew(
		values, params.MaxLevel(), params.DefaultScale(), params.LogSlots(),
	)
	ct := ckks.NewEncryptor(params, pk).EncryptNew(pt)

	return ct.MarshalBinary()
}
