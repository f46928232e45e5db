// crypto.go: 密码学相关的函数

package clientlib

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe/plaintext"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/misc"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v4/ckks"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// signByte() 是一个 Low-level 签名方法
func signByte(msg []byte, sk *ecdsa.PrivateKey) (sig []byte, e error) {
	hash := sha256.Sum256(msg)
	sig, e = ecdsa.SignASN1(rand.Reader, sk, hash[:])
	return
}

// EncryptInput 生成一个带证明的加密输入
// 输入：位宽，明文，提交者，签名私钥
// 输出：密文与证明。证明是对 ciphertext || submitter 的签名，只能由该提交者使用
func EncryptInput(w fhe.Width, v uint64, submitter uuid.UUID, sk *ecdsa.PrivateKey) (fhe.ExternalInput, error) {
	if sk == nil {
		return fhe.ExternalInput{}, errors.New("no signing key")
	}
	if !w.Fits(v) {
		return fhe.ExternalInput{}, errors.Errorf("%d does not fit %d bits", v, w)
	}
	ct := plaintext.Seal(w, uint256.NewInt(v))
	proof, err := signByte(fhe.InputMessage(ct, submitter), sk)
	if err != nil {
		return fhe.ExternalInput{}, errors.Wrap(err, "sign input")
	}
	return fhe.ExternalInput{Ciphertext: ct, Proof: proof}, nil
}

// CKKSDecryptAmounts 从查看密文中取出前 n 个 slot 的金额
// 输入：密文（rlwe.Ciphertext.MarshalBinary 的输出），私钥，个数
// 输出：四舍五入后的整数金额
func CKKSDecryptAmounts(ctBytes []byte, sk *rlwe.SecretKey, n int) (amounts []uint64, err error) {
	params := misc.GetCKKSParams()
	if n <= 0 || n > params.Slots() {
		return nil, errors.Errorf("cannot read %d slots", n)
	}
	if sk == nil {
		return nil, errors.New("no viewing secret key")
	}

	defer func() {
		if p := recover(); p != nil {
			amounts = nil
			err = errors.Errorf("decrypting export failed, got panic: %v", p)
		}
	}()

	ct, err := key.UnmarshalCKKSCipherText(ctBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse export ciphertext")
	}

	pt := ckks.NewDecryptor(params, sk).DecryptNew(ct)
	decoded := ckks.NewEncoder(params).Decode(pt, params.LogSlots())

	amounts = make([]uint64, n)
	for i := range amounts {
		amounts[i] = misc.CKKSMsgRound(real(decoded[i]))
	}
	return amounts, nil
}
