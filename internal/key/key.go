// 包 key 包含了方案中用到的密码学密钥：
// 签名输入证明的 ECDSA 密钥，以及用于导出审核结果的 CKKS 查看密钥
package key

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/CamberLoid/Chimata-Payroll/internal/misc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v4/ckks"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// ViewingKeyChain 是查看密钥对。公钥交给服务端导出审核结果，私钥留在客户端。
type ViewingKeyChain struct {
	Identifier uuid.UUID
	SecretKey  *rlwe.SecretKey
	PublicKey  *rlwe.PublicKey
}

// SigningKeyChain 是输入签名密钥对，公钥登记为服务端信任的输入签名者
type SigningKeyChain struct {
	Identifier uuid.UUID
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

type KeyChain struct {
	Owner   uuid.UUID
	Viewing ViewingKeyChain
	Signing SigningKeyChain
}

// GenerateKeyChain 为 owner 生成一套完整的密钥
func GenerateKeyChain(owner uuid.UUID) (*KeyChain, error) {
	signing, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return &KeyChain{
		Owner:   owner,
		Viewing: GenerateViewingKey(),
		Signing: signing,
	}, nil
}

// GenerateSigningKey 生成输入签名用的 P-256 密钥对
func GenerateSigningKey() (SigningKeyChain, error) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return SigningKeyChain{}, errors.Wrap(err, "generate ecdsa key")
	}
	return SigningKeyChain{
		Identifier: uuid.New(),
		PrivateKey: sk,
		PublicKey:  &sk.PublicKey,
	}, nil
}

// GenerateViewingKey 生成 CKKS 查看密钥对
func GenerateViewingKey() ViewingKeyChain {
	params := misc.GetCKKSParams()
	sk, pk := ckks.NewKeyGenerator(params).GenKeyPair()
	return ViewingKeyChain{
		Identifier: uuid.New(),
		SecretKey:  sk,
		PublicKey:  pk,
	}
}
