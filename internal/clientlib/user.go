package clientlib

import (
	"errors"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/users"
)

// 继承 users.User
type User struct {
	users.User

	Keys *key.KeyChain
}

// NewUserWithKeys 创建新用户并生成一套密钥
func NewUserWithKeys(name string) (*User, error) {
	u := users.NewUserWithUserName(name)
	kc, err := key.GenerateKeyChain(u.Identifier)
	if err != nil {
		return nil, err
	}
	return &User{User: *u, Keys: kc}, nil
}

// ImportUserFromFile 从密钥文件恢复用户，用户标识取密钥文件的 Owner
func ImportUserFromFile(path string) (*User, error) {
	kc, err := key.LoadKeyChain(path)
	if err != nil {
		return nil, err
	}
	return &User{User: users.User{Identifier: kc.Owner}, Keys: kc}, nil
}

// checkSignAvailability() 检查是否可以签名
func (u User) checkSignAvailability() error {
	if u.Keys == nil {
		return errors.New("no keychain found")
	}
	if u.Keys.Signing.PrivateKey == nil {
		return errors.New("no ECDSA private key found")
	}
	return nil
}

// Encrypt 以自己的身份生成加密输入
func (u User) Encrypt(w fhe.Width, v uint64) (fhe.ExternalInput, error) {
	if err := u.checkSignAvailability(); err != nil {
		return fhe.ExternalInput{}, err
	}
	return EncryptInput(w, v, u.Identifier, u.Keys.Signing.PrivateKey)
}

// --- 解密部分 ---

// OpenExport 用自己的查看私钥打开导出的审核结果，按 exp.Slots 命名
func (u User) OpenExport(exp ledger.Export) (map[string]uint64, error) {
	if u.Keys == nil || u.Keys.Viewing.SecretKey == nil {
		return nil, errors.New("no viewing secret key found")
	}
	amounts, err := CKKSDecryptAmounts(exp.Ciphertext, u.Keys.Viewing.SecretKey, len(exp.Slots))
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(amounts))
	for i, name := range exp.Slots {
		out[name] = amounts[i]
	}
	return out, nil
}

// ViewingKey 返回登记给服务端的查看公钥
func (u User) ViewingKey() []byte {
	if u.Keys == nil || u.Keys.Viewing.PublicKey == nil {
		return nil
	}
	return key.MarshalCKKSPayload(u.Keys.Viewing.PublicKey)
}
