package key

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"math/big"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// --- ECDSA 公钥和私钥的 JSON 格式部分 --- //
// Pubkey : {'x': (string), 'y': (string), 'curve': (string)}
// Privkey: {'x': (string), 'y': (string), 'curve': (string), 'd': (string)}

type ECDSAPubkeyJSON struct {
	X     string `json:"x"`
	Y     string `json:"y"`
	Curve string `json:"curve"`
}

type ECDSAPrivateKeyJSON struct {
	ECDSAPubkeyJSON
	D string `json:"d"`
}

// getCurve 根据 curveName 获取并返回 elliptic.Curve
func getCurve(curveName string) (elliptic.Curve, error) {
	switch curveName {
	case "P-224":
		return elliptic.P224(), nil
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, errors.Errorf("unrecognized elliptic curve %q", curveName)
	}
}

func parseDecimal(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("failed to convert %s value to big.Int", field)
	}
	return v, nil
}

func (j ECDSAPubkeyJSON) toPublicKey() (*ecdsa.PublicKey, error) {
	curve, err := getCurve(j.Curve)
	if err != nil {
		return nil, err
	}
	x, err := parseDecimal("x", j.X)
	if err != nil {
		return nil, err
	}
	y, err := parseDecimal("y", j.Y)
	if err != nil {
		return nil, err
	}
	if !curve.IsOnCurve(x, y) {
		return nil, errors.New("public key is not on curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// EncodeECDSAPubkeyToJson 将 ecdsa.PublicKey 编码为 JSON
func EncodeECDSAPubkeyToJson(pubkey *ecdsa.PublicKey) []byte {
	jsonData, _ := json.Marshal(ECDSAPubkeyJSON{
		X:     pubkey.X.String(),
		Y:     pubkey.Y.String(),
		Curve: pubkey.Params().Name,
	})
	return jsonData
}

// DecodeJSONToECDSAPubkey 将 JSON 格式的公钥转换为 ecdsa.PublicKey
func DecodeJSONToECDSAPubkey(jsonData []byte) (*ecdsa.PublicKey, error) {
	var pkJSON ECDSAPubkeyJSON
	if err := json.Unmarshal(jsonData, &pkJSON); err != nil {
		return nil, err
	}
	return pkJSON.toPublicKey()
}

func EncodeECDSAPrivateKeyToJson(privkey *ecdsa.PrivateKey) []byte {
	var skJSON ECDSAPrivateKeyJSON
	skJSON.Curve = privkey.Params().Name
	skJSON.D = privkey.D.String()
	skJSON.X = privkey.X.String()
	skJSON.Y = privkey.Y.String()

	jsonData, _ := json.Marshal(skJSON)
	return jsonData
}

func DecodeJSONToECDSAPrivateKey(jsonData []byte) (*ecdsa.PrivateKey, error) {
	var skJSON ECDSAPrivateKeyJSON
	if err := json.Unmarshal(jsonData, &skJSON); err != nil {
		return nil, err
	}
	pk, err := skJSON.toPublicKey()
	if err != nil {
		return nil, err
	}
	d, err := parseDecimal("d", skJSON.D)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PrivateKey{PublicKey: *pk, D: d}, nil
}

// --- 密钥文件部分 --- //
// 客户端把整套密钥保存为一个 JSON 文件，CKKS 密钥以 MarshalBinary 的结果存放（JSON 中为 base64）

type keyChainJSON struct {
	Owner            uuid.UUID           `json:"owner"`
	ViewingID        uuid.UUID           `json:"viewingId"`
	ViewingSecretKey []byte              `json:"viewingSecretKey"`
	ViewingPublicKey []byte              `json:"viewingPublicKey"`
	SigningID        uuid.UUID           `json:"signingId"`
	SigningKey       ECDSAPrivateKeyJSON `json:"signingKey"`
}

func (kc *KeyChain) MarshalJSON() ([]byte, error) {
	out := keyChainJSON{
		Owner:            kc.Owner,
		ViewingID:        kc.Viewing.Identifier,
		ViewingSecretKey: MarshalCKKSPayload(kc.Viewing.SecretKey),
		ViewingPublicKey: MarshalCKKSPayload(kc.Viewing.PublicKey),
		SigningID:        kc.Signing.Identifier,
	}
	if err := json.Unmarshal(EncodeECDSAPrivateKeyToJson(kc.Signing.PrivateKey), &out.SigningKey); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (kc *KeyChain) UnmarshalJSON(data []byte) error {
	var in keyChainJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	sk, err := UnmarshalCKKSSecretKey(in.ViewingSecretKey)
	if err != nil {
		return errors.Wrap(err, "viewing secret key")
	}
	pk, err := UnmarshalCKKSPublicKey(in.ViewingPublicKey)
	if err != nil {
		return errors.Wrap(err, "viewing public key")
	}
	signingJSON, _ := json.Marshal(in.SigningKey)
	signing, err := DecodeJSONToECDSAPrivateKey(signingJSON)
	if err != nil {
		return errors.Wrap(err, "signing key")
	}

	*kc = KeyChain{
		Owner:   in.Owner,
		Viewing: ViewingKeyChain{Identifier: in.ViewingID, SecretKey: sk, PublicKey: pk},
		Signing: SigningKeyChain{Identifier: in.SigningID, PrivateKey: signing, PublicKey: &signing.PublicKey},
	}
	return nil
}

// SaveKeyChain 以 0600 权限写入密钥文件
func SaveKeyChain(path string, kc *KeyChain) error {
	data, err := json.MarshalIndent(kc, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "write key file")
}

func LoadKeyChain(path string) (*KeyChain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key file")
	}
	kc := new(KeyChain)
	if err := json.Unmarshal(data, kc); err != nil {
		return nil, errors.Wrap(err, "parse key file")
	}
	return kc, nil
}

// LoadECDSAPubkeyFile 读取 JSON 格式的公钥文件，服务端用它加载受信任的输入签名者
func LoadECDSAPubkeyFile(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read public key file")
	}
	return DecodeJSONToECDSAPubkey(data)
}
