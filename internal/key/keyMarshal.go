package key

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"

	"github.com/CamberLoid/Chimata-Payroll/internal/misc"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

type CKKSPayload interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

func MarshalECDSAPublicKey(pk *ecdsa.PublicKey) []byte {
	data, _ := x509.MarshalPKIXPublicKey(pk)
	return data
}

func UnmarshalECDSAPublicKey(data []byte) (pk *ecdsa.PublicKey, err error) {
	parsed, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return
	}
	switch v := parsed.(type) {
	case *ecdsa.PublicKey:
		return v, nil
	default:
		return nil, fmt.Errorf("not a ecdsa public key, got %T", v)
	}
}

func MarshalCKKSPayload(p CKKSPayload) []byte {
	data, _ := p.MarshalBinary()
	return data
}

func UnmarshalCKKSPublicKey(data []byte) (pk *rlwe.PublicKey, err error) {
	params := misc.GetCKKSParams()
	pk = rlwe.NewPublicKey(params.Parameters)
	if err = pk.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return
}

func UnmarshalCKKSSecretKey(data []byte) (sk *rlwe.SecretKey, err error) {
	params := misc.GetCKKSParams()
	sk = rlwe.NewSecretKey(params.Parameters)
	if err = sk.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return
}

func UnmarshalCKKSCipherText(data []byte) (ct *rlwe.Ciphertext, err error) {
	ct = misc.NewCiphertext()
	err = ct.UnmarshalBinary(data)
	return
}
