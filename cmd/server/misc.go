package main

import (
	"crypto/ecdsa"
	"net/http"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/pkg/errors"
)

// loadSigners 读取受信任的输入签名公钥
func loadSigners(paths []string) ([]*ecdsa.PublicKey, error) {
	out := make([]*ecdsa.PublicKey, 0, len(paths))
	for _, p := range paths {
		pk, err := key.LoadECDSAPubkeyFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "signer %s", p)
		}
		out = append(out, pk)
	}
	return out, nil
}

// statusCodeOf 把账本错误映射为 HTTP 状态码
func statusCodeOf(err error) int {
	switch {
	case errors.Is(err, payroll.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payroll.ErrAlreadyExists), errors.Is(err, payroll.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, payroll.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, payroll.ErrInvalidPolicy), errors.Is(err, payroll.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, fhe.ErrProofVerification):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
