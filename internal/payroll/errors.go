package payroll

import "github.com/pkg/errors"

// 账本操作同步返回给调用者的错误类型，调用者通过 errors.Is 判断
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidPolicy     = errors.New("invalid policy")
	ErrInvalidParameters = errors.New("invalid parameters")
)
