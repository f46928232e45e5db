// 包 fhe 定义了账本所依赖的同态加密整数能力。
// 账本只看到不透明的句柄（Handle），具体方案由 Provider 实现决定：
// 可以是真实的 FHE 协处理器，也可以是测试用的明文替身（见 fhe/plaintext）。
package fhe

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	ErrProofVerification = errors.New("fhe: input proof verification failed")
	ErrUnknownHandle     = errors.New("fhe: unknown handle")
	ErrAccessDenied      = errors.New("fhe: principal not allowed to use handle")
	ErrWidthMismatch     = errors.New("fhe: operand width mismatch")
	ErrDivisionByZero    = errors.New("fhe: division by zero plaintext")
	ErrInvalidWidth      = errors.New("fhe: invalid width")
)

// Width 是密文整数的位宽
type Width uint8

const (
	W8   Width = 8
	W16  Width = 16
	W32  Width = 32
	W64  Width = 64
	W128 Width = 128
)

func (w Width) Valid() bool {
	switch w {
	case W8, W16, W32, W64, W128:
		return true
	}
	return false
}

// Max returns 2^w - 1.
func (w Width) Max() *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(w))
	return m.SubUint64(m, 1)
}

// Fits reports whether v is representable at width w.
func (w Width) Fits(v uint64) bool {
	if w >= W64 {
		return true
	}
	return v < uint64(1)<<uint(w)
}

// Handle 是密文在 Provider 内部的标识符
type Handle [32]byte

func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil || len(raw) != len(h) {
		return errors.Errorf("fhe: malformed handle %q", text)
	}
	copy(h[:], raw)
	return nil
}

// Value 是一个带位宽的加密整数
type Value struct {
	Handle Handle `json:"handle"`
	Width  Width  `json:"width"`
}

// IsZero reports whether the value was never assigned.
func (v Value) IsZero() bool {
	return v.Handle.IsZero()
}

// Bool 是比较运算的加密结果
type Bool struct {
	Handle Handle `json:"handle"`
}

// ExternalInput 是客户端提交的密文以及有效性证明
type ExternalInput struct {
	Ciphertext []byte `json:"ciphertext"`
	Proof      []byte `json:"proof"`
}

// InputMessage 是输入证明所签名的消息：ciphertext || submitter。
// 证明与提交者绑定，其他人无法重放同一份密文。
func InputMessage(ciphertext []byte, submitter uuid.UUID) []byte {
	msg := make([]byte, 0, len(ciphertext)+len(submitter))
	msg = append(msg, ciphertext...)
	return append(msg, submitter[:]...)
}

// Provider 是同态加密整数能力。
// 运算方法与 lattigo 的 Evaluator 一样，在误用时 panic（未知句柄、位宽不匹配、除零），
// 调用者需要自行 recover。
type Provider interface {
	EncryptConst(w Width, v uint64) Value
	FromExternal(w Width, in ExternalInput, submitter uuid.UUID) (Value, error)

	Add(a, b Value) Value
	Sub(a, b Value) Value
	Mul(a, b Value) Value
	Div(a Value, divisor uint64) Value

	Ge(a, b Value) Bool
	Le(a, b Value) Bool
	Eq(a, b Value) Bool
	And(a, b Bool) Bool
	Select(cond Bool, a, b Value) Value

	// Cast reinterprets a at width w, truncating modulo 2^w when narrowing.
	Cast(a Value, w Width) Value

	Allow(h Handle, p uuid.UUID)
	IsAllowed(h Handle, p uuid.UUID) bool

	// Decrypt reveals h synchronously to an allowed principal.
	Decrypt(h Handle, p uuid.UUID) (*uint256.Int, error)
}
