// 包 plaintext 提供 fhe.Provider 的明文替身：句柄背后保存的是明文值。
// 运算语义（按位宽取模、向下取整除法、比较、选择）与真实方案一致，
// 只用于测试和本地开发，不提供任何机密性。
package plaintext

import (
	"crypto/ecdsa"
	"encoding/binary"
	"sync"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/serverlib"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// sealedLen 是 Seal 输出的长度：1 字节位宽 + 16 字节大端数值
const sealedLen = 17

type entry struct {
	val    uint256.Int
	width  fhe.Width
	isBool bool
}

type Provider struct {
	mu      sync.Mutex
	salt    uuid.UUID
	seq     uint64
	values  map[fhe.Handle]*entry
	acl     map[fhe.Handle]map[uuid.UUID]struct{}
	signers []*ecdsa.PublicKey
}

// New 创建明文替身。signers 是输入证明的签发者公钥，
// FromExternal 只接受由其中之一签名的输入。
func New(signers ...*ecdsa.PublicKey) *Provider {
	return &Provider{
		salt:    uuid.New(),
		values:  make(map[fhe.Handle]*entry),
		acl:     make(map[fhe.Handle]map[uuid.UUID]struct{}),
		signers: signers,
	}
}

// Seal 把明文编码为替身能理解的“密文”
func Seal(w fhe.Width, v *uint256.Int) []byte {
	b := v.Bytes32()
	out := make([]byte, sealedLen)
	out[0] = byte(w)
	copy(out[1:], b[16:])
	return out
}

func unseal(ct []byte) (fhe.Width, *uint256.Int, error) {
	if len(ct) != sealedLen {
		return 0, nil, errors.Errorf("sealed input must be %d bytes, got %d", sealedLen, len(ct))
	}
	w := fhe.Width(ct[0])
	if !w.Valid() {
		return 0, nil, fhe.ErrInvalidWidth
	}
	return w, new(uint256.Int).SetBytes(ct[1:]), nil
}

// --- 构造 ---

func (p *Provider) EncryptConst(w fhe.Width, v uint64) fhe.Value {
	if !w.Valid() {
		panic(fhe.ErrInvalidWidth)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.put(uint256.NewInt(v), w)
}

func (p *Provider) FromExternal(w fhe.Width, in fhe.ExternalInput, submitter uuid.UUID) (fhe.Value, error) {
	if !p.verify(in, submitter) {
		return fhe.Value{}, fhe.ErrProofVerification
	}
	sw, v, err := unseal(in.Ciphertext)
	if err != nil {
		return fhe.Value{}, errors.Wrap(fhe.ErrProofVerification, err.Error())
	}
	if sw != w {
		return fhe.Value{}, errors.Wrapf(fhe.ErrProofVerification, "input sealed at width %d, expected %d", sw, w)
	}
	if v.Gt(w.Max()) {
		return fhe.Value{}, errors.Wrapf(fhe.ErrProofVerification, "input overflows width %d", w)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.put(v, w), nil
}

func (p *Provider) verify(in fhe.ExternalInput, submitter uuid.UUID) bool {
	msg := fhe.InputMessage(in.Ciphertext, submitter)
	for _, pk := range p.signers {
		if serverlib.ValidateSignatureBase(msg, in.Proof, pk) {
			return true
		}
	}
	return false
}

// --- 运算 ---

func (p *Provider) Add(a, b fhe.Value) fhe.Value {
	return p.arith(a, b, func(z, x, y *uint256.Int) { z.Add(x, y) })
}

func (p *Provider) Sub(a, b fhe.Value) fhe.Value {
	return p.arith(a, b, func(z, x, y *uint256.Int) { z.Sub(x, y) })
}

func (p *Provider) Mul(a, b fhe.Value) fhe.Value {
	return p.arith(a, b, func(z, x, y *uint256.Int) { z.Mul(x, y) })
}

func (p *Provider) Div(a fhe.Value, divisor uint64) fhe.Value {
	if divisor == 0 {
		panic(fhe.ErrDivisionByZero)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	x := p.mustGet(a)
	return p.put(new(uint256.Int).Div(&x.val, uint256.NewInt(divisor)), x.width)
}

func (p *Provider) Ge(a, b fhe.Value) fhe.Bool {
	return p.compare(a, b, func(x, y *uint256.Int) bool { return !x.Lt(y) })
}

func (p *Provider) Le(a, b fhe.Value) fhe.Bool {
	return p.compare(a, b, func(x, y *uint256.Int) bool { return !x.Gt(y) })
}

func (p *Provider) Eq(a, b fhe.Value) fhe.Bool {
	return p.compare(a, b, func(x, y *uint256.Int) bool { return x.Eq(y) })
}

func (p *Provider) And(a, b fhe.Bool) fhe.Bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, y := p.mustGetBool(a), p.mustGetBool(b)
	return p.putBool(!x.val.IsZero() && !y.val.IsZero())
}

func (p *Provider) Select(cond fhe.Bool, a, b fhe.Value) fhe.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.mustGetBool(cond)
	x, y := p.mustGet(a), p.mustGet(b)
	if x.width != y.width {
		panic(fhe.ErrWidthMismatch)
	}
	if c.val.IsZero() {
		return p.put(&y.val, y.width)
	}
	return p.put(&x.val, x.width)
}

func (p *Provider) Cast(a fhe.Value, w fhe.Width) fhe.Value {
	if !w.Valid() {
		panic(fhe.ErrInvalidWidth)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	x := p.mustGet(a)
	return p.put(&x.val, w)
}

// --- 访问控制与解密 ---

func (p *Provider) Allow(h fhe.Handle, principal uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[h]; !ok {
		panic(errors.Wrap(fhe.ErrUnknownHandle, h.String()))
	}
	set, ok := p.acl[h]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		p.acl[h] = set
	}
	set[principal] = struct{}{}
}

func (p *Provider) IsAllowed(h fhe.Handle, principal uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.acl[h][principal]
	return ok
}

func (p *Provider) Decrypt(h fhe.Handle, principal uuid.UUID) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.values[h]
	if !ok {
		return nil, errors.Wrap(fhe.ErrUnknownHandle, h.String())
	}
	if _, ok := p.acl[h][principal]; !ok {
		return nil, errors.Wrapf(fhe.ErrAccessDenied, "%s for %s", h, principal)
	}
	return new(uint256.Int).Set(&e.val), nil
}

// Peek 绕过访问控制直接读取明文，仅供测试断言使用
func (p *Provider) Peek(h fhe.Handle) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.values[h]
	if !ok {
		return nil
	}
	return new(uint256.Int).Set(&e.val)
}

// --- Helper Func 部分 ---

func (p *Provider) arith(a, b fhe.Value, f func(z, x, y *uint256.Int)) fhe.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, y := p.mustGet(a), p.mustGet(b)
	if x.width != y.width {
		panic(errors.Wrapf(fhe.ErrWidthMismatch, "%d vs %d", x.width, y.width))
	}
	z := new(uint256.Int)
	f(z, &x.val, &y.val)
	return p.put(z, x.width)
}

func (p *Provider) compare(a, b fhe.Value, f func(x, y *uint256.Int) bool) fhe.Bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, y := p.mustGet(a), p.mustGet(b)
	if x.width != y.width {
		panic(errors.Wrapf(fhe.ErrWidthMismatch, "%d vs %d", x.width, y.width))
	}
	return p.putBool(f(&x.val, &y.val))
}

func (p *Provider) mustGet(v fhe.Value) *entry {
	e, ok := p.values[v.Handle]
	if !ok || e.isBool {
		panic(errors.Wrap(fhe.ErrUnknownHandle, v.Handle.String()))
	}
	return e
}

func (p *Provider) mustGetBool(b fhe.Bool) *entry {
	e, ok := p.values[b.Handle]
	if !ok || !e.isBool {
		panic(errors.Wrap(fhe.ErrUnknownHandle, b.Handle.String()))
	}
	return e
}

// put 按位宽取模后登记新句柄，调用者持有锁
func (p *Provider) put(v *uint256.Int, w fhe.Width) fhe.Value {
	e := &entry{width: w}
	e.val.And(v, w.Max())
	h := p.nextHandle(byte(w))
	p.values[h] = e
	return fhe.Value{Handle: h, Width: w}
}

func (p *Provider) putBool(b bool) fhe.Bool {
	e := &entry{isBool: true}
	if b {
		e.val.SetOne()
	}
	h := p.nextHandle(0)
	p.values[h] = e
	return fhe.Bool{Handle: h}
}

func (p *Provider) nextHandle(tag byte) (h fhe.Handle) {
	p.seq++
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], p.seq)
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(p.salt[:])
	hasher.Write(seq[:])
	copy(h[:], hasher.Sum(nil))
	h[31] = tag
	return
}
