package payroll

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// ID 是 256 位的工资单标识符，可以由调用者指定，也可以由 NewID 派生
type ID [32]byte

// NewID 派生内容寻址的工资单标识符：keccak256(employee || nonce)
func NewID(employee uuid.UUID, nonce uint64) (id ID) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(employee[:])
	hasher.Write(n[:])
	copy(id[:], hasher.Sum(nil))
	return
}

func ParseID(s string) (id ID, err error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, errors.Wrap(ErrInvalidParameters, "payroll id is not hex")
	}
	if len(raw) != len(id) {
		return id, errors.Wrapf(ErrInvalidParameters, "payroll id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
