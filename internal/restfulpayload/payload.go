// 包 restfulpayload 是客户端与服务端之间的 JSON 请求和响应结构体。
// 调用者身份通过 PrincipalHeader 传递，二进制字段（密文、证明、公钥）在 JSON 中为 base64。
package restfulpayload

import (
	"encoding/json"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
)

// PrincipalHeader 携带调用者的 uuid
const PrincipalHeader = "X-Chimata-Principal"

const (
	StatusOK     = "OK"
	StatusFailed = "failed"
)

// Response 是所有接口的统一响应
type Response struct {
	Status string          `json:"status"`
	Err    string          `json:"err,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// PayrollReq 只包含工资单 ID，用于所有单参数的工资单操作
type PayrollReq struct {
	ID payroll.ID `json:"id"`
}

// RequestReviewResp 返回解密请求 ID
type RequestReviewResp struct {
	RequestID uuid.UUID `json:"requestId"`
}

// RecordPaymentReq 中三个金额均为 128 位输入
type RecordPaymentReq struct {
	ID    payroll.ID        `json:"id"`
	Gross fhe.ExternalInput `json:"gross"`
	Net   fhe.ExternalInput `json:"net"`
	Tax   fhe.ExternalInput `json:"tax"`
}

type RecordPaymentResp struct {
	PaymentID uuid.UUID `json:"paymentId"`
}

// ExportReq 的 ViewingKey 为空时使用调用者登记过的查看公钥
type ExportReq struct {
	ID         payroll.ID `json:"id"`
	ViewingKey []byte     `json:"viewingKey,omitempty"`
}

type EmployeeReq struct {
	Employee uuid.UUID `json:"employee"`
}

type DepartmentReq struct {
	DepartmentID uint32 `json:"departmentId"`
}

type DepartmentActiveReq struct {
	DepartmentID uint32 `json:"departmentId"`
	Active       bool   `json:"active"`
}

type CycleResp struct {
	Cycle uint64 `json:"cycle"`
}

// RoleReq 的 Role 取值为 hr、finance、payroll-processor、oracle
type RoleReq struct {
	Principal uuid.UUID `json:"principal"`
	Role      string    `json:"role"`
}

// RegisterViewingKeyReq 登记调用者的 CKKS 查看公钥（rlwe.PublicKey.MarshalBinary 的输出）
type RegisterViewingKeyReq struct {
	ViewingKey []byte `json:"viewingKey"`
}
