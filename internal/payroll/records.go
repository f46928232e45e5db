package payroll

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/users"
	"github.com/google/uuid"
)

// CompensationReview 是审核流水线的工作记录，每个工资单同一时间只有一份，
// 重新发起审核会覆盖上一份
type CompensationReview struct {
	PayrollID ID        `json:"payrollId"`
	RequestID uuid.UUID `json:"requestId"`

	TotalCompensation fhe.Value `json:"totalCompensation"` // 64 位
	NetPay            fhe.Value `json:"netPay"`            // 64 位
	MarketPercentile  fhe.Value `json:"marketPercentile"`  // 64 位
	CompensationBand  fhe.Value `json:"compensationBand"`  // 8 位
	DecisionCode      fhe.Value `json:"decisionCode"`      // 8 位

	// 调整后的数字不参与解密，只在决定码为 Adjust 时写回工资单
	AdjustedTotalCompensation fhe.Value `json:"adjustedTotalCompensation"` // 128 位
	AdjustedNetPay            fhe.Value `json:"adjustedNetPay"`            // 128 位

	RequestedAt int64 `json:"requestedAt"`
	IsComplete  bool  `json:"isComplete"`
}

// DecryptionBatch 是一次审核解密请求的固定顺序
func (r *CompensationReview) DecryptionBatch() []fhe.Handle {
	return []fhe.Handle{
		r.TotalCompensation.Handle,
		r.NetPay.Handle,
		r.MarketPercentile.Handle,
		r.CompensationBand.Handle,
		r.DecisionCode.Handle,
	}
}

// ReviewBatchSize 是审核解密请求中的值个数
const ReviewBatchSize = 5

// DecryptedReview 是审核完成后的永久明文记录，只写入一次
type DecryptedReview struct {
	PayrollID         ID        `json:"payrollId"`
	RequestID         uuid.UUID `json:"requestId"`
	TotalCompensation uint64    `json:"totalCompensation"`
	NetPay            uint64    `json:"netPay"`
	MarketPercentile  uint64    `json:"marketPercentile"`
	CompensationBand  uint64    `json:"compensationBand"`
	DecisionCode      uint64    `json:"decisionCode"`
	DecryptedAt       int64     `json:"decryptedAt"`
}

// EmployeeProfile 在员工首次提交时创建，从不删除
type EmployeeProfile struct {
	users.User

	TotalEarned        fhe.Value `json:"totalEarned"`        // 128 位
	TotalTaxPaid       fhe.Value `json:"totalTaxPaid"`       // 128 位
	TotalBenefits      fhe.Value `json:"totalBenefits"`      // 128 位
	AveragePerformance fhe.Value `json:"averagePerformance"` // 64 位
	SalaryBand         fhe.Value `json:"salaryBand"`         // 8 位

	TotalPayrolls    uint64 `json:"totalPayrolls"`
	ReviewedPayrolls uint64 `json:"reviewedPayrolls"`
	PaidPayrolls     uint64 `json:"paidPayrolls"`

	JoinedAt      int64 `json:"joinedAt"`
	LastPaymentAt int64 `json:"lastPaymentAt"`
	LastReviewAt  int64 `json:"lastReviewAt"`
}

// DepartmentBudget 由财务角色创建；Remaining 在每次付款后按 Allocated - Spent 重新计算
type DepartmentBudget struct {
	users.Department

	Allocated     fhe.Value `json:"allocated"`     // 128 位
	Spent         fhe.Value `json:"spent"`         // 128 位
	Remaining     fhe.Value `json:"remaining"`     // 128 位
	EmployeeCount fhe.Value `json:"employeeCount"` // 32 位
	AverageSalary fhe.Value `json:"averageSalary"` // 64 位

	FiscalYear uint16 `json:"fiscalYear"`
	Active     bool   `json:"active"`
	CreatedAt  int64  `json:"createdAt"`
}

// PaymentRecord 只追加，创建后不再修改
type PaymentRecord struct {
	ID        uuid.UUID `json:"id"`
	PayrollID ID        `json:"payrollId"`
	Gross     fhe.Value `json:"gross"`
	Net       fhe.Value `json:"net"`
	Tax       fhe.Value `json:"tax"`
	Cycle     uint64    `json:"cycle"`
	Timestamp int64     `json:"timestamp"`
	Verified  bool      `json:"verified"`
}
