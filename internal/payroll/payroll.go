// 包 payroll 包含加密工资单账本的数据模型
package payroll

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/google/uuid"
)

// Compensation 是提交时由客户端加密的六项薪酬构成，均为 128 位
type Compensation struct {
	BaseSalary   fhe.Value `json:"baseSalary"`
	Bonus        fhe.Value `json:"bonus"`
	StockOptions fhe.Value `json:"stockOptions"`
	Benefits     fhe.Value `json:"benefits"`
	Overtime     fhe.Value `json:"overtime"`
	Commission   fhe.Value `json:"commission"`
}

// Components 按固定顺序返回六项构成
func (c Compensation) Components() []fhe.Value {
	return []fhe.Value{c.BaseSalary, c.Bonus, c.StockOptions, c.Benefits, c.Overtime, c.Commission}
}

// Deductions 是由费率派生的扣除项
type Deductions struct {
	Tax        fhe.Value `json:"tax"`
	Insurance  fhe.Value `json:"insurance"`
	Retirement fhe.Value `json:"retirement"`
	Other      fhe.Value `json:"other"`
}

func (d Deductions) Fields() []fhe.Value {
	return []fhe.Value{d.Tax, d.Insurance, d.Retirement, d.Other}
}

// Metrics 是加密的人事指标
type Metrics struct {
	PerformanceScore     fhe.Value `json:"performanceScore"`     // 16 位, 0-10000
	TenureMonths         fhe.Value `json:"tenureMonths"`         // 16 位
	PerformanceRating    fhe.Value `json:"performanceRating"`    // 8 位, 0-4
	WarningCount         fhe.Value `json:"warningCount"`         // 8 位
	PromotionEligibility fhe.Value `json:"promotionEligibility"` // 8 位, 0-10
	AttritionRisk        fhe.Value `json:"attritionRisk"`        // 8 位, 0-10
	DepartmentCode       fhe.Value `json:"departmentCode"`       // 32 位
	GradeLevel           fhe.Value `json:"gradeLevel"`           // 16 位
	BenefitTier          fhe.Value `json:"benefitTier"`          // 8 位
}

// Revealed 是解密回调写入的明文结果，IsEvaluated 之后不再改变
type Revealed struct {
	CompensationBand  uint64 `json:"compensationBand"`
	MarketPercentile  uint64 `json:"marketPercentile"`
	TotalCompensation uint64 `json:"totalCompensation"`
	NetPay            uint64 `json:"netPay"`
	DecisionCode      uint64 `json:"decisionCode"`
}

// Payroll 是账本的核心实体，一份提交的薪酬包对应一个 Payroll
// 时间戳均为 unix 秒，0 表示未设置
type Payroll struct {
	ID       ID              `json:"id"`
	Employee uuid.UUID       `json:"employee"`
	Level    EmploymentLevel `json:"level"`

	Compensation      Compensation `json:"compensation"`
	TotalCompensation fhe.Value    `json:"totalCompensation"`
	Deductions        Deductions   `json:"deductions"`
	NetPay            fhe.Value    `json:"netPay"`
	Metrics           Metrics      `json:"metrics"`

	Revealed Revealed `json:"revealed"`
	Status   Status   `json:"status"`

	SubmittedAt    int64 `json:"submittedAt"`
	ReviewedAt     int64 `json:"reviewedAt"`
	ApprovedAt     int64 `json:"approvedAt"`
	PaidAt         int64 `json:"paidAt"`
	LastAdjustedAt int64 `json:"lastAdjustedAt"`

	IsEvaluated        bool   `json:"isEvaluated"`
	IsPaid             bool   `json:"isPaid"`
	PaymentCycleNumber uint64 `json:"paymentCycleNumber"`
}

// Handles 返回工资单持有的全部密文，用于授权
func (p *Payroll) Handles() []fhe.Value {
	out := append([]fhe.Value{}, p.Compensation.Components()...)
	out = append(out, p.TotalCompensation, p.NetPay)
	out = append(out, p.Deductions.Fields()...)
	m := p.Metrics
	return append(out,
		m.PerformanceScore, m.TenureMonths, m.PerformanceRating, m.WarningCount,
		m.PromotionEligibility, m.AttritionRisk, m.DepartmentCode, m.GradeLevel, m.BenefitTier,
	)
}

// Summary 是工资单的明文视图
type Summary struct {
	ID                 ID              `json:"id"`
	Employee           uuid.UUID       `json:"employee"`
	Level              EmploymentLevel `json:"level"`
	Status             Status          `json:"status"`
	SubmittedAt        int64           `json:"submittedAt"`
	ReviewedAt         int64           `json:"reviewedAt"`
	ApprovedAt         int64           `json:"approvedAt"`
	PaidAt             int64           `json:"paidAt"`
	LastAdjustedAt     int64           `json:"lastAdjustedAt"`
	IsEvaluated        bool            `json:"isEvaluated"`
	IsPaid             bool            `json:"isPaid"`
	PaymentCycleNumber uint64          `json:"paymentCycleNumber"`
	Revealed           *Revealed       `json:"revealed,omitempty"`
}

func (p *Payroll) Summary() Summary {
	s := Summary{
		ID:                 p.ID,
		Employee:           p.Employee,
		Level:              p.Level,
		Status:             p.Status,
		SubmittedAt:        p.SubmittedAt,
		ReviewedAt:         p.ReviewedAt,
		ApprovedAt:         p.ApprovedAt,
		PaidAt:             p.PaidAt,
		LastAdjustedAt:     p.LastAdjustedAt,
		IsEvaluated:        p.IsEvaluated,
		IsPaid:             p.IsPaid,
		PaymentCycleNumber: p.PaymentCycleNumber,
	}
	if p.IsEvaluated {
		r := p.Revealed
		s.Revealed = &r
	}
	return s
}
