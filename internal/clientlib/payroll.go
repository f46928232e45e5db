package clientlib

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/pkg/errors"
)

// PayrollInput 是工资单的明文输入，提交前逐项加密
type PayrollInput struct {
	BaseSalary   uint64 `json:"baseSalary"`
	Bonus        uint64 `json:"bonus"`
	StockOptions uint64 `json:"stockOptions"`
	Benefits     uint64 `json:"benefits"`
	Overtime     uint64 `json:"overtime"`
	Commission   uint64 `json:"commission"`

	PerformanceScore  uint64 `json:"performanceScore"`
	TenureMonths      uint64 `json:"tenureMonths"`
	PerformanceRating uint64 `json:"performanceRating"`
	WarningCount      uint64 `json:"warningCount"`
	BenefitTier       uint64 `json:"benefitTier"`
	DepartmentCode    uint64 `json:"departmentCode"`
	GradeLevel        uint64 `json:"gradeLevel"`
}

// BuildSubmission 加密全部字段并组装提交请求
func (u User) BuildSubmission(id payroll.ID, level payroll.EmploymentLevel, in PayrollInput) (ledger.Submission, error) {
	s := ledger.Submission{ID: id, Level: level, EmployeeName: u.UserName}
	fields := []struct {
		name  string
		dst   *fhe.ExternalInput
		width fhe.Width
		value uint64
	}{
		{"baseSalary", &s.BaseSalary, fhe.W128, in.BaseSalary},
		{"bonus", &s.Bonus, fhe.W128, in.Bonus},
		{"stockOptions", &s.StockOptions, fhe.W128, in.StockOptions},
		{"benefits", &s.Benefits, fhe.W128, in.Benefits},
		{"overtime", &s.Overtime, fhe.W128, in.Overtime},
		{"commission", &s.Commission, fhe.W128, in.Commission},
		{"performanceScore", &s.PerformanceScore, fhe.W16, in.PerformanceScore},
		{"tenureMonths", &s.TenureMonths, fhe.W16, in.TenureMonths},
		{"performanceRating", &s.PerformanceRating, fhe.W8, in.PerformanceRating},
		{"warningCount", &s.WarningCount, fhe.W8, in.WarningCount},
		{"benefitTier", &s.BenefitTier, fhe.W8, in.BenefitTier},
		{"departmentCode", &s.DepartmentCode, fhe.W32, in.DepartmentCode},
		{"gradeLevel", &s.GradeLevel, fhe.W16, in.GradeLevel},
	}
	for _, f := range fields {
		enc, err := u.Encrypt(f.width, f.value)
		if err != nil {
			return ledger.Submission{}, errors.Wrapf(err, "encrypt %s", f.name)
		}
		*f.dst = enc
	}
	return s, nil
}

// BuildPayment 加密一次付款的三个金额
func (u User) BuildPayment(gross, net, tax uint64) (in ledger.PaymentInput, err error) {
	if in.Gross, err = u.Encrypt(fhe.W128, gross); err != nil {
		return in, errors.Wrap(err, "encrypt gross")
	}
	if in.Net, err = u.Encrypt(fhe.W128, net); err != nil {
		return in, errors.Wrap(err, "encrypt net")
	}
	if in.Tax, err = u.Encrypt(fhe.W128, tax); err != nil {
		return in, errors.Wrap(err, "encrypt tax")
	}
	return in, nil
}

// BuildDepartment 加密部门预算
func (u User) BuildDepartment(id uint32, name string, fiscalYear uint16, allocated uint64) (ledger.DepartmentInput, error) {
	enc, err := u.Encrypt(fhe.W128, allocated)
	if err != nil {
		return ledger.DepartmentInput{}, errors.Wrap(err, "encrypt allocated budget")
	}
	return ledger.DepartmentInput{DepartmentID: id, Name: name, FiscalYear: fiscalYear, Allocated: enc}, nil
}
