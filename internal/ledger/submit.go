package ledger

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/compensation"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/users"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Submission 是提交工资单的全部输入，每个字段都是客户端加密的密文与证明
type Submission struct {
	ID    payroll.ID              `json:"id"`
	Level payroll.EmploymentLevel `json:"level"`

	// 128 位薪酬构成
	BaseSalary   fhe.ExternalInput `json:"baseSalary"`
	Bonus        fhe.ExternalInput `json:"bonus"`
	StockOptions fhe.ExternalInput `json:"stockOptions"`
	Benefits     fhe.ExternalInput `json:"benefits"`
	Overtime     fhe.ExternalInput `json:"overtime"`
	Commission   fhe.ExternalInput `json:"commission"`

	PerformanceScore  fhe.ExternalInput `json:"performanceScore"`  // 16 位
	TenureMonths      fhe.ExternalInput `json:"tenureMonths"`      // 16 位
	PerformanceRating fhe.ExternalInput `json:"performanceRating"` // 8 位
	WarningCount      fhe.ExternalInput `json:"warningCount"`      // 8 位
	BenefitTier       fhe.ExternalInput `json:"benefitTier"`       // 8 位
	DepartmentCode    fhe.ExternalInput `json:"departmentCode"`    // 32 位
	GradeLevel        fhe.ExternalInput `json:"gradeLevel"`        // 16 位

	// EmployeeName 只在员工首次提交时写入目录
	EmployeeName string `json:"employeeName,omitempty"`
}

// SubmitPayroll 创建 Draft 状态的工资单，调用者即为该工资单的员工
func (l *Ledger) SubmitPayroll(caller uuid.UUID, s Submission) (payroll.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s.ID.IsZero() {
		return payroll.Summary{}, errors.Wrap(payroll.ErrInvalidParameters, "zero payroll id")
	}
	if !s.Level.Valid() {
		return payroll.Summary{}, errors.Wrapf(payroll.ErrInvalidParameters, "employment level %d", s.Level)
	}
	if _, ok := l.payrolls[s.ID]; ok {
		return payroll.Summary{}, errors.Wrapf(payroll.ErrAlreadyExists, "payroll %s", s.ID)
	}

	p := &payroll.Payroll{ID: s.ID, Employee: caller, Level: s.Level}
	c, m := &p.Compensation, &p.Metrics
	err := l.materialize(caller, []inputSpec{
		{"baseSalary", &c.BaseSalary, fhe.W128, s.BaseSalary},
		{"bonus", &c.Bonus, fhe.W128, s.Bonus},
		{"stockOptions", &c.StockOptions, fhe.W128, s.StockOptions},
		{"benefits", &c.Benefits, fhe.W128, s.Benefits},
		{"overtime", &c.Overtime, fhe.W128, s.Overtime},
		{"commission", &c.Commission, fhe.W128, s.Commission},
		{"performanceScore", &m.PerformanceScore, fhe.W16, s.PerformanceScore},
		{"tenureMonths", &m.TenureMonths, fhe.W16, s.TenureMonths},
		{"performanceRating", &m.PerformanceRating, fhe.W8, s.PerformanceRating},
		{"warningCount", &m.WarningCount, fhe.W8, s.WarningCount},
		{"benefitTier", &m.BenefitTier, fhe.W8, s.BenefitTier},
		{"departmentCode", &m.DepartmentCode, fhe.W32, s.DepartmentCode},
		{"gradeLevel", &m.GradeLevel, fhe.W16, s.GradeLevel},
	})
	if err != nil {
		l.log.Warn("submission rejected", "id", s.ID, "employee", caller, "err", err)
		return payroll.Summary{}, err
	}

	d, err := compensation.Derive(l.fhe, p.Compensation, l.policy)
	if err != nil {
		return payroll.Summary{}, err
	}
	p.TotalCompensation = d.TotalCompensation
	p.Deductions = d.Deductions
	p.NetPay = d.NetPay
	m.PromotionEligibility = d.PromotionEligibility
	m.AttritionRisk = d.AttritionRisk

	now := l.timestamp()
	profile, isNew := l.employees[caller], false
	var headcount fhe.Value
	err = l.compute(func() {
		l.allow(caller, c.BaseSalary, c.Bonus, c.Benefits, c.Overtime)
		l.allowSelf(p.Handles()...)
		if profile == nil {
			isNew = true
			profile = l.newProfile(caller, s.EmployeeName, now)
			headcount = l.fhe.Add(l.agg.Headcount, l.fhe.EncryptConst(fhe.W32, 1))
			l.allowSelf(headcount)
		}
	})
	if err != nil {
		return payroll.Summary{}, err
	}

	// 提交
	p.Status = payroll.StatusDraft
	p.SubmittedAt = now
	l.payrolls[p.ID] = p
	l.employeePayrolls[caller] = append(l.employeePayrolls[caller], p.ID)
	if isNew {
		l.employees[caller] = profile
		l.agg.Headcount = headcount
		l.stats.EmployeeCount++
	}
	profile.TotalPayrolls++
	l.stats.PayrollCount++

	l.log.Info("payroll submitted", "id", p.ID, "employee", caller, "level", p.Level, "newEmployee", isNew)
	l.emit(Event{Kind: EventPayrollSubmitted, PayrollID: p.ID, Actor: caller, Status: p.Status})
	return p.Summary(), nil
}

// newProfile 创建累计值为零的员工档案，调用方负责 recover
func (l *Ledger) newProfile(employee uuid.UUID, name string, now int64) *payroll.EmployeeProfile {
	profile := &payroll.EmployeeProfile{
		User:               users.User{Identifier: employee, UserName: name},
		TotalEarned:        l.fhe.EncryptConst(fhe.W128, 0),
		TotalTaxPaid:       l.fhe.EncryptConst(fhe.W128, 0),
		TotalBenefits:      l.fhe.EncryptConst(fhe.W128, 0),
		AveragePerformance: l.fhe.EncryptConst(fhe.W64, 0),
		SalaryBand:         l.fhe.EncryptConst(fhe.W8, 0),
		JoinedAt:           now,
	}
	l.allowSelf(profile.TotalEarned, profile.TotalTaxPaid, profile.TotalBenefits,
		profile.AveragePerformance, profile.SalaryBand)
	l.allow(employee, profile.TotalEarned, profile.TotalTaxPaid, profile.TotalBenefits)
	return profile
}

// SubmitForReview: Draft -> Submitted，只有工资单的员工本人可以调用
func (l *Ledger) SubmitForReview(caller uuid.UUID, id payroll.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.getPayroll(id)
	if err != nil {
		return err
	}
	if p.Employee != caller {
		return errors.Wrapf(payroll.ErrUnauthorized, "%s does not own payroll %s", caller, id)
	}
	if err := requireStatus(p, payroll.StatusDraft); err != nil {
		return err
	}

	p.Status = payroll.StatusSubmitted
	l.log.Info("payroll submitted for review", "id", id)
	l.emit(Event{Kind: EventSubmittedForReview, PayrollID: id, Actor: caller, Status: p.Status})
	return nil
}

// BeginReview: Submitted -> UnderReview，需要 HR 角色
func (l *Ledger) BeginReview(caller uuid.UUID, id payroll.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionBeginReview); err != nil {
		return err
	}
	p, err := l.getPayroll(id)
	if err != nil {
		return err
	}
	if err := requireStatus(p, payroll.StatusSubmitted); err != nil {
		return err
	}

	p.Status = payroll.StatusUnderReview
	l.log.Info("review started", "id", id, "hr", caller)
	l.emit(Event{Kind: EventReviewStarted, PayrollID: id, Actor: caller, Status: p.Status})
	return nil
}
