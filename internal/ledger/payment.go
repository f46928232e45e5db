package ledger

import (
	"fmt"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/compensation"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/users"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ApprovePayroll: {Approved | Adjusted} -> Scheduled，需要财务角色
func (l *Ledger) ApprovePayroll(caller uuid.UUID, id payroll.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionApprovePayroll); err != nil {
		return err
	}
	p, err := l.getPayroll(id)
	if err != nil {
		return err
	}
	if err := requireStatus(p, payroll.StatusApproved, payroll.StatusAdjusted); err != nil {
		return err
	}

	p.Status = payroll.StatusScheduled
	p.ApprovedAt = l.timestamp()
	l.log.Info("payroll approved", "id", id, "finance", caller)
	l.emit(Event{Kind: EventPayrollApproved, PayrollID: id, Actor: caller, Status: p.Status})
	return nil
}

// PaymentInput 是一次付款的三个 128 位加密金额
type PaymentInput struct {
	Gross fhe.ExternalInput `json:"gross"`
	Net   fhe.ExternalInput `json:"net"`
	Tax   fhe.ExternalInput `json:"tax"`
}

// RecordPayment 追加一条付款记录并更新员工、公司和部门的累计值。
// 部门代码在这里同步解密，这是全账本唯一不经过预言机的解密。
func (l *Ledger) RecordPayment(caller uuid.UUID, id payroll.ID, in PaymentInput) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionRecordPayment); err != nil {
		return uuid.Nil, err
	}
	p, err := l.getPayroll(id)
	if err != nil {
		return uuid.Nil, err
	}
	if err := requireStatus(p, payroll.StatusScheduled, payroll.StatusProcessing); err != nil {
		return uuid.Nil, err
	}

	rec := payroll.PaymentRecord{ID: uuid.New(), PayrollID: id}
	err = l.materialize(caller, []inputSpec{
		{"gross", &rec.Gross, fhe.W128, in.Gross},
		{"net", &rec.Net, fhe.W128, in.Net},
		{"tax", &rec.Tax, fhe.W128, in.Tax},
	})
	if err != nil {
		l.log.Warn("payment rejected", "id", id, "processor", caller, "err", err)
		return uuid.Nil, err
	}

	dept, isNewMember, err := l.resolveDepartment(p)
	if err != nil {
		return uuid.Nil, err
	}

	profile := l.employees[p.Employee]
	var (
		earned, taxPaid   fhe.Value
		expense, withheld fhe.Value
		spent, remaining  fhe.Value
		count, avgSalary  fhe.Value
		memberCount       uint64
	)
	if dept != nil {
		memberCount = uint64(len(l.departmentMembers[dept.DepartmentID]))
		if isNewMember {
			memberCount++
		}
	}
	err = l.compute(func() {
		l.allowSelf(rec.Gross, rec.Net, rec.Tax)
		l.allow(p.Employee, rec.Gross, rec.Net, rec.Tax)

		earned = l.fhe.Add(profile.TotalEarned, rec.Gross)
		taxPaid = l.fhe.Add(profile.TotalTaxPaid, rec.Tax)
		expense = l.fhe.Add(l.agg.TotalPayrollExpense, rec.Gross)
		withheld = l.fhe.Add(l.agg.TotalTaxWithheld, rec.Tax)
		l.allowSelf(earned, taxPaid, expense, withheld)
		l.allow(p.Employee, earned, taxPaid)

		if dept == nil {
			return
		}
		spent = l.fhe.Add(dept.Spent, rec.Gross)
		remaining = l.fhe.Sub(dept.Allocated, spent)
		l.allowSelf(spent, remaining)
		if isNewMember {
			count = l.fhe.Add(dept.EmployeeCount, l.fhe.EncryptConst(fhe.W32, 1))
			avgSalary = compensation.RunningAverage(l.fhe, dept.AverageSalary, p.Compensation.BaseSalary, memberCount)
			l.allowSelf(count, avgSalary)
		}
	})
	if err != nil {
		return uuid.Nil, err
	}

	// 提交
	now := l.timestamp()
	rec.Cycle = l.stats.CurrentPaymentCycle
	rec.Timestamp = now
	rec.Verified = true
	l.payments[id] = append(l.payments[id], rec)
	if p.Status == payroll.StatusScheduled {
		p.Status = payroll.StatusProcessing
	}

	profile.TotalEarned, profile.TotalTaxPaid = earned, taxPaid
	profile.LastPaymentAt = now
	l.agg.TotalPayrollExpense, l.agg.TotalTaxWithheld = expense, withheld
	l.stats.PaymentCount++

	if dept != nil {
		dept.Spent, dept.Remaining = spent, remaining
		if isNewMember {
			dept.EmployeeCount, dept.AverageSalary = count, avgSalary
			members := l.departmentMembers[dept.DepartmentID]
			if members == nil {
				members = make(map[uuid.UUID]struct{})
				l.departmentMembers[dept.DepartmentID] = members
			}
			members[p.Employee] = struct{}{}
		}
	}

	l.log.Info("payment recorded", "id", id, "payment", rec.ID, "cycle", rec.Cycle, "department", departmentLabel(dept))
	l.emit(Event{Kind: EventPaymentRecorded, PayrollID: id, Actor: caller, Status: p.Status, Detail: rec.ID.String()})
	return rec.ID, nil
}

// resolveDepartment 以账本身份同步解密部门代码，只返回启用中的部门预算
func (l *Ledger) resolveDepartment(p *payroll.Payroll) (dept *payroll.DepartmentBudget, isNewMember bool, err error) {
	code, err := l.fhe.Decrypt(p.Metrics.DepartmentCode.Handle, l.self)
	if err != nil {
		return nil, false, errors.Wrap(err, "resolve department code")
	}
	if !code.IsUint64() || code.Uint64() > uint64(^uint32(0)) {
		return nil, false, nil
	}
	dept, ok := l.departments[uint32(code.Uint64())]
	if !ok || !dept.Active {
		return nil, false, nil
	}
	_, member := l.departmentMembers[dept.DepartmentID][p.Employee]
	return dept, !member, nil
}

func departmentLabel(d *payroll.DepartmentBudget) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%d:%s", d.DepartmentID, d.Name)
}

// MarkPaid: Processing -> Paid，需要付款处理角色
func (l *Ledger) MarkPaid(caller uuid.UUID, id payroll.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionMarkPaid); err != nil {
		return err
	}
	p, err := l.getPayroll(id)
	if err != nil {
		return err
	}
	if err := requireStatus(p, payroll.StatusProcessing); err != nil {
		return err
	}

	profile := l.employees[p.Employee]
	paidCount := l.stats.PaidCount + 1
	var avgBase, benefits, benefitsCost fhe.Value
	err = l.compute(func() {
		avgBase = compensation.RunningAverage(l.fhe, l.agg.AverageBaseSalary, p.Compensation.BaseSalary, paidCount)
		benefits = l.fhe.Add(profile.TotalBenefits, p.Compensation.Benefits)
		benefitsCost = l.fhe.Add(l.agg.TotalBenefitsCost, p.Compensation.Benefits)
		l.allowSelf(avgBase, benefits, benefitsCost)
		l.allow(p.Employee, benefits)
	})
	if err != nil {
		return err
	}

	p.Status = payroll.StatusPaid
	p.IsPaid = true
	p.PaidAt = l.timestamp()
	p.PaymentCycleNumber = l.stats.CurrentPaymentCycle
	profile.PaidPayrolls++
	profile.TotalBenefits = benefits
	l.stats.PaidCount = paidCount
	l.agg.AverageBaseSalary = avgBase
	l.agg.TotalBenefitsCost = benefitsCost

	l.log.Info("payroll paid", "id", id, "cycle", p.PaymentCycleNumber)
	l.emit(Event{Kind: EventPayrollPaid, PayrollID: id, Actor: caller, Status: p.Status})
	return nil
}

// DepartmentInput 是创建部门预算的输入，预算为 128 位密文
type DepartmentInput struct {
	DepartmentID uint32            `json:"departmentId"`
	Name         string            `json:"name"`
	FiscalYear   uint16            `json:"fiscalYear"`
	Allocated    fhe.ExternalInput `json:"allocated"`
}

// CreateDepartmentBudget 创建启用状态的部门预算，需要财务角色
func (l *Ledger) CreateDepartmentBudget(caller uuid.UUID, in DepartmentInput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionCreateDepartment); err != nil {
		return err
	}
	if _, ok := l.departments[in.DepartmentID]; ok {
		return errors.Wrapf(payroll.ErrAlreadyExists, "department %d", in.DepartmentID)
	}
	if in.FiscalYear == 0 {
		return errors.Wrap(payroll.ErrInvalidParameters, "fiscal year must be set")
	}

	d := &payroll.DepartmentBudget{
		Department: users.Department{DepartmentID: in.DepartmentID, Name: in.Name},
		FiscalYear: in.FiscalYear,
		Active:     true,
		CreatedAt:  l.timestamp(),
	}
	if err := l.materialize(caller, []inputSpec{{"allocated", &d.Allocated, fhe.W128, in.Allocated}}); err != nil {
		return err
	}
	err := l.compute(func() {
		d.Spent = l.fhe.EncryptConst(fhe.W128, 0)
		d.Remaining = d.Allocated
		d.EmployeeCount = l.fhe.EncryptConst(fhe.W32, 0)
		d.AverageSalary = l.fhe.EncryptConst(fhe.W64, 0)
		l.allowSelf(d.Allocated, d.Spent, d.EmployeeCount, d.AverageSalary)
		l.allow(caller, d.Allocated)
	})
	if err != nil {
		return err
	}

	l.departments[d.DepartmentID] = d
	l.log.Info("department budget created", "department", d.DepartmentID, "name", d.Name, "fiscalYear", d.FiscalYear)
	l.emit(Event{Kind: EventDepartmentCreated, Actor: caller, Detail: departmentLabel(d)})
	return nil
}

// SetDepartmentActive 启用或停用部门预算，停用的部门不再累计付款
func (l *Ledger) SetDepartmentActive(caller uuid.UUID, departmentID uint32, active bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionCreateDepartment); err != nil {
		return err
	}
	d, ok := l.departments[departmentID]
	if !ok {
		return errors.Wrapf(payroll.ErrNotFound, "department %d", departmentID)
	}
	if d.Active == active {
		return nil
	}

	d.Active = active
	l.log.Info("department toggled", "department", departmentID, "active", active)
	l.emit(Event{Kind: EventDepartmentToggled, Actor: caller, Detail: fmt.Sprintf("%s active=%t", departmentLabel(d), active)})
	return nil
}

// AdvancePaymentCycle 把全局付款周期加一并返回新周期
func (l *Ledger) AdvancePaymentCycle(caller uuid.UUID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionAdvanceCycle); err != nil {
		return 0, err
	}

	l.stats.CurrentPaymentCycle++
	cycle := l.stats.CurrentPaymentCycle
	l.log.Info("payment cycle advanced", "cycle", cycle)
	l.emit(Event{Kind: EventPaymentCycleAdvance, Actor: caller, Detail: fmt.Sprintf("cycle=%d", cycle)})
	return cycle, nil
}
