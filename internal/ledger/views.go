package ledger

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/serverlib"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PayrollSummary 返回工资单的明文视图，已评估时带上解密结果
func (l *Ledger) PayrollSummary(id payroll.ID) (payroll.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.getPayroll(id)
	if err != nil {
		return payroll.Summary{}, err
	}
	return p.Summary(), nil
}

// DecryptedReview 返回审核完成后的明文记录
func (l *Ledger) DecryptedReview(id payroll.ID) (payroll.DecryptedReview, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dr, ok := l.decrypted[id]
	if !ok {
		return payroll.DecryptedReview{}, errors.Wrapf(payroll.ErrNotFound, "decrypted review for %s", id)
	}
	return *dr, nil
}

// EmployeePayrolls 按提交顺序列出员工的工资单
func (l *Ledger) EmployeePayrolls(employee uuid.UUID) []payroll.ID {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]payroll.ID(nil), l.employeePayrolls[employee]...)
}

// OwnPayroll 返回完整的加密工资单，只有员工本人可以读取
func (l *Ledger) OwnPayroll(caller uuid.UUID, id payroll.ID) (payroll.Payroll, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.getPayroll(id)
	if err != nil {
		return payroll.Payroll{}, err
	}
	if p.Employee != caller {
		return payroll.Payroll{}, errors.Wrapf(payroll.ErrUnauthorized, "%s does not own payroll %s", caller, id)
	}
	return *p, nil
}

// Export 是用查看密钥重新加密的审核结果
type Export struct {
	PayrollID  payroll.ID `json:"payrollId"`
	Ciphertext []byte     `json:"ciphertext"`
	// Slots 是密文中各 slot 的含义，顺序与解密批次一致
	Slots []string `json:"slots"`
}

// ExportSlots 是导出密文的 slot 顺序
var ExportSlots = []string{"totalCompensation", "netPay", "marketPercentile", "compensationBand", "decisionCode"}

// ExportReview 把审核结果重新加密到调用者提供的查看公钥下。
// 员工本人或拥有导出权限的 HR 可以调用；审核不需要已经完成。
func (l *Ledger) ExportReview(caller uuid.UUID, id payroll.ID, viewingKey []byte) (Export, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.getPayroll(id)
	if err != nil {
		return Export{}, err
	}
	if p.Employee != caller {
		if err := l.authorize(caller, authz.ActionExportReview); err != nil {
			return Export{}, err
		}
	}
	review, ok := l.reviews[id]
	if !ok {
		return Export{}, errors.Wrapf(payroll.ErrNotFound, "review for %s", id)
	}

	handles := review.DecryptionBatch()
	amounts := make([]uint64, len(handles))
	for i, h := range handles {
		v, err := l.fhe.Decrypt(h, l.self)
		if err != nil {
			return Export{}, errors.Wrapf(err, "export slot %s", ExportSlots[i])
		}
		amounts[i] = v.Uint64()
	}
	ct, err := serverlib.SealAmountsForViewer(amounts, viewingKey)
	if err != nil {
		return Export{}, errors.Wrap(payroll.ErrInvalidParameters, err.Error())
	}

	l.log.Info("review exported", "id", id, "viewer", caller)
	return Export{PayrollID: id, Ciphertext: ct, Slots: ExportSlots}, nil
}

func (l *Ledger) EmployeeProfile(employee uuid.UUID) (payroll.EmployeeProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	profile, ok := l.employees[employee]
	if !ok {
		return payroll.EmployeeProfile{}, errors.Wrapf(payroll.ErrNotFound, "employee %s", employee)
	}
	return *profile, nil
}

func (l *Ledger) DepartmentBudget(departmentID uint32) (payroll.DepartmentBudget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.departments[departmentID]
	if !ok {
		return payroll.DepartmentBudget{}, errors.Wrapf(payroll.ErrNotFound, "department %d", departmentID)
	}
	return *d, nil
}

// PaymentRecords 返回工资单的付款记录副本
func (l *Ledger) PaymentRecords(id payroll.ID) ([]payroll.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.getPayroll(id); err != nil {
		return nil, err
	}
	return append([]payroll.PaymentRecord(nil), l.payments[id]...), nil
}

// Review 返回当前的审核工作记录
func (l *Ledger) Review(id payroll.ID) (payroll.CompensationReview, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reviews[id]
	if !ok {
		return payroll.CompensationReview{}, errors.Wrapf(payroll.ErrNotFound, "review for %s", id)
	}
	return *r, nil
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Ledger) Aggregates() Aggregates {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agg
}

func (l *Ledger) Policy() payroll.Policy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.policy
}
