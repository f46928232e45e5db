package ledger_test

import (
	"testing"

	"github.com/CamberLoid/Chimata-Payroll/internal/clientlib"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/pkg/errors"
)

func TestRecordPaymentProofFailure(t *testing.T) {
	h := newHarness(t)
	id := h.toStatus(payroll.StatusScheduled)
	before := h.ledger.Stats()

	// 由别人签名的金额不能被付款处理者使用
	forged := h.payment(h.employee, 95000, 62450, 23750)
	if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, forged); !errors.Is(err, fhe.ErrProofVerification) {
		t.Fatalf("err=%v, want ErrProofVerification", err)
	}
	if records, _ := h.ledger.PaymentRecords(id); len(records) != 0 {
		t.Errorf("failed payment left %d records", len(records))
	}
	if got := h.status(id); got != payroll.StatusScheduled {
		t.Errorf("status = %s", got)
	}
	if after := h.ledger.Stats(); after != before {
		t.Errorf("stats %+v -> %+v", before, after)
	}
	if got := h.value(h.ledger.Aggregates().TotalPayrollExpense); got != 0 {
		t.Errorf("expense = %d", got)
	}
}

func TestMultiplePaymentsAccumulate(t *testing.T) {
	h := newHarness(t)
	h.createDepartment(7, 200000)
	id := h.toStatus(payroll.StatusScheduled)

	for _, gross := range []uint64{50000, 45000} {
		if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, gross, gross/2, gross/4)); err != nil {
			t.Fatal(err)
		}
	}
	if got := h.status(id); got != payroll.StatusProcessing {
		t.Errorf("status = %s", got)
	}
	records, _ := h.ledger.PaymentRecords(id)
	if len(records) != 2 || records[0].ID == records[1].ID {
		t.Fatalf("records %+v", records)
	}

	dept, _ := h.ledger.DepartmentBudget(7)
	if h.value(dept.Spent) != 95000 || h.value(dept.Remaining) != 105000 {
		t.Errorf("spent=%d remaining=%d", h.value(dept.Spent), h.value(dept.Remaining))
	}
	// 同一员工的第二笔付款不增加部门人数
	if h.value(dept.EmployeeCount) != 1 || h.value(dept.AverageSalary) != 80000 {
		t.Errorf("count=%d avg=%d", h.value(dept.EmployeeCount), h.value(dept.AverageSalary))
	}
	profile, _ := h.ledger.EmployeeProfile(h.employee.Identifier)
	if h.value(profile.TotalEarned) != 95000 || h.value(profile.TotalTaxPaid) != 12500+11250 {
		t.Errorf("earned=%d tax=%d", h.value(profile.TotalEarned), h.value(profile.TotalTaxPaid))
	}
	if h.ledger.Stats().PaymentCount != 2 {
		t.Errorf("payment count %d", h.ledger.Stats().PaymentCount)
	}
}

func TestDepartmentMembershipAndAverage(t *testing.T) {
	h := newHarness(t)
	h.createDepartment(7, 1000000)
	bob := h.newUser("bob")

	alicePay := baseline
	bobPay := baseline
	bobPay.BaseSalary = 60000

	pay := func(u *clientlib.User, in clientlib.PayrollInput) {
		id := h.submitAs(u, in)
		h.deliver(h.startReview(id))
		if err := h.ledger.ApprovePayroll(h.finance.Identifier, id); err != nil {
			t.Fatal(err)
		}
		if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 1000, 900, 100)); err != nil {
			t.Fatal(err)
		}
	}
	pay(h.employee, alicePay)
	pay(bob, bobPay)
	pay(h.employee, alicePay)

	dept, _ := h.ledger.DepartmentBudget(7)
	if got := h.value(dept.EmployeeCount); got != 2 {
		t.Errorf("employee count = %d, want 2", got)
	}
	if got := h.value(dept.AverageSalary); got != 70000 {
		t.Errorf("average salary = %d, want 70000", got)
	}
	if got := h.value(dept.Spent); got != 3000 {
		t.Errorf("spent = %d", got)
	}
}

func TestInactiveOrUnknownDepartmentSkipped(t *testing.T) {
	h := newHarness(t)
	h.createDepartment(7, 1000)
	if err := h.ledger.SetDepartmentActive(h.finance.Identifier, 7, false); err != nil {
		t.Fatal(err)
	}

	id := h.toStatus(payroll.StatusScheduled)
	if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 500, 400, 100)); err != nil {
		t.Fatal(err)
	}
	dept, _ := h.ledger.DepartmentBudget(7)
	if h.value(dept.Spent) != 0 || h.value(dept.Remaining) != 1000 || h.value(dept.EmployeeCount) != 0 {
		t.Errorf("inactive department updated: spent=%d", h.value(dept.Spent))
	}
	// 公司层面的累计不受部门影响
	if got := h.value(h.ledger.Aggregates().TotalPayrollExpense); got != 500 {
		t.Errorf("expense = %d", got)
	}

	other := baseline
	other.DepartmentCode = 99
	id = h.submit(other)
	h.deliver(h.startReview(id))
	if err := h.ledger.ApprovePayroll(h.finance.Identifier, id); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 500, 400, 100)); err != nil {
		t.Errorf("payment with unknown department: %v", err)
	}
}

func TestDepartmentBudgetValidation(t *testing.T) {
	h := newHarness(t)
	h.createDepartment(7, 1000)

	in, err := h.finance.BuildDepartment(7, "Dup", 2026, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.ledger.CreateDepartmentBudget(h.finance.Identifier, in); !errors.Is(err, payroll.ErrAlreadyExists) {
		t.Errorf("duplicate: %v", err)
	}
	in.DepartmentID, in.FiscalYear = 8, 0
	if err := h.ledger.CreateDepartmentBudget(h.finance.Identifier, in); !errors.Is(err, payroll.ErrInvalidParameters) {
		t.Errorf("zero fiscal year: %v", err)
	}
	if err := h.ledger.SetDepartmentActive(h.finance.Identifier, 8, true); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("toggle unknown: %v", err)
	}
	if _, err := h.ledger.DepartmentBudget(8); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("get unknown: %v", err)
	}

	d, _ := h.ledger.DepartmentBudget(7)
	if !d.Active || d.FiscalYear != 2026 || d.Name != "Engineering" || h.value(d.Remaining) != 1000 {
		t.Errorf("department %+v", d)
	}
	if _, err := h.fhe.Decrypt(d.Allocated.Handle, h.finance.Identifier); err != nil {
		t.Errorf("creator cannot read allocation: %v", err)
	}
}

func TestPaymentCycle(t *testing.T) {
	h := newHarness(t)
	id := h.toStatus(payroll.StatusScheduled)

	for want := uint64(2); want <= 3; want++ {
		got, err := h.ledger.AdvancePaymentCycle(h.finance.Identifier)
		if err != nil || got != want {
			t.Fatalf("cycle = %d, err=%v", got, err)
		}
	}
	if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 1, 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := h.ledger.MarkPaid(h.processor.Identifier, id); err != nil {
		t.Fatal(err)
	}
	records, _ := h.ledger.PaymentRecords(id)
	if records[0].Cycle != 3 {
		t.Errorf("record cycle = %d", records[0].Cycle)
	}
	if s, _ := h.ledger.PayrollSummary(id); s.PaymentCycleNumber != 3 {
		t.Errorf("paid in cycle %d", s.PaymentCycleNumber)
	}
}

// payAll 依次把每个基本工资对应的工资单推进到 Paid
func (h *harness) payAll(bases ...uint64) {
	h.t.Helper()
	for _, base := range bases {
		in := baseline
		in.BaseSalary = base
		id := h.submit(in)
		h.deliver(h.startReview(id))
		if err := h.ledger.ApprovePayroll(h.finance.Identifier, id); err != nil {
			h.t.Fatal(err)
		}
		if _, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 1, 1, 0)); err != nil {
			h.t.Fatal(err)
		}
		if err := h.ledger.MarkPaid(h.processor.Identifier, id); err != nil {
			h.t.Fatal(err)
		}
	}
}

func TestAverageBaseSalaryAcrossPaidPayrolls(t *testing.T) {
	h := newHarness(t)
	h.payAll(60000, 80000, 100000)
	agg := h.ledger.Aggregates()
	if got := h.value(agg.AverageBaseSalary); got != 80000 {
		t.Errorf("avg base = %d, want 80000", got)
	}
	if got := h.value(agg.TotalBenefitsCost); got != 15000 {
		t.Errorf("benefits cost = %d", got)
	}
	if s := h.ledger.Stats(); s.PaidCount != 3 || s.PaymentCount != 3 {
		t.Errorf("stats %+v", s)
	}
}

// 逐次取整的增量平均与真实均值不同：30000、30001、30002 的均值是 30001，
// 增量公式依次得到 30000、30000、30000
func TestAverageBaseSalaryDriftsFromMean(t *testing.T) {
	h := newHarness(t)
	bases := []uint64{30000, 30001, 30002}
	h.payAll(bases...)

	var sum uint64
	for _, b := range bases {
		sum += b
	}
	mean := sum / uint64(len(bases))
	got := h.value(h.ledger.Aggregates().AverageBaseSalary)
	if got != 30000 {
		t.Errorf("avg base = %d, want 30000", got)
	}
	if got == mean {
		t.Errorf("incremental average %d equals the true mean %d", got, mean)
	}
}

func TestExportReview(t *testing.T) {
	h := newHarness(t)
	kc, err := key.GenerateKeyChain(h.employee.Identifier)
	if err != nil {
		t.Fatal(err)
	}
	alice := &clientlib.User{User: h.employee.User, Keys: kc}

	id := h.submit(baseline)
	if _, err := h.ledger.ExportReview(alice.Identifier, id, alice.ViewingKey()); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("export before review: %v", err)
	}
	h.deliver(h.startReview(id))

	exp, err := h.ledger.ExportReview(alice.Identifier, id, alice.ViewingKey())
	if err != nil {
		t.Fatal(err)
	}
	opened, err := alice.OpenExport(exp)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]uint64{
		"totalCompensation": 95000,
		"netPay":            62450,
		"marketPercentile":  18999,
		"compensationBand":  payroll.BandElite,
		"decisionCode":      payroll.DecisionApprove,
	}
	for k, v := range want {
		if opened[k] != v {
			t.Errorf("%s = %d, want %d", k, opened[k], v)
		}
	}

	if _, err := h.ledger.ExportReview(h.hr.Identifier, id, alice.ViewingKey()); err != nil {
		t.Errorf("hr export: %v", err)
	}
	if _, err := h.ledger.ExportReview(h.finance.Identifier, id, alice.ViewingKey()); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("finance export: %v", err)
	}
	if _, err := h.ledger.ExportReview(alice.Identifier, id, []byte("not a key")); !errors.Is(err, payroll.ErrInvalidParameters) {
		t.Errorf("garbage key: %v", err)
	}
}
