package ledger_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func TestLifecycle(t *testing.T) {
	h := newHarness(t)
	h.createDepartment(7, 1000000)
	alice := h.employee.Identifier

	id := h.submit(baseline)
	p, err := h.ledger.OwnPayroll(alice, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != payroll.StatusDraft || p.SubmittedAt != h.clock.Unix() {
		t.Errorf("status=%s submittedAt=%d", p.Status, p.SubmittedAt)
	}
	if got := h.value(p.TotalCompensation); got != 95000 {
		t.Errorf("total = %d, want 95000", got)
	}
	if got := h.value(p.Deductions.Tax); got != 23750 {
		t.Errorf("tax = %d, want 23750", got)
	}
	if got := h.value(p.NetPay); got != 62450 {
		t.Errorf("net = %d, want 62450", got)
	}
	// 员工本人可以解密自己的四项薪酬构成
	if _, err := h.fhe.Decrypt(p.Compensation.BaseSalary.Handle, alice); err != nil {
		t.Errorf("employee cannot read base salary: %v", err)
	}
	if _, err := h.fhe.Decrypt(p.Compensation.StockOptions.Handle, alice); !errors.Is(err, fhe.ErrAccessDenied) {
		t.Errorf("employee should not read stock options, err=%v", err)
	}

	h.advance(time.Hour)
	reqID := h.startReview(id)
	if h.status(id) != payroll.StatusUnderReview {
		t.Fatalf("status = %s", h.status(id))
	}
	if _, err := h.ledger.DecryptedReview(id); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("decrypted review before callback: %v", err)
	}
	h.deliver(reqID)

	dr, err := h.ledger.DecryptedReview(id)
	if err != nil {
		t.Fatal(err)
	}
	want := payroll.DecryptedReview{
		PayrollID:         id,
		RequestID:         reqID,
		TotalCompensation: 95000,
		NetPay:            62450,
		MarketPercentile:  18999,
		CompensationBand:  payroll.BandElite,
		DecisionCode:      payroll.DecisionApprove,
		DecryptedAt:       h.clock.Unix(),
	}
	if dr != want {
		t.Errorf("decrypted review\n got %+v\nwant %+v", dr, want)
	}
	s, _ := h.ledger.PayrollSummary(id)
	if s.Status != payroll.StatusApproved || !s.IsEvaluated || s.Revealed == nil || s.Revealed.CompensationBand != payroll.BandElite {
		t.Errorf("summary after review: %+v", s)
	}

	if err := h.ledger.ApprovePayroll(h.finance.Identifier, id); err != nil {
		t.Fatal(err)
	}
	payID, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 95000, 62450, 23750))
	if err != nil {
		t.Fatal(err)
	}
	if h.status(id) != payroll.StatusProcessing {
		t.Fatalf("status = %s", h.status(id))
	}
	if err := h.ledger.MarkPaid(h.processor.Identifier, id); err != nil {
		t.Fatal(err)
	}

	s, _ = h.ledger.PayrollSummary(id)
	if s.Status != payroll.StatusPaid || !s.IsPaid || s.PaymentCycleNumber != 1 || s.PaidAt == 0 || s.ApprovedAt == 0 {
		t.Errorf("summary after payment: %+v", s)
	}

	records, err := h.ledger.PaymentRecords(id)
	if err != nil || len(records) != 1 {
		t.Fatalf("records=%v err=%v", records, err)
	}
	if r := records[0]; r.ID != payID || !r.Verified || r.Cycle != 1 || h.value(r.Gross) != 95000 {
		t.Errorf("payment record %+v", r)
	}

	profile, err := h.ledger.EmployeeProfile(alice)
	if err != nil {
		t.Fatal(err)
	}
	if h.value(profile.TotalEarned) != 95000 || h.value(profile.TotalTaxPaid) != 23750 || h.value(profile.TotalBenefits) != 5000 {
		t.Errorf("profile totals %d %d %d", h.value(profile.TotalEarned), h.value(profile.TotalTaxPaid), h.value(profile.TotalBenefits))
	}
	if h.value(profile.SalaryBand) != payroll.BandElite || h.value(profile.AveragePerformance) != 8500 ||
		profile.TotalPayrolls != 1 || profile.ReviewedPayrolls != 1 || profile.PaidPayrolls != 1 {
		t.Errorf("profile %+v", profile)
	}

	agg := h.ledger.Aggregates()
	checks := map[string]struct {
		v    fhe.Value
		want uint64
	}{
		"expense":   {agg.TotalPayrollExpense, 95000},
		"withheld":  {agg.TotalTaxWithheld, 23750},
		"benefits":  {agg.TotalBenefitsCost, 5000},
		"avgBase":   {agg.AverageBaseSalary, 80000},
		"avgPerf":   {agg.AveragePerformanceScore, 8500},
		"headcount": {agg.Headcount, 1},
	}
	for name, c := range checks {
		if got := h.value(c.v); got != c.want {
			t.Errorf("aggregate %s = %d, want %d", name, got, c.want)
		}
	}

	dept, err := h.ledger.DepartmentBudget(7)
	if err != nil {
		t.Fatal(err)
	}
	if h.value(dept.Spent) != 95000 || h.value(dept.Remaining) != 905000 ||
		h.value(dept.EmployeeCount) != 1 || h.value(dept.AverageSalary) != 80000 {
		t.Errorf("department spent=%d remaining=%d count=%d avg=%d",
			h.value(dept.Spent), h.value(dept.Remaining), h.value(dept.EmployeeCount), h.value(dept.AverageSalary))
	}

	stats := h.ledger.Stats()
	wantStats := ledger.Stats{PayrollCount: 1, EmployeeCount: 1, PaidCount: 1, PaymentCount: 1, CurrentPaymentCycle: 1}
	if stats != wantStats {
		t.Errorf("stats %+v, want %+v", stats, wantStats)
	}

	wantKinds := []ledger.EventKind{
		ledger.EventRoleGranted, ledger.EventRoleGranted, ledger.EventRoleGranted, ledger.EventRoleGranted,
		ledger.EventDepartmentCreated,
		ledger.EventPayrollSubmitted,
		ledger.EventSubmittedForReview,
		ledger.EventReviewStarted,
		ledger.EventReviewRequested,
		ledger.EventReviewCompleted,
		ledger.EventPayrollApproved,
		ledger.EventPaymentRecorded,
		ledger.EventPayrollPaid,
	}
	if kinds := h.sink.Kinds(); !reflect.DeepEqual(kinds, wantKinds) {
		t.Errorf("events\n got %v\nwant %v", kinds, wantKinds)
	}
	for _, e := range h.sink.Events {
		if (e.Kind == ledger.EventReviewCompleted) != (e.Revealed != nil) {
			t.Errorf("event %s revealed=%v", e.Kind, e.Revealed)
		}
	}
}

func TestAdjustDecisionRewritesAmounts(t *testing.T) {
	h := newHarness(t)
	id := h.toStatus(payroll.StatusAdjusted)

	p, err := h.ledger.OwnPayroll(h.employee.Identifier, id)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.value(p.TotalCompensation); got != 95000*95/100 {
		t.Errorf("adjusted total = %d", got)
	}
	if got := h.value(p.NetPay); got != 62450*95/100 {
		t.Errorf("adjusted net = %d", got)
	}
	if p.LastAdjustedAt == 0 || p.Revealed.DecisionCode != payroll.DecisionAdjust {
		t.Errorf("payroll %+v", p.Revealed)
	}
	// 公开的结果是调整前的数字
	if p.Revealed.TotalCompensation != 95000 {
		t.Errorf("revealed total = %d, want 95000", p.Revealed.TotalCompensation)
	}
	if err := h.ledger.ApprovePayroll(h.finance.Identifier, id); err != nil {
		t.Errorf("adjusted payroll should be approvable: %v", err)
	}
}

func TestRejectDecision(t *testing.T) {
	h := newHarness(t)
	id := h.toStatus(payroll.StatusRejected)

	if got := h.ledger.Stats().RejectedCount; got != 1 {
		t.Errorf("rejected count = %d", got)
	}
	if !h.status(id).IsTerminal() {
		t.Error("rejected should be terminal")
	}
	if err := h.ledger.ApprovePayroll(h.finance.Identifier, id); !errors.Is(err, payroll.ErrInvalidStatus) {
		t.Errorf("approve rejected: %v", err)
	}
}

func TestSubmitPayrollValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.employee

	id := h.submit(baseline)
	s, err := alice.BuildSubmission(id, payroll.LevelMid, baseline)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.SubmitPayroll(alice.Identifier, s); !errors.Is(err, payroll.ErrAlreadyExists) {
		t.Errorf("duplicate id: %v", err)
	}

	s.ID = payroll.ID{}
	if _, err := h.ledger.SubmitPayroll(alice.Identifier, s); !errors.Is(err, payroll.ErrInvalidParameters) {
		t.Errorf("zero id: %v", err)
	}

	s.ID = payroll.NewID(alice.Identifier, 999)
	s.Level = payroll.EmploymentLevel(42)
	if _, err := h.ledger.SubmitPayroll(alice.Identifier, s); !errors.Is(err, payroll.ErrInvalidParameters) {
		t.Errorf("bad level: %v", err)
	}

	// 别人的证明不能被重放
	s.Level = payroll.LevelMid
	before := h.ledger.Stats()
	if _, err := h.ledger.SubmitPayroll(h.hr.Identifier, s); !errors.Is(err, fhe.ErrProofVerification) {
		t.Errorf("replayed proof: %v", err)
	}
	if _, err := h.ledger.PayrollSummary(s.ID); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("rejected submission left a payroll: %v", err)
	}
	if after := h.ledger.Stats(); after != before {
		t.Errorf("stats changed on failed submission: %+v -> %+v", before, after)
	}
	if _, err := h.ledger.EmployeeProfile(h.hr.Identifier); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("failed submission created a profile: %v", err)
	}
}

func TestSubmitCreatesProfileOnce(t *testing.T) {
	h := newHarness(t)
	first := h.submit(baseline)
	second := h.submit(baseline)
	h.submitAs(h.hr, baseline)

	stats := h.ledger.Stats()
	if stats.PayrollCount != 3 || stats.EmployeeCount != 2 {
		t.Errorf("stats %+v", stats)
	}
	if got := h.value(h.ledger.Aggregates().Headcount); got != 2 {
		t.Errorf("headcount = %d", got)
	}
	profile, _ := h.ledger.EmployeeProfile(h.employee.Identifier)
	if profile.TotalPayrolls != 2 || profile.UserName != "alice" {
		t.Errorf("profile %+v", profile)
	}
	if ids := h.ledger.EmployeePayrolls(h.employee.Identifier); !reflect.DeepEqual(ids, []payroll.ID{first, second}) {
		t.Errorf("employee payrolls %v", ids)
	}
}

func TestSubmitForReviewOnlyByEmployee(t *testing.T) {
	h := newHarness(t)
	id := h.submit(baseline)
	if err := h.ledger.SubmitForReview(h.owner.Identifier, id); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("owner submitting for employee: %v", err)
	}
	if err := h.ledger.SubmitForReview(h.employee.Identifier, payroll.ID{1}); !errors.Is(err, payroll.ErrNotFound) {
		t.Errorf("unknown payroll: %v", err)
	}
}

func TestOwnPayrollRestricted(t *testing.T) {
	h := newHarness(t)
	id := h.submit(baseline)
	for _, u := range []uuid.UUID{h.owner.Identifier, h.hr.Identifier} {
		if _, err := h.ledger.OwnPayroll(u, id); !errors.Is(err, payroll.ErrUnauthorized) {
			t.Errorf("%s read someone else's payroll: %v", u, err)
		}
	}
}

func TestRoleGating(t *testing.T) {
	h := newHarness(t)
	stranger := h.newUser("mallory")

	scheduled := h.toStatus(payroll.StatusScheduled)
	processing := h.toStatus(payroll.StatusProcessing)
	submitted := h.toStatus(payroll.StatusSubmitted)
	underReview := h.toStatus(payroll.StatusUnderReview)
	approved := h.toStatus(payroll.StatusApproved)

	ops := map[string]func(caller uuid.UUID) error{
		"begin review": func(c uuid.UUID) error { return h.ledger.BeginReview(c, submitted) },
		"request review": func(c uuid.UUID) error {
			_, err := h.ledger.RequestCompensationReview(c, underReview)
			return err
		},
		"approve": func(c uuid.UUID) error { return h.ledger.ApprovePayroll(c, approved) },
		"record payment": func(c uuid.UUID) error {
			_, err := h.ledger.RecordPayment(c, scheduled, h.payment(stranger, 1, 1, 0))
			return err
		},
		"mark paid": func(c uuid.UUID) error { return h.ledger.MarkPaid(c, processing) },
		"create department": func(c uuid.UUID) error {
			in, err := stranger.BuildDepartment(9, "Ops", 2026, 10)
			if err != nil {
				return err
			}
			return h.ledger.CreateDepartmentBudget(c, in)
		},
		"advance cycle": func(c uuid.UUID) error {
			_, err := h.ledger.AdvancePaymentCycle(c)
			return err
		},
		"update policy":   func(c uuid.UUID) error { return h.ledger.UpdatePolicy(c, testPolicy()) },
		"grant role":      func(c uuid.UUID) error { return h.ledger.GrantRole(c, c, authz.RoleHR) },
		"review callback": func(c uuid.UUID) error { return h.ledger.CompleteReview(c, uuid.New(), nil) },
	}
	for name, op := range ops {
		if err := op(stranger.Identifier); !errors.Is(err, payroll.ErrUnauthorized) {
			t.Errorf("%s by stranger: err=%v, want ErrUnauthorized", name, err)
		}
	}

	// 角色只授予对应的操作
	if err := h.ledger.ApprovePayroll(h.hr.Identifier, approved); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("hr approving: %v", err)
	}
	if err := h.ledger.MarkPaid(h.finance.Identifier, processing); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("finance marking paid: %v", err)
	}
	if err := h.ledger.UpdatePolicy(h.finance.Identifier, testPolicy()); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("finance updating policy: %v", err)
	}

	// 所有者绕过所有角色检查
	if err := h.ledger.ApprovePayroll(h.owner.Identifier, approved); err != nil {
		t.Errorf("owner approve: %v", err)
	}
	if err := h.ledger.MarkPaid(h.owner.Identifier, processing); err != nil {
		t.Errorf("owner mark paid: %v", err)
	}
	if err := h.ledger.BeginReview(h.owner.Identifier, submitted); err != nil {
		t.Errorf("owner begin review: %v", err)
	}
}

func TestGrantAndRevokeRole(t *testing.T) {
	h := newHarness(t)
	bob := h.newUser("bob")
	id := h.toStatus(payroll.StatusSubmitted)

	if h.ledger.HasRole(bob.Identifier, authz.RoleHR) {
		t.Fatal("bob should not be hr yet")
	}
	if err := h.ledger.GrantRole(h.owner.Identifier, bob.Identifier, authz.RoleHR); err != nil {
		t.Fatal(err)
	}
	if !h.ledger.HasRole(bob.Identifier, authz.RoleHR) {
		t.Error("grant had no effect")
	}
	if err := h.ledger.RevokeRole(h.owner.Identifier, bob.Identifier, authz.RoleHR); err != nil {
		t.Fatal(err)
	}
	if err := h.ledger.BeginReview(bob.Identifier, id); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("revoked hr begin review: %v", err)
	}
	if err := h.ledger.GrantRole(h.owner.Identifier, bob.Identifier, authz.Role("ceo")); !errors.Is(err, payroll.ErrInvalidParameters) {
		t.Errorf("unknown role: %v", err)
	}
	if err := h.ledger.RevokeRole(h.hr.Identifier, h.finance.Identifier, authz.RoleFinance); !errors.Is(err, payroll.ErrUnauthorized) {
		t.Errorf("non-owner revoke: %v", err)
	}
	if !h.ledger.HasRole(h.owner.Identifier, authz.RoleOracle) {
		t.Error("owner should implicitly hold every role")
	}
}

func TestUpdatePolicy(t *testing.T) {
	h := newHarness(t)

	bad := testPolicy()
	bad.MinBaseSalary = bad.MaxBaseSalary + 1
	if err := h.ledger.UpdatePolicy(h.owner.Identifier, bad); !errors.Is(err, payroll.ErrInvalidPolicy) {
		t.Errorf("invalid policy: %v", err)
	}
	if h.ledger.Policy() != testPolicy() {
		t.Error("invalid policy was applied")
	}

	strict := testPolicy()
	strict.MinTenureMonths = 120
	if err := h.ledger.UpdatePolicy(h.owner.Identifier, strict); err != nil {
		t.Fatal(err)
	}
	id := h.submit(baseline)
	h.deliver(h.startReview(id))
	if got := h.status(id); got != payroll.StatusRejected {
		t.Errorf("status under strict tenure = %s, want Rejected", got)
	}
}

func TestPolicyAtSubmitDrivesDeductions(t *testing.T) {
	h := newHarness(t)
	policy := testPolicy()
	policy.TaxRateBps = 1000
	if err := h.ledger.UpdatePolicy(h.owner.Identifier, policy); err != nil {
		t.Fatal(err)
	}
	id := h.submit(baseline)
	p, _ := h.ledger.OwnPayroll(h.employee.Identifier, id)
	if got := h.value(p.Deductions.Tax); got != 9500 {
		t.Errorf("tax at 10%% = %d, want 9500", got)
	}
}
