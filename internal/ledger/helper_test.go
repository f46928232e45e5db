package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/clientlib"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe/plaintext"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/CamberLoid/Chimata-Payroll/internal/oracle"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/users"
	"github.com/google/uuid"
)

// 员工 A 的基准工资单，市场参考为 50000 时落在 Elite 档并被批准
var baseline = clientlib.PayrollInput{
	BaseSalary:        80000,
	Bonus:             10000,
	Benefits:          5000,
	PerformanceScore:  8500,
	TenureMonths:      24,
	PerformanceRating: 3,
	WarningCount:      0,
	BenefitTier:       1,
	DepartmentCode:    7,
	GradeLevel:        3,
}

func testPolicy() payroll.Policy {
	p := payroll.DefaultPolicy()
	p.MarketRateReference = 50000
	return p
}

type harness struct {
	t *testing.T

	fhe     *plaintext.Provider
	ledger  *ledger.Ledger
	relayer *oracle.Relayer
	sink    *ledger.MemorySink
	clock   time.Time

	signing key.SigningKeyChain
	nonce   uint64

	owner, hr, finance, processor, oracle *clientlib.User
	employee                              *clientlib.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signing, err := key.GenerateSigningKey()
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		t:       t,
		fhe:     plaintext.New(signing.PublicKey),
		sink:    &ledger.MemorySink{},
		clock:   time.Unix(1700000000, 0),
		signing: signing,
	}
	h.owner = h.newUser("owner")
	h.hr = h.newUser("hr")
	h.finance = h.newUser("finance")
	h.processor = h.newUser("processor")
	h.oracle = h.newUser("oracle")
	h.employee = h.newUser("alice")

	roles, err := authz.NewRegistry(h.owner.Identifier)
	if err != nil {
		t.Fatal(err)
	}
	h.relayer = oracle.New(h.fhe, h.oracle.Identifier, log.Discard())
	policy := testPolicy()
	h.ledger, err = ledger.New(ledger.Options{
		Provider: h.fhe,
		Roles:    roles,
		Oracle:   h.relayer,
		Sink:     h.sink,
		Clock:    func() time.Time { return h.clock },
		Logger:   log.Discard(),
		Policy:   &policy,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.relayer.Bind(h.ledger)

	for _, g := range []struct {
		u    *clientlib.User
		role authz.Role
	}{
		{h.hr, authz.RoleHR},
		{h.finance, authz.RoleFinance},
		{h.processor, authz.RolePayrollProcessor},
		{h.oracle, authz.RoleOracle},
	} {
		if err := h.ledger.GrantRole(h.owner.Identifier, g.u.Identifier, g.role); err != nil {
			t.Fatal(err)
		}
	}
	return h
}

// newUser 创建共用同一把签名密钥的用户，证明仍然绑定各自的标识
func (h *harness) newUser(name string) *clientlib.User {
	return &clientlib.User{
		User: *users.NewUserWithUserName(name),
		Keys: &key.KeyChain{Signing: h.signing},
	}
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *harness) value(v fhe.Value) uint64 {
	h.t.Helper()
	x := h.fhe.Peek(v.Handle)
	if x == nil {
		h.t.Fatalf("unknown handle %s", v.Handle)
	}
	return x.Uint64()
}

func (h *harness) submitAs(u *clientlib.User, in clientlib.PayrollInput) payroll.ID {
	h.t.Helper()
	h.nonce++
	id := payroll.NewID(u.Identifier, h.nonce)
	s, err := u.BuildSubmission(id, payroll.LevelSenior, in)
	if err != nil {
		h.t.Fatal(err)
	}
	if _, err := h.ledger.SubmitPayroll(u.Identifier, s); err != nil {
		h.t.Fatalf("submit: %v", err)
	}
	return id
}

func (h *harness) submit(in clientlib.PayrollInput) payroll.ID {
	h.t.Helper()
	return h.submitAs(h.employee, in)
}

// startReview 把工资单推进到 UnderReview 并发起审核请求
func (h *harness) startReview(id payroll.ID) uuid.UUID {
	h.t.Helper()
	p, err := h.ledger.PayrollSummary(id)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.ledger.SubmitForReview(p.Employee, id); err != nil {
		h.t.Fatalf("submit for review: %v", err)
	}
	if err := h.ledger.BeginReview(h.hr.Identifier, id); err != nil {
		h.t.Fatalf("begin review: %v", err)
	}
	reqID, err := h.ledger.RequestCompensationReview(h.hr.Identifier, id)
	if err != nil {
		h.t.Fatalf("request review: %v", err)
	}
	return reqID
}

func (h *harness) deliver(reqID uuid.UUID) {
	h.t.Helper()
	if err := h.relayer.Deliver(context.Background(), reqID); err != nil {
		h.t.Fatalf("deliver %s: %v", reqID, err)
	}
}

// reviewValues 读取当前审核记录中五个待解密值的明文
func (h *harness) reviewValues(id payroll.ID) []uint64 {
	h.t.Helper()
	r, err := h.ledger.Review(id)
	if err != nil {
		h.t.Fatal(err)
	}
	out := make([]uint64, 0, payroll.ReviewBatchSize)
	for _, handle := range r.DecryptionBatch() {
		out = append(out, h.fhe.Peek(handle).Uint64())
	}
	return out
}

func (h *harness) payment(u *clientlib.User, gross, net, tax uint64) ledger.PaymentInput {
	h.t.Helper()
	in, err := u.BuildPayment(gross, net, tax)
	if err != nil {
		h.t.Fatal(err)
	}
	return in
}

func (h *harness) createDepartment(id uint32, allocated uint64) {
	h.t.Helper()
	in, err := h.finance.BuildDepartment(id, "Engineering", 2026, allocated)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.ledger.CreateDepartmentBudget(h.finance.Identifier, in); err != nil {
		h.t.Fatalf("create department: %v", err)
	}
}

// inputFor 返回能让审核得出 target 状态的输入
func inputFor(target payroll.Status) clientlib.PayrollInput {
	in := baseline
	switch target {
	case payroll.StatusAdjusted:
		in.WarningCount = 3
	case payroll.StatusRejected:
		in.PerformanceScore = 100
	}
	return in
}

// toStatus 创建一份工资单并推进到 target 状态
func (h *harness) toStatus(target payroll.Status) payroll.ID {
	h.t.Helper()
	id := h.submit(inputFor(target))
	steps := []struct {
		reached payroll.Status
		run     func() error
	}{
		{payroll.StatusSubmitted, func() error { return h.ledger.SubmitForReview(h.employee.Identifier, id) }},
		{payroll.StatusUnderReview, func() error { return h.ledger.BeginReview(h.hr.Identifier, id) }},
		{payroll.StatusApproved, func() error {
			reqID, err := h.ledger.RequestCompensationReview(h.hr.Identifier, id)
			if err != nil {
				return err
			}
			return h.relayer.Deliver(context.Background(), reqID)
		}},
		{payroll.StatusScheduled, func() error { return h.ledger.ApprovePayroll(h.finance.Identifier, id) }},
		{payroll.StatusProcessing, func() error {
			_, err := h.ledger.RecordPayment(h.processor.Identifier, id, h.payment(h.processor, 95000, 62450, 23750))
			return err
		}},
		{payroll.StatusPaid, func() error { return h.ledger.MarkPaid(h.processor.Identifier, id) }},
	}

	for _, step := range steps {
		if h.status(id) == target {
			return id
		}
		if err := step.run(); err != nil {
			h.t.Fatalf("driving to %s, step to %s: %v", target, step.reached, err)
		}
		if got := h.status(id); got == payroll.StatusAdjusted || got == payroll.StatusRejected {
			if got != target {
				h.t.Fatalf("review ended in %s, want %s", got, target)
			}
			return id
		}
	}
	if got := h.status(id); got != target {
		h.t.Fatalf("reached %s, want %s", got, target)
	}
	return id
}

func (h *harness) status(id payroll.ID) payroll.Status {
	h.t.Helper()
	s, err := h.ledger.PayrollSummary(id)
	if err != nil {
		h.t.Fatal(err)
	}
	return s.Status
}
