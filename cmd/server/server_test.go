package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CamberLoid/Chimata-Payroll/internal/clientlib"
	"github.com/CamberLoid/Chimata-Payroll/internal/config"
	"github.com/CamberLoid/Chimata-Payroll/internal/db"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/restfulpayload"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type testServer struct {
	app *App
	srv *httptest.Server

	owner, hr, finance, processor, employee *clientlib.Client
}

func newUser(t *testing.T, name string) *clientlib.User {
	t.Helper()
	u, err := clientlib.NewUserWithKeys(name)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	users := map[string]*clientlib.User{}
	cfg := config.Default()
	cfg.Policy.MarketRateReference = 50000
	for _, name := range []string{"owner", "hr", "finance", "processor", "alice"} {
		u := newUser(t, name)
		users[name] = u
		p := filepath.Join(dir, name+".pub.json")
		if err := os.WriteFile(p, key.EncodeECDSAPubkeyToJson(u.Keys.Signing.PublicKey), 0600); err != nil {
			t.Fatal(err)
		}
		cfg.Signers = append(cfg.Signers, p)
	}
	cfg.Owner = users["owner"].Identifier.String()
	cfg.Roles = []config.RoleAssignment{
		{Principal: users["hr"].Identifier.String(), Role: "hr"},
		{Principal: users["finance"].Identifier.String(), Role: "finance"},
		{Principal: users["processor"].Identifier.String(), Role: "payroll-processor"},
	}

	journal, err := db.Open(filepath.Join(dir, "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })

	app, err := NewApp(cfg, journal, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(app.Routes())
	t.Cleanup(srv.Close)

	return &testServer{
		app:       app,
		srv:       srv,
		owner:     clientlib.NewClient(srv.URL, users["owner"]),
		hr:        clientlib.NewClient(srv.URL, users["hr"]),
		finance:   clientlib.NewClient(srv.URL, users["finance"]),
		processor: clientlib.NewClient(srv.URL, users["processor"]),
		employee:  clientlib.NewClient(srv.URL, users["alice"]),
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se *clientlib.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected a server error, got %v", err)
	}
	return se.StatusCode
}

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

func (s *testServer) submit(t *testing.T, nonce uint64) payroll.ID {
	t.Helper()
	u := s.employee.User
	id := payroll.NewID(u.Identifier, nonce)
	sub, err := u.BuildSubmission(id, payroll.LevelSenior, baseline)
	if err != nil {
		t.Fatal(err)
	}
	summary, err := s.employee.SubmitPayroll(sub)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != payroll.StatusDraft {
		t.Fatalf("status after submit = %s", summary.Status)
	}
	return id
}

func TestVersion(t *testing.T) {
	s := newTestServer(t)
	v, err := s.owner.Version()
	if err != nil {
		t.Fatal(err)
	}
	if v != ConfigVersion {
		t.Errorf("version = %q, want %q", v, ConfigVersion)
	}
}

func TestRawRequests(t *testing.T) {
	s := newTestServer(t)
	principal := s.hr.User.Identifier.String()

	cases := []struct {
		name      string
		method    string
		path      string
		principal string
		body      string
		want      int
	}{
		{"unknown path", http.MethodPost, "/nope", principal, "{}", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/payroll/get", principal, "", http.StatusMethodNotAllowed},
		{"no principal", http.MethodPost, "/payroll/get", "", "{}", http.StatusUnauthorized},
		{"nil principal", http.MethodPost, "/payroll/get", uuid.Nil.String(), "{}", http.StatusUnauthorized},
		{"bad json", http.MethodPost, "/payroll/get", principal, "{", http.StatusBadRequest},
		{"unknown payroll", http.MethodPost, "/payroll/get", principal, "{}", http.StatusNotFound},
		{"policy", http.MethodPost, "/policy/get", principal, "{}", http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, err := http.NewRequest(c.method, s.srv.URL+c.path, strings.NewReader(c.body))
			if err != nil {
				t.Fatal(err)
			}
			if c.principal != "" {
				req.Header.Set(restfulpayload.PrincipalHeader, c.principal)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != c.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, c.want)
			}
		})
	}
}

func TestStatusCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.Wrap(payroll.ErrNotFound, "x"), http.StatusNotFound},
		{errors.Wrap(payroll.ErrAlreadyExists, "x"), http.StatusConflict},
		{errors.Wrap(payroll.ErrInvalidStatus, "x"), http.StatusConflict},
		{errors.Wrap(payroll.ErrUnauthorized, "x"), http.StatusForbidden},
		{errors.Wrap(payroll.ErrInvalidPolicy, "x"), http.StatusBadRequest},
		{errors.Wrap(payroll.ErrInvalidParameters, "x"), http.StatusBadRequest},
		{errors.Wrap(fhe.ErrProofVerification, "x"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusCodeOf(c.err); got != c.want {
			t.Errorf("statusCodeOf(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestPayrollOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, 1)

	// 重复提交
	sub, err := s.employee.User.BuildSubmission(id, payroll.LevelSenior, baseline)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.employee.SubmitPayroll(sub); statusOf(t, err) != http.StatusConflict {
		t.Errorf("duplicate submit: %v", err)
	}

	// 只有员工本人可以提交审核
	if err := s.hr.SubmitForReview(id); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("submitForReview by hr: %v", err)
	}
	if err := s.employee.SubmitForReview(id); err != nil {
		t.Fatal(err)
	}
	if err := s.hr.BeginReview(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.employee.RequestReview(id); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("requestReview by employee: %v", err)
	}
	if _, err := s.hr.RequestReview(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.hr.GetDecryptedReview(id); statusOf(t, err) != http.StatusNotFound {
		t.Errorf("review before delivery: %v", err)
	}

	n, err := s.app.Relayer.DeliverAll(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("DeliverAll = %d, %v", n, err)
	}

	review, err := s.hr.GetDecryptedReview(id)
	if err != nil {
		t.Fatal(err)
	}
	if review.TotalCompensation != 95000 || review.DecisionCode != payroll.DecisionApprove {
		t.Errorf("review = %+v", review)
	}
	summary, err := s.hr.GetPayroll(id)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != payroll.StatusApproved || !summary.IsEvaluated {
		t.Errorf("summary after review = %+v", summary)
	}

	// 审核通过后不能再次开始审核
	if err := s.hr.BeginReview(id); statusOf(t, err) != http.StatusConflict {
		t.Errorf("beginReview after approval: %v", err)
	}

	if err := s.processor.ApprovePayroll(id); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("approve by processor: %v", err)
	}
	if err := s.finance.ApprovePayroll(id); err != nil {
		t.Fatal(err)
	}
	pay, err := s.processor.User.BuildPayment(95000, 62450, 23750)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.processor.RecordPayment(id, pay); err != nil {
		t.Fatal(err)
	}
	if err := s.processor.MarkPaid(id); err != nil {
		t.Fatal(err)
	}
	records, err := s.processor.GetPaymentRecords(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("payment records = %d, want 1", len(records))
	}

	stats, err := s.owner.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.PayrollCount != 1 || stats.PaidCount != 1 || stats.PaymentCount != 1 {
		t.Errorf("stats = %+v", stats)
	}

	events, err := s.owner.GetEvents(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Error("no events journaled for payroll")
	}

	ids, err := s.hr.GetEmployeePayrolls(s.employee.User.Identifier)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("employee payrolls = %v", ids)
	}
}

func TestExportWithRegisteredKey(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, 1)
	if err := s.employee.SubmitForReview(id); err != nil {
		t.Fatal(err)
	}
	if err := s.hr.BeginReview(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.hr.RequestReview(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.app.Relayer.DeliverAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 未登记查看公钥时没有可用的密钥
	if _, err := s.hr.ExportReview(id, nil); err == nil {
		t.Fatal("export without a registered key succeeded")
	}
	if err := s.hr.RegisterViewingKey(); err != nil {
		t.Fatal(err)
	}
	exp, err := s.hr.ExportReview(id, nil)
	if err != nil {
		t.Fatal(err)
	}
	amounts, err := s.hr.User.OpenExport(exp)
	if err != nil {
		t.Fatal(err)
	}
	if amounts["totalCompensation"] != 95000 {
		t.Errorf("exported amounts = %v", amounts)
	}

	if _, err := s.finance.ExportReview(id, s.finance.User.ViewingKey()); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("export by finance: %v", err)
	}
}

func TestRoleAdminOverHTTP(t *testing.T) {
	s := newTestServer(t)
	stranger := clientlib.NewClient(s.srv.URL, newUser(t, "bob"))

	if _, err := stranger.AdvancePaymentCycle(); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("advance by stranger: %v", err)
	}
	if err := s.hr.GrantRole(stranger.User.Identifier, "finance"); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("grant by hr: %v", err)
	}
	if err := s.owner.GrantRole(stranger.User.Identifier, "auditor"); statusOf(t, err) != http.StatusBadRequest {
		t.Errorf("grant unknown role: %v", err)
	}
	if err := s.owner.GrantRole(stranger.User.Identifier, "finance"); err != nil {
		t.Fatal(err)
	}
	cycle, err := stranger.AdvancePaymentCycle()
	if err != nil {
		t.Fatal(err)
	}
	if cycle != 2 {
		t.Errorf("cycle = %d, want 2", cycle)
	}
	if err := s.owner.RevokeRole(stranger.User.Identifier, "finance"); err != nil {
		t.Fatal(err)
	}
	if _, err := stranger.AdvancePaymentCycle(); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("advance after revoke: %v", err)
	}

	p, err := s.owner.GetPolicy()
	if err != nil {
		t.Fatal(err)
	}
	p.TaxRateBps = 20000
	if err := s.owner.UpdatePolicy(p); statusOf(t, err) != http.StatusBadRequest {
		t.Errorf("invalid policy update: %v", err)
	}
}

func TestViewsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, 1)
	alice := s.employee.User.Identifier

	own, err := s.employee.GetOwnPayroll(id)
	if err != nil {
		t.Fatal(err)
	}
	if own.ID != id || own.Employee != alice || own.Status != payroll.StatusDraft || own.TotalCompensation.Handle.IsZero() {
		t.Errorf("own payroll = %+v", own)
	}
	if own.TotalCompensation.Width != fhe.W128 || own.Metrics.PerformanceScore.Width != fhe.W16 {
		t.Errorf("own payroll widths %d %d", own.TotalCompensation.Width, own.Metrics.PerformanceScore.Width)
	}
	if _, err := s.hr.GetOwnPayroll(id); statusOf(t, err) != http.StatusForbidden {
		t.Errorf("own payroll read by hr: %v", err)
	}

	profile, err := s.hr.GetEmployeeProfile(alice)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Identifier != alice || profile.TotalPayrolls != 1 || profile.AveragePerformance.Handle.IsZero() {
		t.Errorf("profile = %+v", profile)
	}
	if _, err := s.hr.GetEmployeeProfile(uuid.New()); statusOf(t, err) != http.StatusNotFound {
		t.Errorf("unknown profile: %v", err)
	}

	if _, err := s.finance.GetDepartmentBudget(7); statusOf(t, err) != http.StatusNotFound {
		t.Errorf("department before create: %v", err)
	}
	in, err := s.finance.User.BuildDepartment(7, "Engineering", 2026, 1000000)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.finance.CreateDepartmentBudget(in); err != nil {
		t.Fatal(err)
	}
	dept, err := s.finance.GetDepartmentBudget(7)
	if err != nil {
		t.Fatal(err)
	}
	if dept.DepartmentID != 7 || dept.Name != "Engineering" || dept.FiscalYear != 2026 || !dept.Active {
		t.Errorf("department = %+v", dept)
	}
	if err := s.finance.SetDepartmentActive(7, false); err != nil {
		t.Fatal(err)
	}
	if dept, _ := s.finance.GetDepartmentBudget(7); dept.Active {
		t.Error("department still active")
	}
}
