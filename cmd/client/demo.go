package main

import (
	"context"
	"fmt"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/clientlib"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe/plaintext"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/CamberLoid/Chimata-Payroll/internal/oracle"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/kr/pretty"
	"github.com/urfave/cli/v2"
)

var demoCommand = &cli.Command{
	Name:  "demo",
	Usage: "run a full payroll lifecycle against an in-process ledger",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Usage: "print ledger logs"},
	},
	Action: func(c *cli.Context) error {
		logger := log.Discard()
		if c.Bool("verbose") {
			logger = log.New(log.ParseLevel("debug"))
		}
		return runDemo(c.Context, logger)
	},
}

func runDemo(ctx context.Context, logger *log.Logger) error {
	employee, err := clientlib.NewUserWithKeys("alice")
	if err != nil {
		return err
	}
	finance, err := clientlib.NewUserWithKeys("finance")
	if err != nil {
		return err
	}
	processor, err := clientlib.NewUserWithKeys("processor")
	if err != nil {
		return err
	}
	owner, hr, oraclePrincipal := uuid.New(), uuid.New(), uuid.New()

	provider := plaintext.New(employee.Keys.Signing.PublicKey, finance.Keys.Signing.PublicKey, processor.Keys.Signing.PublicKey)
	roles, err := authz.NewRegistry(owner)
	if err != nil {
		return err
	}
	relayer := oracle.New(provider, oraclePrincipal, logger)
	sink := &ledger.MemorySink{}
	l, err := ledger.New(ledger.Options{Provider: provider, Roles: roles, Oracle: relayer, Sink: sink, Logger: logger})
	if err != nil {
		return err
	}
	relayer.Bind(l)

	for p, role := range map[uuid.UUID]authz.Role{
		hr:                   authz.RoleHR,
		finance.Identifier:   authz.RoleFinance,
		processor.Identifier: authz.RolePayrollProcessor,
		oraclePrincipal:      authz.RoleOracle,
	} {
		if err := l.GrantRole(owner, p, role); err != nil {
			return err
		}
	}

	dept, err := finance.BuildDepartment(7, "engineering", 2026, 1_000_000)
	if err != nil {
		return err
	}
	if err := l.CreateDepartmentBudget(finance.Identifier, dept); err != nil {
		return err
	}

	id := payroll.NewID(employee.Identifier, clientlib.GenNonce())
	s, err := employee.BuildSubmission(id, payroll.LevelSenior, clientlib.PayrollInput{
		BaseSalary:       80000,
		Bonus:            10000,
		Benefits:         5000,
		PerformanceScore: 7000,
		TenureMonths:     12,
		DepartmentCode:   7,
	})
	if err != nil {
		return err
	}
	if _, err := l.SubmitPayroll(employee.Identifier, s); err != nil {
		return err
	}
	if err := l.SubmitForReview(employee.Identifier, id); err != nil {
		return err
	}
	if err := l.BeginReview(hr, id); err != nil {
		return err
	}
	// 市场参考 50000 使 95000 落在 Elite 档
	policy := l.Policy()
	policy.MarketRateReference = 50000
	if err := l.UpdatePolicy(owner, policy); err != nil {
		return err
	}
	reqID, err := l.RequestCompensationReview(hr, id)
	if err != nil {
		return err
	}
	fmt.Println("decryption requested:", reqID)
	if _, err := relayer.DeliverAll(ctx); err != nil {
		return err
	}

	review, err := l.DecryptedReview(id)
	if err != nil {
		return err
	}
	pretty.Println(review)

	if err := l.ApprovePayroll(finance.Identifier, id); err != nil {
		return err
	}
	payment, err := processor.BuildPayment(review.TotalCompensation, review.NetPay, review.TotalCompensation-review.NetPay)
	if err != nil {
		return err
	}
	if _, err := l.RecordPayment(processor.Identifier, id, payment); err != nil {
		return err
	}
	if err := l.MarkPaid(processor.Identifier, id); err != nil {
		return err
	}

	exp, err := l.ExportReview(employee.Identifier, id, employee.ViewingKey())
	if err != nil {
		return err
	}
	opened, err := employee.OpenExport(exp)
	if err != nil {
		return err
	}

	summary, err := l.PayrollSummary(id)
	if err != nil {
		return err
	}
	pretty.Println(summary)
	pretty.Println(opened)
	pretty.Println(l.Stats())
	fmt.Println("events:", sink.Kinds())
	return nil
}
