package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/config"
	"github.com/CamberLoid/Chimata-Payroll/internal/db"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe/plaintext"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/CamberLoid/Chimata-Payroll/internal/oracle"
	"github.com/google/uuid"
)

const DefaultVersion = "indev"

var ConfigVersion = DefaultVersion

// App 持有服务端的全部依赖，处理函数都挂在它上面
type App struct {
	Ledger  *ledger.Ledger
	Journal *db.Journal
	Relayer *oracle.Relayer
	Logger  *log.Logger
	Now     func() time.Time
}

// NewApp 按配置组装账本、预言机中继和事件日志
func NewApp(cfg config.Config, journal *db.Journal, logger *log.Logger) (*App, error) {
	signers, err := loadSigners(cfg.Signers)
	if err != nil {
		return nil, err
	}
	provider := plaintext.New(signers...)

	owner := cfg.OwnerID()
	if owner == uuid.Nil {
		owner = uuid.New()
		logger.Warn("no owner configured, generated one", "owner", owner)
	}
	roles, err := authz.NewRegistry(owner)
	if err != nil {
		return nil, err
	}

	oraclePrincipal := cfg.OraclePrincipal()
	if oraclePrincipal == uuid.Nil {
		oraclePrincipal = uuid.New()
	}
	if err := roles.Grant(oraclePrincipal, authz.RoleOracle); err != nil {
		return nil, err
	}
	for _, r := range cfg.Roles {
		role, _ := authz.ParseRole(r.Role)
		if err := roles.Grant(uuid.MustParse(r.Principal), role); err != nil {
			return nil, err
		}
	}
	relayer := oracle.New(provider, oraclePrincipal, logger)

	var sink ledger.EventSink = ledger.NopSink{}
	if journal != nil {
		sink = journal
	}
	l, err := ledger.New(ledger.Options{
		Self:           cfg.SelfID(),
		Provider:       provider,
		Roles:          roles,
		Oracle:         relayer,
		Sink:           sink,
		Logger:         logger,
		Policy:         cfg.Policy,
		ReviewDeadline: cfg.Oracle.Deadline,
	})
	if err != nil {
		return nil, err
	}
	relayer.Bind(l)

	logger.Info("ledger ready", "owner", owner, "oracle", oraclePrincipal, "self", l.Self(), "signers", len(signers))
	return &App{Ledger: l, Journal: journal, Relayer: relayer, Logger: logger, Now: time.Now}, nil
}

func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.HandleNotFound)
	mux.HandleFunc("/version", a.HandlerVersion)

	// 工资单部分
	mux.HandleFunc("/payroll/submit", a.HandlerPayrollSubmit)
	mux.HandleFunc("/payroll/submitForReview", a.HandlerPayrollSubmitForReview)
	mux.HandleFunc("/payroll/beginReview", a.HandlerPayrollBeginReview)
	mux.HandleFunc("/payroll/requestReview", a.HandlerPayrollRequestReview)
	mux.HandleFunc("/payroll/approve", a.HandlerPayrollApprove)
	mux.HandleFunc("/payroll/recordPayment", a.HandlerPayrollRecordPayment)
	mux.HandleFunc("/payroll/markPaid", a.HandlerPayrollMarkPaid)
	mux.HandleFunc("/payroll/get", a.HandlerPayrollGet)
	mux.HandleFunc("/payroll/review", a.HandlerPayrollReview)
	mux.HandleFunc("/payroll/own", a.HandlerPayrollOwn)
	mux.HandleFunc("/payroll/export", a.HandlerPayrollExport)
	mux.HandleFunc("/payroll/payments", a.HandlerPayrollPayments)
	mux.HandleFunc("/payroll/events", a.HandlerPayrollEvents)

	// 员工与部门部分
	mux.HandleFunc("/employee/payrolls", a.HandlerEmployeePayrolls)
	mux.HandleFunc("/employee/profile", a.HandlerEmployeeProfile)
	mux.HandleFunc("/department/create", a.HandlerDepartmentCreate)
	mux.HandleFunc("/department/setActive", a.HandlerDepartmentSetActive)
	mux.HandleFunc("/department/get", a.HandlerDepartmentGet)
	mux.HandleFunc("/cycle/advance", a.HandlerCycleAdvance)

	// 管理部分
	mux.HandleFunc("/policy/get", a.HandlerPolicyGet)
	mux.HandleFunc("/policy/update", a.HandlerPolicyUpdate)
	mux.HandleFunc("/role/grant", a.HandlerRoleGrant)
	mux.HandleFunc("/role/revoke", a.HandlerRoleRevoke)
	mux.HandleFunc("/register/viewingKey", a.HandlerRegisterViewingKey)
	mux.HandleFunc("/stats", a.HandlerStats)
	return mux
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Default().Fatal("load config failed", "err", err)
	}
	logger := log.New(log.ParseLevel(cfg.LogLevel))
	log.SetDefault(logger)

	logger.Info("Project Chimata-Payroll Server", "version", ConfigVersion)

	journal, err := InitDatabase(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("init database failed", "err", err)
	}
	defer journal.Close()

	app, err := NewApp(cfg, journal, logger)
	if err != nil {
		logger.Fatal("init ledger failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.Relayer.Run(ctx, cfg.Oracle.Interval)

	srv := &http.Server{Addr: cfg.ListenAddress(), Handler: app.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Listening", "addr", cfg.ListenAddress())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", "err", err)
	}
}
