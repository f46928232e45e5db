// 包 ledger 是加密工资单账本：单写者、全序执行的状态机。
// 每个修改操作在持有 Ledger 锁期间原子地完成，任何观察者都看不到部分生效的状态。
// 唯一的异步点是审核解密请求与其回调之间的间隔。
package ledger

import (
	"sync"
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/serverlib"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultReviewDeadline 是传给预言机的建议截止时间，不做强制
const DefaultReviewDeadline = 10 * time.Minute

// Oracle 是解密预言机的请求端。
// 实现不得在 RequestDecryption 内同步回调账本，回调总是稍后通过 CompleteReview 到达。
type Oracle interface {
	RequestDecryption(handles []fhe.Handle, requester uuid.UUID, deadline time.Time) (uuid.UUID, error)
}

// Aggregates 是公司层面的加密累计值，只做增量更新
type Aggregates struct {
	TotalPayrollExpense     fhe.Value `json:"totalPayrollExpense"`     // 128 位
	TotalTaxWithheld        fhe.Value `json:"totalTaxWithheld"`        // 128 位
	TotalBenefitsCost       fhe.Value `json:"totalBenefitsCost"`       // 128 位
	AverageBaseSalary       fhe.Value `json:"averageBaseSalary"`       // 64 位
	AveragePerformanceScore fhe.Value `json:"averagePerformanceScore"` // 64 位
	Headcount               fhe.Value `json:"headcount"`               // 32 位
}

// Stats 是明文计数器
type Stats struct {
	PayrollCount        uint64 `json:"payrollCount"`
	EmployeeCount       uint64 `json:"employeeCount"`
	RejectedCount       uint64 `json:"rejectedCount"`
	PaidCount           uint64 `json:"paidCount"`
	PaymentCount        uint64 `json:"paymentCount"`
	CurrentPaymentCycle uint64 `json:"currentPaymentCycle"`
}

type pendingRequest struct {
	payrollID payroll.ID
	consumed  bool
}

type Options struct {
	// Self 是账本自身的主体标识，持久化的每个密文都会授权给它
	Self     uuid.UUID
	Provider fhe.Provider
	Roles    *authz.Registry
	Oracle   Oracle
	Sink     EventSink
	Clock    func() time.Time
	Logger   *log.Logger
	Policy   *payroll.Policy

	ReviewDeadline time.Duration
}

type Ledger struct {
	mu sync.Mutex

	self           uuid.UUID
	fhe            fhe.Provider
	roles          *authz.Registry
	oracle         Oracle
	sink           EventSink
	now            func() time.Time
	log            *log.Logger
	reviewDeadline time.Duration

	policy payroll.Policy

	payrolls          map[payroll.ID]*payroll.Payroll
	reviews           map[payroll.ID]*payroll.CompensationReview
	decrypted         map[payroll.ID]*payroll.DecryptedReview
	pending           map[uuid.UUID]*pendingRequest
	payments          map[payroll.ID][]payroll.PaymentRecord
	employees         map[uuid.UUID]*payroll.EmployeeProfile
	employeePayrolls  map[uuid.UUID][]payroll.ID
	departments       map[uint32]*payroll.DepartmentBudget
	departmentMembers map[uint32]map[uuid.UUID]struct{}

	agg   Aggregates
	stats Stats
}

func New(opts Options) (*Ledger, error) {
	if opts.Provider == nil {
		return nil, errors.New("ledger: no fhe provider")
	}
	if opts.Roles == nil {
		return nil, errors.New("ledger: no role registry")
	}
	if opts.Oracle == nil {
		return nil, errors.New("ledger: no decryption oracle")
	}

	l := &Ledger{
		self:           opts.Self,
		fhe:            opts.Provider,
		roles:          opts.Roles,
		oracle:         opts.Oracle,
		sink:           opts.Sink,
		now:            opts.Clock,
		log:            opts.Logger,
		reviewDeadline: opts.ReviewDeadline,
		policy:         payroll.DefaultPolicy(),

		payrolls:          make(map[payroll.ID]*payroll.Payroll),
		reviews:           make(map[payroll.ID]*payroll.CompensationReview),
		decrypted:         make(map[payroll.ID]*payroll.DecryptedReview),
		pending:           make(map[uuid.UUID]*pendingRequest),
		payments:          make(map[payroll.ID][]payroll.PaymentRecord),
		employees:         make(map[uuid.UUID]*payroll.EmployeeProfile),
		employeePayrolls:  make(map[uuid.UUID][]payroll.ID),
		departments:       make(map[uint32]*payroll.DepartmentBudget),
		departmentMembers: make(map[uint32]map[uuid.UUID]struct{}),
	}
	if l.self == uuid.Nil {
		l.self = uuid.New()
	}
	if l.sink == nil {
		l.sink = NopSink{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = log.Default()
	}
	l.log = l.log.Module("ledger")
	if l.reviewDeadline <= 0 {
		l.reviewDeadline = DefaultReviewDeadline
	}
	if opts.Policy != nil {
		if err := opts.Policy.Validate(); err != nil {
			return nil, err
		}
		l.policy = *opts.Policy
	}

	if err := l.initAggregates(); err != nil {
		return nil, errors.Wrap(err, "ledger: init aggregates")
	}
	l.stats.CurrentPaymentCycle = 1

	return l, nil
}

func (l *Ledger) initAggregates() error {
	return l.compute(func() {
		l.agg = Aggregates{
			TotalPayrollExpense:     l.fhe.EncryptConst(fhe.W128, 0),
			TotalTaxWithheld:        l.fhe.EncryptConst(fhe.W128, 0),
			TotalBenefitsCost:       l.fhe.EncryptConst(fhe.W128, 0),
			AverageBaseSalary:       l.fhe.EncryptConst(fhe.W64, 0),
			AveragePerformanceScore: l.fhe.EncryptConst(fhe.W64, 0),
			Headcount:               l.fhe.EncryptConst(fhe.W32, 0),
		}
		l.allowSelf(
			l.agg.TotalPayrollExpense, l.agg.TotalTaxWithheld, l.agg.TotalBenefitsCost,
			l.agg.AverageBaseSalary, l.agg.AveragePerformanceScore, l.agg.Headcount,
		)
	})
}

// Self 返回账本自身的主体标识
func (l *Ledger) Self() uuid.UUID {
	return l.self
}

// --- Helper Func 部分 ---

func (l *Ledger) timestamp() int64 {
	return l.now().Unix()
}

// authorize 校验角色权限
func (l *Ledger) authorize(caller uuid.UUID, act authz.Action) error {
	if !l.roles.Can(caller, act) {
		l.log.Warn("unauthorized", "caller", caller, "action", act)
		return errors.Wrapf(payroll.ErrUnauthorized, "%s may not %s", caller, act)
	}
	return nil
}

func (l *Ledger) getPayroll(id payroll.ID) (*payroll.Payroll, error) {
	p, ok := l.payrolls[id]
	if !ok {
		return nil, errors.Wrapf(payroll.ErrNotFound, "payroll %s", id)
	}
	return p, nil
}

func requireStatus(p *payroll.Payroll, allowed ...payroll.Status) error {
	for _, s := range allowed {
		if p.Status == s {
			return nil
		}
	}
	return errors.Wrapf(payroll.ErrInvalidStatus, "payroll %s is %s, expected one of %v", p.ID, p.Status, allowed)
}

func (l *Ledger) allowSelf(vs ...fhe.Value) {
	for _, v := range vs {
		l.fhe.Allow(v.Handle, l.self)
	}
}

func (l *Ledger) allow(principal uuid.UUID, vs ...fhe.Value) {
	for _, v := range vs {
		l.fhe.Allow(v.Handle, principal)
	}
}

// compute 执行一段同态计算，把其中的 panic 转换为 error
func (l *Ledger) compute(f func()) error {
	return errors.Wrap(serverlib.Recover(f), "homomorphic evaluation failed")
}

type inputSpec struct {
	name  string
	dst   *fhe.Value
	width fhe.Width
	in    fhe.ExternalInput
}

// materialize 验证每个输入的证明并物化密文，任何一个失败则整体失败
func (l *Ledger) materialize(submitter uuid.UUID, specs []inputSpec) error {
	for _, s := range specs {
		v, err := l.fhe.FromExternal(s.width, s.in, submitter)
		if err != nil {
			return errors.Wrapf(err, "input %s", s.name)
		}
		*s.dst = v
	}
	return nil
}
