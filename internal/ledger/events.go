package ledger

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
)

type EventKind string

const (
	EventPayrollSubmitted    EventKind = "payroll.submitted"
	EventSubmittedForReview  EventKind = "payroll.submitted_for_review"
	EventReviewStarted       EventKind = "review.started"
	EventReviewRequested     EventKind = "review.requested"
	EventReviewCompleted     EventKind = "review.completed"
	EventPayrollApproved     EventKind = "payroll.approved"
	EventPaymentRecorded     EventKind = "payment.recorded"
	EventPayrollPaid         EventKind = "payroll.paid"
	EventDepartmentCreated   EventKind = "department.created"
	EventDepartmentToggled   EventKind = "department.toggled"
	EventPaymentCycleAdvance EventKind = "cycle.advanced"
	EventPolicyUpdated       EventKind = "policy.updated"
	EventRoleGranted         EventKind = "role.granted"
	EventRoleRevoked         EventKind = "role.revoked"
)

// Event 在每次修改操作成功后发出，不携带密文。
// 只有 review.completed 带上已经公开的解密结果。
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Kind      EventKind      `json:"kind"`
	PayrollID payroll.ID     `json:"payrollId,omitempty"`
	RequestID uuid.UUID      `json:"requestId,omitempty"`
	Actor     uuid.UUID      `json:"actor"`
	Status    payroll.Status `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Timestamp int64          `json:"timestamp"`

	Revealed *payroll.DecryptedReview `json:"revealed,omitempty"`
}

// EventSink 接收账本事件。Emit 在账本锁内调用，状态已经提交，
// 返回的错误只会被记录，不会回滚操作。
type EventSink interface {
	Emit(Event) error
}

type NopSink struct{}

func (NopSink) Emit(Event) error { return nil }

// MemorySink 把事件保存在内存中，用于测试
type MemorySink struct {
	Events []Event
}

func (m *MemorySink) Emit(e Event) error {
	m.Events = append(m.Events, e)
	return nil
}

// Kinds 返回已记录事件的类型序列
func (m *MemorySink) Kinds() []EventKind {
	out := make([]EventKind, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Kind
	}
	return out
}

func (l *Ledger) emit(e Event) {
	e.ID = uuid.New()
	if e.Timestamp == 0 {
		e.Timestamp = l.timestamp()
	}
	if err := l.sink.Emit(e); err != nil {
		l.log.Error("emit event failed", "kind", e.Kind, "err", err)
	}
}
