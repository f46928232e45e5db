package main

import (
	"net/http"

	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/restfulpayload"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Handle /payroll/submit request
func (a *App) HandlerPayrollSubmit(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, s ledger.Submission) (any, error) {
		return a.Ledger.SubmitPayroll(caller, s)
	})
}

// Handle /payroll/submitForReview request
func (a *App) HandlerPayrollSubmitForReview(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return nil, a.Ledger.SubmitForReview(caller, r.ID)
	})
}

// Handle /payroll/beginReview request
func (a *App) HandlerPayrollBeginReview(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return nil, a.Ledger.BeginReview(caller, r.ID)
	})
}

// Handle /payroll/requestReview request
// 解密结果由后台的预言机中继稍后回调
func (a *App) HandlerPayrollRequestReview(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		id, err := a.Ledger.RequestCompensationReview(caller, r.ID)
		if err != nil {
			return nil, err
		}
		return restfulpayload.RequestReviewResp{RequestID: id}, nil
	})
}

// Handle /payroll/approve request
func (a *App) HandlerPayrollApprove(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return nil, a.Ledger.ApprovePayroll(caller, r.ID)
	})
}

// Handle /payroll/recordPayment request
func (a *App) HandlerPayrollRecordPayment(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.RecordPaymentReq) (any, error) {
		id, err := a.Ledger.RecordPayment(caller, r.ID, ledger.PaymentInput{Gross: r.Gross, Net: r.Net, Tax: r.Tax})
		if err != nil {
			return nil, err
		}
		return restfulpayload.RecordPaymentResp{PaymentID: id}, nil
	})
}

// Handle /payroll/markPaid request
func (a *App) HandlerPayrollMarkPaid(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return nil, a.Ledger.MarkPaid(caller, r.ID)
	})
}

// --- 查询部分 ---

func (a *App) HandlerPayrollGet(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return a.Ledger.PayrollSummary(r.ID)
	})
}

func (a *App) HandlerPayrollReview(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return a.Ledger.DecryptedReview(r.ID)
	})
}

func (a *App) HandlerPayrollOwn(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return a.Ledger.OwnPayroll(caller, r.ID)
	})
}

// Handle /payroll/export request
// 请求中没有查看公钥时使用调用者登记过的公钥
func (a *App) HandlerPayrollExport(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.ExportReq) (any, error) {
		vk := r.ViewingKey
		if len(vk) == 0 {
			if a.Journal == nil {
				return nil, errors.New("no viewing key supplied and no key store")
			}
			var err error
			if vk, err = a.Journal.GetViewingKey(caller); err != nil {
				return nil, err
			}
		}
		return a.Ledger.ExportReview(caller, r.ID, vk)
	})
}

func (a *App) HandlerPayrollPayments(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		return a.Ledger.PaymentRecords(r.ID)
	})
}

// Handle /payroll/events request，零值 ID 返回全部事件
func (a *App) HandlerPayrollEvents(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.PayrollReq) (any, error) {
		if a.Journal == nil {
			return nil, errors.New("event journal disabled")
		}
		return a.Journal.ListEvents(r.ID)
	})
}
