// server.go 包括客户端与服务端交互的接口和函数

package clientlib

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/restfulpayload"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	VersionEndpoint             string = "/version"
	PayrollSubmitEndpoint       string = "/payroll/submit"
	PayrollSubmitReviewEndpoint string = "/payroll/submitForReview"
	PayrollBeginReviewEndpoint  string = "/payroll/beginReview"
	PayrollRequestEndpoint      string = "/payroll/requestReview"
	PayrollApproveEndpoint      string = "/payroll/approve"
	PayrollPaymentEndpoint      string = "/payroll/recordPayment"
	PayrollMarkPaidEndpoint     string = "/payroll/markPaid"
	PayrollGetEndpoint          string = "/payroll/get"
	PayrollReviewEndpoint       string = "/payroll/review"
	PayrollOwnEndpoint          string = "/payroll/own"
	PayrollExportEndpoint       string = "/payroll/export"
	PayrollPaymentsEndpoint     string = "/payroll/payments"
	PayrollEventsEndpoint       string = "/payroll/events"
	EmployeePayrollsEndpoint    string = "/employee/payrolls"
	EmployeeProfileEndpoint     string = "/employee/profile"
	DepartmentCreateEndpoint    string = "/department/create"
	DepartmentActiveEndpoint    string = "/department/setActive"
	DepartmentGetEndpoint       string = "/department/get"
	CycleAdvanceEndpoint        string = "/cycle/advance"
	PolicyGetEndpoint           string = "/policy/get"
	PolicyUpdateEndpoint        string = "/policy/update"
	RoleGrantEndpoint           string = "/role/grant"
	RoleRevokeEndpoint          string = "/role/revoke"
	RegisterViewingKeyEndpoint  string = "/register/viewingKey"
	StatsEndpoint               string = "/stats"
)

// ServerError 是服务端返回的失败响应
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Message
}

// post 发送 JSON 请求并把 data 字段解码到 out，out 可以为 nil
func (c *Client) post(endpoint string, body any, out any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.ServerURL+endpoint, bytes.NewBuffer(jsonBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.User != nil {
		req.Header.Set(restfulpayload.PrincipalHeader, c.User.Identifier.String())
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var r restfulpayload.Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return errors.Wrapf(err, "decode %s response (%s)", endpoint, resp.Status)
	}
	if resp.StatusCode != http.StatusOK || r.Status != restfulpayload.StatusOK {
		return &ServerError{StatusCode: resp.StatusCode, Message: r.Err}
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(r.Data, out), "decode %s data", endpoint)
}

// --- 工资单部分 ---

func (c *Client) SubmitPayroll(s ledger.Submission) (summary payroll.Summary, err error) {
	err = c.post(PayrollSubmitEndpoint, s, &summary)
	return
}

func (c *Client) SubmitForReview(id payroll.ID) error {
	return c.post(PayrollSubmitReviewEndpoint, restfulpayload.PayrollReq{ID: id}, nil)
}

func (c *Client) BeginReview(id payroll.ID) error {
	return c.post(PayrollBeginReviewEndpoint, restfulpayload.PayrollReq{ID: id}, nil)
}

func (c *Client) RequestReview(id payroll.ID) (uuid.UUID, error) {
	var resp restfulpayload.RequestReviewResp
	err := c.post(PayrollRequestEndpoint, restfulpayload.PayrollReq{ID: id}, &resp)
	return resp.RequestID, err
}

func (c *Client) ApprovePayroll(id payroll.ID) error {
	return c.post(PayrollApproveEndpoint, restfulpayload.PayrollReq{ID: id}, nil)
}

func (c *Client) RecordPayment(id payroll.ID, in ledger.PaymentInput) (uuid.UUID, error) {
	var resp restfulpayload.RecordPaymentResp
	err := c.post(PayrollPaymentEndpoint, restfulpayload.RecordPaymentReq{
		ID: id, Gross: in.Gross, Net: in.Net, Tax: in.Tax,
	}, &resp)
	return resp.PaymentID, err
}

func (c *Client) MarkPaid(id payroll.ID) error {
	return c.post(PayrollMarkPaidEndpoint, restfulpayload.PayrollReq{ID: id}, nil)
}

func (c *Client) GetPayroll(id payroll.ID) (summary payroll.Summary, err error) {
	err = c.post(PayrollGetEndpoint, restfulpayload.PayrollReq{ID: id}, &summary)
	return
}

func (c *Client) GetDecryptedReview(id payroll.ID) (review payroll.DecryptedReview, err error) {
	err = c.post(PayrollReviewEndpoint, restfulpayload.PayrollReq{ID: id}, &review)
	return
}

func (c *Client) GetOwnPayroll(id payroll.ID) (p payroll.Payroll, err error) {
	err = c.post(PayrollOwnEndpoint, restfulpayload.PayrollReq{ID: id}, &p)
	return
}

// ExportReview 请求导出审核结果；viewingKey 为 nil 时使用已登记的查看公钥
func (c *Client) ExportReview(id payroll.ID, viewingKey []byte) (exp ledger.Export, err error) {
	err = c.post(PayrollExportEndpoint, restfulpayload.ExportReq{ID: id, ViewingKey: viewingKey}, &exp)
	return
}

func (c *Client) GetPaymentRecords(id payroll.ID) (records []payroll.PaymentRecord, err error) {
	err = c.post(PayrollPaymentsEndpoint, restfulpayload.PayrollReq{ID: id}, &records)
	return
}

func (c *Client) GetEvents(id payroll.ID) (events []ledger.Event, err error) {
	err = c.post(PayrollEventsEndpoint, restfulpayload.PayrollReq{ID: id}, &events)
	return
}

// --- 员工与部门部分 ---

func (c *Client) GetEmployeePayrolls(employee uuid.UUID) (ids []payroll.ID, err error) {
	err = c.post(EmployeePayrollsEndpoint, restfulpayload.EmployeeReq{Employee: employee}, &ids)
	return
}

func (c *Client) GetEmployeeProfile(employee uuid.UUID) (profile payroll.EmployeeProfile, err error) {
	err = c.post(EmployeeProfileEndpoint, restfulpayload.EmployeeReq{Employee: employee}, &profile)
	return
}

func (c *Client) CreateDepartmentBudget(in ledger.DepartmentInput) error {
	return c.post(DepartmentCreateEndpoint, in, nil)
}

func (c *Client) SetDepartmentActive(id uint32, active bool) error {
	return c.post(DepartmentActiveEndpoint, restfulpayload.DepartmentActiveReq{DepartmentID: id, Active: active}, nil)
}

func (c *Client) GetDepartmentBudget(id uint32) (d payroll.DepartmentBudget, err error) {
	err = c.post(DepartmentGetEndpoint, restfulpayload.DepartmentReq{DepartmentID: id}, &d)
	return
}

func (c *Client) AdvancePaymentCycle() (uint64, error) {
	var resp restfulpayload.CycleResp
	err := c.post(CycleAdvanceEndpoint, struct{}{}, &resp)
	return resp.Cycle, err
}

// --- 管理部分 ---

func (c *Client) GetPolicy() (p payroll.Policy, err error) {
	err = c.post(PolicyGetEndpoint, struct{}{}, &p)
	return
}

func (c *Client) UpdatePolicy(p payroll.Policy) error {
	return c.post(PolicyUpdateEndpoint, p, nil)
}

func (c *Client) GrantRole(principal uuid.UUID, role authz.Role) error {
	return c.post(RoleGrantEndpoint, restfulpayload.RoleReq{Principal: principal, Role: string(role)}, nil)
}

func (c *Client) RevokeRole(principal uuid.UUID, role authz.Role) error {
	return c.post(RoleRevokeEndpoint, restfulpayload.RoleReq{Principal: principal, Role: string(role)}, nil)
}

// RegisterViewingKey 登记当前用户的查看公钥
func (c *Client) RegisterViewingKey() error {
	vk := c.User.ViewingKey()
	if vk == nil {
		return errors.New("no viewing key to register")
	}
	return c.post(RegisterViewingKeyEndpoint, restfulpayload.RegisterViewingKeyReq{ViewingKey: vk}, nil)
}

func (c *Client) GetStats() (s ledger.Stats, err error) {
	err = c.post(StatsEndpoint, struct{}{}, &s)
	return
}

// Version 返回服务端版本
func (c *Client) Version() (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	err := c.post(VersionEndpoint, struct{}{}, &resp)
	return resp.Version, err
}
