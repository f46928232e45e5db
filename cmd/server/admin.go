package main

import (
	"net/http"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/restfulpayload"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// --- 员工与部门部分 ---

func (a *App) HandlerEmployeePayrolls(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.EmployeeReq) (any, error) {
		return a.Ledger.EmployeePayrolls(r.Employee), nil
	})
}

func (a *App) HandlerEmployeeProfile(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.EmployeeReq) (any, error) {
		return a.Ledger.EmployeeProfile(r.Employee)
	})
}

func (a *App) HandlerDepartmentCreate(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, in ledger.DepartmentInput) (any, error) {
		return nil, a.Ledger.CreateDepartmentBudget(caller, in)
	})
}

func (a *App) HandlerDepartmentSetActive(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.DepartmentActiveReq) (any, error) {
		return nil, a.Ledger.SetDepartmentActive(caller, r.DepartmentID, r.Active)
	})
}

func (a *App) HandlerDepartmentGet(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, r restfulpayload.DepartmentReq) (any, error) {
		return a.Ledger.DepartmentBudget(r.DepartmentID)
	})
}

func (a *App) HandlerCycleAdvance(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, _ struct{}) (any, error) {
		cycle, err := a.Ledger.AdvancePaymentCycle(caller)
		if err != nil {
			return nil, err
		}
		return restfulpayload.CycleResp{Cycle: cycle}, nil
	})
}

// --- 管理部分 ---

func (a *App) HandlerPolicyGet(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, _ struct{}) (any, error) {
		return a.Ledger.Policy(), nil
	})
}

func (a *App) HandlerPolicyUpdate(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, p payroll.Policy) (any, error) {
		return nil, a.Ledger.UpdatePolicy(caller, p)
	})
}

func parseRoleReq(r restfulpayload.RoleReq) (authz.Role, error) {
	role, err := authz.ParseRole(r.Role)
	if err != nil {
		return "", errors.Wrap(payroll.ErrInvalidParameters, err.Error())
	}
	if r.Principal == uuid.Nil {
		return "", errors.Wrap(payroll.ErrInvalidParameters, "missing principal")
	}
	return role, nil
}

func (a *App) HandlerRoleGrant(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.RoleReq) (any, error) {
		role, err := parseRoleReq(r)
		if err != nil {
			return nil, err
		}
		return nil, a.Ledger.GrantRole(caller, r.Principal, role)
	})
}

func (a *App) HandlerRoleRevoke(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.RoleReq) (any, error) {
		role, err := parseRoleReq(r)
		if err != nil {
			return nil, err
		}
		return nil, a.Ledger.RevokeRole(caller, r.Principal, role)
	})
}

// Handle /register/viewingKey request
func (a *App) HandlerRegisterViewingKey(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(caller uuid.UUID, r restfulpayload.RegisterViewingKeyReq) (any, error) {
		if a.Journal == nil {
			return nil, errors.New("key store disabled")
		}
		return nil, a.Journal.PutViewingKey(caller, r.ViewingKey, a.Now().Unix())
	})
}

func (a *App) HandlerStats(w http.ResponseWriter, req *http.Request) {
	handle(a, w, req, func(_ uuid.UUID, _ struct{}) (any, error) {
		return a.Ledger.Stats(), nil
	})
}
