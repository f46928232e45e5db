// 包 authz 是账本操作前的角色校验层，基于 casbin 的 RBAC 模型。
// 主体是用户标识，角色挂在用户上，权限挂在角色上；所有者绕过所有检查。
package authz

import (
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleHR               Role = "hr"
	RoleFinance          Role = "finance"
	RolePayrollProcessor Role = "payroll-processor"
	RoleOracle           Role = "oracle"
)

var knownRoles = []Role{RoleHR, RoleFinance, RolePayrollProcessor, RoleOracle}

func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, r := range knownRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", errors.Errorf("authz: unknown role %q", s)
}

// Action 是受角色保护的账本操作
type Action string

const (
	ActionBeginReview      Action = "review.begin"
	ActionRequestReview    Action = "review.request"
	ActionExportReview     Action = "review.export"
	ActionReviewCallback   Action = "review.callback"
	ActionApprovePayroll   Action = "payroll.approve"
	ActionRecordPayment    Action = "payment.record"
	ActionMarkPaid         Action = "payroll.mark_paid"
	ActionCreateDepartment Action = "department.create"
	ActionAdvanceCycle     Action = "cycle.advance"
	ActionUpdatePolicy     Action = "policy.update"
	ActionManageRoles      Action = "roles.manage"
)

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// defaultPermissions 是角色到操作的固定映射；策略更新和角色管理只属于所有者
var defaultPermissions = map[Role][]Action{
	RoleHR:               {ActionBeginReview, ActionRequestReview, ActionExportReview},
	RoleFinance:          {ActionApprovePayroll, ActionCreateDepartment, ActionAdvanceCycle},
	RolePayrollProcessor: {ActionRecordPayment, ActionMarkPaid},
	RoleOracle:           {ActionReviewCallback},
}

func SubjectFromPrincipal(p uuid.UUID) string {
	return "user:" + p.String()
}

func SubjectFromRole(r Role) string {
	return "role:" + string(r)
}

type Registry struct {
	enforcer *casbin.SyncedEnforcer
	owner    uuid.UUID
}

func NewRegistry(owner uuid.UUID) (*Registry, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, errors.Wrap(err, "authz: load model")
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "authz: new enforcer")
	}
	for role, actions := range defaultPermissions {
		for _, act := range actions {
			if _, err := enforcer.AddPolicy(SubjectFromRole(role), string(act)); err != nil {
				return nil, errors.Wrapf(err, "authz: add policy %s %s", role, act)
			}
		}
	}
	return &Registry{enforcer: enforcer, owner: owner}, nil
}

func (r *Registry) Owner() uuid.UUID {
	return r.owner
}

func (r *Registry) IsOwner(p uuid.UUID) bool {
	return p == r.owner
}

// HasRole 是唯一的角色判断入口
func (r *Registry) HasRole(p uuid.UUID, role Role) bool {
	if r.IsOwner(p) {
		return true
	}
	ok, err := r.enforcer.HasRoleForUser(SubjectFromPrincipal(p), SubjectFromRole(role))
	return err == nil && ok
}

// Can 判断 p 能否执行 act
func (r *Registry) Can(p uuid.UUID, act Action) bool {
	if r.IsOwner(p) {
		return true
	}
	ok, err := r.enforcer.Enforce(SubjectFromPrincipal(p), string(act))
	return err == nil && ok
}

func (r *Registry) Grant(p uuid.UUID, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	_, err := r.enforcer.AddRoleForUser(SubjectFromPrincipal(p), SubjectFromRole(role))
	return err
}

func (r *Registry) Revoke(p uuid.UUID, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	_, err := r.enforcer.DeleteRoleForUser(SubjectFromPrincipal(p), SubjectFromRole(role))
	return err
}

// Roles 列出 p 被显式授予的角色，不包含所有者的隐式权限
func (r *Registry) Roles(p uuid.UUID) []Role {
	subjects, err := r.enforcer.GetRolesForUser(SubjectFromPrincipal(p))
	if err != nil {
		return nil
	}
	out := make([]Role, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, Role(strings.TrimPrefix(s, "role:")))
	}
	return out
}
