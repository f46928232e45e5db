package ledger

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UpdatePolicy 整体替换策略，只有所有者可以调用。
// 已经发起的审核使用发起时的策略，不受影响。
func (l *Ledger) UpdatePolicy(caller uuid.UUID, policy payroll.Policy) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionUpdatePolicy); err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	l.policy = policy
	l.log.Info("policy updated", "policy", policy)
	l.emit(Event{Kind: EventPolicyUpdated, Actor: caller})
	return nil
}

// GrantRole 授予角色，只有所有者可以调用
func (l *Ledger) GrantRole(caller, principal uuid.UUID, role authz.Role) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionManageRoles); err != nil {
		return err
	}
	if err := l.roles.Grant(principal, role); err != nil {
		return errors.Wrap(payroll.ErrInvalidParameters, err.Error())
	}

	l.log.Info("role granted", "principal", principal, "role", role)
	l.emit(Event{Kind: EventRoleGranted, Actor: caller, Detail: string(role) + " " + principal.String()})
	return nil
}

// RevokeRole 撤销角色，只有所有者可以调用
func (l *Ledger) RevokeRole(caller, principal uuid.UUID, role authz.Role) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionManageRoles); err != nil {
		return err
	}
	if err := l.roles.Revoke(principal, role); err != nil {
		return errors.Wrap(payroll.ErrInvalidParameters, err.Error())
	}

	l.log.Info("role revoked", "principal", principal, "role", role)
	l.emit(Event{Kind: EventRoleRevoked, Actor: caller, Detail: string(role) + " " + principal.String()})
	return nil
}

// HasRole 直接查询角色登记，所有者对任何角色都返回 true
func (l *Ledger) HasRole(principal uuid.UUID, role authz.Role) bool {
	return l.roles.HasRole(principal, role)
}
