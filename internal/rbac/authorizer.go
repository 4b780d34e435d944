package rbac

import (
	"context"

	"eterna-home/internal/model"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Authorizer answers "may this user do X in this tenant". It is shared by
// every protected route. Role assignments are read per request from the
// user_tenant_roles table; the permission map is fixed at construction.
type Authorizer struct {
	db    *gorm.DB
	perms PermissionMap
}

// NewAuthorizer creates an Authorizer. A nil perms falls back to the
// default permission map.
func NewAuthorizer(db *gorm.DB, perms PermissionMap) *Authorizer {
	if perms == nil {
		perms = DefaultPermissionMap()
	}
	return &Authorizer{db: db, perms: perms}
}

// RolesInTenant returns the active roles the user holds in the given
// tenant. Global/primary roles are not consulted here.
func (a *Authorizer) RolesInTenant(ctx context.Context, userID uint, tenantID uuid.UUID) ([]Role, error) {
	var rows []model.UserTenantRole
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, Role(row.Role))
	}
	return roles, nil
}

// HasAnyRoleInTenant reports whether the user holds at least one active
// role in the tenant.
func (a *Authorizer) HasAnyRoleInTenant(ctx context.Context, userID uint, tenantID uuid.UUID) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&model.UserTenantRole{}).
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequireRole allows the request iff the user holds the given role in the
// tenant. Superusers bypass; inactive users always deny.
func (a *Authorizer) RequireRole(ctx context.Context, user *model.User, tenantID uuid.UUID, role Role) error {
	return a.require(ctx, user, tenantID, []Role{role}, false, "role:"+role.String())
}

// RequireAnyRole allows the request iff the user holds at least one of the
// given roles in the tenant.
func (a *Authorizer) RequireAnyRole(ctx context.Context, user *model.User, tenantID uuid.UUID, roles ...Role) error {
	return a.require(ctx, user, tenantID, roles, false, "any_role:"+joinRoles(roles))
}

// RequireAllRoles allows the request iff the user holds every one of the
// given roles in the tenant.
func (a *Authorizer) RequireAllRoles(ctx context.Context, user *model.User, tenantID uuid.UUID, roles ...Role) error {
	return a.require(ctx, user, tenantID, roles, true, "all_roles:"+joinRoles(roles))
}

// RequirePermission translates the permission through the map and requires
// any of the resulting roles. A permission missing from the map is a
// configuration fault, not a client error.
func (a *Authorizer) RequirePermission(ctx context.Context, user *model.User, tenantID uuid.UUID, perm Permission) error {
	required, ok := a.perms[perm]
	if !ok {
		prometheus.RecordAuthzFault("unknown_permission")
		logger.FromContext(ctx).Error("permission missing from permission map",
			zap.String("permission", perm.String()))
		return &UnknownPermissionError{Permission: perm}
	}
	return a.require(ctx, user, tenantID, required, false, "permission:"+perm.String())
}

// RequireAnyPermission requires any role drawn from the union of the
// permissions' role sets.
func (a *Authorizer) RequireAnyPermission(ctx context.Context, user *model.User, tenantID uuid.UUID, perms ...Permission) error {
	seen := make(map[Role]struct{})
	var union []Role
	for _, perm := range perms {
		required, ok := a.perms[perm]
		if !ok {
			prometheus.RecordAuthzFault("unknown_permission")
			logger.FromContext(ctx).Error("permission missing from permission map",
				zap.String("permission", perm.String()))
			return &UnknownPermissionError{Permission: perm}
		}
		for _, r := range required {
			if _, dup := seen[r]; !dup {
				seen[r] = struct{}{}
				union = append(union, r)
			}
		}
	}
	return a.require(ctx, user, tenantID, union, false, "any_permission:"+joinPermissions(perms))
}

// RequireOwnerOrElevated allows the request when the user owns the
// resource or holds an elevated role in the resource's tenant. The global
// superuser flag is the only cross-tenant bypass.
func (a *Authorizer) RequireOwnerOrElevated(ctx context.Context, user *model.User, tenantID uuid.UUID, ownerID uint) error {
	if user.IsSuperuser {
		a.audit(ctx, user, tenantID, "owner_or_elevated", "allow", "superuser")
		return nil
	}
	if !user.IsActive {
		a.audit(ctx, user, tenantID, "owner_or_elevated", "deny", "account_disabled")
		return ErrAccountDisabled
	}
	if user.ID == ownerID {
		a.audit(ctx, user, tenantID, "owner_or_elevated", "allow", "owner")
		return nil
	}

	held, err := a.RolesInTenant(ctx, user.ID, tenantID)
	if err != nil {
		return err
	}
	for _, h := range held {
		for _, e := range ElevatedRoles() {
			if h == e {
				a.audit(ctx, user, tenantID, "owner_or_elevated", "allow", "elevated_role")
				return nil
			}
		}
	}

	a.audit(ctx, user, tenantID, "owner_or_elevated", "deny", "no_elevated_role")
	return ErrForbidden
}

// require is the common predicate body. Evaluation order is fixed:
// superuser allow, inactive deny, then tenant-scoped role comparison.
func (a *Authorizer) require(ctx context.Context, user *model.User, tenantID uuid.UUID, required []Role, all bool, requirement string) error {
	if user.IsSuperuser {
		a.audit(ctx, user, tenantID, requirement, "allow", "superuser")
		return nil
	}
	if !user.IsActive {
		a.audit(ctx, user, tenantID, requirement, "deny", "account_disabled")
		return ErrAccountDisabled
	}

	held, err := a.RolesInTenant(ctx, user.ID, tenantID)
	if err != nil {
		return err
	}

	var satisfied bool
	if all {
		satisfied = containsAll(held, required)
	} else {
		satisfied = containsAny(held, required)
	}

	if !satisfied {
		a.audit(ctx, user, tenantID, requirement, "deny", "missing_role",
			zap.Strings("held_roles", rolesToStrings(held)))
		return ErrForbidden
	}

	a.audit(ctx, user, tenantID, requirement, "allow", "role_match")
	return nil
}

// audit logs every allow/deny decision and counts it
func (a *Authorizer) audit(ctx context.Context, user *model.User, tenantID uuid.UUID, requirement, outcome, reason string, extra ...zap.Field) {
	prometheus.RecordAuthzDecision(outcome)

	fields := []zap.Field{
		zap.String("email", user.Email),
		zap.String("tenant_id", tenantID.String()),
		zap.String("requirement", requirement),
		zap.String("outcome", outcome),
		zap.String("reason", reason),
	}
	fields = append(fields, extra...)
	logger.FromContext(ctx).Info("authorization decision", fields...)
}

func containsAny(held, required []Role) bool {
	for _, r := range required {
		for _, h := range held {
			if h == r {
				return true
			}
		}
	}
	return false
}

func containsAll(held, required []Role) bool {
	for _, r := range required {
		found := false
		for _, h := range held {
			if h == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(required) > 0
}

func rolesToStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func joinRoles(roles []Role) string {
	s := ""
	for i, r := range roles {
		if i > 0 {
			s += ","
		}
		s += string(r)
	}
	return s
}

func joinPermissions(perms []Permission) string {
	s := ""
	for i, p := range perms {
		if i > 0 {
			s += ","
		}
		s += string(p)
	}
	return s
}
