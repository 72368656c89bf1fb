package rbac

import "fmt"

// 权限常量
const (
	PermissionRegisterActor     = "actor:register"
	PermissionCreateProject     = "project:create"
	PermissionUpdateProject     = "project:update_status"
	PermissionAssignConsultant  = "project:assign_consultant"
	PermissionManageContractors = "project:manage_contractors"
	PermissionAddMilestone      = "milestone:create"
	PermissionStartMilestone    = "milestone:start"
	PermissionManageSections    = "section:manage"
	PermissionAssignContractor  = "section:assign_contractor"
	PermissionCreateSubmission  = "submission:create"
	PermissionReviewSubmission  = "submission:review"
	PermissionComment           = "comment:create"
	PermissionReadProject       = "project:read"
)

// 角色常量
const (
	RoleAdmin      = "ADMIN"
	RoleConsultant = "CONSULTANT"
	RoleContractor = "CONTRACTOR"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionRegisterActor,
		PermissionCreateProject,
		PermissionUpdateProject,
		PermissionAssignConsultant,
		PermissionManageContractors,
		PermissionAddMilestone,
		PermissionManageSections,
		PermissionAssignContractor,
		PermissionComment,
		PermissionReadProject,
	},
	RoleConsultant: {
		PermissionManageContractors,
		PermissionAddMilestone,
		PermissionManageSections,
		PermissionAssignContractor,
		PermissionReviewSubmission,
		PermissionComment,
		PermissionReadProject,
	},
	RoleContractor: {
		PermissionStartMilestone,
		PermissionCreateSubmission,
		PermissionComment,
		PermissionReadProject,
	},
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(actorID int64, role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			ActorID:    actorID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	ActorID    int64
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Permission)
}
