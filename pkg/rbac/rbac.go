package rbac

// 权限常量
const (
	// 手动触发提醒批次
	PermissionTriggerReminders = "reminders:trigger"
	// 建立推送连接
	PermissionSubscribePush = "push:subscribe"
	// 读写自己的站内通知
	PermissionReadFeed = "feed:read"
	// 管理任意用户的站内通知
	PermissionManageAnyFeed = "feed:manage_any"
)

// 角色常量
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system" // 定时任务等内部调用方
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionSubscribePush,
		PermissionReadFeed,
	},
	RoleAdmin: {
		PermissionSubscribePush,
		PermissionReadFeed,
		PermissionManageAnyFeed,
		PermissionTriggerReminders,
	},
	RoleSystem: {
		PermissionTriggerReminders,
	},
}

// NormalizeRole 空角色视为普通用户
func NormalizeRole(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[NormalizeRole(role)]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(subject, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Subject:    subject,
			Role:       NormalizeRole(role),
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Subject    string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
