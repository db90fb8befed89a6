package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleSuperAdmin = "super_admin"
	RoleScheduler  = "scheduler"   // external cron callers
	RoleOperator   = "operator"    // read-only support staff
	RoleBreakGlass = "break_glass" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
