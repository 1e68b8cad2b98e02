package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleAgent      = "agent"   // places calls
	RoleAnalyst    = "analyst" // reads reports
	RoleFinance    = "finance" // reads usage
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support" // internal staff; admitted only where listed
)

// Groups used by route wiring.
var (
	CallPlacers  = []string{RoleOwner, RoleAgent}
	UsageReaders = []string{RoleOwner, RoleFinance, RoleAnalyst}
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

