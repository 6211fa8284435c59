package auth

const (
	RoleAdmin   = "admin"
	RoleDPO     = "dpo"
	RoleAnalyst = "analyst"
)

const (
	PermTemplatesRead  = "templates.read"
	PermTemplatesWrite = "templates.write"
	PermPurposesRead   = "purposes.read"
	PermPurposesWrite  = "purposes.write"
	PermConsentsRead   = "consents.read"
	PermConsentsManage = "consents.manage"
	PermVendorsRead    = "vendors.read"
	PermVendorsWrite   = "vendors.write"
	PermVendorsApprove = "vendors.approve"
	PermSettingsRead   = "settings.read"
	PermSettingsWrite  = "settings.write"
	PermAnalyticsRead  = "analytics.read"
	PermAuditRead      = "audit.read"
)

var DefaultPermissions = []string{
	PermTemplatesRead,
	PermTemplatesWrite,
	PermPurposesRead,
	PermPurposesWrite,
	PermConsentsRead,
	PermConsentsManage,
	PermVendorsRead,
	PermVendorsWrite,
	PermVendorsApprove,
	PermSettingsRead,
	PermSettingsWrite,
	PermAnalyticsRead,
	PermAuditRead,
}

// RolePermissions is seeded into role_permissions on boot. The DPO owns
// vendor approval and consent withdrawal; analysts only read.
var RolePermissions = map[string][]string{
	RoleAdmin: DefaultPermissions,
	RoleDPO: {
		PermTemplatesRead,
		PermPurposesRead,
		PermConsentsRead,
		PermConsentsManage,
		PermVendorsRead,
		PermVendorsWrite,
		PermVendorsApprove,
		PermSettingsRead,
		PermAnalyticsRead,
		PermAuditRead,
	},
	RoleAnalyst: {
		PermTemplatesRead,
		PermPurposesRead,
		PermConsentsRead,
		PermVendorsRead,
		PermAnalyticsRead,
	},
}

// Allows reports whether the static role table grants perm.
func Allows(roleName, perm string) bool {
	for _, p := range RolePermissions[roleName] {
		if p == perm {
			return true
		}
	}
	return false
}
