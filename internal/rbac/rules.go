package rbac

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		"test:view",
		"test:take",
		"result:view-own",
		"session:logout",
	},
	"admin": {
		"*", // everything
	},
}
