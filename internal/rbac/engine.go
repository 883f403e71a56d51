package rbac

// HasPermission reports whether role holds permission.
func HasPermission(role Role, permission Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[permission]
	return ok
}

// CanAccessResource reports whether role may touch resource at all.
func CanAccessResource(role Role, resource Resource) bool {
	set, ok := resourceRoles[resource]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// HasResourcePermission requires both category access to resource and the
// specific permission. A consumer holds verify but still cannot verify a
// system resource.
func HasResourcePermission(role Role, resource Resource, permission Permission) bool {
	return CanAccessResource(role, resource) && HasPermission(role, permission)
}
