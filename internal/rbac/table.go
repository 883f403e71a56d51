package rbac

import "slices"

type permissionSet map[Permission]struct{}

type roleSet map[Role]struct{}

// rolePermissions and resourceRoles are built once at init and never
// written afterwards, so concurrent readers need no locking.
var (
	rolePermissions = map[Role]permissionSet{
		RoleAdmin:        newPermissionSet(allPermissions...),
		RoleModerator:    newPermissionSet(PermRead, PermWrite, PermVerify, PermAudit),
		RoleManufacturer: newPermissionSet(PermRead, PermWrite, PermMint, PermVerify),
		RoleDistributor:  newPermissionSet(PermRead, PermWrite, PermTransfer, PermVerify),
		RoleRetailer:     newPermissionSet(PermRead, PermWrite, PermTransfer, PermVerify),
		RoleConsumer:     newPermissionSet(PermRead, PermVerify),
		RoleAuditor:      newPermissionSet(PermRead, PermAudit, PermVerify),
		RoleViewer:       newPermissionSet(PermRead),
	}

	resourceRoles = map[Resource]roleSet{
		ResourceProduct:     newRoleSet(allRoles...),
		ResourceCertificate: newRoleSet(RoleAdmin, RoleModerator, RoleManufacturer, RoleDistributor, RoleRetailer, RoleConsumer, RoleAuditor),
		ResourceUser:        newRoleSet(RoleAdmin, RoleModerator),
		ResourceSystem:      newRoleSet(RoleAdmin),
		ResourceAudit:       newRoleSet(RoleAdmin, RoleAuditor),
		ResourceNFT:         newRoleSet(RoleAdmin, RoleManufacturer, RoleDistributor, RoleRetailer, RoleConsumer),
		ResourceBlockchain:  newRoleSet(RoleAdmin, RoleManufacturer, RoleAuditor),
	}
)

// PermissionsFor returns the permissions granted to role, in canonical
// order. Unknown roles get an empty slice.
func PermissionsFor(role Role) []Permission {
	set, ok := rolePermissions[role]
	if !ok {
		return []Permission{}
	}
	out := make([]Permission, 0, len(set))
	for _, p := range allPermissions {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// RolesFor returns the roles allowed to touch resource at all.
func RolesFor(resource Resource) []Role {
	set, ok := resourceRoles[resource]
	if !ok {
		return []Role{}
	}
	out := make([]Role, 0, len(set))
	for _, r := range allRoles {
		if _, ok := set[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ResourcesFor returns the resource types role can access.
func ResourcesFor(role Role) []Resource {
	out := make([]Resource, 0, len(allResources))
	for _, res := range allResources {
		if slices.Contains(RolesFor(res), role) {
			out = append(out, res)
		}
	}
	return out
}

func newPermissionSet(perms ...Permission) permissionSet {
	set := make(permissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func newRoleSet(roles ...Role) roleSet {
	set := make(roleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}
