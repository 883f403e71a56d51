package rbac

import "strings"

// Role is the actor category carried by an authenticated principal.
type Role string

// Permission is an action category a role may perform.
type Permission string

// Resource is a protected entity type.
type Resource string

const (
	RoleAdmin        Role = "admin"
	RoleModerator    Role = "moderator"
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleRetailer     Role = "retailer"
	RoleConsumer     Role = "consumer"
	RoleAuditor      Role = "auditor"
	RoleViewer       Role = "viewer"
)

const (
	PermRead     Permission = "read"
	PermWrite    Permission = "write"
	PermDelete   Permission = "delete"
	PermAdmin    Permission = "admin"
	PermAudit    Permission = "audit"
	PermVerify   Permission = "verify"
	PermMint     Permission = "mint"
	PermTransfer Permission = "transfer"
)

const (
	ResourceProduct     Resource = "product"
	ResourceCertificate Resource = "certificate"
	ResourceUser        Resource = "user"
	ResourceSystem      Resource = "system"
	ResourceAudit       Resource = "audit"
	ResourceNFT         Resource = "nft"
	ResourceBlockchain  Resource = "blockchain"
)

var (
	allRoles = []Role{
		RoleAdmin, RoleModerator, RoleManufacturer, RoleDistributor,
		RoleRetailer, RoleConsumer, RoleAuditor, RoleViewer,
	}
	allPermissions = []Permission{
		PermRead, PermWrite, PermDelete, PermAdmin,
		PermAudit, PermVerify, PermMint, PermTransfer,
	}
	allResources = []Resource{
		ResourceProduct, ResourceCertificate, ResourceUser, ResourceSystem,
		ResourceAudit, ResourceNFT, ResourceBlockchain,
	}
)

// Roles lists every defined role.
func Roles() []Role {
	return append([]Role(nil), allRoles...)
}

// Permissions lists every defined permission.
func Permissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// Resources lists every defined resource type.
func Resources() []Resource {
	return append([]Resource(nil), allResources...)
}

// ParseRole normalises raw into a known Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(normalize(raw))
	for _, known := range allRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// ParsePermission normalises raw into a known Permission.
func ParsePermission(raw string) (Permission, bool) {
	p := Permission(normalize(raw))
	for _, known := range allPermissions {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// ParseResource normalises raw into a known Resource.
func ParseResource(raw string) (Resource, bool) {
	r := Resource(normalize(raw))
	for _, known := range allResources {
		if r == known {
			return r, true
		}
	}
	return "", false
}

func normalize(raw string) string {
	return strings.TrimSpace(strings.ToLower(raw))
}
