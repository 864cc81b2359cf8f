package enums

import (
	"fmt"
	"slices"
)

// ActorRole is the marketplace role carried in access tokens.
type ActorRole string

const (
	ActorRoleCustomer    ActorRole = "customer"
	ActorRoleDistributor ActorRole = "distributor"
	ActorRoleDelivery    ActorRole = "delivery"
	ActorRoleReviewer    ActorRole = "reviewer"
	ActorRoleStaff       ActorRole = "staff"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleDistributor,
	ActorRoleDelivery,
	ActorRoleReviewer,
	ActorRoleStaff,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	return slices.Contains(validActorRoles, r)
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	if role := ActorRole(value); role.IsValid() {
		return role, nil
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
