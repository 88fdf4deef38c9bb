package module

import (
	"context"

	"github.com/houseofmisfits/willow/internal/platform"
)

// Authorizer checks message authors against the administrator roles from the
// bootstrap configuration. An authorization failure is an answer for the
// requester, not an error condition.
type Authorizer struct {
	client platform.Client
	roles  []platform.RoleID
}

// NewAuthorizer creates an authorizer accepting any of the given roles.
func NewAuthorizer(client platform.Client, roles []platform.RoleID) *Authorizer {
	return &Authorizer{client: client, roles: roles}
}

// Authorized reports whether member holds any administrator role.
func (a *Authorizer) Authorized(ctx context.Context, member platform.MemberID) (bool, error) {
	if len(a.roles) == 0 {
		return false, nil
	}
	return a.client.MemberHasRole(ctx, member, a.roles...)
}
