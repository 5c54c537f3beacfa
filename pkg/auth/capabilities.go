package auth

import (
	"sort"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/google/uuid"
)

// Capabilities is the immutable permission set granted to an admin for one
// request. Unknown permission strings in the token are dropped.
type Capabilities struct {
	userID      uuid.UUID
	permissions map[enums.Permission]struct{}
}

// NewCapabilities copies perms so later changes to the slice have no effect.
func NewCapabilities(userID uuid.UUID, perms []enums.Permission) Capabilities {
	set := make(map[enums.Permission]struct{}, len(perms))
	for _, p := range perms {
		if p.IsValid() {
			set[p] = struct{}{}
		}
	}
	return Capabilities{userID: userID, permissions: set}
}

// CapabilitiesFromClaims builds the capability set carried by a verified token.
func CapabilitiesFromClaims(claims *Claims) Capabilities {
	if claims == nil {
		return Capabilities{}
	}
	return NewCapabilities(claims.UserID, claims.Permissions)
}

func (c Capabilities) UserID() uuid.UUID {
	return c.userID
}

// Has reports whether the permission was granted.
func (c Capabilities) Has(p enums.Permission) bool {
	_, ok := c.permissions[p]
	return ok
}

// Permissions returns a sorted copy of the granted permissions.
func (c Capabilities) Permissions() []enums.Permission {
	out := make([]enums.Permission, 0, len(c.permissions))
	for p := range c.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Authenticated is false for the zero value.
func (c Capabilities) Authenticated() bool {
	return c.userID != uuid.Nil
}
