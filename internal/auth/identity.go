package auth

import (
	"context"
	"strings"
)

// Role is a coarse-grained principal type carried in the credential.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// ParseRole normalises a claim value; unknown values yield "".
func ParseRole(v string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(v))); r {
	case RoleUser, RoleSeller, RoleAdmin:
		return r
	}
	return ""
}

// Capability is a single permission checked by operations.
type Capability string

const (
	CapPlaceOrder    Capability = "order:place"
	CapReadOwnOrder  Capability = "order:read:own"
	CapReadAnyOrder  Capability = "order:read:any"
	CapMutateOwn     Capability = "order:mutate:own"
	CapAdvanceOrder  Capability = "order:advance"
	CapCreatePayment Capability = "payment:create"
	CapVerifyPayment Capability = "payment:verify"
)

var roleCapabilities = map[Role][]Capability{
	RoleUser: {
		CapPlaceOrder,
		CapReadOwnOrder,
		CapMutateOwn,
		CapCreatePayment,
		CapVerifyPayment,
	},
	RoleAdmin: {
		CapReadAnyOrder,
		CapAdvanceOrder,
	},
	RoleSeller: {},
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Role   Role
	// Token is the raw bearer credential, forwarded on service-to-service calls.
	Token string
}

// Can reports whether the identity's role grants the capability.
func (i *Identity) Can(c Capability) bool {
	if i == nil {
		return false
	}
	for _, granted := range roleCapabilities[i.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// HasRole reports whether the identity has one of the roles.
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
