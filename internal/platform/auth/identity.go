package auth

import (
	"context"
	"strings"

	domain "github.com/eventdesk/api/internal/domain"
)

// Portal roles carried in the "role" custom claim.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// Identity is the principal decoded from a verified ID token.
type Identity struct {
	UID   string
	Email string
	Name  string
	Roles []string
}

// HasRole reports whether the identity includes role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor converts the identity to the actor recorded on order mutations. The display name is the
// token's name claim, falling back to the email address and then the UID.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	name := strings.TrimSpace(i.Name)
	if name == "" {
		name = i.Email
	}
	if name == "" {
		name = i.UID
	}
	return domain.Actor{ID: i.UID, DisplayName: name}
}

type contextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
