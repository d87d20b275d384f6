package core

import (
	"context"
	"errors"

	"costcore/pkg/domain"
)

// Identity carries the authenticated actor and organization scope attached to
// write operations. The remote backend requires it; the local backend does not.
type Identity struct {
	Actor        string
	Organization string
}

type identityKey struct{}

// WithIdentity attaches an identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the identity from the context, if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

var errIdentityRequired = errors.New("actor identity and organization scope required for remote writes")

// requireWriteIdentity enforces that remote-mode writes carry a complete
// identity. Failures surface as backend unavailability, the same way any
// other remote auth failure would.
func (s *Service) requireWriteIdentity(ctx context.Context) error {
	if s.router.Mode() != BackendRemote {
		return nil
	}
	id, ok := IdentityFrom(ctx)
	if !ok || id.Actor == "" || id.Organization == "" {
		return domain.BackendUnavailableError{Backend: string(BackendRemote), Err: errIdentityRequired}
	}
	return nil
}
