package api

import (
	"github.com/draftcast-team/draftcast/internal/guard"
	"github.com/labstack/echo/v4"
)

// Authenticated identity is supplied by the upstream identity provider:
// the reverse proxy strips any client-sent X-Auth-User header and sets it
// only after verifying the session, so its presence can be trusted here.
const authUserHeader = "X-Auth-User"

// Identity is the rate-limit and audit identity for one request
type Identity struct {
	// Key is the opaque stable identifier: the provider's user ID for
	// authenticated requests, the client IP otherwise.
	Key           string
	Authenticated bool
}

// UserType returns the audit log user type label
func (id Identity) UserType() string {
	if id.Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// LogID returns the identifier safe to persist: the opaque user ID as-is,
// or a hash for IP-keyed anonymous identities
func (id Identity) LogID() string {
	if id.Authenticated {
		return id.Key
	}
	return "ip:" + guard.HashKeyID(id.Key)
}

// ResolveIdentity determines who is asking: the verified header from the
// identity provider when present, the extracted client IP otherwise.
func ResolveIdentity(c echo.Context) Identity {
	if user := c.Request().Header.Get(authUserHeader); user != "" {
		return Identity{Key: user, Authenticated: true}
	}
	return Identity{Key: getClientIP(c)}
}
