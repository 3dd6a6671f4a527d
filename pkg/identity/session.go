package identity

import (
	"time"

	"m365prov/pkg/scopes"
)

// Session represents the signed-in operator against one tenant.
type Session struct {
	TenantID    string     // tid claim
	Principal   string     // upn / preferred_username
	Scopes      scopes.Set // scopes requested when the session was established
	Granted     scopes.Set // scp claim of the access token
	ConnectedAt time.Time
	ExpiresOn   time.Time
}

// Effective is what the session can actually call: requested plus granted.
func (s Session) Effective() scopes.Set { return s.Scopes.Union(s.Granted) }
