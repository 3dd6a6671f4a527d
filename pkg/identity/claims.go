package identity

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"m365prov/pkg/scopes"
)

// Claims is the subset of an Entra access token the console cares about.
type Claims struct {
	TenantID  string
	Principal string
	Scopes    scopes.Set
	Expires   time.Time
}

// ParseClaims reads claims without verifying the signature: Graph access
// tokens are opaque to clients and only the resource can validate them.
func ParseClaims(raw string) (Claims, error) {
	tok, err := jwt.ParseString(raw, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, fmt.Errorf("parse access token: %w", err)
	}
	c := Claims{Expires: tok.Expiration(), Scopes: scopes.New()}
	c.TenantID = stringClaim(tok, "tid")
	for _, k := range []string{"upn", "preferred_username", "unique_name"} {
		if s := stringClaim(tok, k); s != "" {
			c.Principal = s
			break
		}
	}
	if s := stringClaim(tok, "scp"); s != "" {
		c.Scopes = scopes.Parse(s)
	}
	return c, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
