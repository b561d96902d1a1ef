package kraken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// tokenLifetimeFallback is the assumed token lifetime when the expiry
	// claim cannot be read. Deliberately shorter than the provider's
	// ~60-minute lifetime.
	tokenLifetimeFallback = 50 * time.Minute

	// tokenExpiryMargin is subtracted from a decoded expiry claim so we
	// re-authenticate before the token actually dies mid-request.
	tokenExpiryMargin = 10 * time.Minute
)

// sessionToken is the mutable token state owned by the Client. At most one
// token is live at a time.
type sessionToken struct {
	value     string
	expiresAt time.Time
}

// valid reports whether the token exists and has not reached its computed
// expiry.
func (t *sessionToken) valid(now time.Time) bool {
	return t.value != "" && now.Before(t.expiresAt)
}

func (t *sessionToken) clear() {
	t.value = ""
	t.expiresAt = time.Time{}
}

// tokenExpiry computes the local expiry for a freshly issued token. The exp
// claim is read without signature verification (we only need the timestamp,
// and the signing key is the provider's); tokens without a readable claim
// get the conservative fixed lifetime.
func tokenExpiry(token string, issuedAt time.Time) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-tokenExpiryMargin)
		}
	}
	return issuedAt.Add(tokenLifetimeFallback)
}
