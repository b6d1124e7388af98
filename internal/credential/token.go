package credential

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/ehr-terminal/internal/model"
)

// TokenInfo is what the client can learn from a bearer token without
// the signing key.
type TokenInfo struct {
	// Opaque is set when the token is not a decodable JWT.
	Opaque bool

	UserID    model.ID
	Role      model.Role
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry that has passed.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.Opaque && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

type tokenClaims struct {
	UserID   model.ID `json:"user_id"`
	UserType string   `json:"user_type"`
	jwt.RegisteredClaims
}

// InspectToken decodes the claims of a JWT without verifying its
// signature. Verification is the backend's job; the client only uses
// the claims to avoid sending an obviously expired token.
func InspectToken(raw string) TokenInfo {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return TokenInfo{Opaque: true}
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return TokenInfo{Opaque: true}
	}

	info := TokenInfo{UserID: claims.UserID}
	if info.UserID == "" && claims.Subject != "" {
		info.UserID = model.ID(claims.Subject)
	}
	if role, err := model.ParseRole(claims.UserType); err == nil {
		info.Role = role
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}
