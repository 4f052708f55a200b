package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/carzavenue/backend/pkg/enums"
)

// AccessTokenPayload captures the data needed to sign an access token.
type AccessTokenPayload struct {
	UserID int64
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by marketplace clients.
// Tokens are issued by the identity service; this service only verifies them.
type AccessTokenClaims struct {
	UserID int64          `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
