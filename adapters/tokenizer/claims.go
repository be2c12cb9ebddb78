package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims carried by a short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token. The JWT ID doubles
// as the rotation handle stored server-side.
type RefreshClaims struct {
	jwt.RegisteredClaims
}
