package ports

import "github.com/layer-3/keygate/core"

// Tokenizer converts between sessions and signed token strings. Parse
// failures map to the token taxonomy: core.ErrTokenExpired past expiry,
// core.ErrTokenSignatureInvalid for anything unverifiable.
type Tokenizer interface {
	SignAccessToken(session *core.Session) (string, error)
	ParseAccessToken(token string) (*core.Session, error)

	SignRefreshToken(session *core.Session) (string, error)
	ParseRefreshToken(token string) (*core.Session, error)
}
