package core

import "errors"

// Ceremony failures. The transport surfaces all of these as one generic
// "authentication failed" response; the distinct values exist for telemetry.
var (
	ErrChallengeInvalid      = errors.New("challenge expired, consumed or mismatched")
	ErrMalformedResponse     = errors.New("malformed ceremony response")
	ErrOriginMismatch        = errors.New("origin does not match relying party")
	ErrCredentialMismatch    = errors.New("credential belongs to a different user")
	ErrCredentialNotFound    = errors.New("no credential registered")
	ErrSignatureInvalid      = errors.New("assertion signature invalid")
	ErrReplayDetected        = errors.New("signature counter did not increase")
	ErrDuplicateRegistration = errors.New("credential already registered")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already exists")
)

// Token failures surface distinctly so clients know whether to re-run the
// ceremony or simply retry.
var (
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenSuperseded       = errors.New("refresh token is no longer current")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
)

// ErrAuthenticationFailed is the only ceremony outcome exposed on the wire.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Code returns the telemetry code for a taxonomy error, or "unknown".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrChallengeInvalid):
		return "challenge_invalid"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, ErrCredentialMismatch):
		return "credential_mismatch"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, ErrDuplicateRegistration):
		return "duplicate_registration"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserExists):
		return "user_exists"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenSuperseded):
		return "token_superseded"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "token_signature_invalid"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	default:
		return "unknown"
	}
}
