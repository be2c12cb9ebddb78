package ceremony

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/layer-3/keygate/core"
	"github.com/layer-3/keygate/ports"
)

// RegistrationResponse is the client's answer to a registration challenge.
// CredentialID is the rawId the client reported; it must match the credential
// ID inside the attestation object.
type RegistrationResponse struct {
	CredentialID      []byte
	ClientDataJSON    []byte
	AttestationObject []byte
}

// AssertionResponse is the client's answer to an assertion challenge.
type AssertionResponse struct {
	CredentialID      []byte
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
}

// Verifier checks ceremony responses against issued challenges and the
// credential registry. Every verification step must pass; the first failure
// aborts the attempt, and the consumed challenge cannot be retried.
type Verifier struct {
	challenges  ports.ChallengeStore
	credentials ports.CredentialStore

	rpID     string
	rpIDHash []byte
	origin   string

	now func() time.Time
}

// NewVerifier creates a verifier scoped to one relying party and origin.
func NewVerifier(challenges ports.ChallengeStore, credentials ports.CredentialStore, rpID, origin string) *Verifier {
	hash := sha256.Sum256([]byte(rpID))
	return &Verifier{
		challenges:  challenges,
		credentials: credentials,
		rpID:        rpID,
		rpIDHash:    hash[:],
		origin:      origin,
		now:         time.Now,
	}
}

// VerifyRegistration validates a credential-creation response and registers
// the new credential for the user. The stored credential starts with a zero
// signature counter.
func (v *Verifier) VerifyRegistration(ctx context.Context, userID string, resp RegistrationResponse) (*core.Credential, error) {
	if _, err := v.consumeClientData(ctx, userID, resp.ClientDataJSON, protocol.CreateCeremony); err != nil {
		return nil, err
	}

	var att protocol.AttestationObject
	if err := webauthncbor.Unmarshal(resp.AttestationObject, &att); err != nil {
		return nil, core.ErrMalformedResponse
	}
	if err := att.AuthData.Unmarshal(att.RawAuthData); err != nil {
		return nil, core.ErrMalformedResponse
	}
	if !att.AuthData.Flags.HasAttestedCredentialData() || len(att.AuthData.AttData.CredentialID) == 0 {
		return nil, core.ErrMalformedResponse
	}
	if !bytes.Equal(resp.CredentialID, att.AuthData.AttData.CredentialID) {
		return nil, core.ErrMalformedResponse
	}
	if subtle.ConstantTimeCompare(att.AuthData.RPIDHash, v.rpIDHash) != 1 {
		return nil, core.ErrOriginMismatch
	}
	if _, err := webauthncose.ParsePublicKey(att.AuthData.AttData.CredentialPublicKey); err != nil {
		return nil, core.ErrMalformedResponse
	}

	cred := &core.Credential{
		ID:        att.AuthData.AttData.CredentialID,
		OwnerID:   userID,
		PublicKey: att.AuthData.AttData.CredentialPublicKey,
		CreatedAt: v.now(),
	}
	if err := v.credentials.Register(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// VerifyAssertion validates an authentication response: challenge, origin,
// credential ownership, signature and replay counter, in that order. Success
// is bound to the credential's owner.
func (v *Verifier) VerifyAssertion(ctx context.Context, userID string, resp AssertionResponse) (*core.Credential, error) {
	if _, err := v.consumeClientData(ctx, userID, resp.ClientDataJSON, protocol.AssertCeremony); err != nil {
		return nil, err
	}

	cred, err := v.credentials.ByCredentialID(ctx, resp.CredentialID)
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != userID {
		return nil, core.ErrCredentialMismatch
	}

	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(resp.AuthenticatorData); err != nil {
		return nil, core.ErrMalformedResponse
	}
	if !authData.Flags.UserPresent() {
		return nil, core.ErrMalformedResponse
	}
	if subtle.ConstantTimeCompare(authData.RPIDHash, v.rpIDHash) != 1 {
		return nil, core.ErrOriginMismatch
	}

	clientDataHash := sha256.Sum256(resp.ClientDataJSON)
	signedBytes := make([]byte, 0, len(resp.AuthenticatorData)+len(clientDataHash))
	signedBytes = append(signedBytes, resp.AuthenticatorData...)
	signedBytes = append(signedBytes, clientDataHash[:]...)

	key, err := webauthncose.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return nil, core.ErrSignatureInvalid
	}
	valid, err := webauthncose.VerifySignature(key, signedBytes, resp.Signature)
	if err != nil || !valid {
		return nil, core.ErrSignatureInvalid
	}

	if err := v.credentials.AdvanceCounter(ctx, cred.ID, authData.Counter); err != nil {
		return nil, err
	}
	cred.SignCount = authData.Counter
	return cred, nil
}

// consumeClientData decodes the collected client data, consumes the user's
// outstanding challenge against it and checks ceremony type and origin. A
// response too malformed to present a challenge still burns the outstanding
// one: every abort is terminal for the attempt.
func (v *Verifier) consumeClientData(ctx context.Context, userID string, clientDataJSON []byte, ceremonyType protocol.CeremonyType) (*protocol.CollectedClientData, error) {
	var clientData protocol.CollectedClientData
	if err := json.Unmarshal(clientDataJSON, &clientData); err != nil {
		_ = v.challenges.Consume(ctx, userID, nil)
		return nil, core.ErrMalformedResponse
	}

	challenge, err := base64.RawURLEncoding.DecodeString(clientData.Challenge)
	if err != nil {
		_ = v.challenges.Consume(ctx, userID, nil)
		return nil, core.ErrMalformedResponse
	}
	if err := v.challenges.Consume(ctx, userID, challenge); err != nil {
		return nil, core.ErrChallengeInvalid
	}

	if clientData.Type != ceremonyType {
		return nil, core.ErrMalformedResponse
	}
	if clientData.Origin != v.origin {
		return nil, core.ErrOriginMismatch
	}
	return &clientData, nil
}
