package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/layer-3/keygate/ceremony"
	"github.com/layer-3/keygate/core"
	"github.com/layer-3/keygate/service"
)

// AuthHandlers contains HTTP handlers for the auth endpoints.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (h *AuthHandlers) newTokenResponse(pair *core.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.authService.AccessTTL() / time.Second),
	}
}

// BeginRegistration issues a registration challenge.
func (h *AuthHandlers) BeginRegistration(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	challenge, err := h.authService.BeginRegistration(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}

	ceremoniesStarted.WithLabelValues("registration").Inc()
	c.JSON(http.StatusOK, gin.H{
		"challenge":   protocol.URLEncodedBase64(challenge.Challenge),
		"rp_id":       challenge.RPID,
		"user_handle": protocol.URLEncodedBase64(challenge.UserHandle),
	})
}

// FinishRegistration verifies the credential-creation response. Every
// verification failure maps to the same 401 body.
func (h *AuthHandlers) FinishRegistration(c *gin.Context) {
	var req struct {
		UserID            string                    `json:"user_id" binding:"required"`
		CredentialID      protocol.URLEncodedBase64 `json:"credential_id" binding:"required"`
		ClientDataJSON    protocol.URLEncodedBase64 `json:"client_data_json" binding:"required"`
		AttestationObject protocol.URLEncodedBase64 `json:"attestation_object" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authService.FinishRegistration(c.Request.Context(), req.UserID, ceremony.RegistrationResponse{
		CredentialID:      req.CredentialID,
		ClientDataJSON:    req.ClientDataJSON,
		AttestationObject: req.AttestationObject,
	})
	if err != nil {
		ceremoniesFinished.WithLabelValues("registration", "failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	ceremoniesFinished.WithLabelValues("registration", "success").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

// BeginAssertion issues an assertion challenge along with the allowed
// credential IDs.
func (h *AuthHandlers) BeginAssertion(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	challenge, err := h.authService.BeginAssertion(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, core.ErrCredentialNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no credential registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}

	ids := make([]protocol.URLEncodedBase64, 0, len(challenge.CredentialIDs))
	for _, id := range challenge.CredentialIDs {
		ids = append(ids, protocol.URLEncodedBase64(id))
	}

	ceremoniesStarted.WithLabelValues("assertion").Inc()
	c.JSON(http.StatusOK, gin.H{
		"challenge":      protocol.URLEncodedBase64(challenge.Challenge),
		"rp_id":          challenge.RPID,
		"credential_ids": ids,
	})
}

// FinishAssertion verifies the assertion response and returns a token pair.
func (h *AuthHandlers) FinishAssertion(c *gin.Context) {
	var req struct {
		UserID            string                    `json:"user_id" binding:"required"`
		CredentialID      protocol.URLEncodedBase64 `json:"credential_id" binding:"required"`
		ClientDataJSON    protocol.URLEncodedBase64 `json:"client_data_json" binding:"required"`
		AuthenticatorData protocol.URLEncodedBase64 `json:"authenticator_data" binding:"required"`
		Signature         protocol.URLEncodedBase64 `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.authService.FinishAssertion(c.Request.Context(), req.UserID, ceremony.AssertionResponse{
		CredentialID:      req.CredentialID,
		ClientDataJSON:    req.ClientDataJSON,
		AuthenticatorData: req.AuthenticatorData,
		Signature:         req.Signature,
	})
	if err != nil {
		ceremoniesFinished.WithLabelValues("assertion", "failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	ceremoniesFinished.WithLabelValues("assertion", "success").Inc()
	c.JSON(http.StatusOK, h.newTokenResponse(pair))
}

// PasswordLogin handles the password fallback.
func (h *AuthHandlers) PasswordLogin(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.authService.PasswordLogin(c.Request.Context(), req.UserID, req.Password)
	if err != nil {
		fallbackLogins.WithLabelValues("password", "failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	fallbackLogins.WithLabelValues("password", "success").Inc()
	c.JSON(http.StatusOK, h.newTokenResponse(pair))
}

// PINLogin handles the device PIN fallback.
func (h *AuthHandlers) PINLogin(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		PIN    string `json:"pin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.authService.PINLogin(c.Request.Context(), req.UserID, req.PIN)
	if err != nil {
		fallbackLogins.WithLabelValues("pin", "failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	fallbackLogins.WithLabelValues("pin", "success").Inc()
	c.JSON(http.StatusOK, h.newTokenResponse(pair))
}

// Refresh rotates a token pair. Token failures stay distinct on the wire so
// the client knows whether to restart the ceremony.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		rotations.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, core.ErrTokenSuperseded):
			c.JSON(http.StatusForbidden, gin.H{"error": "refresh token superseded"})
		case errors.Is(err, core.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired"})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		}
		return
	}

	rotations.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, h.newTokenResponse(pair))
}

// Logout revokes the active refresh token.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated user.
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, exists := c.Get(contextUserKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user not found in context"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID})
}

// Authorize confirms the bearer token is valid; the middleware already did
// the work.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	userID, exists := c.Get(contextUserKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user not found in context"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": true, "user_id": userID})
}
