package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

type challengeRequest struct {
	Address   string   `json:"address" binding:"required"`
	Chain     string   `json:"chain"`
	ChainID   string   `json:"chain_id"`
	Statement string   `json:"statement"`
	Resources []string `json:"resources"`
}

// Challenge handles the challenge request. The response carries the exact
// text the wallet has to sign.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	chain := core.BlockchainEVM
	if req.Chain != "" {
		var err error
		if chain, err = core.ParseBlockchainType(req.Chain); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported chain"})
			return
		}
	}

	token, msg, err := h.authService.CreateChallenge(c.Request.Context(), service.ChallengeRequest{
		Address:        req.Address,
		BlockchainType: chain,
		ChainID:        req.ChainID,
		Statement:      req.Statement,
		Resources:      req.Resources,
	})
	if errors.Is(err, core.ErrInvalidChallenge) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"message":    msg.ToSignableMessage(),
		"nonce":      msg.Nonce,
		"chain":      msg.BlockchainType,
		"chain_id":   msg.ChainID,
		"expires_at": msg.ExpiresAt,
		"request_id": msg.RequestID,
	})
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		ChallengeToken  string `json:"challenge_token" binding:"required"`
		Signature       string `json:"signature" binding:"required"`
		SignatureFormat string `json:"signature_format"`
		Address         string `json:"address"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tokens, err := h.authService.Login(c.Request.Context(), service.LoginRequest{
		ChallengeToken:  req.ChallengeToken,
		Signature:       req.Signature,
		SignatureFormat: core.SignatureFormat(req.SignatureFormat),
		Address:         req.Address,
	})
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Authentication failed"

		// Map specific errors to appropriate status codes
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusBadRequest
			errorMsg = "Challenge token expired"
		case errors.Is(err, core.ErrInvalidChallenge), errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid challenge token"
		case errors.Is(err, core.ErrInvalidSignature):
			statusCode = http.StatusUnauthorized
			errorMsg = "Invalid signature"
		case errors.Is(err, core.ErrNonceReused):
			statusCode = http.StatusConflict
			errorMsg = "Challenge already used"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(tokens))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Failed to refresh tokens"

		// Map specific errors to appropriate status codes
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token expired"
		case errors.Is(err, core.ErrTokenInvalidated):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token has been invalidated"
		case errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid refresh token"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(tokens))
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Access token is optional - we only need refresh token to invalidate the session
	err := h.authService.Logout(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			// Even if expired, we'll consider logout successful
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		case errors.Is(err, core.ErrInvalidToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":    session.Address,
		"chain":      session.BlockchainType,
		"chain_id":   session.ChainID,
		"session_id": session.ID,
		"expires_at": session.AccessExpiry,
	})
}

// Authorize checks if a user is authorized. Reaching the handler means the
// middleware accepted the token.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	address, exists := c.Get(ctxUserAddress)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}

func tokenResponse(tokens *service.Tokens) gin.H {
	return gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(time.Until(tokens.Session.AccessExpiry).Round(time.Second).Seconds()),
	}
}
