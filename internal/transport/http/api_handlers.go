package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/auth"
)

// APIHandlers provides HTTP handlers for authentication endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// NonceRequest represents the login challenge request body.
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse carries the message the caller must sign.
type NonceResponse struct {
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expires_at"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// Nonce issues a login challenge.
// POST /api/auth/nonce
func (h *APIHandlers) Nonce(c *gin.Context) {
	var req NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid nonce request")
		writeBadRequest(c, "invalid request body")
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	message, expiresAt, err := h.authService.Challenge(c.Request.Context(), addr)
	if err != nil {
		if errors.Is(err, auth.ErrZeroAddress) {
			writeBadRequest(c, "zero address")
			return
		}
		h.log.Error().Err(err).Str("address", addr.Hex()).Msg("failed to issue login nonce")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, NonceResponse{Message: message, ExpiresAt: expiresAt.Unix()})
}

// Login exchanges a signed challenge for a token.
// POST /api/auth/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		writeBadRequest(c, "invalid request body")
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	sig, err := parseHex(req.Signature)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	token, err := h.authService.Login(c.Request.Context(), addr, sig)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrNonceExpired) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("address", addr.Hex()).Msg("failed to login")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("address", addr.Hex()).Msg("caller logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}
