package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const errCodeBadRequest = "bad_request"

var statusByCode = map[string]int{
	core.ErrCodeChainNotSupported:   http.StatusUnprocessableEntity,
	core.ErrCodeInsufficientFee:     http.StatusUnprocessableEntity,
	core.ErrCodeInsufficientStake:   http.StatusUnprocessableEntity,
	core.ErrCodeInvalidProof:        http.StatusUnprocessableEntity,
	core.ErrCodeMessageNotFound:     http.StatusNotFound,
	core.ErrCodeUnauthorized:        http.StatusForbidden,
	core.ErrCodeRelayerNotActive:    http.StatusConflict,
	core.ErrCodeWrongStatus:         http.StatusConflict,
	core.ErrCodeChallengeExpired:    http.StatusConflict,
	core.ErrCodeChallengeWindowOpen: http.StatusConflict,
	core.ErrCodeAlreadyInitialized:  http.StatusConflict,
	core.ErrCodeNotInitialized:      http.StatusConflict,
	core.ErrCodeTreasuryShortfall:   http.StatusConflict,
	core.ErrCodeTransferFailed:      http.StatusBadGateway,
	core.ErrCodeZeroAddress:         http.StatusBadRequest,
}

// statusFor maps a hub error to an HTTP status. Unknown errors are internal.
func statusFor(err error) (int, string) {
	code := core.ErrorCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, ""
}

// writeHubError renders a hub error. Internal errors are logged and hidden.
func writeHubError(c *gin.Context, logger *zerolog.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("hub operation failed")
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: errCodeBadRequest})
}
