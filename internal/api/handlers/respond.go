// Package handlers implements the HTTP endpoints of the LODO API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/directory"
	"github.com/rs/zerolog"
)

// statusForKind maps service error kinds onto HTTP status codes.
var statusForKind = map[directory.ErrorKind]int{
	directory.KindValidation:       http.StatusUnprocessableEntity,
	directory.KindNotFound:         http.StatusNotFound,
	directory.KindConflict:         http.StatusConflict,
	directory.KindPublishedBlocked: http.StatusConflict,
	directory.KindAuth:             http.StatusUnauthorized,
	directory.KindForbidden:        http.StatusForbidden,
	directory.KindInternal:         http.StatusInternalServerError,
}

// respondServiceError writes a classified error envelope. Unclassified
// errors are logged and surfaced as an opaque internal_error.
func respondServiceError(c *gin.Context, logger zerolog.Logger, err error) {
	kind := directory.KindOf(err)
	status, ok := statusForKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if kind == directory.KindInternal {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("internal error")
		message = "internal error"
	}

	c.JSON(status, gin.H{"error": gin.H{"code": string(kind), "message": message}})
}

// respondBadRequest writes a 400 validation envelope for malformed requests
// that never reach the service layer.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "validation_error", "message": message}})
}
