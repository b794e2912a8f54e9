package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// VersionHandler reports build information.
type VersionHandler struct {
	version string
	commit  string
	date    string
}

// NewVersionHandler creates a VersionHandler.
func NewVersionHandler(version, commit, date string) *VersionHandler {
	return &VersionHandler{version: version, commit: commit, date: date}
}

// Version returns build metadata.
// GET /version
func (h *VersionHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": h.version,
		"commit":  h.commit,
		"date":    h.date,
	})
}
