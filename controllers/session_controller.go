package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin-backend/middleware"
	"checkin-backend/utils"
)

// GetSession handles GET /api/scanner/session. A scanner calls it once
// to learn which event and device id its credential is bound to.
func GetSession(c *gin.Context) {
	session, ok := middleware.ScannerSession(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "session_invalid", "scanner session is missing, invalid or expired")
		return
	}
	utils.JSONSuccess(c, http.StatusOK, session)
}
