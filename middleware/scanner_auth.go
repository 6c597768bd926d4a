package middleware

import (
	"github.com/gin-gonic/gin"

	"checkin-backend/models"
	"checkin-backend/services"
	"checkin-backend/utils"
)

const sessionKey = "scanner_session"

// RequireScannerSession rejects requests without an active scanner
// session and stores the session for handlers.
func RequireScannerSession(sessions services.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := utils.BearerToken(c.GetHeader("Authorization"))
		session, err := sessions.Authorize(c.Request.Context(), token)
		if err != nil {
			utils.JSONAppError(c, err, nil)
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// ScannerSession returns the session stored by RequireScannerSession.
func ScannerSession(c *gin.Context) (*models.ScannerSession, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*models.ScannerSession)
	return session, ok
}
