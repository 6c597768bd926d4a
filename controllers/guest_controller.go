package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin-backend/apperror"
	"checkin-backend/middleware"
	"checkin-backend/services"
	"checkin-backend/utils"
)

type GuestController struct {
	GuestSvc *services.GuestService
}

func NewGuestController(svc *services.GuestService) *GuestController {
	return &GuestController{GuestSvc: svc}
}

// GetGuests handles GET /api/scanner/guests: the full guest list of the
// session's event, for the scanner's offline cache.
func (gc *GuestController) GetGuests(c *gin.Context) {
	session, ok := middleware.ScannerSession(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "session_invalid", "scanner session is missing, invalid or expired")
		return
	}

	guests, err := gc.GuestSvc.ListByEvent(c.Request.Context(), session.EventID)
	if err != nil {
		utils.JSONAppError(c, apperror.Internal("guest list unavailable", err), nil)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, guests)
}

// GetStats handles GET /api/scanner/stats.
func (gc *GuestController) GetStats(c *gin.Context) {
	session, ok := middleware.ScannerSession(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "session_invalid", "scanner session is missing, invalid or expired")
		return
	}

	stats, err := gc.GuestSvc.Stats(c.Request.Context(), session.EventID)
	if err != nil {
		utils.JSONAppError(c, apperror.Internal("stats unavailable", err), nil)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, stats)
}
