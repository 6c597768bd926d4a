package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"checkin-backend/middleware"
	"checkin-backend/services"
	"checkin-backend/utils"
)

type SearchController struct {
	SearchSvc    *services.SearchService
	DefaultLimit int
}

func NewSearchController(svc *services.SearchService, defaultLimit int) *SearchController {
	return &SearchController{SearchSvc: svc, DefaultLimit: defaultLimit}
}

// Search handles GET /api/scanner/search?q=&limit=.
func (sc *SearchController) Search(c *gin.Context) {
	session, ok := middleware.ScannerSession(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "session_invalid", "scanner session is missing, invalid or expired")
		return
	}

	limit := sc.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.JSONError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	candidates, err := sc.SearchSvc.Search(c.Request.Context(), session.EventID, c.Query("q"), limit)
	if err != nil {
		utils.JSONAppError(c, err, nil)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, candidates)
}
