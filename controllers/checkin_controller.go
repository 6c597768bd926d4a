package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin-backend/models"
	"checkin-backend/services"
	"checkin-backend/utils"
)

type CheckinController struct {
	CheckinSvc *services.CheckinService
}

func NewCheckinController(svc *services.CheckinService) *CheckinController {
	return &CheckinController{CheckinSvc: svc}
}

// Submit handles POST /api/scanner/checkin.
// The credential is checked inside the service, after the body is
// validated, so a malformed identifier never reaches storage.
func (cc *CheckinController) Submit(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid_body", "request body must be JSON with identifier and method")
		return
	}

	token := utils.BearerToken(c.GetHeader("Authorization"))
	result, err := cc.CheckinSvc.SubmitScan(c.Request.Context(), token, req)
	if err != nil {
		// only a conflict returns a result; a nil pointer must not reach the
		// envelope as "data": null
		var data interface{}
		if result != nil {
			data = result
		}
		utils.JSONAppError(c, err, data)
		return
	}

	utils.JSONSuccess(c, http.StatusOK, result)
}
