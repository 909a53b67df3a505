package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/asergian/beacon-sub001/interfaces"
)

// QuotaStatus returns the current counters of one provider credential.
func QuotaStatus(quota interfaces.QuotaGovernor) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := strings.TrimSpace(c.Param("credential"))
		if credential == "" {
			abortWithError(c, http.StatusBadRequest, "credential is required", "invalid_request")
			return
		}
		c.JSON(http.StatusOK, quota.Snapshot(credential))
	}
}
