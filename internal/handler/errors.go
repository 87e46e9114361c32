package handler

import (
	"net/http"
	"strconv"

	"github.com/Baaaki/pharmsoc-messaging/internal/middleware"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/Baaaki/pharmsoc-messaging/internal/utils"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	service.CodeInvalidArgument:  http.StatusBadRequest,
	service.CodeInvalidRecipient: http.StatusBadRequest,
	service.CodePermissionDenied: http.StatusForbidden,
	service.CodeNotFound:         http.StatusNotFound,
	service.CodeInternal:         http.StatusInternalServerError,
}

// respondError writes {"error", "code"} with the status matching err's class.
// Internal errors are logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	code := service.ErrorCode(err)
	status := statusByCode[code]
	message := err.Error()

	if code == service.CodeInternal {
		logger.Log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		message = "internal server error"
	}

	c.JSON(status, gin.H{"error": message, "code": code})
}

// principal returns the authenticated claims or answers 401
func principal(c *gin.Context) (*utils.Claims, bool) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	return claims, true
}

// idParam parses a positive numeric path parameter or answers 400
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid " + name,
			"code":  service.CodeInvalidArgument,
		})
		return 0, false
	}
	return id, true
}
