package handler

import (
	"net/http"

	"github.com/Baaaki/pharmsoc-messaging/internal/middleware"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	authService *service.AuthService
}

func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{
		authService: authService,
	}
}

type BanUserRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// GetAllUsers returns all users (including banned ones)
// GET /api/admin/users
func (h *AdminHandler) GetAllUsers(c *gin.Context) {
	logger.Log.Info("Admin fetching all users",
		zap.Uint64("admin_id", c.GetUint64(middleware.ContextUserID)),
	)

	users, err := h.authService.GetAllUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
	})
}

// BanUser soft deletes a single account
// POST /api/admin/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	var req BanUserRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Ban user request parsing failed",
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  service.CodeInvalidArgument,
		})
		return
	}

	adminID := c.GetUint64(middleware.ContextUserID)
	if err := h.authService.BanUser(c.Request.Context(), req.UserID, adminID, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User banned successfully",
	})
}
