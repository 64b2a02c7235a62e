package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/service"
	"go.uber.org/zap"
)

// UserHandler handles user management requests
type UserHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService service.AuthService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{authService: authService, logger: logger}
}

// ChangeRole assigns a role to a user
// @Summary Change user role
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.ChangeRoleRequest true "New role"
// @Success 200 {object} dto.SuccessResponse{data=dto.UserData}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req dto.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	user, err := h.authService.ChangeRole(c.Request.Context(), claims, c.Param("id"), role)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, dto.UserData{User: *user}, "Role updated successfully")
}
