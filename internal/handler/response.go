package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/service"
	"go.uber.org/zap"
)

func respondOK(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, dto.SuccessResponse{
		Success: true,
		Status:  status,
		Data:    data,
		Message: message,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Success: false,
		Status:  status,
		Message: message,
	})
}

// errorStatus maps a service error to its HTTP status and client-facing message
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, service.ErrInvalidRefreshToken.Error()
	case errors.Is(err, service.ErrExpiredToken):
		return http.StatusUnauthorized, service.ErrExpiredToken.Error()
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, service.ErrInvalidToken.Error()
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, service.ErrForbidden.Error()
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, service.ErrUserNotFound.Error()
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func respondServiceError(c *gin.Context, logger *zap.Logger, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	respondError(c, status, message)
}
