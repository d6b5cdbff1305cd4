package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/middleware"
)

// generationFailedMessage 生成失败时返回给客户端的统一提示
const generationFailedMessage = "could not generate roadmap, please retry"

// currentUser 获取鉴权中间件注入的用户 ID
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.UserIDKey)
	return userID, userID != ""
}

// successResponse 返回成功响应
func successResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// errorResponse 返回统一错误信封
func errorResponse(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// badRequestResponse 返回 400 响应
func badRequestResponse(c *gin.Context, message string, details interface{}) {
	errorResponse(c, http.StatusBadRequest, string(apperr.VALIDATION_ERROR), message, details)
}

// unauthorizedResponse 返回 401 响应
func unauthorizedResponse(c *gin.Context) {
	errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized", nil)
}

// statusFor 应用错误码到 HTTP 状态码
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.VALIDATION_ERROR:
		return http.StatusBadRequest
	case apperr.NOT_FOUND:
		return http.StatusNotFound
	case apperr.INVALID_STATE, apperr.CONFLICT:
		return http.StatusConflict
	case apperr.GENERATION_FORMAT_ERROR, apperr.GENERATION_PARSE_ERROR, apperr.GENERATION_UNAVAILABLE:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError 把服务层错误写成响应
// 生成失败和内部错误不向客户端暴露原因
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		errorResponse(c, http.StatusInternalServerError, string(apperr.INTERNAL), "internal server error", nil)
		return
	}

	status := statusFor(appErr.Code)
	switch {
	case apperr.IsGeneration(appErr):
		errorResponse(c, status, string(appErr.Code), generationFailedMessage, nil)
	case status == http.StatusInternalServerError:
		errorResponse(c, status, string(apperr.INTERNAL), "internal server error", nil)
	default:
		errorResponse(c, status, string(appErr.Code), appErr.Message, nil)
	}
}
