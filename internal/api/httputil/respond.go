package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse represents a successful API response
type SuccessResponse struct {
	Data interface{} `json:"data"`
	Meta interface{} `json:"meta,omitempty"`
}

// SendError sends a generic error response
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// SendBadRequest sends a 400 bad request error
func SendBadRequest(c *gin.Context, message string) {
	SendError(c, http.StatusBadRequest, message)
}

// SendNotFound sends a 404 not found error
func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, message)
}

// SendBadGateway sends a 502 for upstream collaborator failures
func SendBadGateway(c *gin.Context, message string) {
	SendError(c, http.StatusBadGateway, message)
}

// SendInternalError sends a 500 internal server error
func SendInternalError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, message)
}

// SendSuccess sends a 200 success response
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Data: data})
}

// SendSuccessWithMeta sends a 200 success response with request metadata
func SendSuccessWithMeta(c *gin.Context, data, meta interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Data: data, Meta: meta})
}
